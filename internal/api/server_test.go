package api

import (
	"encoding/binary"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cantrack/internal/canbus"
	"github.com/banshee-data/cantrack/internal/capture"
	"github.com/banshee-data/cantrack/internal/monitoring"
	"github.com/banshee-data/cantrack/internal/radar"
	"github.com/banshee-data/cantrack/internal/testutil"
	"github.com/banshee-data/cantrack/internal/units"
)

func init() {
	monitoring.SetLogger(nil)
}

const apiRadarDBC = `VERSION ""

BO_ 528 TRACK_0: 8 RADAR
 SG_ LONG_DIST : 7|16@0+ (0.01,0) [0|300] "m" XXX
 SG_ LAT_DIST : 23|16@0- (0.01,0) [-50|50] "m" XXX
 SG_ REL_SPEED : 39|16@0- (0.01,0) [-100|100] "m/s" XXX
 SG_ NEW_TRACK : 55|1@0+ (1,0) [0|1] "" XXX
 SG_ VALID : 54|1@0+ (1,0) [0|1] "" XXX
`

const apiControlDBC = `VERSION ""

BO_ 835 ACC_CONTROL: 8 DSU
 SG_ ACCEL_CMD : 7|16@0- (0.01,0) [-20|20] "m/s^2" XXX
 SG_ SET_ME_X63 : 23|8@0+ (1,0) [0|255] "" XXX
 SG_ SET_ME_1 : 31|8@0+ (1,0) [0|255] "" XXX
 SG_ RELEASE_STANDSTILL : 39|1@0+ (1,0) [0|1] "" XXX
 SG_ CANCEL_REQ : 38|1@0+ (1,0) [0|1] "" XXX
 SG_ CHECKSUM : 63|8@0+ (1,0) [0|255] "" XXX
`

// newTestDriver wires a started driver onto mock buses and returns the radar
// side so tests can inject frames.
func newTestDriver(t *testing.T) (*radar.Driver, *canbus.MockBus) {
	t.Helper()

	cfg := radar.DefaultConfig()
	cfg.RadarDBC = testutil.WriteTempFile(t, "radar.dbc", apiRadarDBC)
	cfg.ControlDBC = testutil.WriteTempFile(t, "control.dbc", apiControlDBC)
	cfg.Interface = "mock"
	cfg.AutoSetup = false
	cfg.KeepAliveEnabled = false
	cfg.PollTimeout = 10 * time.Millisecond

	car := canbus.NewMockBus()
	radarBus := canbus.NewMockBus()
	d, err := radar.NewDriver(cfg, radar.WithBusOpener(func(channel, iface string, bitrate int) (canbus.Bus, error) {
		if channel == cfg.CarChannel {
			return car, nil
		}
		return radarBus, nil
	}))
	require.NoError(t, err)
	require.NoError(t, d.Start())
	t.Cleanup(d.Stop)
	return d, radarBus
}

// validTrackFrame encodes a track frame with VALID set.
func validTrackFrame(t *testing.T, relSpeed float64) canbus.Frame {
	t.Helper()
	data := make([]byte, 8)
	binary.BigEndian.PutUint16(data[0:2], 4250) // 42.50 m
	binary.BigEndian.PutUint16(data[4:6], uint16(int16(relSpeed*100)))
	data[6] = 0x40
	f, err := canbus.NewFrame(0x210, data)
	require.NoError(t, err)
	return f
}

func get(t *testing.T, mux *http.ServeMux, path string, out any) int {
	t.Helper()
	req := testutil.NewTestRequest(http.MethodGet, path)
	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestTracksEmpty(t *testing.T) {
	d, _ := newTestDriver(t)
	mux := NewServer(d, nil, nil, units.MPS).ServeMux()

	var resp struct {
		Tracks []json.RawMessage `json:"tracks"`
		Count  int               `json:"count"`
	}
	code := get(t, mux, "/api/tracks", &resp)
	testutil.AssertStatusCode(t, code, http.StatusOK)
	assert.Zero(t, resp.Count)
	assert.Empty(t, resp.Tracks)
}

func TestTracksConvertUnits(t *testing.T) {
	d, radarBus := newTestDriver(t)
	mux := NewServer(d, nil, nil, units.MPH).ServeMux()

	radarBus.Inject(validTrackFrame(t, -10.0))
	require.Eventually(t, func() bool { return d.MessageCount() == 1 },
		time.Second, 5*time.Millisecond)

	var resp struct {
		Tracks []struct {
			ID       int     `json:"track_id"`
			LongDist float64 `json:"long_dist"`
			RelSpeed float64 `json:"rel_speed"`
			Units    string  `json:"units"`
		} `json:"tracks"`
		Count int `json:"count"`
	}
	code := get(t, mux, "/api/tracks", &resp)
	testutil.AssertStatusCode(t, code, http.StatusOK)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, 0, resp.Tracks[0].ID)
	assert.InDelta(t, 42.5, resp.Tracks[0].LongDist, 1e-9)
	assert.InDelta(t, -10.0*2.23694, resp.Tracks[0].RelSpeed, 1e-3)
	assert.Equal(t, units.MPH, resp.Tracks[0].Units)
}

func TestStatus(t *testing.T) {
	d, _ := newTestDriver(t)
	mux := NewServer(d, nil, nil, units.MPS).ServeMux()

	var resp struct {
		Running      bool   `json:"running"`
		MessageCount uint64 `json:"message_count"`
	}
	code := get(t, mux, "/api/status", &resp)
	testutil.AssertStatusCode(t, code, http.StatusOK)
	assert.True(t, resp.Running)
	assert.Zero(t, resp.MessageCount)
}

func TestSessionsWithoutStore(t *testing.T) {
	d, _ := newTestDriver(t)
	mux := NewServer(d, nil, nil, units.MPS).ServeMux()

	code := get(t, mux, "/api/sessions", nil)
	testutil.AssertStatusCode(t, code, http.StatusNotFound)
}

func TestSessionsAndSummary(t *testing.T) {
	d, _ := newTestDriver(t)

	store, err := capture.NewStore(filepath.Join(t.TempDir(), "capture.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	meta := capture.Meta{SessionID: "s1", Name: "run", CreatedUTC: time.Now().UTC()}
	require.NoError(t, store.RecordSession(meta))
	require.NoError(t, store.RecordTrack("s1", radar.Track{ID: 0, LongDist: 30, RelSpeed: -4, Timestamp: time.Now().UTC()}))

	mux := NewServer(d, store, nil, units.MPS).ServeMux()

	var list struct {
		Sessions []capture.Meta `json:"sessions"`
	}
	code := get(t, mux, "/api/sessions", &list)
	testutil.AssertStatusCode(t, code, http.StatusOK)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, "s1", list.Sessions[0].SessionID)

	var sum capture.Summary
	code = get(t, mux, "/api/sessions/s1/summary", &sum)
	testutil.AssertStatusCode(t, code, http.StatusOK)
	assert.Equal(t, 1, sum.Observations)
	assert.InDelta(t, 4.0, sum.MeanAbsSpeed, 1e-9)

	code = get(t, mux, "/api/sessions/missing/summary", nil)
	testutil.AssertStatusCode(t, code, http.StatusNotFound)
}

func TestMetricsRoute(t *testing.T) {
	d, _ := newTestDriver(t)

	withMetrics := NewServer(d, nil, monitoring.NewCollector(), units.MPS).ServeMux()
	code := get(t, withMetrics, "/metrics", nil)
	testutil.AssertStatusCode(t, code, http.StatusOK)

	without := NewServer(d, nil, nil, units.MPS).ServeMux()
	code = get(t, without, "/metrics", nil)
	testutil.AssertStatusCode(t, code, http.StatusNotFound)
}

func TestInvalidUnitsFallBack(t *testing.T) {
	d, _ := newTestDriver(t)
	mux := NewServer(d, nil, nil, "furlongs").ServeMux()

	var resp struct {
		Count int `json:"count"`
	}
	code := get(t, mux, "/api/tracks", &resp)
	testutil.AssertStatusCode(t, code, http.StatusOK)
}
