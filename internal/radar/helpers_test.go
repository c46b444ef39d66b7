package radar

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/cantrack/internal/canbus"
	"github.com/banshee-data/cantrack/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

// Track layout: LONG_DIST bytes 0-1, LAT_DIST bytes 2-3, REL_SPEED bytes 4-5
// (all big-endian, 0.01 scale, LAT/REL signed), NEW_TRACK bit 7 and VALID
// bit 6 of byte 6.
const radarTestDBC = `VERSION ""

BO_ 528 TRACK_0: 8 RADAR
 SG_ LONG_DIST : 7|16@0+ (0.01,0) [0|300] "m" XXX
 SG_ LAT_DIST : 23|16@0- (0.01,0) [-50|50] "m" XXX
 SG_ REL_SPEED : 39|16@0- (0.01,0) [-100|100] "m/s" XXX
 SG_ NEW_TRACK : 55|1@0+ (1,0) [0|1] "" XXX
 SG_ VALID : 54|1@0+ (1,0) [0|1] "" XXX

BO_ 529 TRACK_1: 8 RADAR
 SG_ LONG_DIST : 7|16@0+ (0.01,0) [0|300] "m" XXX
 SG_ LAT_DIST : 23|16@0- (0.01,0) [-50|50] "m" XXX
 SG_ REL_SPEED : 39|16@0- (0.01,0) [-100|100] "m/s" XXX
 SG_ NEW_TRACK : 55|1@0+ (1,0) [0|1] "" XXX
 SG_ VALID : 54|1@0+ (1,0) [0|1] "" XXX
`

const controlTestDBC = `VERSION ""

BO_ 835 ACC_CONTROL: 8 DSU
 SG_ ACCEL_CMD : 7|16@0- (0.01,0) [-20|20] "m/s^2" XXX
 SG_ SET_ME_X63 : 23|8@0+ (1,0) [0|255] "" XXX
 SG_ SET_ME_1 : 31|8@0+ (1,0) [0|255] "" XXX
 SG_ RELEASE_STANDSTILL : 39|1@0+ (1,0) [0|1] "" XXX
 SG_ CANCEL_REQ : 38|1@0+ (1,0) [0|1] "" XXX
 SG_ CHECKSUM : 63|8@0+ (1,0) [0|255] "" XXX

BO_ 580 SPEED: 8 XXX
 SG_ ENCODER : 7|8@0+ (1,0) [0|255] "" XXX
 SG_ SPEED : 15|16@0+ (0.01,0) [0|655] "kph" XXX
 SG_ CHECKSUM : 63|8@0+ (1,0) [0|255] "" XXX
`

// writeTestDBCs writes both fixture databases and returns their paths.
func writeTestDBCs(t *testing.T) (radarPath, controlPath string) {
	t.Helper()
	dir := t.TempDir()
	radarPath = filepath.Join(dir, "radar.dbc")
	controlPath = filepath.Join(dir, "control.dbc")
	for path, content := range map[string]string{
		radarPath:   radarTestDBC,
		controlPath: controlTestDBC,
	} {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return radarPath, controlPath
}

// trackFrame builds a raw track frame matching the fixture layout.
func trackFrame(t *testing.T, id uint32, longDist, latDist, relSpeed float64, newTrack, valid bool) canbus.Frame {
	t.Helper()
	data := make([]byte, 8)
	binary.BigEndian.PutUint16(data[0:2], uint16(longDist*100))
	binary.BigEndian.PutUint16(data[2:4], uint16(int16(latDist*100)))
	binary.BigEndian.PutUint16(data[4:6], uint16(int16(relSpeed*100)))
	if newTrack {
		data[6] |= 0x80
	}
	if valid {
		data[6] |= 0x40
	}
	f, err := canbus.NewFrame(id, data)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

// testConfig returns a config pointing at the fixture databases with setup
// disabled and short timeouts suited to tests.
func testConfig(t *testing.T) Config {
	t.Helper()
	radarPath, controlPath := writeTestDBCs(t)
	cfg := DefaultConfig()
	cfg.RadarDBC = radarPath
	cfg.ControlDBC = controlPath
	cfg.Interface = "mock"
	cfg.AutoSetup = false
	cfg.KeepAliveEnabled = false
	cfg.PollTimeout = 10 * time.Millisecond
	return cfg
}

// mockBusPair returns an opener that hands out one fixed bus per channel.
func mockBusPair(car, radarBus *canbus.MockBus, carChannel, radarChannel string) BusOpener {
	return func(channel, iface string, bitrate int) (canbus.Bus, error) {
		switch channel {
		case carChannel:
			return car, nil
		case radarChannel:
			return radarBus, nil
		default:
			return nil, fmt.Errorf("unexpected channel %q", channel)
		}
	}
}
