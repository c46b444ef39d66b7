package radar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAppliesDefaults(t *testing.T) {
	cfg := Config{
		RadarChannel: "can1",
		CarChannel:   "can0",
		RadarDBC:     "radar.dbc",
		ControlDBC:   "control.dbc",
	}

	got, err := cfg.Normalize()
	require.NoError(t, err)

	assert.Equal(t, "socketcan", got.Interface)
	assert.Equal(t, 500000, got.Bitrate)
	assert.Equal(t, 100.0, got.KeepAliveRate)
	assert.Equal(t, 500*time.Millisecond, got.TrackTimeout)
	assert.Equal(t, 100*time.Millisecond, got.PollTimeout)
}

func TestNormalizeRejectsMissingChannels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CarChannel = ""
	_, err := cfg.Normalize()
	require.Error(t, err)
}

func TestNormalizeRejectsMissingDBC(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ControlDBC = ""
	_, err := cfg.Normalize()
	require.Error(t, err)
}

func TestNormalizeKeepsExplicitValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KeepAliveRate = 50
	cfg.TrackTimeout = 2 * time.Second

	got, err := cfg.Normalize()
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.KeepAliveRate)
	assert.Equal(t, 2*time.Second, got.TrackTimeout)
}

func TestInterfaceOverrides(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "socketcan", cfg.radarIface())
	assert.Equal(t, "socketcan", cfg.carIface())

	cfg.RadarInterface = "slcan"
	assert.Equal(t, "slcan", cfg.radarIface())
	assert.Equal(t, "socketcan", cfg.carIface())

	cfg.CarInterface = "mock"
	assert.Equal(t, "mock", cfg.carIface())
}

func TestDefaultConfigNormalizes(t *testing.T) {
	_, err := DefaultConfig().Normalize()
	require.NoError(t, err)
}
