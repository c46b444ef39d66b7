// Package radar drives a factory Toyota radar unit over two CAN buses: it
// keeps the unit streaming by emulating the heartbeat traffic of the
// driver-assist ECU it expects to hear, decodes the track frames it emits,
// and maintains a bounded-staleness cache of detected objects.
package radar

import (
	"fmt"
	"time"
)

// Config carries the full configuration surface of the Driver. Normalize it
// once before constructing the driver; the driver treats it as immutable
// after Start.
type Config struct {
	// RadarChannel is the bus the radar unit streams track frames on.
	RadarChannel string `json:"radar_channel"`
	// CarChannel is the bus carrying the emulated ECU heartbeat traffic.
	CarChannel string `json:"car_channel"`

	// Interface selects the transport for both buses ("socketcan", "slcan",
	// "mock"). RadarInterface and CarInterface override it per bus.
	Interface      string `json:"interface"`
	RadarInterface string `json:"radar_interface,omitempty"`
	CarInterface   string `json:"car_interface,omitempty"`

	Bitrate int `json:"bitrate"`

	// RadarDBC decodes track frames; ControlDBC encodes heartbeat frames.
	RadarDBC   string `json:"radar_dbc"`
	ControlDBC string `json:"control_dbc"`

	KeepAliveRate    float64       `json:"keepalive_rate_hz"`
	KeepAliveEnabled bool          `json:"keepalive_enabled"`
	TrackTimeout     time.Duration `json:"track_timeout"`
	PollTimeout      time.Duration `json:"poll_timeout"`

	// AutoSetup brings both links up with ip link before opening them.
	AutoSetup      bool     `json:"auto_setup"`
	UseSudo        bool     `json:"use_sudo"`
	SetupExtraArgs []string `json:"setup_extra_args,omitempty"`
}

// DefaultConfig returns the configuration matching a bench setup with the
// radar on can1 and the emulated car side on can0.
func DefaultConfig() Config {
	return Config{
		RadarChannel:     "can1",
		CarChannel:       "can0",
		Interface:        "socketcan",
		Bitrate:          500000,
		RadarDBC:         "opendbc/toyota_prius_2017_adas.dbc",
		ControlDBC:       "opendbc/toyota_prius_2017_pt_generated.dbc",
		KeepAliveRate:    100.0,
		KeepAliveEnabled: true,
		TrackTimeout:     500 * time.Millisecond,
		PollTimeout:      100 * time.Millisecond,
		AutoSetup:        true,
	}
}

// Normalize validates the config and applies defaults for unset values.
func (c Config) Normalize() (Config, error) {
	cfg := c

	if cfg.RadarChannel == "" || cfg.CarChannel == "" {
		return cfg, fmt.Errorf("radar: both radar and car channels are required")
	}
	if cfg.Interface == "" {
		cfg.Interface = "socketcan"
	}
	if cfg.Bitrate <= 0 {
		cfg.Bitrate = 500000
	}
	if cfg.RadarDBC == "" || cfg.ControlDBC == "" {
		return cfg, fmt.Errorf("radar: both radar and control DBC paths are required")
	}
	if cfg.KeepAliveRate <= 0 {
		cfg.KeepAliveRate = 100.0
	}
	if cfg.TrackTimeout <= 0 {
		cfg.TrackTimeout = 500 * time.Millisecond
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 100 * time.Millisecond
	}
	return cfg, nil
}

// radarIface returns the transport name for the radar bus.
func (c Config) radarIface() string {
	if c.RadarInterface != "" {
		return c.RadarInterface
	}
	return c.Interface
}

// carIface returns the transport name for the car bus.
func (c Config) carIface() string {
	if c.CarInterface != "" {
		return c.CarInterface
	}
	return c.Interface
}
