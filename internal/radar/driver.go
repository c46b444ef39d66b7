package radar

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/cantrack/internal/canbus"
	"github.com/banshee-data/cantrack/internal/dbc"
	"github.com/banshee-data/cantrack/internal/monitoring"
	"github.com/banshee-data/cantrack/internal/timeutil"
)

// TrackCallback observes every accepted track update. Callbacks run on the
// listener goroutine after the cache lock has been released.
type TrackCallback func(Track)

// RawCallback observes frames outside the track identifier range, unmodified,
// for diagnostic pass-through.
type RawCallback func(canbus.Frame)

// BusOpener opens one bus connection. Tests inject openers returning mocks.
type BusOpener func(channel, ifaceName string, bitrate int) (canbus.Bus, error)

// stopJoinTimeout bounds how long Stop waits for the keep-alive goroutine.
const stopJoinTimeout = time.Second

// Driver owns the two bus connections, both signal databases, the keep-alive
// scheduler, and the frame listener, and exposes the public query surface.
type Driver struct {
	cfg     Config
	clock   timeutil.Clock
	metrics *monitoring.Collector
	static  []StaticFrame
	open    BusOpener

	cache   *trackCache
	rxCount atomic.Uint64

	mu             sync.Mutex
	running        bool
	carBus         canbus.Bus
	radarBus       canbus.Bus
	trackDB        *dbc.Database
	controlDB      *dbc.Database
	keepalive      *keepAlive
	notifier       *canbus.Notifier
	trackCallbacks []TrackCallback
	rawCallbacks   []RawCallback
}

// Option adjusts driver construction.
type Option func(*Driver)

// WithClock injects a clock, letting tests control TTL eviction and the
// keep-alive cadence.
func WithClock(c timeutil.Clock) Option {
	return func(d *Driver) { d.clock = c }
}

// WithMetrics attaches a Prometheus collector to the driver.
func WithMetrics(m *monitoring.Collector) Option {
	return func(d *Driver) { d.metrics = m }
}

// WithStaticFrames overrides the heartbeat frame table.
func WithStaticFrames(frames []StaticFrame) Option {
	return func(d *Driver) { d.static = frames }
}

// WithBusOpener overrides how bus connections are opened.
func WithBusOpener(open BusOpener) Option {
	return func(d *Driver) { d.open = open }
}

// NewDriver validates the config and constructs a stopped driver.
func NewDriver(cfg Config, opts ...Option) (*Driver, error) {
	cfg, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}
	d := &Driver{
		cfg:    cfg,
		clock:  timeutil.RealClock{},
		static: DefaultStaticFrames,
		open:   canbus.Open,
		cache:  newTrackCache(cfg.TrackTimeout),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// RegisterTrackCallback adds an observer for accepted track updates. Register
// callbacks before Start for deterministic coverage of early frames.
func (d *Driver) RegisterTrackCallback(cb TrackCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trackCallbacks = append(d.trackCallbacks, cb)
}

// RegisterRawCallback adds an observer for non-track frames.
func (d *Driver) RegisterRawCallback(cb RawCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rawCallbacks = append(d.rawCallbacks, cb)
}

// Start brings up the links, loads both databases, opens both buses, sends
// the one-shot initialization traffic, and starts the keep-alive scheduler
// and the listener. It is a no-op on a running driver. Any fatal failure
// rolls back and leaves the driver stopped.
func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}

	if d.cfg.AutoSetup {
		if err := d.setupLinks(); err != nil {
			return err
		}
	}

	var err error
	d.trackDB, err = dbc.Load(d.cfg.RadarDBC)
	if err != nil {
		return fmt.Errorf("radar: load radar DBC: %w", err)
	}
	d.controlDB, err = dbc.Load(d.cfg.ControlDBC)
	if err != nil {
		return fmt.Errorf("radar: load control DBC: %w", err)
	}

	// Two independent connections on purpose: keep-alive transmissions on
	// the car bus must never be echoed back into the radar decode path.
	d.carBus, err = d.open(d.cfg.CarChannel, d.cfg.carIface(), d.cfg.Bitrate)
	if err != nil {
		return fmt.Errorf("radar: open car bus %s: %w", d.cfg.CarChannel, err)
	}
	d.radarBus, err = d.open(d.cfg.RadarChannel, d.cfg.radarIface(), d.cfg.Bitrate)
	if err != nil {
		d.carBus.Close()
		d.carBus = nil
		return fmt.Errorf("radar: open radar bus %s: %w", d.cfg.RadarChannel, err)
	}

	// Some radar firmware revisions stream regardless of this baseline, so
	// failures here are logged and tolerated.
	d.sendInitialMessages()

	if d.cfg.KeepAliveEnabled {
		d.keepalive = newKeepAlive(d.carBus, d.radarBus, d.controlDB, d.cfg.KeepAliveRate, d.static, d.clock, d.metrics)
		d.keepalive.start()
	}

	d.rxCount.Store(0)
	d.notifier = canbus.NewNotifier(d.radarBus, d.cfg.PollTimeout, d.handleFrame)
	d.notifier.Start()

	d.running = true
	return nil
}

func (d *Driver) setupLinks() error {
	opts := canbus.LinkOptions{
		Bitrate:   d.cfg.Bitrate,
		UseSudo:   d.cfg.UseSudo,
		ExtraArgs: d.cfg.SetupExtraArgs,
	}
	channels := []string{d.cfg.CarChannel}
	if d.cfg.RadarChannel != d.cfg.CarChannel {
		channels = append(channels, d.cfg.RadarChannel)
	}
	for _, ch := range channels {
		if err := canbus.SetupLink(ch, opts); err != nil {
			return err
		}
	}
	return nil
}

// initialMessages is the one-shot baseline cruise-control state the radar
// expects to have observed before it starts streaming.
var initialMessages = []struct {
	name   string
	fields map[string]float64
}{
	{"SPEED", map[string]float64{"ENCODER": 0, "SPEED": 1.44, "CHECKSUM": 0}},
	{"PCM_CRUISE", map[string]float64{"CRUISE_STATE": 9, "GAS_RELEASED": 0, "STANDSTILL_ON": 0, "ACCEL_NET": 0, "CHECKSUM": 0}},
	{"PCM_CRUISE_2", map[string]float64{"MAIN_ON": 0, "LOW_SPEED_LOCKOUT": 0, "SET_SPEED": 0, "CHECKSUM": 0}},
	{accControlMessage, map[string]float64{"ACCEL_CMD": 0, "SET_ME_X63": 0, "RELEASE_STANDSTILL": 0, "SET_ME_1": 0, "CANCEL_REQ": 0, "CHECKSUM": 0}},
	{"PCM_CRUISE_SM", map[string]float64{"MAIN_ON": 0, "CRUISE_CONTROL_STATE": 0, "UI_SET_SPEED": 0}},
}

func (d *Driver) sendInitialMessages() {
	for _, msg := range initialMessages {
		if _, ok := d.controlDB.MessageByName(msg.name); !ok {
			continue
		}
		id, payload, err := d.controlDB.Encode(msg.name, msg.fields)
		if err != nil {
			monitoring.Logf("radar: init encode %s: %v", msg.name, err)
			continue
		}
		frame, err := canbus.NewFrame(id, payload)
		if err != nil {
			monitoring.Logf("radar: init frame %s: %v", msg.name, err)
			continue
		}
		if err := d.carBus.Send(frame); err != nil {
			monitoring.Logf("radar: init send %s: %v", msg.name, err)
		}
	}
}

// Stop tears down whatever was initialized, in listener-scheduler-bus order.
// It is idempotent and never fails observably.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}

	if d.notifier != nil {
		d.notifier.Stop()
		d.notifier = nil
	}
	if d.keepalive != nil {
		d.keepalive.halt(stopJoinTimeout)
	}
	if d.radarBus != nil {
		if err := d.radarBus.Close(); err != nil {
			monitoring.Logf("radar: close radar bus: %v", err)
		}
		d.radarBus = nil
	}
	if d.carBus != nil {
		if err := d.carBus.Close(); err != nil {
			monitoring.Logf("radar: close car bus: %v", err)
		}
		d.carBus = nil
	}

	d.cache.clear()
	d.running = false
}

// Running reports whether the driver has been started.
func (d *Driver) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Tracks returns a snapshot of the cache with stale entries evicted. The
// returned map is independent of the live cache.
func (d *Driver) Tracks() map[int]Track {
	snap := d.cache.snapshot(d.clock.Now())
	if d.metrics != nil {
		d.metrics.TracksActive.Set(float64(len(snap)))
	}
	return snap
}

// KeepAliveStatus returns the scheduler's transmit counters, or nil when
// keep-alive is disabled or the driver has not started it.
func (d *Driver) KeepAliveStatus() *KeepAliveStatus {
	d.mu.Lock()
	ka := d.keepalive
	d.mu.Unlock()
	if ka == nil {
		return nil
	}
	st := ka.status()
	return &st
}

// MessageCount returns the number of frames observed on the radar bus since
// the driver started.
func (d *Driver) MessageCount() uint64 {
	return d.rxCount.Load()
}
