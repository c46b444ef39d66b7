package radar

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/cantrack/internal/canbus"
	"github.com/banshee-data/cantrack/internal/dbc"
	"github.com/banshee-data/cantrack/internal/monitoring"
	"github.com/banshee-data/cantrack/internal/timeutil"
)

// accControlMessage is the primary heartbeat frame. The radar treats its
// presence as proof the driver-assist ECU is alive.
const accControlMessage = "ACC_CONTROL"

// accControlFields is the fixed zero-acceleration command transmitted every
// tick. The marker values and checksum match what a factory DSU emits when
// cruise is engaged but commanding no acceleration.
var accControlFields = map[string]float64{
	"ACCEL_CMD":          0,
	"SET_ME_X63":         0x63,
	"SET_ME_1":           1,
	"RELEASE_STANDSTILL": 1,
	"CANCEL_REQ":         0,
	"CHECKSUM":           113,
}

// KeepAliveStatus is a point-in-time view of the scheduler's transmit state.
type KeepAliveStatus struct {
	TxCount   uint64 `json:"tx_count"`
	LastError string `json:"last_error,omitempty"`
}

type keepAliveRunState int

const (
	keepAliveIdle keepAliveRunState = iota
	keepAliveRunning
	keepAliveStopping
	keepAliveStopped
)

// keepAlive emulates the heartbeat traffic of a driver-assist ECU so the
// radar unit keeps streaming track frames. One goroutine drives all frames;
// the static table produces multiple independent rates from the single loop
// through per-entry period divisors.
type keepAlive struct {
	carBus    canbus.Bus
	radarBus  canbus.Bus
	controlDB *dbc.Database
	clock     timeutil.Clock
	period    time.Duration
	static    []StaticFrame
	metrics   *monitoring.Collector

	// counter is touched only by the scheduler goroutine (and direct tick
	// calls in tests).
	counter uint64

	mu        sync.Mutex
	state     keepAliveRunState
	txCount   uint64
	lastError string
	stop      chan struct{}
	done      chan struct{}
}

func newKeepAlive(carBus, radarBus canbus.Bus, controlDB *dbc.Database, rate float64, static []StaticFrame, clock timeutil.Clock, metrics *monitoring.Collector) *keepAlive {
	if rate < 1 {
		rate = 1
	}
	return &keepAlive{
		carBus:    carBus,
		radarBus:  radarBus,
		controlDB: controlDB,
		clock:     clock,
		period:    time.Duration(float64(time.Second) / rate),
		static:    static,
		metrics:   metrics,
	}
}

// start spawns the scheduler loop. Only an idle scheduler starts.
func (k *keepAlive) start() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state != keepAliveIdle {
		return
	}
	k.state = keepAliveRunning
	k.stop = make(chan struct{})
	k.done = make(chan struct{})
	go k.run(k.stop, k.done)
}

func (k *keepAlive) run(stop, done chan struct{}) {
	defer func() {
		k.mu.Lock()
		k.state = keepAliveStopped
		k.mu.Unlock()
		close(done)
	}()

	for {
		select {
		case <-stop:
			return
		default:
		}

		start := k.clock.Now()
		k.tick()

		// Sleep out the remainder of the period. An overrun tick proceeds
		// immediately with no compensating burst sends.
		remaining := k.period - k.clock.Since(start)
		if remaining > 0 {
			select {
			case <-stop:
				return
			case <-k.clock.After(remaining):
			}
		}
	}
}

// tick performs one scheduler period: the primary control frame, then the
// static table pass, then the counter increment. Each transmission failure
// is isolated so one bad send never skips the rest of the tick.
func (k *keepAlive) tick() {
	if k.sendControl() {
		k.clearError()
	}

	for _, sf := range k.static {
		if k.counter%sf.Period != 0 {
			continue
		}
		k.sendStatic(sf)
	}

	k.counter++
}

// sendControl encodes and transmits the primary ACC_CONTROL frame on the car
// bus. It reports whether the attempt succeeded.
func (k *keepAlive) sendControl() bool {
	id, payload, err := k.controlDB.Encode(accControlMessage, accControlFields)
	if err != nil {
		k.recordError(fmt.Errorf("encode %s: %w", accControlMessage, err))
		return false
	}
	frame, err := canbus.NewFrame(id, payload)
	if err != nil {
		k.recordError(fmt.Errorf("frame %s: %w", accControlMessage, err))
		return false
	}
	if err := k.carBus.Send(frame); err != nil {
		k.recordError(fmt.Errorf("send %s: %w", accControlMessage, err))
		return false
	}
	k.countTx()
	return true
}

func (k *keepAlive) sendStatic(sf StaticFrame) {
	frame, err := canbus.NewFrame(sf.ID, appendRollingCounter(sf, k.counter))
	if err != nil {
		k.recordError(fmt.Errorf("frame 0x%X: %w", sf.ID, err))
		return
	}

	bus := k.carBus
	if sf.Bus == RadarBus {
		bus = k.radarBus
	}
	if err := bus.Send(frame); err != nil {
		k.recordError(fmt.Errorf("send 0x%X: %w", sf.ID, err))
		return
	}
	k.countTx()
}

func (k *keepAlive) countTx() {
	k.mu.Lock()
	k.txCount++
	k.mu.Unlock()
	if k.metrics != nil {
		k.metrics.KeepAliveTx.Inc()
	}
}

// recordError stores the failure for status reporting. The loop never stops
// on an error: the radar tolerates occasional heartbeat gaps far better than
// it tolerates the heartbeat thread dying.
func (k *keepAlive) recordError(err error) {
	k.mu.Lock()
	k.lastError = err.Error()
	k.mu.Unlock()
	if k.metrics != nil {
		k.metrics.KeepAliveErrors.Inc()
	}
}

func (k *keepAlive) clearError() {
	k.mu.Lock()
	k.lastError = ""
	k.mu.Unlock()
}

func (k *keepAlive) runState() keepAliveRunState {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

// status returns the current transmit counters.
func (k *keepAlive) status() KeepAliveStatus {
	k.mu.Lock()
	defer k.mu.Unlock()
	return KeepAliveStatus{TxCount: k.txCount, LastError: k.lastError}
}

// halt signals the loop and waits for it to exit, bounded by timeout. The
// loop observes the signal within one period.
func (k *keepAlive) halt(timeout time.Duration) {
	k.mu.Lock()
	if k.state != keepAliveRunning {
		k.mu.Unlock()
		return
	}
	k.state = keepAliveStopping
	stop, done := k.stop, k.done
	k.mu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-time.After(timeout):
		monitoring.Logf("radar: keep-alive loop did not stop within %v", timeout)
	}
}
