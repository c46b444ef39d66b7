package canbus

import (
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/cantrack/internal/monitoring"
)

// Handler receives one inbound frame. Handlers run on the notifier goroutine,
// so they should return quickly and never block.
type Handler func(Frame)

// Notifier runs a receive loop on one Bus and dispatches every inbound frame
// to its handlers. The loop re-polls at a bounded timeout so Stop is observed
// within one timeout window even when the bus is quiet.
type Notifier struct {
	bus      Bus
	timeout  time.Duration
	handlers []Handler

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewNotifier creates a notifier for the given bus. Handlers must all be
// registered before Start; the handler list is not safe to grow afterwards.
func NewNotifier(bus Bus, timeout time.Duration, handlers ...Handler) *Notifier {
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	return &Notifier{bus: bus, timeout: timeout, handlers: handlers}
}

// Start spawns the receive loop. It is a no-op when already running.
func (n *Notifier) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return
	}
	n.running = true
	n.stop = make(chan struct{})
	n.done = make(chan struct{})
	go n.loop(n.stop, n.done)
}

func (n *Notifier) loop(stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}

		frame, err := n.bus.Receive(n.timeout)
		if errors.Is(err, ErrTimeout) {
			continue
		}
		if errors.Is(err, ErrClosed) {
			return
		}
		if err != nil {
			monitoring.Logf("canbus: receive error: %v", err)
			continue
		}

		for _, h := range n.handlers {
			n.dispatch(h, frame)
		}
	}
}

// dispatch isolates handler panics so one faulty observer cannot kill the
// receive loop or starve the remaining handlers.
func (n *Notifier) dispatch(h Handler, f Frame) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("canbus: handler panic for frame %s: %v", f, r)
		}
	}()
	h(f)
}

// Stop signals the loop and waits for it to exit. Idempotent.
func (n *Notifier) Stop() {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	n.running = false
	stop, done := n.stop, n.done
	n.mu.Unlock()

	close(stop)
	<-done
}
