package canbus

import (
	"sync"
	"time"
)

// MockBus is an in-memory Bus for tests and for running the daemon without
// CAN hardware. Frames sent with Send are captured; frames queued with Inject
// are returned by Receive in order.
type MockBus struct {
	mu     sync.Mutex
	sent   []Frame
	closed bool

	// SendError is returned by the next Send call if set.
	SendError error

	inbound chan Frame
	done    chan struct{}
}

// NewMockBus creates an open MockBus with a buffered inbound queue.
func NewMockBus() *MockBus {
	return &MockBus{
		inbound: make(chan Frame, 256),
		done:    make(chan struct{}),
	}
}

func (b *MockBus) Send(f Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.SendError != nil {
		err := b.SendError
		return err
	}
	b.sent = append(b.sent, f)
	return nil
}

func (b *MockBus) Receive(timeout time.Duration) (Frame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-b.inbound:
		return f, nil
	case <-b.done:
		return Frame{}, ErrClosed
	case <-timer.C:
		return Frame{}, ErrTimeout
	}
}

func (b *MockBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)
	return nil
}

// Inject queues a frame for delivery by Receive. It drops the frame once the
// bus is closed or the queue is full, mirroring a saturated controller.
func (b *MockBus) Inject(f Frame) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}
	select {
	case b.inbound <- f:
	default:
	}
}

// Sent returns a copy of all frames captured by Send.
func (b *MockBus) Sent() []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Frame, len(b.sent))
	copy(out, b.sent)
	return out
}

// SentTo returns the captured frames carrying the given identifier.
func (b *MockBus) SentTo(id uint32) []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Frame
	for _, f := range b.sent {
		if f.ID == id {
			out = append(out, f)
		}
	}
	return out
}
