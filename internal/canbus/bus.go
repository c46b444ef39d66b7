package canbus

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrClosed indicates the bus has been closed.
	ErrClosed = errors.New("canbus: closed")
	// ErrTimeout indicates a Receive poll expired with no frame available.
	ErrTimeout = errors.New("canbus: receive timeout")
)

// Bus represents one CAN bus connection. Implementations must be safe for one
// concurrent sender and one concurrent receiver; Close must be idempotent and
// safe on a partially initialized handle.
type Bus interface {
	// Send transmits a frame. It may block until the frame is queued.
	Send(Frame) error

	// Receive retrieves the next available frame, waiting at most timeout.
	// It returns ErrTimeout when the poll window expires and ErrClosed once
	// the bus is shut down.
	Receive(timeout time.Duration) (Frame, error)

	// Close releases resources. Further Send/Receive return ErrClosed.
	Close() error
}

// Open opens a bus on the named channel using the transport selected by
// ifaceName: "socketcan" binds a raw AF_CAN socket to the channel,
// "slcan" treats the channel as a serial device path, and "mock" returns an
// in-memory bus for development without hardware.
func Open(channel, ifaceName string, bitrate int) (Bus, error) {
	switch strings.ToLower(strings.TrimSpace(ifaceName)) {
	case "", "socketcan":
		return openSocketCAN(channel)
	case "slcan":
		return openSLCAN(channel, bitrate)
	case "mock":
		return NewMockBus(), nil
	default:
		return nil, fmt.Errorf("canbus: unknown interface %q", ifaceName)
	}
}
