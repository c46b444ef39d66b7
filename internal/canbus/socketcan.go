//go:build linux

package canbus

import (
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// socketCANBus is a Bus backed by a raw AF_CAN socket bound to one network
// interface (e.g. can0).
type socketCANBus struct {
	fd      int
	channel string

	mu     sync.Mutex
	closed bool
}

func openSocketCAN(channel string) (Bus, error) {
	iface, err := net.InterfaceByName(channel)
	if err != nil {
		return nil, fmt.Errorf("canbus: lookup %q: %w", channel, err)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("canbus: socket: %w", err)
	}

	addr := &unix.SockaddrCAN{Ifindex: iface.Index}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("canbus: bind %q: %w", channel, err)
	}

	return &socketCANBus{fd: fd, channel: channel}, nil
}

func (b *socketCANBus) Send(f Frame) error {
	if b.isClosed() {
		return ErrClosed
	}
	buf, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := unix.Write(b.fd, buf); err != nil {
		return fmt.Errorf("canbus: send on %s: %w", b.channel, err)
	}
	return nil
}

func (b *socketCANBus) Receive(timeout time.Duration) (Frame, error) {
	if b.isClosed() {
		return Frame{}, ErrClosed
	}

	fds := []unix.PollFd{{Fd: int32(b.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err == unix.EINTR {
		return Frame{}, ErrTimeout
	}
	if err != nil {
		return Frame{}, fmt.Errorf("canbus: poll on %s: %w", b.channel, err)
	}
	if n == 0 {
		return Frame{}, ErrTimeout
	}

	buf := make([]byte, frameWireSize)
	if _, err := unix.Read(b.fd, buf); err != nil {
		if b.isClosed() {
			return Frame{}, ErrClosed
		}
		return Frame{}, fmt.Errorf("canbus: read on %s: %w", b.channel, err)
	}

	var f Frame
	if err := f.UnmarshalBinary(buf); err != nil {
		return Frame{}, err
	}
	return f, nil
}

func (b *socketCANBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return unix.Close(b.fd)
}

func (b *socketCANBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
