package canbus

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// slcanBus speaks the LAWICEL serial-line CAN protocol to a USB adapter.
// Frames travel as ASCII records terminated by carriage return:
// tIIILDD.. for standard-ID data frames, TIIIIIIIILDD.. for extended.
type slcanBus struct {
	port    serial.Port
	channel string

	readMu  sync.Mutex
	pending []byte // partial record carried between reads

	mu     sync.Mutex
	closed bool
}

// slcanBitrates maps CAN bitrates to LAWICEL S-command codes.
var slcanBitrates = map[int]string{
	10000:   "S0",
	20000:   "S1",
	50000:   "S2",
	100000:  "S3",
	125000:  "S4",
	250000:  "S5",
	500000:  "S6",
	800000:  "S7",
	1000000: "S8",
}

func openSLCAN(device string, bitrate int) (Bus, error) {
	code, ok := slcanBitrates[bitrate]
	if !ok {
		return nil, fmt.Errorf("canbus: slcan does not support bitrate %d", bitrate)
	}

	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("canbus: open %q: %w", device, err)
	}

	b := &slcanBus{port: port, channel: device}

	// Close any stale channel, set the bitrate, then open.
	for _, cmd := range []string{"C", code, "O"} {
		if _, err := port.Write([]byte(cmd + "\r")); err != nil {
			port.Close()
			return nil, fmt.Errorf("canbus: slcan init %q: %w", cmd, err)
		}
	}
	return b, nil
}

func (b *slcanBus) Send(f Frame) error {
	if b.isClosed() {
		return ErrClosed
	}
	if err := f.Validate(); err != nil {
		return err
	}

	var sb strings.Builder
	if f.Extended {
		fmt.Fprintf(&sb, "T%08X%d", f.ID, f.Len)
	} else {
		fmt.Fprintf(&sb, "t%03X%d", f.ID, f.Len)
	}
	sb.WriteString(strings.ToUpper(hex.EncodeToString(f.Payload())))
	sb.WriteByte('\r')

	if _, err := b.port.Write([]byte(sb.String())); err != nil {
		return fmt.Errorf("canbus: send on %s: %w", b.channel, err)
	}
	return nil
}

func (b *slcanBus) Receive(timeout time.Duration) (Frame, error) {
	if b.isClosed() {
		return Frame{}, ErrClosed
	}

	b.readMu.Lock()
	defer b.readMu.Unlock()

	if err := b.port.SetReadTimeout(timeout); err != nil {
		return Frame{}, fmt.Errorf("canbus: set timeout on %s: %w", b.channel, err)
	}

	deadline := time.Now().Add(timeout)
	buf := make([]byte, 64)
	for {
		rec, rest, ok := splitRecord(b.pending)
		b.pending = rest
		if ok {
			f, err := parseRecord(rec)
			if err != nil {
				// Not a data frame record (status reply, error marker);
				// skip it and keep scanning within the window.
				continue
			}
			return f, nil
		}

		if !time.Now().Before(deadline) {
			return Frame{}, ErrTimeout
		}

		n, err := b.port.Read(buf)
		if err != nil {
			if b.isClosed() {
				return Frame{}, ErrClosed
			}
			return Frame{}, fmt.Errorf("canbus: read on %s: %w", b.channel, err)
		}
		if n == 0 {
			return Frame{}, ErrTimeout
		}
		b.pending = append(b.pending, buf[:n]...)
	}
}

// splitRecord peels one terminated record off the front of buf, discarding
// leading terminators so a stray CR can never wedge the scan.
func splitRecord(buf []byte) (record, rest []byte, ok bool) {
	start := 0
	for start < len(buf) && (buf[start] == '\r' || buf[start] == '\n') {
		start++
	}
	for i := start; i < len(buf); i++ {
		if buf[i] == '\r' || buf[i] == '\n' {
			return buf[start:i], buf[i+1:], true
		}
	}
	return nil, buf[start:], false
}

func parseRecord(rec []byte) (Frame, error) {
	s := string(rec)
	var idLen int
	var extended bool
	switch {
	case strings.HasPrefix(s, "t"):
		idLen = 3
	case strings.HasPrefix(s, "T"):
		idLen = 8
		extended = true
	default:
		return Frame{}, fmt.Errorf("canbus: not a data record: %q", s)
	}

	if len(s) < 1+idLen+1 {
		return Frame{}, fmt.Errorf("canbus: short record: %q", s)
	}
	id, err := strconv.ParseUint(s[1:1+idLen], 16, 32)
	if err != nil {
		return Frame{}, fmt.Errorf("canbus: bad id in %q: %w", s, err)
	}
	dlc, err := strconv.Atoi(s[1+idLen : 1+idLen+1])
	if err != nil || dlc > 8 {
		return Frame{}, fmt.Errorf("canbus: bad dlc in %q", s)
	}
	data, err := hex.DecodeString(s[1+idLen+1:])
	if err != nil || len(data) != dlc {
		return Frame{}, fmt.Errorf("canbus: bad payload in %q", s)
	}

	f := Frame{ID: uint32(id), Extended: extended, Len: uint8(dlc)}
	copy(f.Data[:], data)
	return f, f.Validate()
}

func (b *slcanBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.port.Write([]byte("C\r")) // best effort channel close
	return b.port.Close()
}

func (b *slcanBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
