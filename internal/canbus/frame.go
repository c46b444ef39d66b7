// Package canbus provides an abstraction over a CAN bus with multiple
// interchangeable transports (SocketCAN, serial-line CAN, in-memory mock) and
// a notifier loop that dispatches inbound frames to registered handlers.
package canbus

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame represents a classical CAN (2.0A/2.0B) data frame.
type Frame struct {
	ID       uint32 // 11-bit (std) or 29-bit (ext) identifier
	Extended bool   // true for a 29-bit identifier
	Len      uint8  // 0..8
	Data     [8]byte
}

const (
	maxStdID = 0x7FF
	maxExtID = 0x1FFFFFFF

	canEffFlag = 0x80000000
	canEffMask = 0x1FFFFFFF
	canStdMask = 0x7FF

	// frameWireSize is the size of the Linux SocketCAN can_frame struct.
	frameWireSize = 16
)

var (
	ErrInvalidID  = errors.New("canbus: invalid identifier")
	ErrInvalidLen = errors.New("canbus: invalid data length")
)

// NewFrame builds a standard-ID frame from an identifier and payload slice.
func NewFrame(id uint32, data []byte) (Frame, error) {
	f := Frame{ID: id, Extended: id > maxStdID}
	if len(data) > 8 {
		return Frame{}, ErrInvalidLen
	}
	f.Len = uint8(len(data))
	copy(f.Data[:], data)
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Validate returns an error if the frame is not a valid classical CAN frame.
func (f Frame) Validate() error {
	if f.Len > 8 {
		return ErrInvalidLen
	}
	max := uint32(maxStdID)
	if f.Extended {
		max = maxExtID
	}
	if f.ID > max {
		return ErrInvalidID
	}
	return nil
}

// Payload returns the live data bytes of the frame.
func (f Frame) Payload() []byte {
	return f.Data[:f.Len]
}

// MarshalBinary encodes the frame to the Linux SocketCAN can_frame layout
// (16 bytes, little-endian id word, dlc at offset 4, data at 8..15).
func (f Frame) MarshalBinary() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	id := f.ID
	if f.Extended {
		id |= canEffFlag
	}
	buf := make([]byte, frameWireSize)
	binary.LittleEndian.PutUint32(buf[0:4], id)
	buf[4] = f.Len
	copy(buf[8:16], f.Data[:])
	return buf, nil
}

// UnmarshalBinary decodes a frame from the SocketCAN can_frame layout.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < frameWireSize {
		return fmt.Errorf("canbus: need %d bytes, got %d", frameWireSize, len(data))
	}
	id := binary.LittleEndian.Uint32(data[0:4])
	f.Extended = id&canEffFlag != 0
	if f.Extended {
		f.ID = id & canEffMask
	} else {
		f.ID = id & canStdMask
	}
	f.Len = data[4]
	copy(f.Data[:], data[8:16])
	return f.Validate()
}

func (f Frame) String() string {
	return fmt.Sprintf("%03X#%X", f.ID, f.Payload())
}
