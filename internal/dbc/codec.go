package dbc

import (
	"fmt"
	"math"
)

// DecodeError reports an inbound frame that could not be decoded.
type DecodeError struct {
	ID  uint32
	Msg string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("dbc: decode 0x%X: %s", e.ID, e.Msg)
}

// EncodeError reports a field map that could not be encoded into a frame.
type EncodeError struct {
	Message string
	Signal  string
	Msg     string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("dbc: encode %s.%s: %s", e.Message, e.Signal, e.Msg)
}

// Decode converts a raw payload for the given arbitration identifier into a
// map of physical signal values.
func (db *Database) Decode(id uint32, data []byte) (map[string]float64, error) {
	msg, ok := db.byID[id]
	if !ok {
		return nil, &DecodeError{ID: id, Msg: "unknown message id"}
	}
	if len(data) < msg.Length {
		return nil, &DecodeError{ID: id, Msg: fmt.Sprintf("payload %d bytes, need %d", len(data), msg.Length)}
	}

	fields := make(map[string]float64, len(msg.Signals))
	for _, sig := range msg.Signals {
		raw, err := extractBits(data, sig)
		if err != nil {
			return nil, &DecodeError{ID: id, Msg: fmt.Sprintf("signal %s: %v", sig.Name, err)}
		}
		fields[sig.Name] = float64(raw)*sig.Factor + sig.Offset
	}
	return fields, nil
}

// Encode converts a map of physical signal values into the payload of the
// named message. Every signal of the message must be present and within its
// declared range (when the declaration gives one).
func (db *Database) Encode(name string, fields map[string]float64) (uint32, []byte, error) {
	msg, ok := db.byName[name]
	if !ok {
		return 0, nil, &EncodeError{Message: name, Msg: "unknown message"}
	}

	data := make([]byte, msg.Length)
	for _, sig := range msg.Signals {
		phys, ok := fields[sig.Name]
		if !ok {
			return 0, nil, &EncodeError{Message: name, Signal: sig.Name, Msg: "missing field"}
		}
		if sig.Min < sig.Max && (phys < sig.Min || phys > sig.Max) {
			return 0, nil, &EncodeError{
				Message: name, Signal: sig.Name,
				Msg: fmt.Sprintf("value %g outside [%g, %g]", phys, sig.Min, sig.Max),
			}
		}
		raw := int64(math.Round((phys - sig.Offset) / sig.Factor))
		if err := insertBits(data, sig, raw); err != nil {
			return 0, nil, &EncodeError{Message: name, Signal: sig.Name, Msg: err.Error()}
		}
	}
	return msg.ID, data, nil
}

// extractBits pulls the raw integer value of a signal out of a payload.
func extractBits(data []byte, sig Signal) (int64, error) {
	var raw uint64
	for i := 0; i < sig.Length; i++ {
		pos := bitPosition(sig, i)
		byteIdx := pos / 8
		if byteIdx >= len(data) {
			return 0, fmt.Errorf("bit %d beyond payload", pos)
		}
		bit := (data[byteIdx] >> (7 - pos%8)) & 1
		raw = raw<<1 | uint64(bit)
	}
	if sig.Signed && sig.Length < 64 && raw&(1<<(sig.Length-1)) != 0 {
		return int64(raw) - (1 << sig.Length), nil
	}
	return int64(raw), nil
}

// insertBits writes the raw integer value of a signal into a payload.
func insertBits(data []byte, sig Signal, raw int64) error {
	uraw := uint64(raw)
	if sig.Length < 64 {
		uraw &= (1 << sig.Length) - 1
	}
	for i := 0; i < sig.Length; i++ {
		pos := bitPosition(sig, i)
		byteIdx := pos / 8
		if byteIdx >= len(data) {
			return fmt.Errorf("bit %d beyond payload", pos)
		}
		bit := (uraw >> (sig.Length - 1 - i)) & 1
		mask := byte(1) << (7 - pos%8)
		if bit == 1 {
			data[byteIdx] |= mask
		} else {
			data[byteIdx] &^= mask
		}
	}
	return nil
}

// bitPosition maps the i-th bit of a signal (MSB first) to its absolute
// position in the payload viewed as an MSB-first bitstream.
//
// Big-endian (Motorola) signals number their start bit in the sawtooth
// order used by the DBC format: the start bit names the MSB, and the signal
// proceeds toward lower bit numbers within each byte, then on to bit 7 of
// the next byte. Little-endian (Intel) signals name the LSB and grow upward.
func bitPosition(sig Signal, i int) int {
	if sig.LittleEndian {
		n := sig.StartBit + (sig.Length - 1 - i)
		return (n/8)*8 + (7 - n%8)
	}
	start := (sig.StartBit/8)*8 + (7 - sig.StartBit%8)
	return start + i
}
