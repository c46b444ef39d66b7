package radar

// BusSelector names which of the two buses a static heartbeat frame is
// transmitted on.
type BusSelector int

const (
	// CarBus is the bus the driver-assist ECU would normally transmit on.
	CarBus BusSelector = iota
	// RadarBus is the bus the radar unit itself listens on.
	RadarBus
)

// StaticFrame is one fixed heartbeat frame transmitted by the keep-alive
// scheduler at a fraction of the base rate.
type StaticFrame struct {
	ID uint32
	// Bus selects which bus the frame is sent to.
	Bus BusSelector
	// Period is the send-rate divisor: the frame goes out on ticks where
	// counter % Period == 0.
	Period uint64
	// Payload is the fixed byte content.
	Payload []byte
}

// DefaultStaticFrames is the DSU traffic a 2017-generation Toyota radar
// expects to observe besides the primary ACC_CONTROL frame. Payloads were
// captured from a factory DSU; the unit stops streaming tracks a short grace
// period after this traffic disappears.
var DefaultStaticFrames = []StaticFrame{
	{ID: 0x141, Bus: RadarBus, Period: 2, Payload: []byte{0x00, 0x00, 0x00, 0x46}},
	{ID: 0x128, Bus: RadarBus, Period: 3, Payload: []byte{0xf4, 0x01, 0x90, 0x83, 0x00, 0x37}},
	{ID: 0x283, Bus: CarBus, Period: 3, Payload: []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x8c}},
	{ID: 0x344, Bus: CarBus, Period: 5, Payload: []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x50}},
	{ID: 0x160, Bus: RadarBus, Period: 7, Payload: []byte{0x00, 0x00, 0x08, 0x12, 0x01, 0x31, 0x9c, 0x51}},
	{ID: 0x161, Bus: RadarBus, Period: 7, Payload: []byte{0x00, 0x1e, 0x00, 0x00, 0x00, 0x80, 0x07}},
	{ID: 0x365, Bus: CarBus, Period: 20, Payload: []byte{0x00, 0x00, 0x00, 0x80, 0xfc, 0x00, 0x08}},
	{ID: 0x366, Bus: CarBus, Period: 20, Payload: []byte{0x00, 0x72, 0x07, 0xff, 0x09, 0xfe, 0x00}},
	{ID: 0x4CB, Bus: CarBus, Period: 100, Payload: []byte{0x0c, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
}

// Rolling-counter addresses. Factory DSU traffic appends a cycling counter
// byte to these two identifiers; 0x48A additionally sets the high bit. The
// current static table carries neither address, so the logic only engages if
// a caller supplies a table that does.
const (
	rollingCounterID     uint32 = 0x489
	rollingCounterHighID uint32 = 0x48A
)

// appendRollingCounter extends a payload with the liveness counter byte the
// ECU derives from its frame counter, when the address calls for one.
func appendRollingCounter(f StaticFrame, counter uint64) []byte {
	if f.Bus != CarBus || (f.ID != rollingCounterID && f.ID != rollingCounterHighID) {
		return f.Payload
	}
	cnt := byte((counter/100)%0xF) + 1
	if f.ID == rollingCounterHighID {
		cnt |= 1 << 7
	}
	out := make([]byte, 0, len(f.Payload)+1)
	out = append(out, f.Payload...)
	return append(out, cnt)
}
