package radar

import "time"

// Track identifier range on the radar bus. Each arbitration identifier in
// [TrackBaseID, TrackMaxID] carries exactly one track slot.
const (
	TrackBaseID uint32 = 0x210
	TrackMaxID  uint32 = 0x21F
)

// Track is one detected object as reported by the radar. Tracks are value
// types: the pipeline replaces a slot's track wholesale on every update and
// hands read-only copies to callbacks and snapshot callers.
type Track struct {
	// ID is the track slot, derived as arbitration id minus TrackBaseID.
	ID int `json:"track_id"`
	// LongDist is the longitudinal distance to the object in metres.
	LongDist float64 `json:"long_dist"`
	// LatDist is the lateral offset in metres, positive to the left.
	LatDist float64 `json:"lat_dist"`
	// RelSpeed is the relative speed in metres per second.
	RelSpeed float64 `json:"rel_speed"`
	// NewTrack is set on the first report of a newly acquired object.
	NewTrack bool `json:"new_track"`
	// Timestamp records when the frame was decoded.
	Timestamp time.Time `json:"timestamp"`
	// Raw carries the full decoded field map for diagnostic pass-through.
	Raw map[string]float64 `json:"raw,omitempty"`
}

// Signal names the radar-side DBC must expose for the track identifier range.
const (
	sigLongDist = "LONG_DIST"
	sigLatDist  = "LAT_DIST"
	sigRelSpeed = "REL_SPEED"
	sigNewTrack = "NEW_TRACK"
	sigValid    = "VALID"
)
