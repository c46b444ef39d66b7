package capture

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary aggregates one session's observations. Speeds are in m/s and
// distances in metres, matching the recorded values.
type Summary struct {
	SessionID      string  `json:"session_id"`
	Observations   int     `json:"observations"`
	DistinctTracks int     `json:"distinct_tracks"`
	MeanAbsSpeed   float64 `json:"mean_abs_speed"`
	MaxAbsSpeed    float64 `json:"max_abs_speed"`
	StdAbsSpeed    float64 `json:"std_abs_speed"`
	MinLongDist    float64 `json:"min_long_dist"`
}

// SessionSummary computes aggregate statistics for one session.
func (s *Store) SessionSummary(sessionID string) (*Summary, error) {
	obs, err := s.Observations(sessionID)
	if err != nil {
		return nil, err
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("capture: no observations for session %s", sessionID)
	}

	speeds := make([]float64, len(obs))
	longs := make([]float64, len(obs))
	slots := make(map[int]struct{})
	for i, o := range obs {
		speeds[i] = math.Abs(o.RelSpeed)
		longs[i] = o.LongDist
		slots[o.TrackID] = struct{}{}
	}

	return &Summary{
		SessionID:      sessionID,
		Observations:   len(obs),
		DistinctTracks: len(slots),
		MeanAbsSpeed:   nanToZero(stat.Mean(speeds, nil)),
		MaxAbsSpeed:    floats.Max(speeds),
		StdAbsSpeed:    nanToZero(stat.StdDev(speeds, nil)),
		MinLongDist:    floats.Min(longs),
	}, nil
}
