package radar

import (
	"github.com/banshee-data/cantrack/internal/canbus"
	"github.com/banshee-data/cantrack/internal/monitoring"
)

// handleFrame is the inbound pipeline: filter the track identifier range,
// decode, gate on validity, upsert the cache, then dispatch callbacks. It
// runs on the notifier goroutine; a bad frame is dropped and the next frame
// supersedes it, with no buffering and no retry.
func (d *Driver) handleFrame(f canbus.Frame) {
	d.rxCount.Add(1)
	if d.metrics != nil {
		d.metrics.FramesReceived.Inc()
	}

	if f.ID < TrackBaseID || f.ID > TrackMaxID {
		for _, cb := range d.rawCallbacks {
			dispatchRaw(cb, f)
		}
		return
	}

	decoded, err := d.trackDB.Decode(f.ID, f.Payload())
	if err != nil {
		if d.metrics != nil {
			d.metrics.DecodeErrors.Inc()
		}
		return
	}

	if decoded[sigValid] != 1 {
		if d.metrics != nil {
			d.metrics.InvalidDropped.Inc()
		}
		return
	}

	track := Track{
		ID:        int(f.ID - TrackBaseID),
		LongDist:  decoded[sigLongDist],
		LatDist:   decoded[sigLatDist],
		RelSpeed:  decoded[sigRelSpeed],
		NewTrack:  decoded[sigNewTrack] != 0,
		Timestamp: d.clock.Now(),
		Raw:       decoded,
	}

	d.cache.upsert(track)
	if d.metrics != nil {
		d.metrics.FramesDecoded.Inc()
	}

	// Callbacks run after the lock is released, each isolated so one faulty
	// observer cannot break ingestion or the observers after it.
	for _, cb := range d.trackCallbacks {
		dispatchTrack(cb, track)
	}
}

func dispatchTrack(cb TrackCallback, t Track) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("radar: track callback panic for slot %d: %v", t.ID, r)
		}
	}()
	cb(t)
}

func dispatchRaw(cb RawCallback, f canbus.Frame) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("radar: raw callback panic for frame %s: %v", f, r)
		}
	}()
	cb(f)
}
