// Package capture records radar track snapshots to disk so runs can be
// replayed and analyzed off-vehicle. A session owns a directory holding a
// metadata file and a JSON Lines stream of timestamped track snapshots,
// optionally mirrored into the SQLite store.
package capture

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/cantrack/internal/radar"
)

// Meta describes one capture session. It is written to meta.json at session
// start so a replay tool can interpret the stream without the daemon's flags.
type Meta struct {
	SessionID    string        `json:"session_id"`
	Name         string        `json:"name"`
	CreatedUTC   time.Time     `json:"created_utc"`
	RadarChannel string        `json:"radar_channel"`
	CarChannel   string        `json:"car_channel"`
	TrackTimeout time.Duration `json:"track_timeout"`
	Duration     time.Duration `json:"duration_limit,omitempty"`
}

// Options controls session creation.
type Options struct {
	// OutputDir is the directory capture sessions are stored under.
	OutputDir string
	// Name names this session; empty defaults to a UTC timestamp.
	Name string
	// Overwrite allows replacing an existing session directory.
	Overwrite bool
	// FlushEvery flushes the JSONL stream every N snapshots (default 30).
	FlushEvery int
}

// snapshot is one JSONL record: every visible track at one instant.
type snapshot struct {
	Timestamp  time.Time     `json:"timestamp"`
	FrameIndex int           `json:"frame_index"`
	Tracks     []radar.Track `json:"tracks"`
}

// Session is an open capture session. Not safe for concurrent writers; the
// daemon drives it from a single snapshot loop.
type Session struct {
	meta Meta
	dir  string

	file       *os.File
	w          *bufio.Writer
	flushEvery int
	count      int
}

// NewSession creates the session directory, writes meta.json, and opens the
// tracks stream. It refuses to reuse an existing directory unless Overwrite
// is set.
func NewSession(opts Options, meta Meta) (*Session, error) {
	name := opts.Name
	if name == "" {
		name = time.Now().UTC().Format("20060102_150405")
	}
	dir := filepath.Join(opts.OutputDir, name)
	if _, err := os.Stat(dir); err == nil && !opts.Overwrite {
		return nil, fmt.Errorf("capture: session directory %s already exists", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("capture: create session dir: %w", err)
	}

	meta.SessionID = uuid.NewString()
	meta.Name = name
	if meta.CreatedUTC.IsZero() {
		meta.CreatedUTC = time.Now().UTC()
	}

	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("capture: marshal meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+"_meta.json"), metaBytes, 0o644); err != nil {
		return nil, fmt.Errorf("capture: write meta: %w", err)
	}

	file, err := os.Create(filepath.Join(dir, name+"_tracks.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("capture: create tracks file: %w", err)
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 30
	}

	return &Session{
		meta:       meta,
		dir:        dir,
		file:       file,
		w:          bufio.NewWriter(file),
		flushEvery: flushEvery,
	}, nil
}

// Meta returns the session metadata, including the generated session id.
func (s *Session) Meta() Meta { return s.meta }

// Dir returns the session directory path.
func (s *Session) Dir() string { return s.dir }

// WriteSnapshot appends one JSONL record holding all currently visible
// tracks, ordered by slot for deterministic output.
func (s *Session) WriteSnapshot(ts time.Time, frameIndex int, tracks map[int]radar.Track) error {
	ids := make([]int, 0, len(tracks))
	for id := range tracks {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	rec := snapshot{Timestamp: ts, FrameIndex: frameIndex, Tracks: make([]radar.Track, 0, len(ids))}
	for _, id := range ids {
		t := tracks[id]
		t.Raw = nil // the raw field map stays out of the replay stream
		rec.Tracks = append(rec.Tracks, t)
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("capture: marshal snapshot: %w", err)
	}
	if _, err := s.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("capture: write snapshot: %w", err)
	}

	s.count++
	if s.count%s.flushEvery == 0 {
		if err := s.w.Flush(); err != nil {
			return fmt.Errorf("capture: flush: %w", err)
		}
	}
	return nil
}

// Close flushes and closes the tracks stream.
func (s *Session) Close() error {
	if err := s.w.Flush(); err != nil {
		s.file.Close()
		return fmt.Errorf("capture: final flush: %w", err)
	}
	return s.file.Close()
}
