// Package api exposes the driver's live state and the capture store over
// HTTP for external renderers and recorders.
package api

import (
	"net/http"
	"sort"

	"github.com/banshee-data/cantrack/internal/capture"
	"github.com/banshee-data/cantrack/internal/httputil"
	"github.com/banshee-data/cantrack/internal/monitoring"
	"github.com/banshee-data/cantrack/internal/radar"
	"github.com/banshee-data/cantrack/internal/units"
	"github.com/banshee-data/cantrack/internal/version"
)

// Server serves the query surface over one radar driver and, optionally, the
// capture store.
type Server struct {
	driver  *radar.Driver
	store   *capture.Store
	metrics *monitoring.Collector
	units   string
}

// NewServer builds a server. store and metrics may be nil; the corresponding
// routes then report not-found.
func NewServer(driver *radar.Driver, store *capture.Store, metrics *monitoring.Collector, speedUnits string) *Server {
	if !units.IsValid(speedUnits) {
		speedUnits = units.MPS
	}
	return &Server{driver: driver, store: store, metrics: metrics, units: speedUnits}
}

// ServeMux returns the route table for the server.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tracks", s.handleTracks)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/sessions/{id}/summary", s.handleSessionSummary)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

// trackView is the API shape of one track, with speed converted to the
// configured units.
type trackView struct {
	ID        int     `json:"track_id"`
	LongDist  float64 `json:"long_dist"`
	LatDist   float64 `json:"lat_dist"`
	RelSpeed  float64 `json:"rel_speed"`
	Units     string  `json:"units"`
	NewTrack  bool    `json:"new_track"`
	Timestamp int64   `json:"timestamp_unix_ms"`
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	tracks := s.driver.Tracks()

	ids := make([]int, 0, len(tracks))
	for id := range tracks {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	views := make([]trackView, 0, len(ids))
	for _, id := range ids {
		t := tracks[id]
		views = append(views, trackView{
			ID:        t.ID,
			LongDist:  t.LongDist,
			LatDist:   t.LatDist,
			RelSpeed:  units.ConvertSpeed(t.RelSpeed, s.units),
			Units:     s.units,
			NewTrack:  t.NewTrack,
			Timestamp: t.Timestamp.UnixMilli(),
		})
	}
	httputil.WriteJSONOK(w, map[string]any{"tracks": views, "count": len(views)})
}

type statusView struct {
	Running      bool                   `json:"running"`
	MessageCount uint64                 `json:"message_count"`
	KeepAlive    *radar.KeepAliveStatus `json:"keepalive,omitempty"`
	Version      string                 `json:"version"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, statusView{
		Running:      s.driver.Running(),
		MessageCount: s.driver.MessageCount(),
		KeepAlive:    s.driver.KeepAliveStatus(),
		Version:      version.Version,
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		httputil.NotFound(w, "capture store not configured")
		return
	}
	sessions, err := s.store.Sessions()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]any{"sessions": sessions})
}

func (s *Server) handleSessionSummary(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		httputil.NotFound(w, "capture store not configured")
		return
	}
	summary, err := s.store.SessionSummary(r.PathValue("id"))
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, summary)
}
