package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the Prometheus metrics exposed by the radar driver and
// provides a handler to serve them.
type Collector struct {
	registry *prometheus.Registry

	FramesReceived  prometheus.Counter
	FramesDecoded   prometheus.Counter
	DecodeErrors    prometheus.Counter
	InvalidDropped  prometheus.Counter
	KeepAliveTx     prometheus.Counter
	KeepAliveErrors prometheus.Counter
	TracksActive    prometheus.Gauge
}

// NewCollector registers the driver metrics against a fresh registry so tests
// can create collectors without colliding on the global default.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radar_frames_received_total",
			Help: "Total frames observed on the radar bus.",
		}),
		FramesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radar_frames_decoded_total",
			Help: "Track frames that decoded and passed the validity gate.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radar_decode_errors_total",
			Help: "Track-range frames dropped because decoding failed.",
		}),
		InvalidDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radar_invalid_dropped_total",
			Help: "Decoded track frames dropped by the validity gate.",
		}),
		KeepAliveTx: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radar_keepalive_tx_total",
			Help: "Keep-alive frames transmitted.",
		}),
		KeepAliveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radar_keepalive_errors_total",
			Help: "Keep-alive encode or send failures.",
		}),
		TracksActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "radar_tracks_active",
			Help: "Tracks currently visible in the cache.",
		}),
	}

	reg.MustRegister(
		c.FramesReceived,
		c.FramesDecoded,
		c.DecodeErrors,
		c.InvalidDropped,
		c.KeepAliveTx,
		c.KeepAliveErrors,
		c.TracksActive,
	)
	return c
}

// Handler returns an HTTP handler serving the collector's metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
