package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mediacore",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds by route template.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.3, 1, 5, 30, 120},
	}, []string{"route"})

	StreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediacore",
		Name:      "stream_requests_total",
		Help:      "Stream requests by response status code.",
	}, []string{"status"})

	StreamBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mediacore",
		Name:      "stream_bytes_total",
		Help:      "Audio bytes written to clients.",
	})

	ActiveStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mediacore",
		Name:      "active_streams",
		Help:      "Number of blob streams currently open.",
	})

	RatingWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediacore",
		Name:      "rating_writes_total",
		Help:      "Rating mutations by operation and outcome.",
	}, []string{"op", "result"})

	PlayCountEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediacore",
		Name:      "playcount_events_total",
		Help:      "Play-count events by outcome (applied, unresolved, failed, dropped).",
	}, []string{"result"})
)

// Register adds every collector of this package to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestDuration,
		StreamRequestsTotal,
		StreamBytesTotal,
		ActiveStreams,
		RatingWritesTotal,
		PlayCountEventsTotal,
	)
}
