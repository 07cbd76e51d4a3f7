package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions         = promauto.NewGauge(prometheus.GaugeOpts{Name: "rfbhost_active_sessions", Help: "Registered client sessions across all hosts"})
	AcceptedTotal          = promauto.NewCounter(prometheus.CounterOpts{Name: "rfbhost_accepted_total", Help: "Connections accepted"})
	RefusedTotal           = promauto.NewCounter(prometheus.CounterOpts{Name: "rfbhost_refused_total", Help: "Connections refused by the rate limiter"})
	ErrorsTotal            = promauto.NewCounterVec(prometheus.CounterOpts{Name: "rfbhost_errors_total", Help: "Errors by type"}, []string{"type"})
	BackendConstructions   = promauto.NewCounterVec(prometheus.CounterOpts{Name: "rfbhost_backend_constructions_total", Help: "Backend instances constructed"}, []string{"display"})
	SessionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{Name: "rfbhost_session_duration_seconds", Help: "Client session lifetime seconds", Buckets: prometheus.ExponentialBuckets(0.1, 2, 16)})
)
