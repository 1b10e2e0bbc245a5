package corpus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	fixtures *prometheus.CounterVec
	warnings prometheus.Counter
	bytes    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	var m Metrics
	m.fixtures = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Namespace: "profdata",
		Subsystem: "corpus",
		Name:      "fixtures_total",
		Help:      "Fixtures checked, by outcome.",
	}, []string{"outcome"})
	m.warnings = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Namespace: "profdata",
		Subsystem: "corpus",
		Name:      "integrity_warnings_total",
		Help:      "Integrity warnings surfaced by decoded fixtures.",
	})
	m.bytes = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Namespace: "profdata",
		Subsystem: "corpus",
		Name:      "read_bytes_total",
		Help:      "Fixture bytes read.",
	})
	return &m
}
