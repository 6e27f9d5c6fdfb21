package parser

import (
	"time"

	"mxshs/h2hcrawler/src/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the prometheus instruments of a run. A nil registerer leaves
// them unregistered.
type Metrics struct {
	outcomes     *prometheus.CounterVec
	duration     prometheus.Histogram
	inFlight     prometheus.Gauge
	uploadedRows *prometheus.CounterVec
	uploadErrors *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "h2h_match_outcomes_total",
			Help: "Processed matches by outcome kind.",
		}, []string{"kind"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "h2h_match_duration_seconds",
			Help:    "Wall time of one match assembly.",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
		}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "h2h_matches_in_flight",
			Help: "Match assemblies currently running.",
		}),
		uploadedRows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "h2h_uploaded_rows_total",
			Help: "Rows written to the sink by sheet.",
		}, []string{"sheet"}),
		uploadErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "h2h_upload_errors_total",
			Help: "Failed uploads by sheet.",
		}, []string{"sheet"}),
	}
}

func (m *Metrics) observe(out domain.Outcome, d time.Duration) {
	m.outcomes.WithLabelValues(out.Kind.String()).Inc()
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) uploaded(sheet string, rows int, err error) {
	if err != nil {
		m.uploadErrors.WithLabelValues(sheet).Inc()
		return
	}
	m.uploadedRows.WithLabelValues(sheet).Add(float64(rows))
}
