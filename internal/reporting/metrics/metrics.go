package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for report ingestion and verification.
type Metrics struct {
	ReportsAccepted      prometheus.Counter
	ReportsVerified      prometheus.Counter
	ReportsFailed        prometheus.Counter
	BytesIngested        prometheus.Counter
	SweepDurationSeconds prometheus.Histogram
}

// New registers reporting collectors against reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ReportsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "verigate_reports_accepted_total",
			Help: "Report uploads accepted for verification",
		}),
		ReportsVerified: factory.NewCounter(prometheus.CounterOpts{
			Name: "verigate_reports_verified_total",
			Help: "Reports that reached verified status",
		}),
		ReportsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "verigate_reports_failed_total",
			Help: "Reports that reached failed status",
		}),
		BytesIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "verigate_report_bytes_ingested_total",
			Help: "Total bytes of report content written to chunk storage",
		}),
		SweepDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "verigate_reporting_sweep_duration_seconds",
			Help:    "Duration of a full verification sweep",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
