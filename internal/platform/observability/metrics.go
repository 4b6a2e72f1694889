package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds the migration metrics. A dedicated registry keeps pushes to
// the Pushgateway free of Go runtime collectors.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	MigrationRuns = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "ielts_migration_runs_total",
		Help: "The total number of migration command runs",
	}, []string{"command", "status"})

	MigrationDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ielts_migration_duration_seconds",
		Help:    "Duration of migration command runs",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 300},
	}, []string{"command"})

	SchemaVersion = factory.NewGauge(prometheus.GaugeOpts{
		Name: "ielts_schema_version",
		Help: "Schema version observed after the last run",
	})

	ExtensionInstalled = factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ielts_extension_installed",
		Help: "Whether a database extension was installed at the last check (1) or not (0)",
	}, []string{"extension"})
)

// Run status labels
const (
	StatusSuccess = "success"
	StatusError   = "error"
)
