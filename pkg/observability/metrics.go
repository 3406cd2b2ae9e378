package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters of one run. mbtestgen is a batch tool, so
// metrics live on a private registry and are dumped to a textfile at exit
// (node_exporter textfile collector format) instead of being scraped.
type Metrics struct {
	registry *prometheus.Registry

	// Extraction metrics
	RecordsScanned *prometheus.CounterVec
	RecordsSkipped *prometheus.CounterVec
	IDsSampled     *prometheus.CounterVec

	// Generation metrics
	CasesRendered *prometheus.CounterVec

	// Bundle metrics
	BundleBytes prometheus.Counter

	// Per-phase timing
	PhaseDurationSeconds *prometheus.HistogramVec

	// Command outcomes
	RunsTotal *prometheus.CounterVec
}

// NewMetrics creates the metric set on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RecordsScanned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mbtestgen_records_scanned_total",
				Help: "Dump rows read per entity kind",
			},
			[]string{"entity"},
		),

		RecordsSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mbtestgen_records_skipped_total",
				Help: "Dump rows without an identifier field",
			},
			[]string{"entity"},
		),

		IDsSampled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mbtestgen_ids_sampled_total",
				Help: "Identifiers written to sample files",
			},
			[]string{"entity"},
		),

		CasesRendered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mbtestgen_cases_rendered_total",
				Help: "Test cases rendered into the generated source",
			},
			[]string{"entity"},
		),

		BundleBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mbtestgen_bundle_bytes_total",
				Help: "Bytes downloaded for the sample bundle",
			},
		),

		PhaseDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mbtestgen_phase_duration_seconds",
				Help:    "Duration of pipeline phases in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
			},
			[]string{"phase"}, // extract, fetch, generate, run
		),

		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mbtestgen_runs_total",
				Help: "Command invocations by outcome",
			},
			[]string{"command", "result"}, // result: success/failure
		),
	}
}

// WriteTextfile writes all metrics to path in the Prometheus text format
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
