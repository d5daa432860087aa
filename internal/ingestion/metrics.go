package ingestion

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors updated by ingestion runs.
type Metrics struct {
	Runs          *prometheus.CounterVec
	Records       *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	BatchDuration prometheus.Histogram
}

// NewMetrics creates unregistered collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "datareader",
				Subsystem: "ingestion",
				Name:      "runs_total",
				Help:      "Total number of file ingestion runs by outcome",
			},
			[]string{"outcome"},
		),

		Records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "datareader",
				Subsystem: "ingestion",
				Name:      "records_total",
				Help:      "Total number of input records by result (saved, failed, invalid)",
			},
			[]string{"result"},
		),

		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "datareader",
				Subsystem: "ingestion",
				Name:      "run_duration_seconds",
				Help:      "Wall time of a complete ingestion run in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
			},
		),

		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "datareader",
				Subsystem: "ingestion",
				Name:      "batch_duration_seconds",
				Help:      "Time spent committing one batch in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

// Register adds every collector to the registerer.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.Runs, m.Records, m.RunDuration, m.BatchDuration} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("failed to register ingestion metrics: %w", err)
		}
	}
	return nil
}

func (m *Metrics) observeRun(result Result, invalid int) {
	if m == nil {
		return
	}
	outcome := "failed"
	if result.Success {
		outcome = "succeeded"
	}
	m.Runs.WithLabelValues(outcome).Inc()
	m.Records.WithLabelValues("saved").Add(float64(result.SavedRecords))
	m.Records.WithLabelValues("failed").Add(float64(result.FailedRecords))
	m.Records.WithLabelValues("invalid").Add(float64(invalid))
	m.RunDuration.Observe(result.ProcessingTime.Seconds())
}
