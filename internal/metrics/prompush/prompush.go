// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package. All Prometheus dependencies stay in this package.
package prompush

import (
	"fmt"

	"github.com/johndauphine/retail-etl/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	exportCounter  *prometheus.CounterVec // etl_export_total
	exportDuration *prometheus.SummaryVec // etl_export_duration_seconds
	recordCounter  *prometheus.CounterVec // etl_records_total
	batchCounter   *prometheus.CounterVec // etl_batches_total
	warningCounter *prometheus.CounterVec // etl_warnings_total
	runCounter     *prometheus.CounterVec // etl_runs_total
	uploadCounter  *prometheus.CounterVec // etl_uploads_total
	uploadBytes    *prometheus.CounterVec // etl_upload_bytes_total
}

// NewBackend constructs a Pushgateway backend. jobName defaults to "retail-etl".
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "retail-etl"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		exportCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.ExportTotal,
			Help: "Table exports, partitioned by expected table and status.",
		}, []string{"table", "status"}),
		exportDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.ExportDuration,
			Help:       "Duration of table exports in seconds.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"table", "status"}),
		recordCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Rows written to export files.",
		}, []string{"table"}),
		batchCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.BatchesTotal,
			Help: "Chunks read, transformed and flushed.",
		}, []string{"table"}),
		warningCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.WarningsTotal,
			Help: "Recoverable export problems by kind.",
		}, []string{"table", "kind"}),
		runCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RunsTotal,
			Help: "Bulk runs by outcome.",
		}, []string{"outcome"}),
		uploadCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.UploadsTotal,
			Help: "Export files mirrored to object storage.",
		}, []string{"table", "status"}),
		uploadBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.UploadBytes,
			Help: "Bytes mirrored to object storage.",
		}, []string{"table"}),
	}

	for _, c := range []prometheus.Collector{
		b.exportCounter, b.exportDuration, b.recordCounter, b.batchCounter,
		b.warningCounter, b.runCounter, b.uploadCounter, b.uploadBytes,
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register collector: %w", err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.ExportTotal:
		b.exportCounter.WithLabelValues(labels["table"], labels["status"]).Add(delta)
	case metrics.RecordsTotal:
		b.recordCounter.WithLabelValues(labels["table"]).Add(delta)
	case metrics.BatchesTotal:
		b.batchCounter.WithLabelValues(labels["table"]).Add(delta)
	case metrics.WarningsTotal:
		b.warningCounter.WithLabelValues(labels["table"], labels["kind"]).Add(delta)
	case metrics.RunsTotal:
		b.runCounter.WithLabelValues(labels["outcome"]).Add(delta)
	case metrics.UploadsTotal:
		b.uploadCounter.WithLabelValues(labels["table"], labels["status"]).Add(delta)
	case metrics.UploadBytes:
		b.uploadBytes.WithLabelValues(labels["table"]).Add(delta)
	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.ExportDuration {
		return
	}
	b.exportDuration.WithLabelValues(labels["table"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
