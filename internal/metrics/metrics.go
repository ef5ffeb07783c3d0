// Package metrics provides Prometheus metrics for pagepress.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsTotal counts input documents by kind (article, pdf) and status.
	DocumentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pagepress",
			Name:      "documents_total",
			Help:      "Total number of processed input documents",
		},
		[]string{"kind", "status"},
	)

	// ClassificationsTotal counts classifier decisions by reason.
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pagepress",
			Name:      "classifications_total",
			Help:      "Total number of classification decisions",
		},
		[]string{"reason"},
	)

	// ImagesTotal counts image placeholders by outcome.
	ImagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pagepress",
			Name:      "images_total",
			Help:      "Total number of image placeholders resolved",
		},
		[]string{"status"},
	)

	// ArtifactBytes observes artifact sizes.
	ArtifactBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pagepress",
			Name:      "artifact_bytes",
			Help:      "Distribution of artifact sizes in bytes",
			Buckets:   prometheus.ExponentialBuckets(16*1024, 4, 8),
		},
		[]string{"mime_type"},
	)

	// BatchesTotal counts delivery batches by status.
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pagepress",
			Name:      "delivery_batches_total",
			Help:      "Total number of delivery batches",
		},
		[]string{"status"},
	)

	// StageDuration measures pipeline stage duration.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pagepress",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
)

func RecordDocument(kind, status string) {
	DocumentsTotal.WithLabelValues(kind, status).Inc()
}

func RecordClassification(reason string) {
	ClassificationsTotal.WithLabelValues(reason).Inc()
}

func RecordImage(status string) {
	ImagesTotal.WithLabelValues(status).Inc()
}

// RecordArtifact records a finalized artifact.
func RecordArtifact(mimeType string, size int) {
	ArtifactBytes.WithLabelValues(mimeType).Observe(float64(size))
}

func RecordBatch(status string) {
	BatchesTotal.WithLabelValues(status).Inc()
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, seconds float64) {
	StageDuration.WithLabelValues(stage).Observe(seconds)
}
