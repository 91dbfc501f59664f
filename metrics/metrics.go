// Package metrics defines the OpenCensus measures and views exported
// by a running sectorbuilder process, and a Prometheus exporter to
// serve them. Grounded on lotus's metrics package convention: one
// stats.Int64/Float64Measure per signal, grouped into view.View
// registrations, with tag keys for cardinality dimensions.
package metrics

import (
	"context"
	"net/http"

	"contrib.go.opencensus.io/exporter/prometheus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
	"golang.org/x/xerrors"
)

var (
	// SectorIDTag carries the numeric sector id on measurements scoped
	// to one sector.
	SectorIDTag, _ = tag.NewKey("sector_id")
	// TaskKindTag distinguishes seal/unseal/post measurements.
	TaskKindTag, _ = tag.NewKey("task_kind")
)

var (
	StagedSectorCount = stats.Int64("sectorbuilder/staged_sector_count", "number of sectors currently accepting or holding staged data", stats.UnitDimensionless)
	SealedSectorCount = stats.Int64("sectorbuilder/sealed_sector_count", "number of successfully sealed sectors", stats.UnitDimensionless)
	SealDuration      = stats.Float64("sectorbuilder/seal_duration_seconds", "wall-clock time to seal one sector", stats.UnitSeconds)
	QueueDepth        = stats.Int64("sectorbuilder/worker_queue_depth", "number of jobs currently queued for the worker pool", stats.UnitDimensionless)
	SealFailures      = stats.Int64("sectorbuilder/seal_failures_total", "count of seal operations that ended in SealStatusFailed", stats.UnitDimensionless)
)

var (
	StagedSectorCountView = &view.View{
		Measure:     StagedSectorCount,
		Aggregation: view.LastValue(),
	}
	SealedSectorCountView = &view.View{
		Measure:     SealedSectorCount,
		Aggregation: view.LastValue(),
	}
	SealDurationView = &view.View{
		Measure:     SealDuration,
		Aggregation: view.Distribution(0, 1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600),
		TagKeys:     []tag.Key{SectorIDTag},
	}
	QueueDepthView = &view.View{
		Measure:     QueueDepth,
		Aggregation: view.LastValue(),
	}
	SealFailuresView = &view.View{
		Measure:     SealFailures,
		Aggregation: view.Count(),
	}
)

// DefaultViews lists every view this package registers.
var DefaultViews = []*view.View{
	StagedSectorCountView,
	SealedSectorCountView,
	SealDurationView,
	QueueDepthView,
	SealFailuresView,
}

// NewExporter builds a Prometheus exporter registered under namespace
// and registers DefaultViews against it. Callers mount Handler() on
// their own HTTP mux.
func NewExporter(namespace string) (*prometheus.Exporter, error) {
	if err := view.Register(DefaultViews...); err != nil {
		return nil, xerrors.Errorf("registering metrics views: %w", err)
	}

	exporter, err := prometheus.NewExporter(prometheus.Options{
		Namespace: namespace,
	})
	if err != nil {
		return nil, xerrors.Errorf("creating prometheus exporter: %w", err)
	}
	view.RegisterExporter(exporter)
	return exporter, nil
}

// Handler returns an http.Handler serving the exporter's scrape
// endpoint.
func Handler(exporter *prometheus.Exporter) http.Handler {
	return exporter
}

// RecordQueueDepth records the current worker queue depth.
func RecordQueueDepth(ctx context.Context, depth int64) {
	stats.Record(ctx, QueueDepth.M(depth))
}

// RecordSealFailure increments the seal-failure counter.
func RecordSealFailure(ctx context.Context) {
	stats.Record(ctx, SealFailures.M(1))
}
