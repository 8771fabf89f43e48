// Package metrics exposes prometheus collectors for seeding runs.
package metrics

import (
	"context"

	"refdata-seeder/internal/seeding/domain/model"
	"refdata-seeder/internal/shared/eventbus"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "seeder"

	labelSource   = "source"
	labelResult   = "result"
	labelStatus   = "status"
	labelOutcome  = "outcome"
	labelCategory = "category"
	labelKind     = "kind"
)

// Collectors holds every seeding metric. Build it once per registry.
type Collectors struct {
	RunsTotal        *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	LastRunTimestamp prometheus.Gauge
	DocumentsTotal   *prometheus.CounterVec
	BatchesTotal     *prometheus.CounterVec
	BatchDuration    *prometheus.HistogramVec
	AssetsTotal      *prometheus.CounterVec
	AssetBytesTotal  *prometheus.CounterVec
	OrphansTotal     *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
	BackupsTotal     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		RunsTotal: newCounterVec("runs_total", "Seeding runs by outcome", labelOutcome),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of complete seeding runs",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last seeding run finished",
		}),
		DocumentsTotal: newCounterVec("documents_total", "Documents processed by source and result", labelSource, labelResult),
		BatchesTotal:   newCounterVec("batches_total", "Upsert batches by source and status", labelSource, labelStatus),
		BatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of upsert batches including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{labelSource}),
		AssetsTotal:     newCounterVec("assets_total", "Asset uploads by category and result", labelCategory, labelResult),
		AssetBytesTotal: newCounterVec("asset_bytes_total", "Bytes uploaded to the blob store", labelCategory),
		OrphansTotal:    newCounterVec("orphans_total", "Orphaned assets by outcome", labelOutcome),
		ErrorsTotal:     newCounterVec("errors_total", "Ledger errors by kind", labelKind),
		BackupsTotal:    newCounterVec("backups_total", "Backup snapshots taken by source", labelSource),
	}

	for _, col := range []prometheus.Collector{
		c.RunsTotal, c.RunDuration, c.LastRunTimestamp, c.DocumentsTotal, c.BatchesTotal,
		c.BatchDuration, c.AssetsTotal, c.AssetBytesTotal, c.OrphansTotal, c.ErrorsTotal, c.BackupsTotal,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func newCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)
}

// ObserveRun records the totals of a finished run
func (c *Collectors) ObserveRun(s *model.RunSummary) {
	if s == nil {
		return
	}
	c.RunsTotal.WithLabelValues(string(s.Outcome)).Inc()
	c.RunDuration.Observe(s.Duration.Seconds())
	c.LastRunTimestamp.Set(float64(s.FinishedAt.Unix()))
	for kind, n := range s.ErrorsByKind {
		c.ErrorsTotal.WithLabelValues(kind).Add(float64(n))
	}
	for _, src := range s.Sources {
		if src.Deduplicated > 0 {
			c.DocumentsTotal.WithLabelValues(src.Name, "deduplicated").Add(float64(src.Deduplicated))
		}
		if src.Skipped > 0 {
			c.DocumentsTotal.WithLabelValues(src.Name, "skipped").Add(float64(src.Skipped))
		}
	}
}

// ObserveBatch records one completed or failed batch
func (c *Collectors) ObserveBatch(e model.BatchEvent, failed bool) {
	status := "completed"
	if failed {
		status = "failed"
	}
	c.BatchesTotal.WithLabelValues(e.Source, status).Inc()
	c.BatchDuration.WithLabelValues(e.Source).Observe(e.Duration.Seconds())
	if failed {
		c.DocumentsTotal.WithLabelValues(e.Source, "failed").Add(float64(e.Size))
		return
	}
	c.DocumentsTotal.WithLabelValues(e.Source, "inserted").Add(float64(e.Result.Inserted))
	c.DocumentsTotal.WithLabelValues(e.Source, "updated").Add(float64(e.Result.Updated))
	c.DocumentsTotal.WithLabelValues(e.Source, "unchanged").Add(float64(e.Result.Unchanged))
}

// ObserveAsset records one variant upload
func (c *Collectors) ObserveAsset(e model.AssetEvent, failed bool) {
	if failed {
		c.AssetsTotal.WithLabelValues(e.Category, "failed").Inc()
		return
	}
	c.AssetsTotal.WithLabelValues(e.Category, "uploaded").Inc()
	c.AssetBytesTotal.WithLabelValues(e.Category).Add(float64(e.Bytes))
}

// Subscribe feeds the collectors from engine events
func (c *Collectors) Subscribe(bus eventbus.EventBusInterface) {
	bus.Subscribe(eventbus.EventTypeBatchCompleted, func(_ context.Context, ev eventbus.Event) error {
		if e, ok := ev.Data().(model.BatchEvent); ok {
			c.ObserveBatch(e, false)
		}
		return nil
	})
	bus.Subscribe(eventbus.EventTypeBatchFailed, func(_ context.Context, ev eventbus.Event) error {
		if e, ok := ev.Data().(model.BatchEvent); ok {
			c.ObserveBatch(e, true)
		}
		return nil
	})
	bus.Subscribe(eventbus.EventTypeAssetUploaded, func(_ context.Context, ev eventbus.Event) error {
		if e, ok := ev.Data().(model.AssetEvent); ok {
			c.ObserveAsset(e, false)
		}
		return nil
	})
	bus.Subscribe(eventbus.EventTypeAssetFailed, func(_ context.Context, ev eventbus.Event) error {
		if e, ok := ev.Data().(model.AssetEvent); ok {
			c.ObserveAsset(e, true)
		}
		return nil
	})
	bus.Subscribe(eventbus.EventTypeOrphanProcessed, func(_ context.Context, ev eventbus.Event) error {
		if o, ok := ev.Data().(model.OrphanOutcome); ok {
			c.OrphansTotal.WithLabelValues(string(o.Outcome)).Inc()
		}
		return nil
	})
	bus.Subscribe(eventbus.EventTypeBackupCreated, func(_ context.Context, ev eventbus.Event) error {
		if b, ok := ev.Data().(model.BackupSnapshot); ok {
			c.BackupsTotal.WithLabelValues(b.Source).Inc()
		}
		return nil
	})
	bus.Subscribe(eventbus.EventTypeRunCompleted, func(_ context.Context, ev eventbus.Event) error {
		if s, ok := ev.Data().(*model.RunSummary); ok {
			c.ObserveRun(s)
		}
		return nil
	})
}
