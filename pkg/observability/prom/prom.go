// Package prom implements the observability hooks with Prometheus metrics.
//
// A batch CLI run has no scrape endpoint, so [Metrics.WriteTextfile] dumps
// the registry in the node_exporter textfile-collector format when the run
// ends.
package prom

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/matzehuels/nlink/pkg/observability"
)

// Metrics holds every collector. It implements EngineHooks, CacheHooks and
// JobHooks.
type Metrics struct {
	gatherer prometheus.Gatherer

	indexBuilds   *prometheus.CounterVec
	indexDuration prometheus.Histogram
	indexEdges    *prometheus.GaugeVec

	traces     *prometheus.CounterVec
	traceSteps prometheus.Histogram

	basins        *prometheus.CounterVec
	basinDuration prometheus.Histogram
	basinSize     prometheus.Histogram
	basinDepth    prometheus.Histogram

	branchRuns     *prometheus.CounterVec
	branchDuration prometheus.Histogram

	multiplexPasses   prometheus.Counter
	multiplexTunnels  *prometheus.GaugeVec
	multiplexDuration prometheus.Histogram

	cacheOps   *prometheus.CounterVec
	cacheBytes *prometheus.CounterVec

	jobs        *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
}

// New registers the nlink collectors with reg. reg must also be a
// prometheus.Gatherer (a *prometheus.Registry or the default registerer)
// for WriteTextfile to work.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		indexBuilds: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nlink_index_builds_total",
			Help: "Rule index builds by result",
		}, []string{"result"}),
		indexDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "nlink_index_build_duration_seconds",
			Help:    "Rule index build duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		indexEdges: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nlink_index_edges",
			Help: "Functional edges in the last built index per rule",
		}, []string{"n"}),

		traces: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nlink_traces_total",
			Help: "Forward traces by terminal kind",
		}, []string{"kind"}),
		traceSteps: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "nlink_trace_steps",
			Help:    "Steps per forward trace",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),

		basins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nlink_basins_total",
			Help: "Basin mappings by result",
		}, []string{"result"}),
		basinDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "nlink_basin_duration_seconds",
			Help:    "Basin mapping duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 12),
		}),
		basinSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "nlink_basin_size_pages",
			Help:    "Pages per mapped basin",
			Buckets: prometheus.ExponentialBuckets(1, 10, 9),
		}),
		basinDepth: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "nlink_basin_depth_layers",
			Help:    "Deepest layer per mapped basin",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500},
		}),

		branchRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nlink_branch_analyses_total",
			Help: "Branch decompositions by result",
		}, []string{"result"}),
		branchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "nlink_branch_duration_seconds",
			Help:    "Branch decomposition duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 12),
		}),

		multiplexPasses: f.NewCounter(prometheus.CounterOpts{
			Name: "nlink_multiplex_passes_total",
			Help: "Completed multiplex rule passes",
		}),
		multiplexTunnels: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nlink_multiplex_tunnels",
			Help: "Tunnel transitions found entering each rule",
		}, []string{"n"}),
		multiplexDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "nlink_multiplex_pass_duration_seconds",
			Help:    "Multiplex pass duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),

		cacheOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nlink_cache_operations_total",
			Help: "Cache operations by entry type and outcome",
		}, []string{"type", "op"}),
		cacheBytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nlink_cache_written_bytes_total",
			Help: "Bytes written to the cache by entry type",
		}, []string{"type"}),

		jobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nlink_jobs_total",
			Help: "Jobs by kind and final state",
		}, []string{"kind", "state"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nlink_job_duration_seconds",
			Help:    "Job duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"kind"}),
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// Install registers m as the global engine, cache and job hooks.
func (m *Metrics) Install() {
	observability.SetEngineHooks(m)
	observability.SetCacheHooks(m)
	observability.SetJobHooks(m)
}

// WriteTextfile writes every gathered metric to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	g := m.gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return prometheus.WriteToTextfile(path, g)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) OnIndexStart(context.Context, int) {}

func (m *Metrics) OnIndexComplete(_ context.Context, n int, edges int, d time.Duration, err error) {
	m.indexBuilds.WithLabelValues(result(err)).Inc()
	if err == nil {
		m.indexDuration.Observe(d.Seconds())
		m.indexEdges.WithLabelValues(strconv.Itoa(n)).Set(float64(edges))
	}
}

func (m *Metrics) OnTrace(_ context.Context, _ int, steps int, kind string) {
	m.traces.WithLabelValues(kind).Inc()
	m.traceSteps.Observe(float64(steps))
}

func (m *Metrics) OnBasin(_ context.Context, _ int, size int, depth int, truncated bool, d time.Duration, err error) {
	switch {
	case err != nil:
		m.basins.WithLabelValues("error").Inc()
		return
	case truncated:
		m.basins.WithLabelValues("truncated").Inc()
	default:
		m.basins.WithLabelValues("complete").Inc()
	}
	m.basinDuration.Observe(d.Seconds())
	m.basinSize.Observe(float64(size))
	m.basinDepth.Observe(float64(depth))
}

func (m *Metrics) OnBranches(_ context.Context, _ int, _ int, d time.Duration, err error) {
	m.branchRuns.WithLabelValues(result(err)).Inc()
	if err == nil {
		m.branchDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) OnMultiplexPass(_ context.Context, n int, _ int, tunnels int, d time.Duration) {
	m.multiplexPasses.Inc()
	m.multiplexTunnels.WithLabelValues(strconv.Itoa(n)).Set(float64(tunnels))
	m.multiplexDuration.Observe(d.Seconds())
}

func (m *Metrics) OnCacheHit(_ context.Context, keyType string) {
	m.cacheOps.WithLabelValues(keyType, "hit").Inc()
}

func (m *Metrics) OnCacheMiss(_ context.Context, keyType string) {
	m.cacheOps.WithLabelValues(keyType, "miss").Inc()
}

func (m *Metrics) OnCacheSet(_ context.Context, keyType string, size int) {
	m.cacheOps.WithLabelValues(keyType, "set").Inc()
	m.cacheBytes.WithLabelValues(keyType).Add(float64(size))
}

func (m *Metrics) OnJobStart(context.Context, string) {}

func (m *Metrics) OnJobComplete(_ context.Context, kind string, state string, d time.Duration) {
	m.jobs.WithLabelValues(kind, state).Inc()
	m.jobDuration.WithLabelValues(kind).Observe(d.Seconds())
}

var (
	_ observability.EngineHooks = (*Metrics)(nil)
	_ observability.CacheHooks  = (*Metrics)(nil)
	_ observability.JobHooks    = (*Metrics)(nil)
)
