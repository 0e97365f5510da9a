package kernel

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chazu/kerf/pkg/csg"
	"github.com/chazu/kerf/pkg/graph"
)

// metrics implements tessellate.Recorder on top of Prometheus collectors.
// Every collector carries a "kernel" const label so several kernels can
// share one registerer.
type metrics struct {
	reg        prometheus.Registerer
	collectors []prometheus.Collector

	hits     prometheus.Counter
	misses   prometheus.Counter
	ops      *prometheus.CounterVec
	duration prometheus.Histogram
	issues   *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer, instance string) *metrics {
	labels := prometheus.Labels{"kernel": instance}
	factory := promauto.With(reg)
	m := &metrics{
		reg: reg,
		hits: factory.NewCounter(prometheus.CounterOpts{
			Name:        "kerf_cache_hits_total",
			Help:        "Identified nodes served from the mesh cache.",
			ConstLabels: labels,
		}),
		misses: factory.NewCounter(prometheus.CounterOpts{
			Name:        "kerf_cache_misses_total",
			Help:        "Identified nodes that had to be recomputed.",
			ConstLabels: labels,
		}),
		ops: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "kerf_boolean_ops_total",
			Help:        "Pairwise boolean operations by operator.",
			ConstLabels: labels,
		}, []string{"op"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "kerf_boolean_duration_seconds",
			Help:        "Duration of pairwise boolean operations.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		issues: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "kerf_boolean_diagnostics_total",
			Help:        "Non-fatal problems reported by boolean operations.",
			ConstLabels: labels,
		}, []string{"kind"}),
	}
	m.collectors = []prometheus.Collector{m.hits, m.misses, m.ops, m.duration, m.issues}
	return m
}

func (m *metrics) CacheHit(graph.NodeID)  { m.hits.Inc() }
func (m *metrics) CacheMiss(graph.NodeID) { m.misses.Inc() }

func (m *metrics) Combine(op csg.Op, elapsed time.Duration, diag csg.Diagnostics) {
	m.ops.WithLabelValues(op.String()).Inc()
	m.duration.Observe(elapsed.Seconds())
	m.issues.WithLabelValues("skipped_pairs").Add(float64(diag.SkippedPairs))
	m.issues.WithLabelValues("degenerate_triangles").Add(float64(diag.DegenerateTriangles))
	m.issues.WithLabelValues("non_manifold_edges").Add(float64(diag.NonManifoldEdges))
}

func (m *metrics) unregister() {
	for _, c := range m.collectors {
		m.reg.Unregister(c)
	}
}
