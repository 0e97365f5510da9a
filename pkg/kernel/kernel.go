// Package kernel is the entry point of the geometry kernel. A Kernel owns
// a scene graph, its dependency graph, the incremental mesh cache and the
// evaluation pool, and turns the scene into a triangle mesh on Render.
// Kernels are independent of each other; nothing is process-global.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/chazu/kerf/pkg/cache"
	"github.com/chazu/kerf/pkg/csg"
	"github.com/chazu/kerf/pkg/graph"
	"github.com/chazu/kerf/pkg/kernel/sdfx"
	"github.com/chazu/kerf/pkg/mesh"
	"github.com/chazu/kerf/pkg/tessellate"
)

var (
	// ErrClosed is returned by every method of a closed Kernel.
	ErrClosed = errors.New("kernel: closed")
	// ErrNoScene is returned when rendering before WithScene.
	ErrNoScene = errors.New("kernel: no scene")

	// Re-exported so callers need not import graph and csg for errors.Is.
	ErrUnknownNodeID = graph.ErrUnknownNodeID
	ErrCancelled     = csg.ErrCancelled
)

// Kernel evaluates one scene. It is safe for concurrent use: renders run
// concurrently with each other, scene changes are serialized against
// them.
type Kernel struct {
	id       string
	cfg      Config
	log      *zap.Logger
	reg      prometheus.Registerer
	gatherer prometheus.Gatherer
	metrics  *metrics
	tracer   trace.Tracer

	cache *cache.Cache
	pool  *tessellate.Pool
	eval  *tessellate.Evaluator

	mu       sync.RWMutex
	scene    *graph.Node
	graph    *graph.DependencyGraph
	versions map[*graph.Node]graph.Version
	closed   bool
}

// Option configures a Kernel.
type Option func(*Kernel)

// WithLogger sets the logger. The kernel logs through a child named
// "kernel" tagged with its instance id.
func WithLogger(l *zap.Logger) Option {
	return func(k *Kernel) {
		if l != nil {
			k.log = l
		}
	}
}

// WithRegisterer registers the kernel's metrics on reg instead of a
// private registry. The metrics are unregistered on Close.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(k *Kernel) {
		if reg != nil {
			k.reg = reg
		}
	}
}

// New returns a Kernel configured by cfg. Zero numeric fields of cfg
// take their defaults.
func New(cfg Config, opts ...Option) (*Kernel, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	k := &Kernel{
		id:     uuid.NewString(),
		cfg:    cfg,
		log:    zap.NewNop(),
		tracer: otel.Tracer("github.com/chazu/kerf/pkg/kernel"),
	}
	for _, o := range opts {
		o(k)
	}
	if k.reg == nil {
		r := prometheus.NewRegistry()
		k.reg, k.gatherer = r, r
	}
	root := k.log
	k.log = root.Named("kernel").With(zap.String("kernel_id", k.id))
	k.metrics = newMetrics(k.reg, k.id)

	evalOpts := []tessellate.Option{
		tessellate.WithEngine(csg.NewEngine(
			csg.WithEpsilon(cfg.Epsilon),
			csg.WithLogger(root.Named("csg")),
		)),
		tessellate.WithLogger(root.Named("tessellate")),
		tessellate.WithRecorder(k.metrics),
	}
	if cfg.Incremental {
		k.cache = cache.New()
		evalOpts = append(evalOpts, tessellate.WithCache(k.cache))
	}
	if cfg.Parallel {
		k.pool = tessellate.NewPool(cfg.Workers)
		evalOpts = append(evalOpts, tessellate.WithPool(k.pool))
	}
	k.eval = tessellate.New(evalOpts...)

	k.log.Debug("kernel created",
		zap.Float64("epsilon", cfg.Epsilon),
		zap.Bool("parallel", cfg.Parallel),
		zap.Bool("incremental", cfg.Incremental),
		zap.Int("workers", cfg.Workers),
	)
	return k, nil
}

// ID returns the kernel's instance id.
func (k *Kernel) ID() string { return k.id }

// Config returns the effective configuration.
func (k *Kernel) Config() Config { return k.cfg }

// Gatherer returns the private metrics registry, or nil when the
// metrics were registered through WithRegisterer.
func (k *Kernel) Gatherer() prometheus.Gatherer { return k.gatherer }

// WithScene validates root and makes it the current scene. The cache is
// cleared and the accumulated diagnostics are reset.
func (k *Kernel) WithScene(root *graph.Node) error {
	if err := graph.Check(root); err != nil {
		return fmt.Errorf("kernel: %w", err)
	}
	g, versions, err := analyze(root)
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return ErrClosed
	}
	k.scene, k.graph, k.versions = root, g, versions
	if k.cache != nil {
		k.cache.Reset()
	}
	k.eval.ResetDiagnostics()

	k.log.Info("scene loaded",
		zap.String("root", root.Label()),
		zap.Int("identified_nodes", g.Len()),
		zap.String("version", versions[root].Short()),
	)
	return nil
}

func analyze(root *graph.Node) (*graph.DependencyGraph, map[*graph.Node]graph.Version, error) {
	g, err := graph.Build(root)
	if err != nil {
		return nil, nil, fmt.Errorf("kernel: %w", err)
	}
	versions, err := graph.Versions(root)
	if err != nil {
		return nil, nil, fmt.Errorf("kernel: %w", err)
	}
	return g, versions, nil
}

// snapshot returns the current scene under the read lock.
func (k *Kernel) snapshot() (*graph.Node, *graph.DependencyGraph, map[*graph.Node]graph.Version, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return nil, nil, nil, ErrClosed
	}
	if k.scene == nil {
		return nil, nil, nil, ErrNoScene
	}
	return k.scene, k.graph, k.versions, nil
}

// Render evaluates the scene and returns a mesh owned by the caller.
func (k *Kernel) Render(ctx context.Context) (*mesh.Mesh, error) {
	root, _, versions, err := k.snapshot()
	if err != nil {
		return nil, err
	}
	m, err := k.render(ctx, root, versions)
	if err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

func (k *Kernel) render(ctx context.Context, root *graph.Node, versions map[*graph.Node]graph.Version) (*mesh.Mesh, error) {
	ctx, span := k.tracer.Start(ctx, "kernel.Render",
		trace.WithAttributes(
			attribute.String("kernel_id", k.id),
			attribute.String("version", versions[root].Short()),
		),
	)
	defer span.End()

	m, err := k.eval.EvaluateVersions(ctx, root, versions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		k.log.Debug("render failed", zap.Error(err))
		return nil, err
	}
	return m, nil
}

// Evaluate evaluates an arbitrary node through the kernel's cache and
// pool. Identified nodes of n share cache entries with the scene by id;
// a differing version replaces the entry.
func (k *Kernel) Evaluate(ctx context.Context, n *graph.Node) (*mesh.Mesh, error) {
	k.mu.RLock()
	closed := k.closed
	k.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if err := graph.Check(n); err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}
	m, err := k.eval.Evaluate(ctx, n)
	if err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

// UpdateSubtree replaces the node identified by id with n. Cache
// entries of every node whose mesh may change (id, its ancestors and
// its old descendants) are evicted; every other entry stays valid. On
// error the scene is left unchanged.
func (k *Kernel) UpdateSubtree(id graph.NodeID, n *graph.Node) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return ErrClosed
	}
	if k.graph == nil || !k.graph.Contains(id) {
		return fmt.Errorf("kernel: update %q: %w", id, ErrUnknownNodeID)
	}

	root, err := graph.Replace(k.scene, id, n)
	if err != nil {
		return fmt.Errorf("kernel: update %q: %w", id, err)
	}
	if err := graph.Check(root); err != nil {
		return fmt.Errorf("kernel: update %q: %w", id, err)
	}
	g, versions, err := analyze(root)
	if err != nil {
		return err
	}

	affected := k.graph.Affected(id)
	evicted := 0
	if k.cache != nil {
		evicted = k.cache.Evict(affected...)
	}
	k.scene, k.graph, k.versions = root, g, versions

	k.log.Info("subtree updated",
		zap.String("id", string(id)),
		zap.Int("affected", len(affected)),
		zap.Int("evicted", evicted),
		zap.String("version", versions[root].Short()),
	)
	return nil
}

// Invalidate evicts id and its ancestors from the cache, forcing them to
// be recomputed on the next render.
func (k *Kernel) Invalidate(id graph.NodeID) error {
	_, g, _, err := k.snapshot()
	if err != nil {
		return err
	}
	if !g.Contains(id) {
		return fmt.Errorf("kernel: invalidate %q: %w", id, ErrUnknownNodeID)
	}
	if k.cache != nil {
		n := k.cache.Evict(append(g.Ancestors(id), id)...)
		k.log.Debug("invalidated", zap.String("id", string(id)), zap.Int("evicted", n))
	}
	return nil
}

// CacheStats returns the cache counters. A kernel without incremental
// evaluation reports zeros.
func (k *Kernel) CacheStats() cache.Stats {
	if k.cache == nil {
		return cache.Stats{}
	}
	return k.cache.Stats()
}

// Scene returns the current scene root, or nil.
func (k *Kernel) Scene() *graph.Node {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.scene
}

// Graph returns the dependency graph of the current scene, or nil.
func (k *Kernel) Graph() *graph.DependencyGraph {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.graph
}

// Diagnostics returns the boolean diagnostics accumulated since the last
// WithScene.
func (k *Kernel) Diagnostics() csg.Diagnostics { return k.eval.Diagnostics() }

// CrossCheck renders the scene and compares it against the reference SDF
// model of the same scene.
func (k *Kernel) CrossCheck(ctx context.Context, opts sdfx.CompareOptions) (sdfx.Report, error) {
	root, _, versions, err := k.snapshot()
	if err != nil {
		return sdfx.Report{}, err
	}
	m, err := k.render(ctx, root, versions)
	if err != nil {
		return sdfx.Report{}, err
	}
	model, err := sdfx.Build(root)
	if err != nil {
		return sdfx.Report{}, fmt.Errorf("kernel: %w", err)
	}
	rep, err := sdfx.Compare(ctx, m, model, opts)
	if err != nil {
		return rep, err
	}
	if !rep.Agree() {
		k.log.Warn("reference model disagrees", zap.Stringer("report", rep))
	}
	return rep, nil
}

// Close releases the cache and unregisters the metrics. Closing twice
// returns ErrClosed.
func (k *Kernel) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return ErrClosed
	}
	k.closed = true
	if k.cache != nil {
		k.cache.Reset()
	}
	k.metrics.unregister()
	k.scene, k.graph, k.versions = nil, nil, nil
	k.log.Info("kernel closed")
	return nil
}
