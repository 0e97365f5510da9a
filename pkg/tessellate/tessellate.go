// Package tessellate walks a scene graph and produces its triangle mesh.
// Identified nodes are looked up in and stored to an incremental cache;
// children of booleans and groups may be evaluated in parallel through a
// Pool. Every node's mesh is expressed in that node's own frame, so a
// cached mesh depends only on the subtree below it.
package tessellate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chazu/kerf/pkg/cache"
	"github.com/chazu/kerf/pkg/csg"
	"github.com/chazu/kerf/pkg/graph"
	"github.com/chazu/kerf/pkg/mesh"
	"github.com/chazu/kerf/pkg/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/chazu/kerf/pkg/tessellate"

// Recorder receives evaluation events, typically to export metrics.
type Recorder interface {
	CacheHit(id graph.NodeID)
	CacheMiss(id graph.NodeID)
	Combine(op csg.Op, elapsed time.Duration, diag csg.Diagnostics)
}

type nopRecorder struct{}

func (nopRecorder) CacheHit(graph.NodeID)                         {}
func (nopRecorder) CacheMiss(graph.NodeID)                        {}
func (nopRecorder) Combine(csg.Op, time.Duration, csg.Diagnostics) {}

// Evaluator turns scene nodes into meshes. It is safe for concurrent
// use; concurrent evaluations share the cache and the pool.
type Evaluator struct {
	engine *csg.Engine
	cache  *cache.Cache // nil disables incremental evaluation
	pool   *Pool        // nil evaluates children serially
	log    *zap.Logger
	rec    Recorder
	tracer trace.Tracer

	mu   sync.Mutex
	diag csg.Diagnostics
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithEngine sets the boolean engine.
func WithEngine(e *csg.Engine) Option {
	return func(ev *Evaluator) {
		if e != nil {
			ev.engine = e
		}
	}
}

// WithCache enables incremental evaluation through c.
func WithCache(c *cache.Cache) Option {
	return func(ev *Evaluator) { ev.cache = c }
}

// WithPool enables parallel evaluation of siblings through p.
func WithPool(p *Pool) Option {
	return func(ev *Evaluator) { ev.pool = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(ev *Evaluator) {
		if l != nil {
			ev.log = l
		}
	}
}

// WithRecorder sets the event recorder.
func WithRecorder(r Recorder) Option {
	return func(ev *Evaluator) {
		if r != nil {
			ev.rec = r
		}
	}
}

// New returns an Evaluator. Without options it evaluates serially and
// caches nothing.
func New(opts ...Option) *Evaluator {
	ev := &Evaluator{
		engine: csg.NewEngine(),
		log:    zap.NewNop(),
		rec:    nopRecorder{},
		tracer: otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(ev)
	}
	return ev
}

// Evaluate returns the mesh of root. The result may be shared with the
// cache and must be cloned before modification.
func (ev *Evaluator) Evaluate(ctx context.Context, root *graph.Node) (*mesh.Mesh, error) {
	versions, err := graph.Versions(root)
	if err != nil {
		return nil, fmt.Errorf("tessellate: %w", err)
	}
	return ev.EvaluateVersions(ctx, root, versions)
}

// EvaluateVersions is Evaluate with versions precomputed by
// graph.Versions for a tree containing root.
func (ev *Evaluator) EvaluateVersions(ctx context.Context, root *graph.Node, versions map[*graph.Node]graph.Version) (*mesh.Mesh, error) {
	ctx, span := ev.tracer.Start(ctx, "tessellate.Evaluate",
		trace.WithAttributes(attribute.String("root", root.Label())),
	)
	defer span.End()

	m, err := ev.eval(ctx, root, versions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("triangles", m.TriangleCount()))
	return m, nil
}

// Diagnostics returns the boolean diagnostics accumulated so far.
func (ev *Evaluator) Diagnostics() csg.Diagnostics {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return ev.diag
}

// ResetDiagnostics zeroes the accumulated diagnostics.
func (ev *Evaluator) ResetDiagnostics() {
	ev.mu.Lock()
	ev.diag = csg.Diagnostics{}
	ev.mu.Unlock()
}

func (ev *Evaluator) eval(ctx context.Context, n *graph.Node, versions map[*graph.Node]graph.Version) (*mesh.Mesh, error) {
	if n == nil {
		return nil, fmt.Errorf("tessellate: nil node")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("tessellate: %w: %w", csg.ErrCancelled, err)
	}

	cached := ev.cache != nil && !n.ID.IsZero()
	var version graph.Version
	if cached {
		v, ok := versions[n]
		if !ok {
			return nil, fmt.Errorf("tessellate: no version for %s", n.Label())
		}
		version = v
		if m, ok := ev.cache.Get(n.ID, version); ok {
			ev.rec.CacheHit(n.ID)
			ev.log.Debug("cache hit", zap.String("id", string(n.ID)), zap.String("version", version.Short()))
			return m, nil
		}
		ev.rec.CacheMiss(n.ID)
		ev.log.Debug("cache miss", zap.String("id", string(n.ID)), zap.String("version", version.Short()))
	}

	m, err := ev.compute(ctx, n, versions)
	if err != nil {
		return nil, err
	}
	if cached {
		ev.cache.Put(n.ID, version, m)
	}
	return m, nil
}

// compute applies n's own operation to its children's meshes.
func (ev *Evaluator) compute(ctx context.Context, n *graph.Node, versions map[*graph.Node]graph.Version) (*mesh.Mesh, error) {
	switch d := n.Data.(type) {
	case graph.PrimitiveData:
		m, err := primitive.Generate(d.Shape)
		if err != nil {
			return nil, fmt.Errorf("tessellate: %s: %w", n.Label(), err)
		}
		return m, nil

	case graph.TransformData:
		if len(n.Children) != 1 {
			return nil, fmt.Errorf("tessellate: %s: transform needs exactly one child, has %d", n.Label(), len(n.Children))
		}
		child, err := ev.eval(ctx, n.Children[0], versions)
		if err != nil {
			return nil, err
		}
		return child.Transform(d.Matrix), nil

	case graph.BooleanData:
		if len(n.Children) == 0 {
			return nil, fmt.Errorf("tessellate: %s: no operands", n.Label())
		}
		kids, err := ev.children(ctx, n, versions)
		if err != nil {
			return nil, err
		}
		return ev.fold(ctx, d.Op, kids)

	case graph.GroupData:
		if len(n.Children) == 0 {
			return &mesh.Mesh{}, nil
		}
		kids, err := ev.children(ctx, n, versions)
		if err != nil {
			return nil, err
		}
		return ev.fold(ctx, csg.Union, kids)

	default:
		return nil, fmt.Errorf("tessellate: %s has unsupported data type %T", n.Label(), n.Data)
	}
}

// children evaluates n's children, in parallel when a pool is set. The
// results keep child order; the error is that of the leftmost failing
// child.
func (ev *Evaluator) children(ctx context.Context, n *graph.Node, versions map[*graph.Node]graph.Version) ([]*mesh.Mesh, error) {
	out := make([]*mesh.Mesh, len(n.Children))
	if ev.pool == nil || len(n.Children) < 2 {
		for i, c := range n.Children {
			m, err := ev.eval(ctx, c, versions)
			if err != nil {
				return nil, err
			}
			out[i] = m
		}
		return out, nil
	}
	err := ev.pool.Run(ctx, len(n.Children), func(ctx context.Context, i int) error {
		m, err := ev.eval(ctx, n.Children[i], versions)
		out[i] = m
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// fold combines meshes left to right.
func (ev *Evaluator) fold(ctx context.Context, op csg.Op, meshes []*mesh.Mesh) (*mesh.Mesh, error) {
	acc := meshes[0]
	for _, m := range meshes[1:] {
		out, err := ev.combine(ctx, op, acc, m)
		if err != nil {
			return nil, err
		}
		acc = out
	}
	return acc, nil
}

func (ev *Evaluator) combine(ctx context.Context, op csg.Op, a, b *mesh.Mesh) (*mesh.Mesh, error) {
	ctx, span := ev.tracer.Start(ctx, "csg.Combine",
		trace.WithAttributes(
			attribute.String("op", op.String()),
			attribute.Int("triangles_a", a.TriangleCount()),
			attribute.Int("triangles_b", b.TriangleCount()),
		),
	)
	defer span.End()

	start := time.Now()
	out, diag, err := ev.engine.Combine(ctx, op, a, b)
	elapsed := time.Since(start)
	ev.rec.Combine(op, elapsed, diag)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "combine failed")
		return nil, fmt.Errorf("tessellate: %s: %w", op, err)
	}

	ev.mu.Lock()
	ev.diag.Add(diag)
	ev.mu.Unlock()

	span.SetAttributes(attribute.Int("triangles", out.TriangleCount()))
	if !diag.Clean() {
		ev.log.Warn("boolean diagnostics",
			zap.Stringer("op", op),
			zap.Int("skipped_pairs", diag.SkippedPairs),
			zap.Int("degenerate_triangles", diag.DegenerateTriangles),
			zap.Int("non_manifold_edges", diag.NonManifoldEdges),
		)
	}
	ev.log.Debug("combined",
		zap.Stringer("op", op),
		zap.Duration("elapsed", elapsed),
		zap.Int("triangles", out.TriangleCount()),
	)
	return out, nil
}
