// Package csg implements boolean operations (union, difference,
// intersection) between closed triangle meshes.
//
// A combination runs in five steps: both operands are indexed with an
// R-tree over their triangle bounds; every overlapping triangle pair is
// intersected, every segment end point is shared with the triangles that
// contain it, and the triangles crossed by intersection segments are
// re-triangulated; each resulting fragment is labelled Inside, Outside or
// OnBoundary of the other operand; the fragments selected by the operator
// are assembled; and the result is welded, cleaned and stripped of
// T-junctions. A single epsilon drives every tolerance decision.
package csg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/kerf/pkg/mesh"
	"go.uber.org/zap"
)

// ErrCancelled is returned when the caller's context is done before a
// combination finishes. No partial mesh is returned with it.
var ErrCancelled = errors.New("evaluation cancelled")

// Op is a boolean operator.
type Op int

const (
	Union Op = iota
	Difference
	Intersection
)

func (o Op) String() string {
	switch o {
	case Union:
		return "union"
	case Difference:
		return "difference"
	case Intersection:
		return "intersection"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// ParseOp converts an operator name to an Op.
func ParseOp(s string) (Op, error) {
	switch strings.ToLower(s) {
	case "union":
		return Union, nil
	case "difference":
		return Difference, nil
	case "intersection":
		return Intersection, nil
	}
	return 0, fmt.Errorf("csg: unknown operator %q", s)
}

// Diagnostics reports numerical trouble the engine recovered from. A
// result with non-zero counts is valid but may not be perfectly manifold.
type Diagnostics struct {
	CandidatePairs      int `json:"candidate_pairs"`
	SplitTriangles      int `json:"split_triangles"`
	SkippedPairs        int `json:"skipped_pairs"`
	DegenerateTriangles int `json:"degenerate_triangles"`
	NonManifoldEdges    int `json:"non_manifold_edges"`
}

// Add accumulates o into d.
func (d *Diagnostics) Add(o Diagnostics) {
	d.CandidatePairs += o.CandidatePairs
	d.SplitTriangles += o.SplitTriangles
	d.SkippedPairs += o.SkippedPairs
	d.DegenerateTriangles += o.DegenerateTriangles
	d.NonManifoldEdges += o.NonManifoldEdges
}

// Clean reports whether nothing had to be skipped or approximated.
func (d Diagnostics) Clean() bool {
	return d.SkippedPairs == 0 && d.DegenerateTriangles == 0 && d.NonManifoldEdges == 0
}

// pairBatch is how many candidate pairs (or fragments during
// classification) are processed between cancellation checks.
const pairBatch = 64

// Engine combines meshes with a fixed tolerance. An Engine holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	eps float64
	log *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithEpsilon sets the tolerance used for welding and all predicates.
func WithEpsilon(eps float64) Option {
	return func(e *Engine) {
		if eps > 0 {
			e.eps = eps
		}
	}
}

// WithLogger sets the logger for per-combination debug output.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEngine returns an Engine using mesh.DefaultEpsilon unless overridden.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{eps: mesh.DefaultEpsilon, log: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Epsilon returns the engine tolerance.
func (e *Engine) Epsilon() float64 { return e.eps }

// Combine applies op to a and b with the default engine.
func Combine(ctx context.Context, op Op, a, b *mesh.Mesh) (*mesh.Mesh, Diagnostics, error) {
	return NewEngine().Combine(ctx, op, a, b)
}

// Combine returns a new mesh for a op b. Neither input is modified. The
// result is deterministic for fixed inputs and epsilon.
func (e *Engine) Combine(ctx context.Context, op Op, a, b *mesh.Mesh) (*mesh.Mesh, Diagnostics, error) {
	var diag Diagnostics
	if op != Union && op != Difference && op != Intersection {
		return nil, diag, fmt.Errorf("csg: unsupported operator %v", op)
	}
	if err := ctx.Err(); err != nil {
		return nil, diag, cancelled(err)
	}

	if out, ok := e.trivial(op, a, b); ok {
		e.finish(out, &diag)
		return out, diag, nil
	}

	A, err := newOperand(a, e.eps)
	if err != nil {
		return nil, diag, err
	}
	B, err := newOperand(b, e.eps)
	if err != nil {
		return nil, diag, err
	}
	diag.DegenerateTriangles += A.degenerate + B.degenerate

	if err := e.intersect(ctx, A, B, &diag); err != nil {
		return nil, diag, err
	}
	shareCutPoints(A, B, e.eps)

	fragsA := A.fragments(e.eps, &diag)
	fragsB := B.fragments(e.eps, &diag)

	labelsA, err := e.classify(ctx, fragsA, B)
	if err != nil {
		return nil, diag, err
	}
	labelsB, err := e.classify(ctx, fragsB, A)
	if err != nil {
		return nil, diag, err
	}

	out := mesh.New(3*(len(fragsA)+len(fragsB)), len(fragsA)+len(fragsB))
	for i, f := range fragsA {
		if keep(op, true, labelsA[i]) {
			addFragment(out, f, false)
		}
	}
	for i, f := range fragsB {
		if keep(op, false, labelsB[i]) {
			addFragment(out, f, op == Difference)
		}
	}

	e.finish(out, &diag)
	e.log.Debug("boolean combine",
		zap.Stringer("op", op),
		zap.Int("triangles_a", len(a.Triangles)),
		zap.Int("triangles_b", len(b.Triangles)),
		zap.Int("fragments_a", len(fragsA)),
		zap.Int("fragments_b", len(fragsB)),
		zap.Int("candidate_pairs", diag.CandidatePairs),
		zap.Int("triangles_out", len(out.Triangles)),
	)
	return out, diag, nil
}

// keep reports whether a fragment of A (fromA) or B survives op.
//
//	union:        A outside or on a same-facing boundary, B outside
//	difference:   A outside or on an opposed boundary, B inside (flipped)
//	intersection: A inside or on a same-facing boundary, B inside
//
// B's boundary fragments never survive, so a surface shared by both
// operands is taken from A. Where the faces of A and B are opposed the
// shared surface lies between the two solids: it is interior to a union,
// bounds a difference and bounds nothing in an intersection.
func keep(op Op, fromA bool, pl placement) bool {
	switch op {
	case Union:
		if fromA {
			return pl.label == Outside || (pl.label == OnBoundary && !pl.opposed)
		}
		return pl.label == Outside
	case Difference:
		if fromA {
			return pl.label == Outside || (pl.label == OnBoundary && pl.opposed)
		}
		return pl.label == Inside
	case Intersection:
		if fromA {
			return pl.label == Inside || (pl.label == OnBoundary && !pl.opposed)
		}
		return pl.label == Inside
	}
	return false
}

// trivial resolves combinations that need no splitting: an empty operand
// or operands whose bounds are disjoint.
func (e *Engine) trivial(op Op, a, b *mesh.Mesh) (*mesh.Mesh, bool) {
	emptyA, emptyB := a.IsEmpty(), b.IsEmpty()
	disjoint := emptyA || emptyB || !overlaps(a.BoundingBox(), b.BoundingBox(), e.eps)
	if !disjoint {
		return nil, false
	}
	switch op {
	case Union:
		return mesh.Merge(a, b), true
	case Difference:
		return a.Clone(), true
	default:
		return &mesh.Mesh{}, true
	}
}

// finish runs the cleanup pipeline, closes the T-junctions left where
// one operand's cut introduced a vertex the other never saw, and records
// what it found.
func (e *Engine) finish(out *mesh.Mesh, diag *Diagnostics) {
	st := out.Cleanup(e.eps)
	diag.DegenerateTriangles += st.DegenerateTriangles
	if n := out.SplitTJunctions(e.eps); n > 0 {
		e.log.Debug("split t-junctions", zap.Int("triangles", n))
	}
	diag.NonManifoldEdges = out.NonManifoldEdges()
}

func addFragment(m *mesh.Mesh, f fragment, reverse bool) {
	a := m.AddVertex(f[0])
	b := m.AddVertex(f[1])
	c := m.AddVertex(f[2])
	if reverse {
		m.AddTriangle(a, c, b)
		return
	}
	m.AddTriangle(a, b, c)
}

func cancelled(err error) error {
	return fmt.Errorf("csg: %w: %w", ErrCancelled, err)
}
