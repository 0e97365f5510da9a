package csg

import (
	"context"
	"math"

	"github.com/chazu/kerf/pkg/mesh"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Label places a fragment relative to the other operand.
type Label int

const (
	Outside Label = iota
	Inside
	OnBoundary
)

func (l Label) String() string {
	switch l {
	case Outside:
		return "outside"
	case Inside:
		return "inside"
	case OnBoundary:
		return "on-boundary"
	default:
		return "unknown"
	}
}

// placement is a fragment's label. For OnBoundary fragments, opposed
// records whether the surface they lie on faces the other way.
type placement struct {
	label   Label
	opposed bool
}

// classify labels each fragment by its centroid against ref.
func (e *Engine) classify(ctx context.Context, frags []fragment, ref *operand) ([]placement, error) {
	out := make([]placement, len(frags))
	outer := pad(ref.bounds, e.eps)
	for i, f := range frags {
		if i%pairBatch == 0 {
			if err := ctx.Err(); err != nil {
				return nil, cancelled(err)
			}
		}
		var n v3.Vec
		if pl, ok := planeOf(f); ok {
			n = pl.n
		}
		out[i] = ref.locate(f.centroid(), n, outer, e.eps)
	}
	return out, nil
}

// locate classifies p. Points within eps of the surface are OnBoundary;
// the rest are decided by the generalized winding number, which stays
// meaningful on meshes with small cracks.
func (o *operand) locate(p, n v3.Vec, outer sdf.Box3, eps float64) placement {
	if !contains(outer, p) {
		return placement{label: Outside}
	}
	eps2 := eps * eps
	for _, j := range o.idx.query(sdf.Box3{Min: p, Max: p}) {
		t := o.tris[j]
		if closestPoint(p, t[0], t[1], t[2]).Sub(p).Length2() <= eps2 {
			return placement{label: OnBoundary, opposed: n.Dot(o.planes[j].n) < 0}
		}
	}
	if o.winding(p) >= 0.5 {
		return placement{label: Inside}
	}
	return placement{label: Outside}
}

func (o *operand) winding(p v3.Vec) float64 {
	var sum float64
	for i, t := range o.tris {
		if o.ok[i] {
			sum += solidAngle(p, t[0], t[1], t[2])
		}
	}
	return sum / (4 * math.Pi)
}

// Classify labels point p relative to the closed mesh m using the same
// predicates as a combination.
func Classify(m *mesh.Mesh, p v3.Vec, eps float64) (Label, error) {
	o, err := newOperand(m, eps)
	if err != nil {
		return Outside, err
	}
	return o.locate(p, v3.Vec{}, pad(o.bounds, eps), eps).label, nil
}

// WindingNumber returns the generalized winding number of m at p: about
// 1 inside a closed outward-facing mesh and 0 outside.
func WindingNumber(m *mesh.Mesh, p v3.Vec) float64 {
	var sum float64
	for i := range m.Triangles {
		t := m.Triangles[i].V
		if t[0] < 0 || t[1] < 0 || t[2] < 0 || t[0] >= len(m.Vertices) || t[1] >= len(m.Vertices) || t[2] >= len(m.Vertices) {
			continue
		}
		a, b, c := m.Corners(i)
		sum += solidAngle(p, a, b, c)
	}
	return sum / (4 * math.Pi)
}
