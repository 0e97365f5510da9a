package sdfx

import (
	"context"
	"fmt"
	"math"

	"github.com/chazu/kerf/pkg/csg"
	"github.com/chazu/kerf/pkg/mesh"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// CompareOptions tunes Compare. Zero fields select defaults.
type CompareOptions struct {
	// Grid is the number of sample points along each axis (default 12).
	Grid int
	// Tolerance is the distance from the reference surface below which
	// samples are skipped (default 2% of the bounds diagonal).
	Tolerance float64
}

// Report is the outcome of Compare.
type Report struct {
	Samples    int     // points classified by both models
	Skipped    int     // points too close to the surface to judge
	Mismatches int     // points the two models disagree on
	BoundsGap  float64 // largest per-axis bounds difference
}

// Agree reports whether no sample disagreed.
func (r Report) Agree() bool { return r.Mismatches == 0 }

func (r Report) String() string {
	return fmt.Sprintf("samples=%d skipped=%d mismatches=%d boundsGap=%.4g",
		r.Samples, r.Skipped, r.Mismatches, r.BoundsGap)
}

// Compare samples a regular grid over the combined bounds of m and model
// and counts the points where the mesh's winding-number classification
// disagrees with the model's sign. Points within Tolerance of the
// reference surface are skipped, since tessellation legitimately moves
// the surface by up to the chord error.
func Compare(ctx context.Context, m *mesh.Mesh, model *Model, opts CompareOptions) (Report, error) {
	var rep Report
	if m == nil || model == nil {
		return rep, fmt.Errorf("sdfx: compare: nil input")
	}
	if opts.Grid <= 0 {
		opts.Grid = 12
	}

	mb, sb := m.BoundingBox(), model.Bounds()
	switch {
	case m.IsEmpty() && model.IsEmpty():
		return rep, nil
	case m.IsEmpty():
		mb = sb
	case model.IsEmpty():
		sb = mb
	default:
		rep.BoundsGap = boundsGap(mb, sb)
	}
	box := mb.Extend(sb)
	diag := box.Size().Length()
	if opts.Tolerance <= 0 {
		opts.Tolerance = 0.02 * diag
	}
	// keep samples off the bounds planes, where both models are on the surface
	step := box.Size().DivScalar(float64(opts.Grid))
	start := box.Min.Add(step.MulScalar(0.5))

	for i := 0; i < opts.Grid; i++ {
		if err := ctx.Err(); err != nil {
			return rep, fmt.Errorf("sdfx: compare: %w: %w", csg.ErrCancelled, err)
		}
		for j := 0; j < opts.Grid; j++ {
			for k := 0; k < opts.Grid; k++ {
				p := start.Add(v3.Vec{X: float64(i) * step.X, Y: float64(j) * step.Y, Z: float64(k) * step.Z})
				d := model.Distance(p)
				if !model.IsEmpty() && math.Abs(d) < opts.Tolerance {
					rep.Skipped++
					continue
				}
				rep.Samples++
				inMesh := !m.IsEmpty() && csg.WindingNumber(m, p) >= 0.5
				if inMesh != (d < 0 && !model.IsEmpty()) {
					rep.Mismatches++
				}
			}
		}
	}
	return rep, nil
}

func boundsGap(a, b sdf.Box3) float64 {
	gap := 0.0
	for _, d := range []float64{
		a.Min.X - b.Min.X, a.Min.Y - b.Min.Y, a.Min.Z - b.Min.Z,
		a.Max.X - b.Max.X, a.Max.Y - b.Max.Y, a.Max.Z - b.Max.Z,
	} {
		gap = math.Max(gap, math.Abs(d))
	}
	return gap
}
