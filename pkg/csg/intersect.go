package csg

import (
	"context"
	"math"

	"github.com/chazu/kerf/pkg/mesh"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// segment is an intersection segment lying on a triangle.
type segment struct {
	p, q v3.Vec
}

// operand is one input of a combination with its per-triangle geometry,
// spatial index and the cut segments collected for each triangle.
type operand struct {
	tris       []fragment
	planes     []plane
	ok         []bool // false for degenerate or malformed triangles
	boxes      []sdf.Box3
	bounds     sdf.Box3
	idx        *index
	cuts       [][]segment
	degenerate int
}

func newOperand(m *mesh.Mesh, eps float64) (*operand, error) {
	n := len(m.Triangles)
	o := &operand{
		tris:   make([]fragment, n),
		planes: make([]plane, n),
		ok:     make([]bool, n),
		boxes:  make([]sdf.Box3, n),
		bounds: m.BoundingBox(),
		cuts:   make([][]segment, n),
	}
	nv := len(m.Vertices)
	for i, t := range m.Triangles {
		if t.V[0] < 0 || t.V[1] < 0 || t.V[2] < 0 || t.V[0] >= nv || t.V[1] >= nv || t.V[2] >= nv {
			o.degenerate++
			continue
		}
		f := fragment{m.Vertices[t.V[0]], m.Vertices[t.V[1]], m.Vertices[t.V[2]]}
		o.tris[i] = f
		o.boxes[i] = f.bounds()
		if f.area() <= eps*eps {
			o.degenerate++
			continue
		}
		pl, good := planeOf(f)
		if !good {
			o.degenerate++
			continue
		}
		o.planes[i] = pl
		o.ok[i] = true
	}
	idx, err := newIndex(o.boxes, o.ok, eps)
	if err != nil {
		return nil, err
	}
	o.idx = idx
	return o, nil
}

// intersect finds every overlapping triangle pair of a and b and records
// the intersection segments on both triangles.
func (e *Engine) intersect(ctx context.Context, a, b *operand, diag *Diagnostics) error {
	pairs := 0
	for i := range a.tris {
		if !a.ok[i] {
			continue
		}
		for _, j := range b.idx.query(a.boxes[i]) {
			pairs++
			if pairs%pairBatch == 0 {
				if err := ctx.Err(); err != nil {
					return cancelled(err)
				}
			}
			segA, segB, ok := intersectPair(a.tris[i], a.planes[i], b.tris[j], b.planes[j], e.eps)
			if !ok {
				diag.SkippedPairs++
				continue
			}
			a.cuts[i] = append(a.cuts[i], segA...)
			b.cuts[j] = append(b.cuts[j], segB...)
		}
	}
	diag.CandidatePairs += pairs
	return nil
}

// shareCutPoints makes every cut end point known to all triangles of a
// and b that contain it, as a zero-length cut. A triangle touching the
// intersection curve in a single point, such as the neighbour across an
// edge the curve ends on, then gets a vertex there too.
func shareCutPoints(a, b *operand, eps float64) {
	var pts []v3.Vec
	for _, o := range []*operand{a, b} {
		for _, cs := range o.cuts {
			for _, s := range cs {
				pts = append(pts, s.p, s.q)
			}
		}
	}
	for _, p := range pts {
		a.mark(p, eps)
		b.mark(p, eps)
	}
}

// mark adds p as a zero-length cut to every triangle containing it.
func (o *operand) mark(p v3.Vec, eps float64) {
	for _, k := range o.idx.query(sdf.Box3{Min: p, Max: p}) {
		if o.ok[k] && o.touches(k, p, eps) {
			o.cuts[k] = append(o.cuts[k], segment{p: p, q: p})
		}
	}
}

// touches reports whether p lies on triangle k within eps.
func (o *operand) touches(k int, p v3.Vec, eps float64) bool {
	if math.Abs(o.planes[k].dist(p)) > eps {
		return false
	}
	d := edgeDistances(o.tris[k], o.planes[k].n, p)
	return d[0] >= -eps && d[1] >= -eps && d[2] >= -eps
}

// intersectPair returns the cut segments that triangle t receives from u
// and those u receives from t. ok is false when the pair is too
// ill-conditioned to intersect reliably.
func intersectPair(t fragment, pt plane, u fragment, pu plane, eps float64) (segT, segU []segment, ok bool) {
	var dT, dU [3]float64
	var sT, sU [3]int
	for k := 0; k < 3; k++ {
		dT[k] = pu.dist(t[k])
		sT[k] = sign(dT[k], eps)
		dU[k] = pt.dist(u[k])
		sU[k] = sign(dU[k], eps)
	}
	if sT == [3]int{} || sU == [3]int{} {
		return coplanarCuts(t, pt.n, u, pu.n, eps)
	}
	if sameSide(sT) || sameSide(sU) {
		return nil, nil, true
	}

	pts := crossings(t, dT, sT)
	pus := crossings(u, dU, sU)
	if len(pts) < 2 || len(pus) < 2 {
		// contact in a single point
		return nil, nil, true
	}

	dir := pt.n.Cross(pu.n)
	l := dir.Length()
	if l < 1e-12 {
		return nil, nil, false
	}
	dir = dir.DivScalar(l)

	t0, t1, p0, p1 := span(pts, dir)
	u0, u1, q0, q1 := span(pus, dir)

	lo, loP := t0, p0
	if u0 > t0 {
		lo, loP = u0, q0
	}
	hi, hiP := t1, p1
	if u1 < t1 {
		hi, hiP = u1, q1
	}
	if hi-lo <= eps {
		return nil, nil, true
	}
	s := []segment{{p: loP, q: hiP}}
	return s, s, true
}

func sameSide(s [3]int) bool {
	return (s[0] > 0 && s[1] > 0 && s[2] > 0) || (s[0] < 0 && s[1] < 0 && s[2] < 0)
}

// crossings returns where triangle f meets a plane, given the signed
// distances of its corners: corners on the plane and edge crossings.
func crossings(f fragment, d [3]float64, s [3]int) []v3.Vec {
	out := make([]v3.Vec, 0, 3)
	for k := 0; k < 3; k++ {
		if s[k] == 0 {
			out = append(out, f[k])
		}
	}
	for k := 0; k < 3; k++ {
		k1 := (k + 1) % 3
		if s[k]*s[k1] < 0 {
			out = append(out, lerp(f[k], f[k1], d[k]/(d[k]-d[k1])))
		}
	}
	return out
}

// span projects points on dir and returns the extreme parameters with
// their points.
func span(pts []v3.Vec, dir v3.Vec) (lo, hi float64, loP, hiP v3.Vec) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, p := range pts {
		t := dir.Dot(p)
		if t < lo {
			lo, loP = t, p
		}
		if t > hi {
			hi, hiP = t, p
		}
	}
	return lo, hi, loP, hiP
}

// coplanarCuts clips the edges of each triangle against the other.
func coplanarCuts(t fragment, nt v3.Vec, u fragment, nu v3.Vec, eps float64) (segT, segU []segment, ok bool) {
	for k := 0; k < 3; k++ {
		if s, hit := clip(u[k], u[(k+1)%3], t, nt, eps); hit {
			segT = append(segT, s)
		}
		if s, hit := clip(t[k], t[(k+1)%3], u, nu, eps); hit {
			segU = append(segU, s)
		}
	}
	return segT, segU, true
}

// clip returns the part of segment e0-e1 inside triangle f, which lies in
// the plane with normal n. Ends within eps outside an edge are accepted
// as they are.
func clip(e0, e1 v3.Vec, f fragment, n v3.Vec, eps float64) (segment, bool) {
	t0, t1 := 0.0, 1.0
	for k := 0; k < 3; k++ {
		a, b := f[k], f[(k+1)%3]
		m := n.Cross(b.Sub(a))
		l := m.Length()
		if l == 0 {
			return segment{}, false
		}
		m = m.DivScalar(l)
		g0 := m.Dot(e0.Sub(a))
		g1 := m.Dot(e1.Sub(a))
		switch {
		case g0 < -eps && g1 < -eps:
			return segment{}, false
		case g0 < -eps:
			t0 = math.Max(t0, g0/(g0-g1))
		case g1 < -eps:
			t1 = math.Min(t1, g0/(g0-g1))
		}
	}
	if t0 >= t1 {
		return segment{}, false
	}
	d := e1.Sub(e0)
	p, q := e0.Add(d.MulScalar(t0)), e0.Add(d.MulScalar(t1))
	if q.Sub(p).Length() <= eps {
		return segment{}, false
	}
	return segment{p: p, q: q}, true
}

func lerp(a, b v3.Vec, t float64) v3.Vec {
	return a.Add(b.Sub(a).MulScalar(t))
}
