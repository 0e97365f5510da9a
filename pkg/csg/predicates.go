package csg

import (
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// fragment is a triangle given by its corner positions, wound like the
// triangle it was cut from.
type fragment [3]v3.Vec

func (f fragment) centroid() v3.Vec {
	return f[0].Add(f[1]).Add(f[2]).DivScalar(3)
}

func (f fragment) area() float64 {
	return f[1].Sub(f[0]).Cross(f[2].Sub(f[0])).Length() / 2
}

func (f fragment) bounds() sdf.Box3 {
	return sdf.Box3{Min: f[0].Min(f[1]).Min(f[2]), Max: f[0].Max(f[1]).Max(f[2])}
}

// plane is n·x = w with a unit normal.
type plane struct {
	n v3.Vec
	w float64
}

func planeOf(f fragment) (plane, bool) {
	n := f[1].Sub(f[0]).Cross(f[2].Sub(f[0]))
	l := n.Length()
	if l == 0 || math.IsNaN(l) {
		return plane{}, false
	}
	n = n.DivScalar(l)
	return plane{n: n, w: n.Dot(f[0])}, true
}

func (p plane) dist(x v3.Vec) float64 {
	return p.n.Dot(x) - p.w
}

// sign classifies a signed distance with an epsilon band around zero.
func sign(d, eps float64) int {
	switch {
	case d > eps:
		return 1
	case d < -eps:
		return -1
	default:
		return 0
	}
}

// overlaps reports whether two boxes intersect when grown by eps.
func overlaps(a, b sdf.Box3, eps float64) bool {
	return a.Min.X <= b.Max.X+eps && b.Min.X <= a.Max.X+eps &&
		a.Min.Y <= b.Max.Y+eps && b.Min.Y <= a.Max.Y+eps &&
		a.Min.Z <= b.Max.Z+eps && b.Min.Z <= a.Max.Z+eps
}

func pad(bb sdf.Box3, eps float64) sdf.Box3 {
	e := v3.Vec{X: eps, Y: eps, Z: eps}
	return sdf.Box3{Min: bb.Min.Sub(e), Max: bb.Max.Add(e)}
}

func contains(bb sdf.Box3, p v3.Vec) bool {
	return p.X >= bb.Min.X && p.X <= bb.Max.X &&
		p.Y >= bb.Min.Y && p.Y <= bb.Max.Y &&
		p.Z >= bb.Min.Z && p.Z <= bb.Max.Z
}

// edgeDistances returns, for each edge of f, the distance of p from the
// edge line measured inside the plane with normal n. Positive values lie
// on the interior side.
func edgeDistances(f fragment, n, p v3.Vec) [3]float64 {
	var d [3]float64
	for k := 0; k < 3; k++ {
		a, b := f[k], f[(k+1)%3]
		m := n.Cross(b.Sub(a))
		l := m.Length()
		if l == 0 {
			d[k] = math.Inf(-1)
			continue
		}
		d[k] = m.Dot(p.Sub(a)) / l
	}
	return d
}

// closestPoint returns the point of triangle (a, b, c) nearest to p.
func closestPoint(p, a, b, c v3.Vec) v3.Vec {
	ab, ac, ap := b.Sub(a), c.Sub(a), p.Sub(a)
	d1, d2 := ab.Dot(ap), ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return a
	}
	bp := p.Sub(b)
	d3, d4 := ab.Dot(bp), ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return b
	}
	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		return a.Add(ab.MulScalar(d1 / (d1 - d3)))
	}
	cp := p.Sub(c)
	d5, d6 := ab.Dot(cp), ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return c
	}
	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		return a.Add(ac.MulScalar(d2 / (d2 - d6)))
	}
	va := d3*d6 - d5*d4
	if va <= 0 && d4-d3 >= 0 && d5-d6 >= 0 {
		return b.Add(c.Sub(b).MulScalar((d4 - d3) / ((d4 - d3) + (d5 - d6))))
	}
	denom := va + vb + vc
	if denom == 0 {
		return a
	}
	v, w := vb/denom, vc/denom
	return a.Add(ab.MulScalar(v)).Add(ac.MulScalar(w))
}

// solidAngle returns the signed solid angle subtended at p by the
// triangle (a, b, c); it is positive when p sees the triangle's back.
func solidAngle(p, a, b, c v3.Vec) float64 {
	ra, rb, rc := a.Sub(p), b.Sub(p), c.Sub(p)
	la, lb, lc := ra.Length(), rb.Length(), rc.Length()
	num := ra.Dot(rb.Cross(rc))
	den := la*lb*lc + ra.Dot(rb)*lc + rb.Dot(rc)*la + rc.Dot(ra)*lb
	return 2 * math.Atan2(num, den)
}
