package csg

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// fragments returns the pieces of every usable triangle: the triangle
// itself when nothing cut it, otherwise its re-triangulation.
func (o *operand) fragments(eps float64, diag *Diagnostics) []fragment {
	out := make([]fragment, 0, len(o.tris))
	for i, t := range o.tris {
		if !o.ok[i] {
			continue
		}
		if len(o.cuts[i]) == 0 {
			out = append(out, t)
			continue
		}
		pieces := split(t, o.planes[i].n, o.cuts[i], eps)
		if len(pieces) > 1 {
			diag.SplitTriangles++
		}
		for _, p := range pieces {
			if p.area() <= eps*eps {
				diag.DegenerateTriangles++
				continue
			}
			out = append(out, p)
		}
	}
	return out
}

// split re-triangulates t so that every cut segment runs along fragment
// edges. Segment end points are inserted as vertices first; afterwards a
// segment can only pass fully through a fragment, so cutting a crossed
// fragment along the segment's line never reaches past the segment.
func split(t fragment, n v3.Vec, cuts []segment, eps float64) []fragment {
	frags := []fragment{t}
	for _, s := range cuts {
		frags = insertPoint(frags, n, s.p, eps)
		frags = insertPoint(frags, n, s.q, eps)
	}
	for _, s := range cuts {
		frags = cutAlong(frags, n, s, eps)
	}
	return frags
}

// insertPoint makes p a vertex of the fragment set. A point inside a
// fragment splits it in three; a point on an edge splits both fragments
// sharing that edge in two. Points at existing vertices or outside every
// fragment leave the set unchanged.
func insertPoint(frags []fragment, n, p v3.Vec, eps float64) []fragment {
	eps2 := eps * eps
	for _, f := range frags {
		for _, v := range f {
			if v.Sub(p).Length2() <= eps2 {
				return frags
			}
		}
	}
	out := make([]fragment, 0, len(frags)+2)
	for _, f := range frags {
		d := edgeDistances(f, n, p)
		if d[0] < -eps || d[1] < -eps || d[2] < -eps {
			out = append(out, f)
			continue
		}
		edge, onEdges := -1, 0
		for k := range d {
			if d[k] <= eps {
				edge = k
				onEdges++
			}
		}
		switch onEdges {
		case 0:
			out = append(out,
				fragment{f[0], f[1], p},
				fragment{f[1], f[2], p},
				fragment{f[2], f[0], p},
			)
		case 1:
			k1, k2 := (edge+1)%3, (edge+2)%3
			out = append(out,
				fragment{f[edge], p, f[k2]},
				fragment{p, f[k1], f[k2]},
			)
		default:
			out = append(out, f)
		}
	}
	return out
}

// cutAlong splits every fragment the segment passes through along the
// segment's line.
func cutAlong(frags []fragment, n v3.Vec, s segment, eps float64) []fragment {
	dir := s.q.Sub(s.p)
	length := dir.Length()
	if length <= eps {
		return frags
	}
	u := dir.DivScalar(length)
	c := n.Cross(u)
	cl := c.Length()
	if cl < 1e-12 {
		return frags
	}
	c = c.DivScalar(cl)
	w := c.Dot(s.p)

	out := make([]fragment, 0, len(frags)+2)
	for _, f := range frags {
		var d [3]float64
		var sg [3]int
		pos, neg := false, false
		for k := 0; k < 3; k++ {
			d[k] = c.Dot(f[k]) - w
			sg[k] = sign(d[k], eps)
			pos = pos || sg[k] > 0
			neg = neg || sg[k] < 0
		}
		if !pos || !neg {
			out = append(out, f)
			continue
		}
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, x := range crossings(f, d, sg) {
			t := u.Dot(x.Sub(s.p))
			lo = math.Min(lo, t)
			hi = math.Max(hi, t)
		}
		if math.Min(hi, length)-math.Max(lo, 0) <= eps {
			out = append(out, f)
			continue
		}
		out = append(out, splitFragment(f, d, sg)...)
	}
	return out
}

// splitFragment cuts f along the plane whose signed corner distances are
// d. The pieces keep f's winding.
func splitFragment(f fragment, d [3]float64, sg [3]int) []fragment {
	for k := 0; k < 3; k++ {
		if sg[k] == 0 {
			k1, k2 := (k+1)%3, (k+2)%3
			x := lerp(f[k1], f[k2], d[k1]/(d[k1]-d[k2]))
			return []fragment{{f[k], f[k1], x}, {f[k], x, f[k2]}}
		}
	}
	for k := 0; k < 3; k++ {
		k1, k2 := (k+1)%3, (k+2)%3
		if sg[k] != sg[k1] && sg[k] != sg[k2] {
			x1 := lerp(f[k], f[k1], d[k]/(d[k]-d[k1]))
			x2 := lerp(f[k], f[k2], d[k]/(d[k]-d[k2]))
			return []fragment{{f[k], x1, x2}, {x1, f[k1], f[k2]}, {x1, f[k2], x2}}
		}
	}
	return []fragment{f}
}
