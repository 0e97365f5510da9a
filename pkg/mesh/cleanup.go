package mesh

import (
	"math"
	"sort"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// CleanupStats counts what each cleanup pass removed.
type CleanupStats struct {
	WeldedVertices      int
	DuplicateTriangles  int
	DegenerateTriangles int
	OrphanedVertices    int
}

// Cleanup runs the full cleanup pipeline in order: vertex welding,
// triangle deduplication, zero-area removal, orphan removal and normal
// recomputation.
func (m *Mesh) Cleanup(eps float64) CleanupStats {
	var st CleanupStats
	st.WeldedVertices = m.Weld(eps)
	st.DuplicateTriangles, st.DegenerateTriangles = m.RemoveDuplicateTriangles()
	st.DegenerateTriangles += m.RemoveZeroAreaTriangles(eps)
	st.OrphanedVertices = m.RemoveOrphanedVertices()
	m.RecomputeNormals()
	return st
}

type cell struct{ x, y, z int64 }

func cellOf(v v3.Vec, size float64) cell {
	return cell{
		x: int64(math.Floor(v.X / size)),
		y: int64(math.Floor(v.Y / size)),
		z: int64(math.Floor(v.Z / size)),
	}
}

// Weld merges vertices closer than eps. Vertices are visited in order;
// each one is compared against the representatives kept so far in the
// 27 buckets around it and maps onto the lowest-indexed representative
// within eps, or becomes a representative itself. Triangles are remapped
// and unreferenced vertices dropped. Weld returns the number of merged
// vertices. Welding an already welded mesh changes nothing.
func (m *Mesh) Weld(eps float64) int {
	if eps <= 0 || len(m.Vertices) == 0 {
		return 0
	}
	eps2 := eps * eps
	grid := make(map[cell][]int, len(m.Vertices))
	remap := make([]int, len(m.Vertices))
	reps := make([]int, 0, len(m.Vertices)) // representative -> original index
	merged := 0

	for i, v := range m.Vertices {
		c := cellOf(v, eps)
		found := -1
		for dx := int64(-1); dx <= 1; dx++ {
			for dy := int64(-1); dy <= 1; dy++ {
				for dz := int64(-1); dz <= 1; dz++ {
					for _, r := range grid[cell{c.x + dx, c.y + dy, c.z + dz}] {
						if m.Vertices[reps[r]].Sub(v).Length2() < eps2 && (found < 0 || r < found) {
							found = r
						}
					}
				}
			}
		}
		if found >= 0 {
			remap[i] = found
			merged++
			continue
		}
		remap[i] = len(reps)
		grid[c] = append(grid[c], len(reps))
		reps = append(reps, i)
	}

	if merged > 0 {
		verts := make([]v3.Vec, len(reps))
		for r, orig := range reps {
			verts[r] = m.Vertices[orig]
		}
		m.Vertices = verts
		for i := range m.Triangles {
			t := &m.Triangles[i]
			for j := 0; j < 3; j++ {
				if t.V[j] >= 0 && t.V[j] < len(remap) {
					t.V[j] = remap[t.V[j]]
				}
			}
		}
	}
	m.RemoveOrphanedVertices()
	return merged
}

// RemoveDuplicateTriangles drops triangles that repeat an index or point
// outside the vertex slice, and triangles whose indices match an earlier
// triangle in the same cyclic order. Triangles that only match under
// reversed winding are kept. It returns the number of duplicates and the
// number of degenerate triangles removed.
func (m *Mesh) RemoveDuplicateTriangles() (duplicates, degenerate int) {
	seen := make(map[[3]int]struct{}, len(m.Triangles))
	kept := m.Triangles[:0]
	for _, t := range m.Triangles {
		a, b, c := t.V[0], t.V[1], t.V[2]
		if !m.inBounds(t.V) || a == b || b == c || a == c {
			degenerate++
			continue
		}
		key := canonical(t.V)
		if _, dup := seen[key]; dup {
			duplicates++
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, t)
	}
	m.Triangles = kept
	return duplicates, degenerate
}

// RemoveZeroAreaTriangles drops triangles whose area is at most eps²,
// such as collinear triples left behind by welding. It returns the number
// removed.
func (m *Mesh) RemoveZeroAreaTriangles(eps float64) int {
	limit := eps * eps
	kept := m.Triangles[:0]
	removed := 0
	for _, t := range m.Triangles {
		if m.inBounds(t.V) {
			a, b, c := m.Vertices[t.V[0]], m.Vertices[t.V[1]], m.Vertices[t.V[2]]
			if Area(a, b, c) <= limit {
				removed++
				continue
			}
		}
		kept = append(kept, t)
	}
	m.Triangles = kept
	return removed
}

// SplitTJunctions closes cracks where a vertex lies inside an edge that
// only one triangle uses. Such a triangle is split at the vertex nearest
// the edge's start, repeatedly, until no open edge has a vertex inside
// it. Only the end points of open edges are considered, so a closed mesh
// is left unchanged. It returns the number of triangles split.
func (m *Mesh) SplitTJunctions(eps float64) int {
	eps2 := eps * eps
	total := 0
	for pass := 0; pass <= len(m.Vertices); pass++ {
		use := m.EdgeUse()
		var open []int
		seen := make(map[int]bool)
		for e, n := range use {
			if n != 1 {
				continue
			}
			for _, v := range [2]int{e.A, e.B} {
				if !seen[v] {
					seen[v] = true
					open = append(open, v)
				}
			}
		}
		if len(open) == 0 {
			break
		}
		sort.Ints(open)

		split := 0
		out := make([]Triangle, 0, len(m.Triangles)+len(open))
		for _, t := range m.Triangles {
			k, v := m.junction(t.V, use, open, eps2)
			if v < 0 {
				out = append(out, t)
				continue
			}
			a, b, c := t.V[k], t.V[(k+1)%3], t.V[(k+2)%3]
			out = append(out, Triangle{V: [3]int{a, v, c}}, Triangle{V: [3]int{v, b, c}})
			split++
		}
		m.Triangles = out
		total += split
		if split == 0 {
			break
		}
	}
	if total > 0 {
		m.RecomputeNormals()
	}
	return total
}

// junction finds the first open edge k of triangle t with a candidate
// vertex strictly inside it and returns the vertex closest to the edge's
// start, or -1.
func (m *Mesh) junction(t [3]int, use map[Edge]int, candidates []int, eps2 float64) (int, int) {
	if !m.inBounds(t) {
		return 0, -1
	}
	for k := 0; k < 3; k++ {
		a, b := t[k], t[(k+1)%3]
		if use[makeEdge(a, b)] != 1 {
			continue
		}
		pa, pb := m.Vertices[a], m.Vertices[b]
		ab := pb.Sub(pa)
		l2 := ab.Length2()
		if l2 == 0 {
			continue
		}
		best, bestT := -1, 1.0
		for _, v := range candidates {
			if v == a || v == b {
				continue
			}
			p := m.Vertices[v]
			s := p.Sub(pa).Dot(ab) / l2
			if s <= 0 || s >= bestT {
				continue
			}
			if p.Sub(pa).Length2() <= eps2 || p.Sub(pb).Length2() <= eps2 {
				continue
			}
			if p.Sub(pa.Add(ab.MulScalar(s))).Length2() > eps2 {
				continue
			}
			best, bestT = v, s
		}
		if best >= 0 {
			return k, best
		}
	}
	return 0, -1
}

// canonical rotates an index triple so that its smallest index comes
// first, preserving the cyclic order.
func canonical(v [3]int) [3]int {
	switch {
	case v[1] < v[0] && v[1] < v[2]:
		return [3]int{v[1], v[2], v[0]}
	case v[2] < v[0] && v[2] < v[1]:
		return [3]int{v[2], v[0], v[1]}
	default:
		return v
	}
}

// RemoveOrphanedVertices drops vertices no triangle references and
// compacts the indices, keeping the relative vertex order. It returns the
// number of vertices removed.
func (m *Mesh) RemoveOrphanedVertices() int {
	used := make([]bool, len(m.Vertices))
	for _, t := range m.Triangles {
		for _, i := range t.V {
			if i >= 0 && i < len(used) {
				used[i] = true
			}
		}
	}
	remap := make([]int, len(m.Vertices))
	verts := m.Vertices[:0]
	for i, v := range m.Vertices {
		if !used[i] {
			remap[i] = -1
			continue
		}
		remap[i] = len(verts)
		verts = append(verts, v)
	}
	removed := len(m.Vertices) - len(verts)
	if removed == 0 {
		return 0
	}
	m.Vertices = verts
	for i := range m.Triangles {
		t := &m.Triangles[i]
		for j := 0; j < 3; j++ {
			if t.V[j] >= 0 && t.V[j] < len(remap) {
				t.V[j] = remap[t.V[j]]
			}
		}
	}
	return removed
}
