package mesh

import (
	"sort"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Edge is an undirected mesh edge with A < B.
type Edge struct {
	A, B int
}

func makeEdge(a, b int) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{A: a, B: b}
}

// EdgeUse counts how many triangles use each undirected edge.
func (m *Mesh) EdgeUse() map[Edge]int {
	use := make(map[Edge]int, len(m.Triangles)*3/2)
	for _, t := range m.Triangles {
		use[makeEdge(t.V[0], t.V[1])]++
		use[makeEdge(t.V[1], t.V[2])]++
		use[makeEdge(t.V[2], t.V[0])]++
	}
	return use
}

// IsManifold reports whether no edge is shared by more than two triangles.
func (m *Mesh) IsManifold() bool {
	for _, n := range m.EdgeUse() {
		if n > 2 {
			return false
		}
	}
	return true
}

// IsClosed reports whether every edge is shared by exactly two triangles.
func (m *Mesh) IsClosed() bool {
	if len(m.Triangles) == 0 {
		return false
	}
	for _, n := range m.EdgeUse() {
		if n != 2 {
			return false
		}
	}
	return true
}

// BoundaryEdges returns the edges used by exactly one triangle, sorted.
func (m *Mesh) BoundaryEdges() []Edge {
	var out []Edge
	for e, n := range m.EdgeUse() {
		if n == 1 {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// NonManifoldEdges counts edges not shared by exactly two triangles.
func (m *Mesh) NonManifoldEdges() int {
	bad := 0
	for _, n := range m.EdgeUse() {
		if n != 2 {
			bad++
		}
	}
	return bad
}

// Stats summarizes the geometry of a mesh.
type Stats struct {
	Volume        float64  `json:"volume"`
	SurfaceArea   float64  `json:"surface_area"`
	Bounds        sdf.Box3 `json:"bounds"`
	Centroid      v3.Vec   `json:"centroid"`
	VertexCount   int      `json:"vertex_count"`
	TriangleCount int      `json:"triangle_count"`
	Watertight    bool     `json:"watertight"`
}

// Analyze computes volume, surface area, bounds, center of mass and
// watertightness. Volume is the signed sum of origin tetrahedra, so it is
// positive for a closed outward-facing mesh.
func Analyze(m *Mesh) Stats {
	if m.IsEmpty() {
		return Stats{}
	}
	st := Stats{
		Bounds:        m.BoundingBox(),
		VertexCount:   len(m.Vertices),
		TriangleCount: len(m.Triangles),
		Watertight:    m.IsClosed(),
	}
	var weighted, areaWeighted v3.Vec
	for i, t := range m.Triangles {
		if !m.inBounds(t.V) {
			continue
		}
		a, b, c := m.Corners(i)
		vol := a.Dot(b.Cross(c)) / 6
		area := Area(a, b, c)
		center := a.Add(b).Add(c)
		st.Volume += vol
		st.SurfaceArea += area
		// tetrahedron (0, a, b, c) has its centroid at (a+b+c)/4
		weighted = weighted.Add(center.MulScalar(vol / 4))
		areaWeighted = areaWeighted.Add(center.MulScalar(area / 3))
	}
	switch {
	case st.Volume > DefaultEpsilon || st.Volume < -DefaultEpsilon:
		st.Centroid = weighted.DivScalar(st.Volume)
	case st.SurfaceArea > 0:
		st.Centroid = areaWeighted.DivScalar(st.SurfaceArea)
	}
	return st
}
