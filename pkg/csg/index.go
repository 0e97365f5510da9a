package csg

import (
	"fmt"
	"sort"

	"github.com/deadsy/sdfx/sdf"
	"github.com/dhconnelly/rtreego"
)

// R-tree node fan-out.
const (
	rtreeMinChildren = 4
	rtreeMaxChildren = 16
)

// indexed is one triangle's padded bounds stored in the R-tree.
type indexed struct {
	tri  int
	rect rtreego.Rect
}

func (t *indexed) Bounds() rtreego.Rect { return t.rect }

// index is a bounding-volume tree over triangle bounds.
type index struct {
	tree *rtreego.Rtree
	eps  float64
}

func toRect(bb sdf.Box3) (rtreego.Rect, error) {
	return rtreego.NewRectFromPoints(
		rtreego.Point{bb.Min.X, bb.Min.Y, bb.Min.Z},
		rtreego.Point{bb.Max.X, bb.Max.Y, bb.Max.Z},
	)
}

// newIndex indexes boxes[i] for every i with ok[i] set. Boxes are padded
// by eps so that flat triangles get a non-empty volume.
func newIndex(boxes []sdf.Box3, ok []bool, eps float64) (*index, error) {
	ix := &index{tree: rtreego.NewTree(3, rtreeMinChildren, rtreeMaxChildren), eps: eps}
	for i, bb := range boxes {
		if !ok[i] {
			continue
		}
		r, err := toRect(pad(bb, eps))
		if err != nil {
			return nil, fmt.Errorf("csg: index triangle %d: %w", i, err)
		}
		ix.tree.Insert(&indexed{tri: i, rect: r})
	}
	return ix, nil
}

// query returns the indices of triangles whose padded bounds meet bb, in
// ascending order.
func (ix *index) query(bb sdf.Box3) []int {
	r, err := toRect(pad(bb, ix.eps))
	if err != nil {
		return nil
	}
	hits := ix.tree.SearchIntersect(r)
	out := make([]int, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(*indexed).tri)
	}
	sort.Ints(out)
	return out
}
