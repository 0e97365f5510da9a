package graph

import (
	"math"

	"github.com/chazu/kerf/pkg/csg"
	"github.com/chazu/kerf/pkg/primitive"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ---------------------------------------------------------------------------
// Primitive
// ---------------------------------------------------------------------------

// PrimitiveData holds a parametric solid. Primitive nodes have no
// children.
type PrimitiveData struct {
	Shape primitive.Shape `json:"shape"`
}

func (PrimitiveData) nodeData() {}

// NewPrimitive returns a primitive node.
func NewPrimitive(id NodeID, s primitive.Shape) *Node {
	return &Node{ID: id, Data: PrimitiveData{Shape: s}}
}

// ---------------------------------------------------------------------------
// Transform
// ---------------------------------------------------------------------------

// TransformData applies an affine matrix to its single child.
type TransformData struct {
	Matrix sdf.M44 `json:"-"`
}

func (TransformData) nodeData() {}

// NewTransform returns a transform node over child.
func NewTransform(id NodeID, m sdf.M44, child *Node) *Node {
	return &Node{ID: id, Data: TransformData{Matrix: m}, Children: []*Node{child}}
}

// Translate moves child by v.
func Translate(id NodeID, v v3.Vec, child *Node) *Node {
	return NewTransform(id, sdf.Translate3d(v), child)
}

// Rotate rotates child by Euler angles in degrees, about X first, then
// Y, then Z.
func Rotate(id NodeID, deg v3.Vec, child *Node) *Node {
	m := sdf.RotateZ(sdf.DtoR(deg.Z)).Mul(sdf.RotateY(sdf.DtoR(deg.Y))).Mul(sdf.RotateX(sdf.DtoR(deg.X)))
	return NewTransform(id, m, child)
}

// Scale scales child by v about the origin.
func Scale(id NodeID, v v3.Vec, child *Node) *Node {
	return NewTransform(id, sdf.Scale3d(v), child)
}

// Mirror reflects child in the plane through the origin with the given
// normal. A zero normal leaves the child unchanged.
func Mirror(id NodeID, normal v3.Vec, child *Node) *Node {
	return NewTransform(id, mirrorMatrix(normal), child)
}

// mirrorMatrix conjugates the XY mirror with a rotation taking +Z onto
// the normal.
func mirrorMatrix(normal v3.Vec) sdf.M44 {
	l := normal.Length()
	if l == 0 || math.IsNaN(l) {
		return sdf.Identity3d()
	}
	n := normal.DivScalar(l)
	z := v3.Vec{Z: 1}
	axis := z.Cross(n)
	if axis.Length() < 1e-12 {
		return sdf.MirrorXY()
	}
	angle := math.Acos(math.Max(-1, math.Min(1, z.Dot(n))))
	return sdf.Rotate3d(axis, angle).Mul(sdf.MirrorXY()).Mul(sdf.Rotate3d(axis, -angle))
}

// ---------------------------------------------------------------------------
// Boolean
// ---------------------------------------------------------------------------

// BooleanData combines its ordered children left to right with Op.
type BooleanData struct {
	Op csg.Op `json:"op"`
}

func (BooleanData) nodeData() {}

// NewBoolean returns a boolean node over children in order.
func NewBoolean(id NodeID, op csg.Op, children ...*Node) *Node {
	return &Node{ID: id, Data: BooleanData{Op: op}, Children: children}
}

// ---------------------------------------------------------------------------
// Group
// ---------------------------------------------------------------------------

// GroupData is an implicit union of its children.
type GroupData struct{}

func (GroupData) nodeData() {}

// NewGroup returns a group node over children in order.
func NewGroup(id NodeID, children ...*Node) *Node {
	return &Node{ID: id, Data: GroupData{}, Children: children}
}
