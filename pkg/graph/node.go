package graph

import "fmt"

// NodeID is the stable identity of a scene node. The empty NodeID marks
// an anonymous node, which is never cached on its own.
type NodeID string

// IsZero reports whether id is the anonymous identity.
func (id NodeID) IsZero() bool { return id == "" }

func (id NodeID) String() string { return string(id) }

// NodeKind enumerates the types of nodes in the scene graph.
type NodeKind int

const (
	NodeUnknown   NodeKind = iota - 1
	NodePrimitive          // parametric solid (cube, sphere, cylinder)
	NodeTransform          // affine transform of exactly one child
	NodeBoolean            // union, difference or intersection of children
	NodeGroup              // implicit union of children
)

func (k NodeKind) String() string {
	switch k {
	case NodePrimitive:
		return "primitive"
	case NodeTransform:
		return "transform"
	case NodeBoolean:
		return "boolean"
	case NodeGroup:
		return "group"
	default:
		return "unknown"
	}
}

// Node is the fundamental element of the scene graph. Nodes are treated
// as immutable once built; use Replace to derive an edited tree.
type Node struct {
	ID       NodeID   `json:"id,omitempty"`
	Data     NodeData `json:"data"`
	Children []*Node  `json:"children,omitempty"`
}

// NodeData is the interface for kind-specific node payloads.
type NodeData interface {
	nodeData() // marker method restricting implementations to this package
}

// Kind derives the node kind from its data variant.
func (n *Node) Kind() NodeKind {
	if n == nil {
		return NodeUnknown
	}
	switch n.Data.(type) {
	case PrimitiveData:
		return NodePrimitive
	case TransformData:
		return NodeTransform
	case BooleanData:
		return NodeBoolean
	case GroupData:
		return NodeGroup
	default:
		return NodeUnknown
	}
}

// Label returns the node identity, or its kind for anonymous nodes.
func (n *Node) Label() string {
	if n == nil {
		return "<nil>"
	}
	if !n.ID.IsZero() {
		return fmt.Sprintf("%s %q", n.Kind(), string(n.ID))
	}
	return n.Kind().String()
}

// Walk visits n and its descendants depth first, parents before
// children. Shared subtrees are visited once per occurrence. Walk stops
// at the first error fn returns.
func Walk(n *Node, fn func(*Node) error) error {
	if n == nil {
		return nil
	}
	if err := fn(n); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := Walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}
