package graph

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"golang.org/x/crypto/blake2b"
)

// Version is a Merkle digest of a node's definition and its children's
// versions. Identical subtrees have identical versions; a change
// anywhere in a subtree changes the version of its root and of every
// ancestor. Identities do not contribute.
type Version [blake2b.Size256]byte

func (v Version) String() string { return hex.EncodeToString(v[:]) }

// Short returns the first 6 bytes as hex, for logs.
func (v Version) Short() string { return hex.EncodeToString(v[:6]) }

// IsZero reports whether v is the zero value.
func (v Version) IsZero() bool { return v == Version{} }

// Versions computes the version of root and of every node below it,
// keyed by node. Shared subtrees are hashed once.
func Versions(root *Node) (map[*Node]Version, error) {
	out := make(map[*Node]Version)
	onPath := make(map[*Node]bool)
	var visit func(n *Node) (Version, error)
	visit = func(n *Node) (Version, error) {
		if n == nil {
			return Version{}, fmt.Errorf("graph: nil node")
		}
		if v, ok := out[n]; ok {
			return v, nil
		}
		if onPath[n] {
			return Version{}, fmt.Errorf("graph: %w at %s", ErrCycle, n.Label())
		}
		onPath[n] = true
		kids := make([]Version, len(n.Children))
		for i, c := range n.Children {
			v, err := visit(c)
			if err != nil {
				return Version{}, err
			}
			kids[i] = v
		}
		delete(onPath, n)
		v, err := digest(n, kids)
		if err != nil {
			return Version{}, err
		}
		out[n] = v
		return v, nil
	}
	if _, err := visit(root); err != nil {
		return nil, err
	}
	return out, nil
}

// VersionOf returns the version of a single node.
func VersionOf(n *Node) (Version, error) {
	vs, err := Versions(n)
	if err != nil {
		return Version{}, err
	}
	return vs[n], nil
}

func digest(n *Node, kids []Version) (Version, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return Version{}, err
	}
	switch d := n.Data.(type) {
	case PrimitiveData:
		if d.Shape == nil {
			return Version{}, fmt.Errorf("graph: %s has no shape", n.Label())
		}
		fmt.Fprintf(h, "primitive\x00%s\x00%#v", d.Shape.Name(), d.Shape)
	case TransformData:
		h.Write([]byte("transform\x00"))
		writeMatrix(h, d.Matrix)
	case BooleanData:
		fmt.Fprintf(h, "boolean\x00%d", int(d.Op))
	case GroupData:
		h.Write([]byte("group\x00"))
	default:
		return Version{}, fmt.Errorf("graph: %s: unsupported node data %T", n.Label(), n.Data)
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(len(kids)))
	h.Write(buf[:])
	for _, k := range kids {
		h.Write(k[:])
	}
	var v Version
	copy(v[:], h.Sum(nil))
	return v, nil
}

// writeMatrix hashes the affine part of m through the images of the
// origin and the unit axes.
func writeMatrix(h hash.Hash, m sdf.M44) {
	var buf [8]byte
	for _, p := range []v3.Vec{{}, {X: 1}, {Y: 1}, {Z: 1}} {
		q := m.MulPosition(p)
		for _, f := range []float64{q.X, q.Y, q.Z} {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
			h.Write(buf[:])
		}
	}
}
