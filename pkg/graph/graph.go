package graph

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnknownNodeID is returned when an identity is not in the graph.
	ErrUnknownNodeID = errors.New("unknown node id")
	// ErrDuplicateNodeID is returned when two distinct nodes share an
	// identity.
	ErrDuplicateNodeID = errors.New("duplicate node id")
	// ErrCycle is returned when a node is its own descendant.
	ErrCycle = errors.New("cycle in scene graph")
)

// DependencyGraph records which identified nodes contain which. Anonymous
// nodes are transparent: an identified node's parents are its nearest
// identified ancestors. It is built once per scene and never mutated.
type DependencyGraph struct {
	nodes    map[NodeID]*Node
	children map[NodeID][]NodeID
	parents  map[NodeID][]NodeID
	roots    []NodeID
}

// Build walks the tree under root and indexes every identified node.
func Build(root *Node) (*DependencyGraph, error) {
	g := &DependencyGraph{
		nodes:    make(map[NodeID]*Node),
		children: make(map[NodeID][]NodeID),
		parents:  make(map[NodeID][]NodeID),
	}
	if root == nil {
		return nil, fmt.Errorf("graph: nil root")
	}

	type visit struct {
		n   *Node
		anc NodeID
	}
	seen := make(map[visit]bool)
	onPath := make(map[*Node]bool)

	var walk func(n *Node, anc NodeID) error
	walk = func(n *Node, anc NodeID) error {
		if n == nil {
			return fmt.Errorf("graph: nil child below %q", anc)
		}
		if onPath[n] {
			return fmt.Errorf("graph: %w at %s", ErrCycle, n.Label())
		}
		key := visit{n, anc}
		if seen[key] {
			return nil
		}
		seen[key] = true

		next := anc
		if !n.ID.IsZero() {
			if prev, ok := g.nodes[n.ID]; ok && prev != n {
				return fmt.Errorf("graph: %w: %q", ErrDuplicateNodeID, string(n.ID))
			}
			g.nodes[n.ID] = n
			if anc.IsZero() {
				g.roots = appendUnique(g.roots, n.ID)
			} else {
				g.children[anc] = appendUnique(g.children[anc], n.ID)
				g.parents[n.ID] = appendUnique(g.parents[n.ID], anc)
			}
			next = n.ID
		}

		onPath[n] = true
		for _, c := range n.Children {
			if err := walk(c, next); err != nil {
				return err
			}
		}
		delete(onPath, n)
		return nil
	}

	if err := walk(root, ""); err != nil {
		return nil, err
	}
	return g, nil
}

func appendUnique(ids []NodeID, id NodeID) []NodeID {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}

// Len returns the number of identified nodes.
func (g *DependencyGraph) Len() int {
	return len(g.nodes)
}

// Contains reports whether id names a node of the graph.
func (g *DependencyGraph) Contains(id NodeID) bool {
	_, ok := g.nodes[id]
	return ok
}

// Get returns the node with the given identity, or nil.
func (g *DependencyGraph) Get(id NodeID) *Node {
	return g.nodes[id]
}

// IDs returns every identity in sorted order.
func (g *DependencyGraph) IDs() []NodeID {
	ids := make([]NodeID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// Roots returns the identified nodes without identified ancestors, in
// traversal order.
func (g *DependencyGraph) Roots() []NodeID {
	return append([]NodeID(nil), g.roots...)
}

// Children returns the nearest identified descendants of id, in
// traversal order.
func (g *DependencyGraph) Children(id NodeID) []NodeID {
	return append([]NodeID(nil), g.children[id]...)
}

// Parents returns the nearest identified ancestors of id.
func (g *DependencyGraph) Parents(id NodeID) []NodeID {
	return append([]NodeID(nil), g.parents[id]...)
}

// Descendants returns every identified node below id, sorted. Unknown
// identities have none.
func (g *DependencyGraph) Descendants(id NodeID) []NodeID {
	return g.closure(id, g.children)
}

// Ancestors returns every identified node above id, sorted.
func (g *DependencyGraph) Ancestors(id NodeID) []NodeID {
	return g.closure(id, g.parents)
}

// Affected returns id together with its ancestors and descendants,
// sorted: the identities whose cached meshes a change at id
// invalidates.
func (g *DependencyGraph) Affected(id NodeID) []NodeID {
	if !g.Contains(id) {
		return nil
	}
	set := map[NodeID]bool{id: true}
	for _, x := range g.Ancestors(id) {
		set[x] = true
	}
	for _, x := range g.Descendants(id) {
		set[x] = true
	}
	out := make([]NodeID, 0, len(set))
	for x := range set {
		out = append(out, x)
	}
	sortIDs(out)
	return out
}

func (g *DependencyGraph) closure(id NodeID, edges map[NodeID][]NodeID) []NodeID {
	seen := make(map[NodeID]bool)
	queue := append([]NodeID(nil), edges[id]...)
	for len(queue) > 0 {
		x := queue[0]
		queue = queue[1:]
		if seen[x] {
			continue
		}
		seen[x] = true
		queue = append(queue, edges[x]...)
	}
	out := make([]NodeID, 0, len(seen))
	for x := range seen {
		out = append(out, x)
	}
	sortIDs(out)
	return out
}

func sortIDs(ids []NodeID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// Replace returns a copy of the tree under root in which the node
// identified by id is replaced by repl. Only the nodes on the path to id
// are copied; untouched subtrees are shared with root. repl takes over
// the identity id; it must be anonymous or already carry id.
func Replace(root *Node, id NodeID, repl *Node) (*Node, error) {
	if repl == nil {
		return nil, fmt.Errorf("graph: nil replacement for %q", string(id))
	}
	if !repl.ID.IsZero() && repl.ID != id {
		return nil, fmt.Errorf("graph: replacement for %q carries identity %q", string(id), string(repl.ID))
	}
	if repl.ID.IsZero() {
		c := *repl
		c.ID = id
		repl = &c
	}

	found := false
	memo := make(map[*Node]*Node)
	var rebuild func(n *Node) *Node
	rebuild = func(n *Node) *Node {
		if n == nil {
			return nil
		}
		if out, ok := memo[n]; ok {
			return out
		}
		if !id.IsZero() && n.ID == id {
			found = true
			memo[n] = repl
			return repl
		}
		memo[n] = n
		var kids []*Node
		for i, c := range n.Children {
			nc := rebuild(c)
			if nc == c {
				continue
			}
			if kids == nil {
				kids = append([]*Node(nil), n.Children...)
			}
			kids[i] = nc
		}
		if kids == nil {
			return n
		}
		cp := *n
		cp.Children = kids
		memo[n] = &cp
		return &cp
	}

	out := rebuild(root)
	if !found {
		return nil, fmt.Errorf("graph: %w: %q", ErrUnknownNodeID, string(id))
	}
	return out, nil
}
