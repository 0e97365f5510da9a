// Package graph defines the scene graph for kerf.
// A scene is an immutable tree of primitives, transforms, booleans and
// groups. Nodes may carry an identity; identified nodes are the unit of
// caching, and the DependencyGraph over their identities drives
// incremental invalidation.
package graph
