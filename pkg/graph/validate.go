package graph

import (
	"errors"
	"fmt"

	"github.com/chazu/kerf/pkg/csg"
)

// ValidationSeverity indicates whether a validation finding blocks evaluation
// or is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // blocks evaluation
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding. Path locates
// the node by child indices from the root ("root/1/0").
type ValidationError struct {
	NodeID   NodeID
	Path     string
	Message  string
	Severity ValidationSeverity
	Err      error // sentinel for errors.Is, if any
}

func (e *ValidationError) Error() string {
	if e.NodeID.IsZero() {
		return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Path, e.Message)
	}
	return fmt.Sprintf("[%s] node %q (%s): %s", e.Severity, string(e.NodeID), e.Path, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Validate runs the structural checks on the tree under root and returns
// every finding. An empty slice means the scene is valid. Validate never
// mutates the tree.
func Validate(root *Node) []ValidationError {
	if root == nil {
		return []ValidationError{{Path: "root", Message: "scene has no root", Severity: SeverityError}}
	}
	v := &validator{
		color: make(map[*Node]int),
		owner: make(map[NodeID]*Node),
	}
	v.visit(root, "root")
	return v.errs
}

// Check validates root and returns the first blocking finding as a
// *ValidationError, or nil.
func Check(root *Node) error {
	for _, e := range Validate(root) {
		if e.Severity == SeverityError {
			return &e
		}
	}
	return nil
}

// IsValidationError reports whether err carries a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

type validator struct {
	color map[*Node]int
	owner map[NodeID]*Node
	errs  []ValidationError
}

func (v *validator) report(n *Node, path string, sev ValidationSeverity, sentinel error, format string, args ...any) {
	e := ValidationError{Path: path, Message: fmt.Sprintf(format, args...), Severity: sev, Err: sentinel}
	if n != nil {
		e.NodeID = n.ID
	}
	v.errs = append(v.errs, e)
}

// visit walks the tree with 3-color marking. White (0) = unvisited,
// gray (1) = on the current path, black (2) = fully explored. A gray
// node reached again closes a cycle.
func (v *validator) visit(n *Node, path string) {
	const (
		white = iota
		gray
		black
	)
	switch v.color[n] {
	case black:
		return
	case gray:
		v.report(n, path, SeverityError, ErrCycle, "node is its own descendant")
		return
	}
	v.color[n] = gray

	if !n.ID.IsZero() {
		if prev, ok := v.owner[n.ID]; ok && prev != n {
			v.report(n, path, SeverityError, ErrDuplicateNodeID, "identity already used by another node")
		}
		v.owner[n.ID] = n
	}
	v.checkData(n, path)

	for i, c := range n.Children {
		cp := fmt.Sprintf("%s/%d", path, i)
		if c == nil {
			v.report(n, cp, SeverityError, nil, "nil child")
			continue
		}
		v.visit(c, cp)
	}
	v.color[n] = black
}

func (v *validator) checkData(n *Node, path string) {
	switch d := n.Data.(type) {
	case PrimitiveData:
		if d.Shape == nil {
			v.report(n, path, SeverityError, nil, "primitive has no shape")
		}
		if len(n.Children) > 0 {
			v.report(n, path, SeverityError, nil, "primitive has %d children", len(n.Children))
		}
	case TransformData:
		if len(n.Children) != 1 {
			v.report(n, path, SeverityError, nil, "transform needs exactly one child, has %d", len(n.Children))
		}
	case BooleanData:
		switch d.Op {
		case csg.Union, csg.Difference, csg.Intersection:
		default:
			v.report(n, path, SeverityError, nil, "unsupported operator %v", d.Op)
		}
		switch len(n.Children) {
		case 0:
			v.report(n, path, SeverityError, nil, "%s has no operands", d.Op)
		case 1:
			v.report(n, path, SeverityWarning, nil, "%s has a single operand", d.Op)
		}
	case GroupData:
		if len(n.Children) == 0 {
			v.report(n, path, SeverityWarning, nil, "empty group")
		}
	case nil:
		v.report(n, path, SeverityError, nil, "node has no data")
	default:
		v.report(n, path, SeverityError, nil, "unsupported node data %T", n.Data)
	}
}
