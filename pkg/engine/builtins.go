package engine

import (
	"fmt"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/kerf/pkg/csg"
	"github.com/chazu/kerf/pkg/graph"
	"github.com/chazu/kerf/pkg/primitive"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpNode wraps a scene node so it can be passed between builtins.
type sexpNode struct {
	node *graph.Node
}

func (n *sexpNode) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(node %s)", n.node.Label())
}
func (n *sexpNode) Type() *zygo.RegisteredType { return nil }

// sexpVec3 wraps a vector built with (vec3 x y z).
type sexpVec3 struct {
	vec v3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok || !strings.HasPrefix(str.S, kwPrefix) {
		return "", false
	}
	return str.S[len(kwPrefix):], true
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			continue
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i++
		} else {
			// trailing keyword with no value
			result.kw[name] = zygo.SexpNull
		}
	}
	return result
}

// number returns keyword name as a number, or def when absent.
func (a kwArgs) number(fn, name string, def float64) (float64, error) {
	v, ok := a.kw[name]
	if !ok {
		return def, nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %s: %w", fn, name, err)
	}
	return f, nil
}

func (a kwArgs) flag(fn, name string) (bool, error) {
	v, ok := a.kw[name]
	if !ok {
		return false, nil
	}
	b, err := toBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %s: %w", fn, name, err)
	}
	return b, nil
}

func (a kwArgs) id(fn string) (graph.NodeID, error) {
	v, ok := a.kw["id"]
	if !ok {
		return "", nil
	}
	s, err := toKeywordString(v)
	if err != nil {
		return "", fmt.Errorf("%s: id: %w", fn, err)
	}
	return graph.NodeID(s), nil
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

func toBool(s zygo.Sexp) (bool, error) {
	if b, ok := s.(*zygo.SexpBool); ok {
		return b.Val, nil
	}
	if s == zygo.SexpNull {
		// a bare trailing flag such as :center
		return true, nil
	}
	return false, fmt.Errorf("expected boolean, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
// Handles both preprocessed keywords (__kw_z) and plain strings ("z").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	return strings.TrimPrefix(str.S, kwPrefix), nil
}

// toVec3 accepts (vec3 x y z), [x y z] or (list x y z). With uniform set
// a single number n stands for (n n n).
func toVec3(s zygo.Sexp, uniform bool) (v3.Vec, error) {
	switch v := s.(type) {
	case *sexpVec3:
		return v.vec, nil
	case *zygo.SexpPair, *zygo.SexpArray:
		items, err := sexpListToSlice(v)
		if err != nil {
			return v3.Vec{}, err
		}
		return numbersToVec(items)
	}
	if !uniform {
		return v3.Vec{}, fmt.Errorf("expected vector, got %T (%s)", s, s.SexpString(nil))
	}
	f, err := toFloat64(s)
	if err != nil {
		return v3.Vec{}, err
	}
	return v3.Vec{X: f, Y: f, Z: f}, nil
}

func numbersToVec(items []zygo.Sexp) (v3.Vec, error) {
	if len(items) != 3 {
		return v3.Vec{}, fmt.Errorf("expected 3 components, got %d", len(items))
	}
	var c [3]float64
	for i, item := range items {
		f, err := toFloat64(item)
		if err != nil {
			return v3.Vec{}, fmt.Errorf("component %d: %w", i, err)
		}
		c[i] = f
	}
	return v3.Vec{X: c[0], Y: c[1], Z: c[2]}, nil
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// toNodes collects node arguments, flattening lists and arrays of nodes.
func toNodes(args []zygo.Sexp) ([]*graph.Node, error) {
	var nodes []*graph.Node
	for i, a := range args {
		if n, ok := a.(*sexpNode); ok {
			nodes = append(nodes, n.node)
			continue
		}
		items, err := sexpListToSlice(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: expected node, got %T (%s)", i, a, a.SexpString(nil))
		}
		inner, err := toNodes(items)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		nodes = append(nodes, inner...)
	}
	return nodes, nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// builder records the nodes built during one evaluation.
type builder struct {
	last *graph.Node
}

func (b *builder) emit(n *graph.Node) (zygo.Sexp, error) {
	b.last = n
	return &sexpNode{node: n}, nil
}

type builtin func(b *builder, args kwArgs) (zygo.Sexp, error)

// registerBuiltins installs the scene builtins into a zygomys environment.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, b *builder) {
	fns := map[string]builtin{
		"vec3":         vec3Builtin,
		"cube":         cubeBuiltin,
		"sphere":       sphereBuiltin,
		"cylinder":     cylinderBuiltin,
		"translate":    transformBuiltin("translate", false, graph.Translate),
		"rotate":       transformBuiltin("rotate", false, graph.Rotate),
		"scale":        transformBuiltin("scale", true, graph.Scale),
		"mirror":       transformBuiltin("mirror", false, graph.Mirror),
		"union":        booleanBuiltin(csg.Union),
		"difference":   booleanBuiltin(csg.Difference),
		"intersection": booleanBuiltin(csg.Intersection),
		"group":        groupBuiltin,
	}
	for name, fn := range fns {
		env.AddFunction(name, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			return fn(b, parseArgs(args))
		})
	}
}

// (vec3 1 2 3)
func vec3Builtin(_ *builder, a kwArgs) (zygo.Sexp, error) {
	v, err := numbersToVec(a.positional)
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("vec3: %w", err)
	}
	return &sexpVec3{vec: v}, nil
}

// (cube 10), (cube 10 20 30), (cube (vec3 10 20 30) :center true :id "base")
func cubeBuiltin(b *builder, a kwArgs) (zygo.Sexp, error) {
	var (
		size v3.Vec
		err  error
	)
	switch {
	case len(a.positional) == 3:
		size, err = numbersToVec(a.positional)
	case len(a.positional) == 1:
		size, err = toVec3(a.positional[0], true)
	case a.kw["size"] != nil:
		size, err = toVec3(a.kw["size"], true)
	default:
		err = fmt.Errorf("expected a size, got %d arguments", len(a.positional))
	}
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("cube: size: %w", err)
	}
	center, err := a.flag("cube", "center")
	if err != nil {
		return zygo.SexpNull, err
	}
	id, err := a.id("cube")
	if err != nil {
		return zygo.SexpNull, err
	}
	return b.emit(graph.NewPrimitive(id, primitive.Cube{Size: size, Center: center}))
}

// (sphere 5 :segments 24 :id "ball")
func sphereBuiltin(b *builder, a kwArgs) (zygo.Sexp, error) {
	r, err := a.number("sphere", "r", 0)
	if err != nil {
		return zygo.SexpNull, err
	}
	if len(a.positional) > 0 {
		if r, err = toFloat64(a.positional[0]); err != nil {
			return zygo.SexpNull, fmt.Errorf("sphere: radius: %w", err)
		}
	}
	segs, err := a.number("sphere", "segments", 0)
	if err != nil {
		return zygo.SexpNull, err
	}
	id, err := a.id("sphere")
	if err != nil {
		return zygo.SexpNull, err
	}
	return b.emit(graph.NewPrimitive(id, primitive.Sphere{Radius: r, Segments: int(segs)}))
}

// (cylinder 10 2), (cylinder :h 10 :r1 3 :r2 1 :segments 16 :center true)
func cylinderBuiltin(b *builder, a kwArgs) (zygo.Sexp, error) {
	pos := make([]float64, len(a.positional))
	for i, p := range a.positional {
		f, err := toFloat64(p)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: argument %d: %w", i, err)
		}
		pos[i] = f
	}
	// positional order follows (cylinder h r1 r2)
	at := func(i int) float64 {
		if i < len(pos) {
			return pos[i]
		}
		return 0
	}
	h, err := a.number("cylinder", "h", at(0))
	if err != nil {
		return zygo.SexpNull, err
	}
	r, err := a.number("cylinder", "r", at(1))
	if err != nil {
		return zygo.SexpNull, err
	}
	r1, err := a.number("cylinder", "r1", r)
	if err != nil {
		return zygo.SexpNull, err
	}
	r2def := r
	if len(pos) > 2 {
		r2def = pos[2]
	}
	r2, err := a.number("cylinder", "r2", r2def)
	if err != nil {
		return zygo.SexpNull, err
	}
	segs, err := a.number("cylinder", "segments", 0)
	if err != nil {
		return zygo.SexpNull, err
	}
	center, err := a.flag("cylinder", "center")
	if err != nil {
		return zygo.SexpNull, err
	}
	id, err := a.id("cylinder")
	if err != nil {
		return zygo.SexpNull, err
	}
	return b.emit(graph.NewPrimitive(id, primitive.Cylinder{
		Height: h, R1: r1, R2: r2, Segments: int(segs), Center: center,
	}))
}

// (translate (vec3 1 2 3) child), (translate 1 2 3 child), (scale 2 child)
func transformBuiltin(fn string, uniform bool, build func(graph.NodeID, v3.Vec, *graph.Node) *graph.Node) builtin {
	return func(b *builder, a kwArgs) (zygo.Sexp, error) {
		var vecArgs []zygo.Sexp
		var child *graph.Node
		for _, p := range a.positional {
			if n, ok := p.(*sexpNode); ok {
				if child != nil {
					return zygo.SexpNull, fmt.Errorf("%s: expected exactly one child node", fn)
				}
				child = n.node
				continue
			}
			vecArgs = append(vecArgs, p)
		}
		if child == nil {
			return zygo.SexpNull, fmt.Errorf("%s: missing child node", fn)
		}

		var (
			v   v3.Vec
			err error
		)
		switch len(vecArgs) {
		case 1:
			v, err = toVec3(vecArgs[0], uniform)
		case 3:
			v, err = numbersToVec(vecArgs)
		default:
			err = fmt.Errorf("expected a vector, got %d values", len(vecArgs))
		}
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
		}
		id, err := a.id(fn)
		if err != nil {
			return zygo.SexpNull, err
		}
		return b.emit(build(id, v, child))
	}
}

// (difference base hole1 hole2 :id "plate")
func booleanBuiltin(op csg.Op) builtin {
	fn := op.String()
	return func(b *builder, a kwArgs) (zygo.Sexp, error) {
		nodes, err := toNodes(a.positional)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
		}
		if len(nodes) == 0 {
			return zygo.SexpNull, fmt.Errorf("%s: requires at least one operand", fn)
		}
		id, err := a.id(fn)
		if err != nil {
			return zygo.SexpNull, err
		}
		return b.emit(graph.NewBoolean(id, op, nodes...))
	}
}

// (group a b c :id "parts")
func groupBuiltin(b *builder, a kwArgs) (zygo.Sexp, error) {
	nodes, err := toNodes(a.positional)
	if err != nil {
		return zygo.SexpNull, fmt.Errorf("group: %w", err)
	}
	id, err := a.id("group")
	if err != nil {
		return zygo.SexpNull, err
	}
	return b.emit(graph.NewGroup(id, nodes...))
}
