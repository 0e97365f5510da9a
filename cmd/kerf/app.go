package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chazu/kerf/pkg/engine"
	"github.com/chazu/kerf/pkg/graph"
	"github.com/chazu/kerf/pkg/kernel"
	"github.com/chazu/kerf/pkg/mesh"
)

// colorPalette is a default palette used to assign distinct colors to parts.
var colorPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// App ties the Lisp engine to a kernel. One App holds one scene.
type App struct {
	engine *engine.Engine
	kernel *kernel.Kernel
	log    *zap.Logger
}

// MeshData is the JSON-serializable mesh format written by the render
// command.
type MeshData struct {
	Vertices []float32  `json:"vertices"`
	Normals  []float32  `json:"normals"`
	Indices  []uint32   `json:"indices"`
	PartName string     `json:"partName"`
	Color    string     `json:"color"`
	Stats    mesh.Stats `json:"stats"`
}

// EvalErrorData is a JSON-serializable eval error or warning.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
	NodeID  string `json:"nodeId,omitempty"`
}

// EvalResult is the full result of evaluating one source file.
type EvalResult struct {
	Meshes   []MeshData      `json:"meshes"`
	Errors   []EvalErrorData `json:"errors"`
	Warnings []EvalErrorData `json:"warnings"`
}

// NewApp creates an App with a fresh engine and kernel.
func NewApp(cfg kernel.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	k, err := kernel.New(cfg, kernel.WithLogger(log))
	if err != nil {
		return nil, err
	}
	return &App{
		engine: engine.NewEngine(engine.WithLogger(log)),
		kernel: k,
		log:    log.Named("app"),
	}, nil
}

// Close releases the kernel.
func (a *App) Close() error {
	return a.kernel.Close()
}

// Kernel returns the kernel holding the loaded scene.
func (a *App) Kernel() *kernel.Kernel { return a.kernel }

// Load compiles source and installs the result as the kernel scene. A
// result carrying eval errors leaves the previous scene in place.
func (a *App) Load(source string) (*engine.EvalResult, error) {
	res, err := a.engine.Compile(source)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return res, nil
	}
	if err := a.kernel.WithScene(res.Root); err != nil {
		return nil, err
	}
	return res, nil
}

// Evaluate takes Lisp source and returns one mesh per top-level part
// along with any errors and warnings. Errors never abort the call; they
// are reported in the result.
func (a *App) Evaluate(ctx context.Context, source string) EvalResult {
	result := EvalResult{
		Meshes:   []MeshData{},
		Errors:   []EvalErrorData{},
		Warnings: []EvalErrorData{},
	}

	res, err := a.Load(source)
	if err != nil {
		a.log.Warn("evaluate failed", zap.Error(err))
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}
	for _, w := range res.Warnings {
		result.Warnings = append(result.Warnings, EvalErrorData{
			Line:    w.Line,
			Col:     w.Col,
			Message: w.Message,
			NodeID:  string(w.NodeID),
		})
	}
	if len(res.Errors) > 0 {
		for _, e := range res.Errors {
			result.Errors = append(result.Errors, EvalErrorData{
				Line:    e.Line,
				Col:     e.Col,
				Message: e.Message,
			})
		}
		return result
	}

	for i, part := range parts(res.Root) {
		m, err := a.kernel.Evaluate(ctx, part)
		if err != nil {
			a.log.Warn("tessellation failed", zap.String("part", part.Label()), zap.Error(err))
			result.Errors = append(result.Errors, EvalErrorData{
				Message: "tessellation failed: " + err.Error(),
				NodeID:  string(part.ID),
			})
			return result
		}
		if m.IsEmpty() {
			continue
		}
		f := m.Flatten()
		result.Meshes = append(result.Meshes, MeshData{
			Vertices: f.Vertices,
			Normals:  f.Normals,
			Indices:  f.Indices,
			PartName: partName(part, i),
			Color:    colorPalette[len(result.Meshes)%len(colorPalette)],
			Stats:    mesh.Analyze(m),
		})
	}
	return result
}

// parts splits a scene into separately colored meshes: the children of
// a top-level group, or the root itself.
func parts(root *graph.Node) []*graph.Node {
	if root.Kind() == graph.NodeGroup {
		return root.Children
	}
	return []*graph.Node{root}
}

func partName(n *graph.Node, i int) string {
	if !n.ID.IsZero() {
		return string(n.ID)
	}
	return fmt.Sprintf("part-%d", i+1)
}
