// Package engine provides the Lisp front-end for kerf scenes.
// It wraps zygomys in a sandboxed environment and turns user source code
// into a scene graph rooted at the last node expression.
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	zygo "github.com/glycerine/zygomys/zygo"
	"go.uber.org/zap"

	"github.com/chazu/kerf/pkg/graph"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error, a runtime error in user code, or an invalid
// scene.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// EvalWarning represents a non-fatal warning produced during evaluation.
type EvalWarning struct {
	Line    int
	Col     int
	Message string
	NodeID  graph.NodeID
}

// EvalResult bundles the full output of an evaluation.
type EvalResult struct {
	Root     *graph.Node
	Errors   []EvalError
	Warnings []EvalWarning
}

// Engine wraps the zygomys interpreter for scene evaluation.
// It is safe for concurrent use; each call to Evaluate creates a fresh
// sandboxed environment for determinism.
type Engine struct {
	timeout time.Duration
	log     *zap.Logger

	mu         sync.Mutex
	generation uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout overrides EvalTimeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l.Named("engine")
		}
	}
}

// NewEngine creates a new Engine instance.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{timeout: EvalTimeout, log: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Evaluate takes Lisp source code and produces a scene root.
//
// Return semantics:
//   - On success: returns root + nil errors + nil error
//   - On parse/eval/validation failure: returns nil root + eval errors + nil error
//   - On fatal failure (timeout, panic, superseded): returns nil + nil + error
//
// A program that builds no node yields an empty anonymous group.
func (e *Engine) Evaluate(source string) (*graph.Node, []EvalError, error) {
	res, err := e.Compile(source)
	if err != nil {
		return nil, nil, err
	}
	if len(res.Errors) > 0 {
		return nil, res.Errors, nil
	}
	return res.Root, nil, nil
}

// Compile is Evaluate returning validation warnings as well. On eval
// errors the result carries no root.
func (e *Engine) Compile(source string) (*EvalResult, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	start := time.Now()
	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		res := e.evaluate(source)
		ch <- evalResult{result: res}
	}()

	res, err := waitWithTimeout(ch, e.timeout, gen, &e.mu, &e.generation)
	if err != nil {
		e.log.Debug("evaluation failed", zap.Uint64("generation", gen), zap.Error(err))
		return nil, err
	}
	e.log.Debug("evaluated",
		zap.Uint64("generation", gen),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("errors", len(res.Errors)),
		zap.Int("warnings", len(res.Warnings)),
	)
	return res, nil
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) *EvalResult {
	// Empty source is a valid program that produces an empty scene.
	if strings.TrimSpace(source) == "" {
		return &EvalResult{Root: graph.NewGroup("")}
	}

	// Sandbox mode prevents user code from accessing the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	b := &builder{}
	registerBuiltins(env, b)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return &EvalResult{Errors: parseZygomysError(err)}
	}
	last, err := env.Run()
	if err != nil {
		return &EvalResult{Errors: parseZygomysError(err)}
	}

	root := b.last
	if n, ok := last.(*sexpNode); ok {
		root = n.node
	}
	if root == nil {
		root = graph.NewGroup("")
	}
	return validate(root)
}

// validate converts scene validation findings into errors and warnings.
func validate(root *graph.Node) *EvalResult {
	res := &EvalResult{Root: root}
	for _, f := range graph.Validate(root) {
		msg := f.Error()
		if f.Severity == graph.SeverityWarning {
			res.Warnings = append(res.Warnings, EvalWarning{Message: msg, NodeID: f.NodeID})
			continue
		}
		res.Errors = append(res.Errors, EvalError{Message: msg})
	}
	if len(res.Errors) > 0 {
		res.Root = nil
	}
	return res
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// It attempts to extract line number information from the error message.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	// zygomys formats parse errors as "Error on line N: <details>\n"
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		loc := re.FindStringSubmatchIndex(msg)
		if loc == nil {
			continue
		}
		line, _ := strconv.Atoi(msg[loc[2]:loc[3]])
		detail := strings.TrimSpace(msg[loc[4]:loc[5]])
		// keep whatever the interpreter printed around the location
		if rest := strings.TrimSpace(msg[:loc[0]] + " " + msg[loc[1]:]); rest != "" {
			if detail == "" {
				detail = rest
			} else {
				detail = rest + ": " + detail
			}
		}
		return []EvalError{{Line: line, Message: detail}}
	}

	// Fallback: no line info available.
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
