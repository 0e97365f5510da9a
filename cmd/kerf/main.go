// Command kerf evaluates Lisp scene files and writes the resulting meshes.
//
// Usage:
//
//	kerf render scene.lisp > scene.json
//	kerf stats scene.lisp
//	kerf check --grid 16 scene.lisp
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chazu/kerf/pkg/kernel"
	"github.com/chazu/kerf/pkg/kernel/sdfx"
	"github.com/chazu/kerf/pkg/mesh"
)

// errEval is returned when the source has eval errors. The errors
// themselves have already been printed.
var errEval = errors.New("evaluation failed")

type options struct {
	configPath string
	logLevel   string
	pretty     bool
	grid       int
	tolerance  float64
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "kerf",
		Short:        "Evaluate CSG scenes written in Lisp",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "kerf.yaml", "kernel configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	render := &cobra.Command{
		Use:   "render <file|->",
		Short: "Evaluate a scene and write its meshes as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, opts, args[0])
		},
	}
	render.Flags().BoolVar(&opts.pretty, "pretty", false, "indent the JSON output")

	stats := &cobra.Command{
		Use:   "stats <file|->",
		Short: "Print volume, area and bounds of a scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, opts, args[0])
		},
	}

	check := &cobra.Command{
		Use:   "check <file|->",
		Short: "Compare the rendered mesh against the reference SDF model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts, args[0])
		},
	}
	check.Flags().IntVar(&opts.grid, "grid", 0, "samples per axis (0 for the default)")
	check.Flags().Float64Var(&opts.tolerance, "tolerance", 0, "surface band to skip (0 for the default)")

	root.AddCommand(render, stats, check)
	return root
}

// setup loads configuration, builds the logger and the app, and reads
// the scene source.
func setup(cmd *cobra.Command, opts *options, path string) (*App, *zap.Logger, string, error) {
	cfg, err := kernel.LoadConfig(opts.configPath)
	if err != nil {
		return nil, nil, "", err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	log, err := kernel.NewLogger(cfg.Log.Level)
	if err != nil {
		return nil, nil, "", err
	}
	source, err := readSource(cmd.InOrStdin(), path)
	if err != nil {
		_ = log.Sync()
		return nil, nil, "", err
	}
	app, err := NewApp(cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, "", err
	}
	return app, log, source, nil
}

func readSource(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func runRender(cmd *cobra.Command, opts *options, path string) error {
	app, log, source, err := setup(cmd, opts, path)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck
	defer app.Close()

	result := app.Evaluate(cmd.Context(), source)

	enc := json.NewEncoder(cmd.OutOrStdout())
	if opts.pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(result); err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		return errEval
	}
	return nil
}

func runStats(cmd *cobra.Command, opts *options, path string) error {
	app, log, source, err := setup(cmd, opts, path)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck
	defer app.Close()

	if err := load(cmd, app, source); err != nil {
		return err
	}
	m, err := app.Kernel().Render(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	st := mesh.Analyze(m)
	fmt.Fprintf(out, "volume:       %.4f\n", st.Volume)
	fmt.Fprintf(out, "surface area: %.4f\n", st.SurfaceArea)
	fmt.Fprintf(out, "bounds:       %v .. %v\n", st.Bounds.Min, st.Bounds.Max)
	fmt.Fprintf(out, "centroid:     %v\n", st.Centroid)
	fmt.Fprintf(out, "vertices:     %d\n", st.VertexCount)
	fmt.Fprintf(out, "triangles:    %d\n", st.TriangleCount)
	fmt.Fprintf(out, "watertight:   %t\n", st.Watertight)

	d := app.Kernel().Diagnostics()
	fmt.Fprintf(out, "diagnostics:  pairs=%d split=%d skipped=%d degenerate=%d nonmanifold=%d\n",
		d.CandidatePairs, d.SplitTriangles, d.SkippedPairs, d.DegenerateTriangles, d.NonManifoldEdges)
	return nil
}

func runCheck(cmd *cobra.Command, opts *options, path string) error {
	app, log, source, err := setup(cmd, opts, path)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck
	defer app.Close()

	if err := load(cmd, app, source); err != nil {
		return err
	}
	rep, err := app.Kernel().CrossCheck(cmd.Context(), sdfx.CompareOptions{
		Grid:      opts.grid,
		Tolerance: opts.tolerance,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), rep)
	if !rep.Agree() {
		return fmt.Errorf("%d of %d samples disagree", rep.Mismatches, rep.Samples)
	}
	return nil
}

// load compiles source into the app's kernel, printing warnings and
// eval errors to stderr.
func load(cmd *cobra.Command, app *App, source string) error {
	res, err := app.Load(source)
	if err != nil {
		return err
	}
	stderr := cmd.ErrOrStderr()
	for _, w := range res.Warnings {
		fmt.Fprintf(stderr, "warning: %s\n", w.Message)
	}
	for _, e := range res.Errors {
		fmt.Fprintf(stderr, "error: %s\n", e.Error())
	}
	if len(res.Errors) > 0 {
		return errEval
	}
	return nil
}
