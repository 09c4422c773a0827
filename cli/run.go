package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"

	"github.com/session-labs/sessiontree"
	"github.com/session-labs/sessiontree/bus"
	"github.com/session-labs/sessiontree/loader"
	streeotel "github.com/session-labs/sessiontree/otel"
	"github.com/session-labs/sessiontree/plan"
)

// Exit codes returned by the CLI process.
const (
	exitSuccess      = 0
	exitValidation   = 1
	exitRuntime      = 2
	exitFileNotFound = 3
	exitInputParse   = 4
	exitTimeout      = 10
)

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute a session plan file",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}

	cmd.Flags().Int64("seed", 0, "Seed for random traversal orders (0 = nondeterministic)")
	cmd.Flags().Duration("timeout", 30*time.Minute, "Execution timeout")
	cmd.Flags().Bool("dry-run", false, "Validate and build only, do not execute")
	cmd.Flags().String("events", "off", "Stream run events to stdout: off | text | json")
	cmd.Flags().String("store-path", "", "Path to SQLite database for event persistence")
	cmd.Flags().String("trace-endpoint", "", "OTLP/HTTP collector endpoint for trace export")
	cmd.Flags().Bool("trace-insecure", false, "Disable TLS for trace export")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	def, err := loadPlanForRun(cmd, filePath)
	if err != nil {
		return err
	}

	root, err := buildRunTree(cmd, def)
	if err != nil {
		return exitError(exitValidation, "building tree: %v", err)
	}

	// Dry run: just validate and build, don't execute.
	if isRunDry(cmd) {
		fmt.Fprintln(cmd.OutOrStdout(), "Validation and build successful.")
		return nil
	}

	handlers, cleanup, err := buildRunHandlers(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel, timeout := runContext(cmd)
	defer cancel()
	stopSignals := watchInterrupts(root, cancel)
	defer stopSignals()

	if err := sessiontree.Run(ctx, root, handlers...); err != nil {
		return runRuntimeError(ctx, timeout, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Run %s completed.\n", root.RunID())
	return nil
}

func loadPlanForRun(cmd *cobra.Command, filePath string) (*plan.Definition, error) {
	def, err := loader.Load(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, exitError(exitFileNotFound, "file not found: %s", filePath)
		}
		var diagErr *loader.DiagnosticError
		if errors.As(err, &diagErr) {
			printDiagnosticsText(cmd.ErrOrStderr(), diagErr.Diagnostics)
			return nil, exitError(exitValidation, "validation failed")
		}
		return nil, exitError(exitInputParse, "%v", err)
	}
	return def, nil
}

func buildRunTree(cmd *cobra.Command, def *plan.Definition) (*sessiontree.TreeNode, error) {
	opts := []plan.BuildOption{plan.WithLeafFactory(waitLeafFactory)}
	if seed, _ := cmd.Flags().GetInt64("seed"); seed != 0 {
		opts = append(opts, plan.WithRand(rand.New(rand.NewSource(seed))))
	}
	return def.ToTree(opts...)
}

// waitLeafFactory builds the default CLI leaf behavior: an optional
// timed wait driven by the node's "duration_ms" payload field. It lets
// plan structure, ordering, and timing be exercised before real task
// implementations are registered.
func waitLeafFactory(nd plan.NodeDef) (sessiontree.Runnable, error) {
	durationMS := 0.0
	if nd.Payload != nil {
		if v, ok := nd.Payload["duration_ms"].(float64); ok {
			durationMS = v
		}
	}
	if durationMS < 0 {
		return nil, fmt.Errorf("duration_ms must not be negative, got %v", durationMS)
	}

	wait := time.Duration(durationMS) * time.Millisecond
	return sessiontree.NewFuncRunnable(nd.ID, func(ctx context.Context) error {
		if wait == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
			return nil
		}
	}), nil
}

func isRunDry(cmd *cobra.Command) bool {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	return dryRun
}

// buildRunHandlers assembles the event handlers requested by flags:
// an stdout event printer, a SQLite event store, and an OTLP trace
// exporter. The returned cleanup closes whatever was opened.
func buildRunHandlers(cmd *cobra.Command) ([]sessiontree.EventHandler, func(), error) {
	var handlers []sessiontree.EventHandler
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	format, _ := cmd.Flags().GetString("events")
	switch format {
	case "off":
	case "text":
		handlers = append(handlers, textEventHandler(cmd.OutOrStdout()))
	case "json":
		handlers = append(handlers, jsonEventHandler(cmd.OutOrStdout()))
	default:
		return nil, cleanup, exitError(exitInputParse, "unknown events format %q (use off, text, or json)", format)
	}

	if storePath, _ := cmd.Flags().GetString("store-path"); storePath != "" {
		store, err := bus.NewSQLiteEventStore(bus.SQLiteStoreConfig{DSN: storePath})
		if err != nil {
			cleanup()
			return nil, func() {}, exitError(exitRuntime, "opening event store: %v", err)
		}
		closers = append(closers, func() { _ = store.Close() })
		handlers = append(handlers, bus.StoreHandler(store, slog.Default()))
	}

	if endpoint, _ := cmd.Flags().GetString("trace-endpoint"); endpoint != "" {
		insecure, _ := cmd.Flags().GetBool("trace-insecure")
		shutdown, err := streeotel.SetupTracing(cmd.Context(), streeotel.TraceConfig{
			Endpoint: endpoint,
			Insecure: insecure,
		})
		if err != nil {
			cleanup()
			return nil, func() {}, exitError(exitRuntime, "setting up tracing: %v", err)
		}
		closers = append(closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		})
		tracing := streeotel.NewTracingHandler(otelapi.Tracer("sessiontree/cli"))
		handlers = append(handlers, tracing.Handle)
	}

	return handlers, cleanup, nil
}

// textEventHandler writes one human-readable line per event.
func textEventHandler(out io.Writer) sessiontree.EventHandler {
	return func(e sessiontree.Event) {
		if e.Iteration > 0 {
			fmt.Fprintf(out, "%s %-18s %s #%d\n", e.Time.Format("15:04:05.000"), e.Kind, e.Node, e.Iteration)
			return
		}
		fmt.Fprintf(out, "%s %-18s %s\n", e.Time.Format("15:04:05.000"), e.Kind, e.Node)
	}
}

// jsonEventHandler writes one JSON object per line.
func jsonEventHandler(out io.Writer) sessiontree.EventHandler {
	enc := json.NewEncoder(out)
	return func(e sessiontree.Event) {
		_ = enc.Encode(map[string]any{
			"kind":       e.Kind,
			"run_id":     e.RunID,
			"node":       e.Node,
			"iteration":  e.Iteration,
			"time":       e.Time.Format(time.RFC3339Nano),
			"elapsed_ms": e.Elapsed.Milliseconds(),
			"payload":    e.Payload,
		})
	}
}

// watchInterrupts installs cooperative interrupt handling: the first
// SIGINT/SIGTERM requests an abort so the tree unwinds through its
// finish actions; a second one cancels the context outright.
func watchInterrupts(root *sessiontree.TreeNode, cancel context.CancelFunc) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		if _, ok := <-sigCh; !ok {
			return
		}
		root.Signals().RequestAbort()
		if _, ok := <-sigCh; !ok {
			return
		}
		cancel()
	}()

	return func() {
		signal.Stop(sigCh)
		close(sigCh)
	}
}

func runContext(cmd *cobra.Command) (context.Context, context.CancelFunc, time.Duration) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	return ctx, cancel, timeout
}

func runRuntimeError(ctx context.Context, timeout time.Duration, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return exitError(exitTimeout, "execution timed out after %s", timeout)
	}
	return exitError(exitRuntime, "execution failed: %v", err)
}
