package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mwiater/pagesmith/internal/apperr"
	"github.com/mwiater/pagesmith/internal/appconfig"
	"github.com/mwiater/pagesmith/internal/logging"
	"github.com/mwiater/pagesmith/internal/metrics"
	"github.com/mwiater/pagesmith/internal/pipeline"
	"github.com/mwiater/pagesmith/internal/providerfactory"
	"github.com/mwiater/pagesmith/internal/providers"
	"github.com/mwiater/pagesmith/internal/util"
	"github.com/spf13/cobra"
)

var (
	okResult     = color.New(color.FgGreen).SprintFunc()
	abortResult  = color.New(color.FgYellow).SprintFunc()
	failedResult = color.New(color.FgRed).SprintFunc()
)

// buildProvider creates the stream provider used by a command. Tests replace it.
var buildProvider = func(ctx context.Context, cfg *appconfig.Config, aggregator *metrics.Aggregator) (providers.StreamProvider, error) {
	provider, err := providerfactory.NewStreamProvider(ctx, cfg, aggregator)
	if err != nil {
		return nil, err
	}
	return provider, nil
}

// runEnv bundles what a generating command needs for one invocation.
type runEnv struct {
	cfg        *appconfig.Config
	provider   providers.StreamProvider
	aggregator *metrics.Aggregator
}

func openRunEnv(ctx context.Context) (*runEnv, error) {
	cfg := GetConfig()
	if cfg == nil {
		return nil, fmt.Errorf("configuration is not loaded")
	}
	var aggregator *metrics.Aggregator
	if cfg.Metrics {
		aggregator = metrics.NewAggregator(cfg.MetricsFilePath())
	}
	provider, err := buildProvider(ctx, cfg, aggregator)
	if err != nil {
		return nil, err
	}
	return &runEnv{cfg: cfg, provider: provider, aggregator: aggregator}, nil
}

// Close releases the provider and persists metrics.
func (r *runEnv) Close() error {
	err := r.provider.Close()
	if r.aggregator != nil {
		err = errors.Join(err, r.aggregator.Close())
	}
	return err
}

func (r *runEnv) controller(listener pipeline.Listener) (*pipeline.Controller, error) {
	return pipeline.New(pipeline.Options{
		Provider: r.provider,
		Config:   *r.cfg,
		Listener: listener,
	})
}

// stopOnInterrupt maps SIGINT to controller.Stop until the returned release func is called.
func stopOnInterrupt(ctx context.Context, controller *pipeline.Controller) func() {
	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCtx.Done():
			logging.LogEvent("[CLI] interrupt received, stopping live operations")
			controller.Stop()
		case <-done:
		}
	}()
	return func() {
		close(done)
		cancel()
	}
}

// liveEcho writes the growing text of the artifact being generated to w.
// pick names the artifact and returns its text; text that does not extend
// what was already written for that artifact is skipped.
type liveEcho struct {
	mu      sync.Mutex
	w       io.Writer
	key     string
	written string
	// open is set while the current line has unterminated output.
	open bool
}

func (e *liveEcho) listener(pick func(pipeline.Snapshot) (string, string)) pipeline.Listener {
	return func(s pipeline.Snapshot) {
		key, text := pick(s)
		e.mu.Lock()
		defer e.mu.Unlock()
		if key != e.key {
			e.endLineLocked()
			e.key, e.written = key, ""
		}
		if len(text) <= len(e.written) || !strings.HasPrefix(text, e.written) {
			return
		}
		fmt.Fprint(e.w, text[len(e.written):])
		e.written = text
		e.open = true
	}
}

func (e *liveEcho) finish() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.endLineLocked()
}

func (e *liveEcho) endLineLocked() {
	if e.open {
		fmt.Fprintln(e.w)
		e.open = false
	}
}

// liveArtifact picks the artifact currently streaming.
func liveArtifact(s pipeline.Snapshot) (string, string) {
	switch s.Stage {
	case pipeline.StageHTMLPending, pipeline.StageHTMLReady:
		return "html", s.HTML
	default:
		return "plan", s.Plan
	}
}

// echoListener returns a listener echoing the live artifact to the command's
// stderr when stream is set, and a no-op otherwise.
func echoListener(cmd *cobra.Command, stream bool) (pipeline.Listener, func()) {
	if !stream {
		return nil, func() {}
	}
	echo := &liveEcho{w: cmd.ErrOrStderr()}
	return echo.listener(liveArtifact), echo.finish
}

// reportedError wraps an operation error whose status line was already printed.
type reportedError struct {
	err error
}

func (e reportedError) Error() string { return e.err.Error() }

func (e reportedError) Unwrap() error { return e.err }

// reportResult prints a colored status line for a finished operation and
// returns err marked as reported.
func reportResult(w io.Writer, what string, err error) error {
	switch {
	case err == nil:
		fmt.Fprintln(w, okResult(what+" finished."))
		return nil
	case apperr.IsAborted(err):
		fmt.Fprintln(w, abortResult(apperr.UserMessage(what, err)))
	default:
		fmt.Fprintln(w, failedResult(apperr.UserMessage(what, err)))
	}
	return reportedError{err: err}
}

// printError prints err unless a status line already covered it.
func printError(w io.Writer, err error) {
	var reported reportedError
	if err == nil || errors.As(err, &reported) {
		return
	}
	fmt.Fprintln(w, failedResult("Error: "+err.Error()))
}

// readInput returns the contents of path, or of stdin for "" and "-".
func readInput(cmd *cobra.Command, path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// writeOutput writes text to path, or to the command's stdout when path is empty.
func writeOutput(cmd *cobra.Command, path, text string) error {
	if path == "" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), text)
		return err
	}
	if err := util.WriteFile(path, []byte(text)); err != nil {
		return err
	}
	fmt.Fprintln(cmd.ErrOrStderr(), okResult("Wrote "+path))
	return nil
}
