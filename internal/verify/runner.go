// internal/verify/runner.go
package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/visverify/internal/artifact"
	"github.com/xkilldash9x/visverify/internal/diagnostics"
)

const defaultCloseTimeout = 10 * time.Second

// Page is the slice of a browser tab a verification run drives.
type Page interface {
	Navigate(ctx context.Context, url string) (int64, error)
	WaitSelector(ctx context.Context, sel string) error
	WaitVisible(ctx context.Context, sel string) error
	WaitNetworkIdle(ctx context.Context, quietPeriod time.Duration) error
	FullScreenshot(ctx context.Context) ([]byte, error)
	Close(ctx context.Context) error
}

// Launcher opens a fresh page whose console output and page errors go to sink.
type Launcher interface {
	Open(ctx context.Context, sink diagnostics.Sink) (Page, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context, sink diagnostics.Sink) (Page, error)

// Open calls f(ctx, sink).
func (f LauncherFunc) Open(ctx context.Context, sink diagnostics.Sink) (Page, error) {
	return f(ctx, sink)
}

// Status is the outcome of a run.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// Result summarizes a run. It is returned for failed runs too.
type Result struct {
	RunID        string               `json:"run_id"`
	Plan         string               `json:"plan"`
	Target       Target               `json:"target"`
	Readiness    string               `json:"readiness"`
	Status       Status               `json:"status"`
	ErrorCode    ErrorCode            `json:"error_code,omitempty"`
	Error        string               `json:"error,omitempty"`
	HTTPStatus   int64                `json:"http_status,omitempty"`
	Artifact     string               `json:"artifact,omitempty"`
	ArtifactSize int64                `json:"artifact_size,omitempty"`
	StartedAt    time.Time            `json:"started_at"`
	DurationMS   int64                `json:"duration_ms"`
	Diagnostics  []diagnostics.Record `json:"diagnostics,omitempty"`
}

// Runner executes verification plans one at a time.
type Runner struct {
	launcher     Launcher
	store        *artifact.Store
	sink         diagnostics.Sink
	logger       *zap.Logger
	closeTimeout time.Duration
}

// NewRunner wires a runner. sink receives every diagnostic as it happens;
// a nil sink discards them.
func NewRunner(launcher Launcher, store *artifact.Store, sink diagnostics.Sink, logger *zap.Logger) *Runner {
	if sink == nil {
		sink = diagnostics.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = artifact.NewStore(nil)
	}
	return &Runner{
		launcher:     launcher,
		store:        store,
		sink:         sink,
		logger:       logger.Named("runner"),
		closeTimeout: defaultCloseTimeout,
	}
}

// Run executes plan: launch, navigate, wait, assert, capture, persist, close.
// The page is closed on every path. A failed run leaves no artifact at the
// plan's output path.
func (r *Runner) Run(ctx context.Context, plan Plan) (res *Result, err error) {
	start := time.Now()
	res = &Result{
		RunID:     uuid.New().String(),
		Plan:      plan.Name,
		Readiness: plan.Readiness.Mode(),
		StartedAt: start,
	}
	log := r.logger.With(zap.String("run_id", res.RunID), zap.String("plan", plan.Name))

	collector := diagnostics.NewCollector()
	sink := diagnostics.Tee(r.sink, collector)

	defer func() {
		res.DurationMS = time.Since(start).Milliseconds()
		res.Diagnostics = collector.Records()
		if err != nil {
			res.Status = StatusFailed
			res.ErrorCode = CodeOf(err)
			res.Error = err.Error()
			log.Error("Verification failed.", zap.String("code", string(res.ErrorCode)), zap.Error(err))
			return
		}
		res.Status = StatusPassed
		log.Info("Verification passed.",
			zap.String("artifact", res.Artifact),
			zap.Int64("bytes", res.ArtifactSize),
			zap.Int64("duration_ms", res.DurationMS))
	}()

	if err := plan.Validate(); err != nil {
		return res, newError(CodeInvalidPlan, "validate plan", err)
	}
	plan = plan.withDefaults()

	target, err := ResolveTarget(r.store.Fs(), plan.Target)
	if err != nil {
		return res, err
	}
	res.Target = target

	output, err := artifact.Resolve(plan.Output)
	if err != nil {
		return res, newError(CodeArtifact, "resolve output", err)
	}
	// A stale screenshot from an earlier run must not pass for this one.
	if err := r.store.Remove(output); err != nil {
		return res, newError(CodeArtifact, "remove stale artifact", err)
	}

	log.Info("Starting verification.",
		zap.String("url", target.URL),
		zap.String("readiness", res.Readiness),
		zap.String("output", output))

	page, err := r.launcher.Open(ctx, sink)
	if err != nil {
		return res, opError(ctx, CodeBrowser, "launch browser", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), r.closeTimeout)
		defer cancel()
		if cerr := page.Close(closeCtx); cerr != nil {
			log.Warn("Failed to close browser page.", zap.Error(cerr))
		}
	}()

	status, err := page.Navigate(ctx, target.URL)
	if err != nil {
		return res, opError(ctx, CodeNavigation, "navigate to "+target.URL, err)
	}
	res.HTTPStatus = status
	if status >= 400 {
		return res, newError(CodeNavigation, "navigate to "+target.URL, fmt.Errorf("HTTP status %d", status))
	}

	if err := r.awaitReadiness(ctx, page, plan.Readiness, log); err != nil {
		return res, err
	}

	for _, sel := range plan.AssertVisible {
		waitCtx, cancel := context.WithTimeout(ctx, plan.AssertTimeout)
		werr := page.WaitVisible(waitCtx, sel)
		cancel()
		if werr != nil {
			return res, opError(ctx, CodeAssertion, fmt.Sprintf("element %q is not visible", sel), werr)
		}
	}

	if plan.FailOnPageError {
		if errs := collector.PageErrors(); len(errs) > 0 {
			first := errs[0]
			return res, newError(CodePageRuntime, "page raised uncaught errors",
				fmt.Errorf("%d error(s), first: %s: %s", len(errs), first.Name, first.Message))
		}
	}

	shot, err := page.FullScreenshot(ctx)
	if err != nil {
		return res, opError(ctx, CodeBrowser, "capture screenshot", err)
	}
	if err := r.store.Write(output, shot); err != nil {
		return res, newError(CodeArtifact, "write artifact", err)
	}
	res.Artifact = output
	res.ArtifactSize = int64(len(shot))
	return res, nil
}

// awaitReadiness waits for network idle, then each selector, then the
// fallback delay, then the settle pause.
func (r *Runner) awaitReadiness(ctx context.Context, page Page, rd Readiness, log *zap.Logger) error {
	if rd.NetworkIdle {
		waitCtx, cancel := context.WithTimeout(ctx, rd.Timeout)
		err := page.WaitNetworkIdle(waitCtx, rd.QuietPeriod)
		cancel()
		if err != nil {
			return opError(ctx, CodeTimeout, fmt.Sprintf("wait for network idle within %s", rd.Timeout), err)
		}
		log.Debug("Network is idle.", zap.Duration("quiet_period", rd.QuietPeriod))
	}

	for _, sel := range rd.Selectors {
		waitCtx, cancel := context.WithTimeout(ctx, rd.Timeout)
		err := page.WaitSelector(waitCtx, sel)
		cancel()
		if err != nil {
			return opError(ctx, CodeTimeout, fmt.Sprintf("wait for selector %q within %s", sel, rd.Timeout), err)
		}
		log.Debug("Selector is present.", zap.String("selector", sel))
	}

	switch {
	case !rd.Explicit():
		log.Debug("Waiting fixed delay.", zap.Duration("delay", rd.Delay))
		if err := sleep(ctx, rd.Delay); err != nil {
			return opError(ctx, CodeTimeout, "fixed delay", err)
		}
	case rd.Delay > 0:
		log.Warn("Ignoring fixed delay because explicit readiness conditions are set; use settle for an extra pause.",
			zap.Duration("delay", rd.Delay))
	}

	if rd.Settle > 0 {
		log.Debug("Settling before capture.", zap.Duration("settle", rd.Settle))
		if err := sleep(ctx, rd.Settle); err != nil {
			return opError(ctx, CodeTimeout, "settle", err)
		}
	}
	return nil
}

// opError classifies a failed step. Cancellation of the run itself is not a
// verification verdict and stays unclassified.
func opError(ctx context.Context, code ErrorCode, op string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%s: verification cancelled: %w", op, ctx.Err())
	}
	return newError(code, op, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
