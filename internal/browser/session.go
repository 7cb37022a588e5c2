// internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/visverify/internal/config"
	"github.com/xkilldash9x/visverify/internal/diagnostics"
)

// Session is one browser tab driven over CDP.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    config.BrowserConfig

	harvester *Harvester
	onClose   func()

	mu       sync.Mutex
	isClosed bool
}

func newSession(ctx context.Context, cancel context.CancelFunc, cfg config.BrowserConfig, logger *zap.Logger, sink diagnostics.Sink) *Session {
	id := uuid.New().String()
	log := logger.Named("session").With(zap.String("session_id", id))
	return &Session{
		id:        id,
		ctx:       ctx,
		cancel:    cancel,
		logger:    log,
		cfg:       cfg,
		harvester: NewHarvester(log, sink),
	}
}

// start launches the browser (if needed), attaches to the tab and enables event collection.
// ctx only bounds the startup; the tab lives until Close.
func (s *Session) start(ctx context.Context) error {
	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()

	// An empty Run allocates the browser and the target on the tab context itself,
	// so a shorter-lived context never ends up owning the Chrome process.
	if err := chromedp.Run(s.ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	if err := s.harvester.Start(s.ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to start harvester: %w", err)
	}
	s.logger.Debug("Session started.")
	return nil
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

// Navigate loads url and waits for the load event. It returns the HTTP
// status of the main document, or 0 when the scheme has none.
func (s *Session) Navigate(ctx context.Context, url string) (int64, error) {
	runCtx, cancel := s.runContext(ctx, s.cfg.NavigationTimeout)
	defer cancel()

	s.logger.Debug("Navigating.", zap.String("url", url))
	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(url))
	if err != nil {
		return 0, err
	}
	if resp == nil {
		return 0, nil
	}
	return resp.Status, nil
}

// WaitSelector blocks until sel matches an element in the DOM.
func (s *Session) WaitSelector(ctx context.Context, sel string) error {
	runCtx, cancel := s.runContext(ctx, 0)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.WaitReady(sel, chromedp.ByQuery))
}

// WaitVisible blocks until sel matches a visible element.
func (s *Session) WaitVisible(ctx context.Context, sel string) error {
	runCtx, cancel := s.runContext(ctx, 0)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.WaitVisible(sel, chromedp.ByQuery))
}

// WaitNetworkIdle blocks until no request has been in flight for quietPeriod.
func (s *Session) WaitNetworkIdle(ctx context.Context, quietPeriod time.Duration) error {
	runCtx, cancel := s.runContext(ctx, 0)
	defer cancel()
	return s.harvester.WaitNetworkIdle(runCtx, quietPeriod)
}

// FullScreenshot captures the whole page as PNG.
func (s *Session) FullScreenshot(ctx context.Context) ([]byte, error) {
	runCtx, cancel := s.runContext(ctx, 0)
	defer cancel()

	var buf []byte
	// Quality 100 selects PNG.
	if err := chromedp.Run(runCtx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close stops event collection and closes the tab. Closing the first tab of a
// browser closes the browser process as well.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")
	s.harvester.Stop()

	done := make(chan error, 1)
	go func() {
		done <- chromedp.Cancel(s.ctx)
	}()

	var closeErr error
	select {
	case err := <-done:
		if err != nil && err != context.Canceled {
			closeErr = fmt.Errorf("failed to close browser session: %w", err)
		}
	case <-ctx.Done():
		closeErr = fmt.Errorf("timed out closing browser session: %w", ctx.Err())
	}
	s.cancel()

	if s.onClose != nil {
		s.onClose()
	}
	return closeErr
}

// runContext derives a context for a single CDP operation. It lives under the
// tab context, inherits the caller's deadline and cancellation, and applies an
// optional upper bound.
func (s *Session) runContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var runCtx context.Context
	var cancel context.CancelFunc
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(s.ctx, deadline)
	} else {
		runCtx, cancel = context.WithCancel(s.ctx)
	}
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		prev := cancel
		cancel = func() { cancelTimeout(); prev() }
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}
