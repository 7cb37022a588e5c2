// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/visverify/internal/config"
	"github.com/xkilldash9x/visverify/internal/diagnostics"
)

const sessionCloseTimeout = 10 * time.Second

// Manager owns the chromedp allocator (the Chrome process) and the sessions opened on it.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates the exec allocator. Chrome itself is not started until
// the first session is opened.
func NewManager(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Manager, error) {
	if cfg.Viewport.Width <= 0 || cfg.Viewport.Height <= 0 {
		return nil, fmt.Errorf("invalid viewport %dx%d", cfg.Viewport.Width, cfg.Viewport.Height)
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, ExecAllocatorOptions(cfg)...)

	m := &Manager{
		cfg:         cfg,
		logger:      logger.Named("browser_manager"),
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		sessions:    make(map[string]*Session),
	}
	m.logger.Debug("Browser allocator created.", zap.Bool("headless", cfg.Headless), zap.String("exec_path", cfg.ExecPath))
	return m, nil
}

// ExecAllocatorOptions translates the browser config into chromedp allocator options.
func ExecAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", true),
		chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height),
	}

	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.DisableGPU {
		opts = append(opts, chromedp.DisableGPU)
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.IgnoreCertErrors)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}

	for _, arg := range cfg.Args {
		if key, value, ok := parseFlagArg(arg); ok {
			opts = append(opts, chromedp.Flag(key, value))
		}
	}
	return opts
}

// parseFlagArg turns "--name=value" or "--name" into a chromedp flag pair.
// chromedp adds the leading dashes itself.
func parseFlagArg(arg string) (string, interface{}, bool) {
	arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
	if arg == "" {
		return "", nil, false
	}
	if key, value, found := strings.Cut(arg, "="); found {
		return key, value, key != ""
	}
	return arg, true, true
}

// Open starts a new tab and begins harvesting its diagnostics into sink.
// The first session opened also launches the Chrome process; closing that
// session closes the browser.
func (m *Manager) Open(ctx context.Context, sink diagnostics.Sink) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("browser manager is shut down")
	}
	m.mu.Unlock()

	sugar := m.logger.Named("cdp").Sugar()
	ctxOpts := []chromedp.ContextOption{
		chromedp.WithLogf(sugar.Infof),
		chromedp.WithErrorf(sugar.Warnf),
	}
	if m.cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(sugar.Debugf))
	}
	tabCtx, tabCancel := chromedp.NewContext(m.allocCtx, ctxOpts...)

	s := newSession(tabCtx, tabCancel, m.cfg, m.logger, sink)
	s.onClose = func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.sessions, s.ID())
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	if err := s.start(ctx); err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), sessionCloseTimeout)
		defer cancel()
		_ = s.Close(cleanupCtx)
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}

	m.logger.Debug("Browser session opened.", zap.String("session_id", s.ID()))
	return s, nil
}

// Shutdown closes any sessions still open and tears down the allocator,
// waiting for the Chrome process to exit until ctx is done.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	remaining := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		remaining = append(remaining, s)
	}
	m.mu.Unlock()

	var shutdownErr error
	for _, s := range remaining {
		if err := s.Close(ctx); err != nil {
			m.logger.Warn("Error closing session during shutdown.", zap.String("session_id", s.ID()), zap.Error(err))
			if shutdownErr == nil {
				shutdownErr = err
			}
		}
	}

	// The allocator's cancel func blocks until the browser process has exited; bound it by ctx.
	done := make(chan struct{})
	go func() {
		m.allocCancel()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Timed out waiting for browser to exit.", zap.Error(ctx.Err()))
		if shutdownErr == nil {
			shutdownErr = fmt.Errorf("browser shutdown timed out: %w", ctx.Err())
		}
	}

	m.logger.Debug("Browser manager shutdown complete.")
	return shutdownErr
}
