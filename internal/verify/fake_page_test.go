// internal/verify/fake_page_test.go
package verify_test

import (
	"context"
	"sync"
	"time"

	"github.com/xkilldash9x/visverify/internal/diagnostics"
	"github.com/xkilldash9x/visverify/internal/verify"
)

// fakePage scripts a browser tab. Selectors not listed as present block until
// the wait context ends, the way a real WaitReady does.
type fakePage struct {
	status     int64
	navErr     error
	present    map[string]bool
	visible    map[string]bool
	idleErr    error
	shot       []byte
	shotErr    error
	onNavigate func(sink diagnostics.Sink)

	sink diagnostics.Sink

	mu     sync.Mutex
	calls  []string
	closed int
}

func newFakePage() *fakePage {
	return &fakePage{
		status:  200,
		present: map[string]bool{},
		visible: map[string]bool{},
		shot:    []byte("\x89PNG\r\n\x1a\nfake-image"),
	}
}

func (p *fakePage) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *fakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePage) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePage) Navigate(ctx context.Context, url string) (int64, error) {
	p.record("navigate " + url)
	if p.navErr != nil {
		return 0, p.navErr
	}
	if p.onNavigate != nil {
		p.onNavigate(p.sink)
	}
	return p.status, nil
}

func (p *fakePage) WaitSelector(ctx context.Context, sel string) error {
	p.record("wait " + sel)
	if p.present[sel] {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (p *fakePage) WaitVisible(ctx context.Context, sel string) error {
	p.record("visible " + sel)
	if p.visible[sel] {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (p *fakePage) WaitNetworkIdle(ctx context.Context, quietPeriod time.Duration) error {
	p.record("idle")
	return p.idleErr
}

func (p *fakePage) FullScreenshot(ctx context.Context) ([]byte, error) {
	p.record("screenshot")
	return p.shot, p.shotErr
}

func (p *fakePage) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

// fakeLauncher hands out one page and counts launches.
type fakeLauncher struct {
	page   *fakePage
	err    error
	mu     sync.Mutex
	opened int
}

func (l *fakeLauncher) Open(ctx context.Context, sink diagnostics.Sink) (verify.Page, error) {
	l.mu.Lock()
	l.opened++
	l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.page.sink = sink
	return l.page, nil
}

func (l *fakeLauncher) Opened() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opened
}
