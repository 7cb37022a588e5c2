// internal/browser/harvester.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/visverify/internal/diagnostics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Harvester listens to a tab's CDP events. It forwards console output,
// uncaught exceptions and browser log entries to a diagnostics sink, and
// tracks in-flight requests so callers can wait for the network to go quiet.
type Harvester struct {
	logger *zap.Logger
	sink   diagnostics.Sink

	cancelListener context.CancelFunc

	lock             sync.RWMutex
	inflightRequests map[network.RequestID]bool
	lastActivity     time.Time
	isStarted        bool
}

// NewHarvester creates a harvester that emits into sink. A nil sink discards.
func NewHarvester(logger *zap.Logger, sink diagnostics.Sink) *Harvester {
	if sink == nil {
		sink = diagnostics.Discard
	}
	return &Harvester{
		logger:           logger.Named("harvester"),
		sink:             sink,
		inflightRequests: make(map[network.RequestID]bool),
		lastActivity:     time.Now(),
	}
}

// Start subscribes to the tab's events and enables the CDP domains that produce them.
// tabCtx must be a chromedp context.
func (h *Harvester) Start(tabCtx context.Context) error {
	h.lock.Lock()
	if h.isStarted {
		h.lock.Unlock()
		return nil
	}
	// Derived from the tab, so the listener also goes away when the tab does.
	listenerCtx, cancel := context.WithCancel(tabCtx)
	h.cancelListener = cancel
	h.isStarted = true
	h.lock.Unlock()

	chromedp.ListenTarget(listenerCtx, h.handleEvent)

	// The lock is not held here: listeners run on the tab's event loop, which
	// also has to deliver the responses to these commands.
	if err := chromedp.Run(tabCtx,
		network.Enable(),
		runtime.Enable(),
		log.Enable(),
	); err != nil {
		h.Stop()
		return err
	}

	h.logger.Debug("Harvester started and listening for events.")
	return nil
}

// Stop detaches the listener. Records already emitted stay with the sink.
func (h *Harvester) Stop() {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.cancelListener != nil {
		h.cancelListener()
		h.cancelListener = nil
	}
	h.isStarted = false
}

// WaitNetworkIdle polls until there have been no in-flight requests for quietPeriod.
func (h *Harvester) WaitNetworkIdle(ctx context.Context, quietPeriod time.Duration) error {
	interval := quietPeriod / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		h.lock.RLock()
		inflight := len(h.inflightRequests)
		idleFor := time.Since(h.lastActivity)
		h.lock.RUnlock()

		if inflight == 0 && idleFor >= quietPeriod {
			return nil
		}
		if inflight > 0 {
			h.logger.Debug("Waiting for network idle...", zap.Int("inflight_requests", inflight))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// InflightCount reports the number of requests that have not finished yet.
func (h *Harvester) InflightCount() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.inflightRequests)
}

func (h *Harvester) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	// -- Network Events --
	case *network.EventRequestWillBeSent:
		h.markRequest(e.RequestID, true)
	case *network.EventLoadingFinished:
		h.markRequest(e.RequestID, false)
	case *network.EventLoadingFailed:
		h.markRequest(e.RequestID, false)

	// -- Console and Runtime Events --
	case *runtime.EventConsoleAPICalled:
		h.sink.Emit(consoleRecord(e))
	case *runtime.EventExceptionThrown:
		if e.ExceptionDetails == nil {
			return
		}
		rec := pageErrorRecord(e.ExceptionDetails, timestampTime(e.Timestamp))
		h.logger.Debug("Page raised an uncaught exception.", zap.String("name", rec.Name), zap.String("message", rec.Message))
		h.sink.Emit(rec)
	case *log.EventEntryAdded:
		if e.Entry == nil {
			return
		}
		h.sink.Emit(diagnostics.Record{
			Kind:      diagnostics.KindLog,
			Level:     string(e.Entry.Level),
			Text:      e.Entry.Text,
			URL:       e.Entry.URL,
			Timestamp: timestampTime(e.Entry.Timestamp),
		})
	}
}

func (h *Harvester) markRequest(id network.RequestID, inflight bool) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if inflight {
		h.inflightRequests[id] = true
	} else {
		delete(h.inflightRequests, id)
	}
	h.lastActivity = time.Now()
}

// consoleRecord renders console arguments the way a devtools console would, space separated.
func consoleRecord(e *runtime.EventConsoleAPICalled) diagnostics.Record {
	var text strings.Builder
	for i, arg := range e.Args {
		if i > 0 {
			text.WriteString(" ")
		}
		text.WriteString(remoteObjectString(arg))
	}
	return diagnostics.Record{
		Kind:      diagnostics.KindConsole,
		Level:     string(e.Type),
		Text:      text.String(),
		Timestamp: timestampTime(e.Timestamp),
	}
}

func remoteObjectString(obj *runtime.RemoteObject) string {
	if obj == nil {
		return ""
	}
	var val interface{}
	if len(obj.Value) > 0 && json.Unmarshal(obj.Value, &val) == nil {
		if s, ok := val.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", val)
	}
	if obj.UnserializableValue != "" {
		return string(obj.UnserializableValue)
	}
	if obj.Description != "" {
		return obj.Description
	}
	return fmt.Sprintf("[%s]", obj.Type)
}

// pageErrorRecord splits an uncaught exception into name, message and stack.
// V8 descriptions look like "TypeError: msg\n    at fn (url:1:2)".
func pageErrorRecord(d *runtime.ExceptionDetails, ts time.Time) diagnostics.Record {
	rec := diagnostics.Record{
		Kind:      diagnostics.KindPageError,
		Level:     "error",
		Name:      "Error",
		Message:   d.Text,
		URL:       d.URL,
		Timestamp: ts,
	}

	if ex := d.Exception; ex != nil {
		if ex.ClassName != "" {
			rec.Name = ex.ClassName
		}
		switch {
		case ex.Description != "":
			first, rest, _ := strings.Cut(ex.Description, "\n")
			if msg, ok := strings.CutPrefix(first, rec.Name+": "); ok {
				rec.Message = msg
			} else if first != rec.Name {
				rec.Message = first
			} else if preview := objectPreviewString(ex.Preview); preview != "" {
				// A thrown plain object: throw {code: 1}.
				rec.Message = preview
			}
			rec.Stack = rest
		case len(ex.Value) > 0:
			// A thrown primitive: throw "boom".
			rec.Message = remoteObjectString(ex)
		}
	}

	if rec.Stack == "" && d.StackTrace != nil {
		rec.Stack = formatStackTrace(d.StackTrace)
	}
	return rec
}

// objectPreviewString renders a preview as "{code: 1, reason: x}".
func objectPreviewString(p *runtime.ObjectPreview) string {
	if p == nil || len(p.Properties) == 0 {
		return ""
	}
	props := make([]string, 0, len(p.Properties))
	for _, prop := range p.Properties {
		props = append(props, prop.Name+": "+prop.Value)
	}
	if p.Overflow {
		props = append(props, "...")
	}
	return "{" + strings.Join(props, ", ") + "}"
}

func formatStackTrace(st *runtime.StackTrace) string {
	lines := make([]string, 0, len(st.CallFrames))
	for _, f := range st.CallFrames {
		if f == nil {
			continue
		}
		fn := f.FunctionName
		if fn == "" {
			fn = "<anonymous>"
		}
		// CDP positions are zero based.
		lines = append(lines, fmt.Sprintf("    at %s (%s:%d:%d)", fn, f.URL, f.LineNumber+1, f.ColumnNumber+1))
	}
	return strings.Join(lines, "\n")
}

func timestampTime(ts *runtime.Timestamp) time.Time {
	if ts == nil {
		return time.Now()
	}
	return ts.Time()
}
