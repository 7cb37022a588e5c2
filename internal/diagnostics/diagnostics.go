// Package diagnostics carries what the page reports about itself while it is
// being verified: console output, uncaught exceptions, and browser log entries.
package diagnostics

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Kind classifies a diagnostic record.
type Kind string

const (
	// KindConsole is a console API call made by page script (console.log, console.error, ...).
	KindConsole Kind = "console"
	// KindPageError is an uncaught exception thrown by page script.
	KindPageError Kind = "pageerror"
	// KindLog is an entry emitted by the browser itself (failed resource loads, violations).
	KindLog Kind = "log"
)

// Record is a single diagnostic emitted by the page under test.
type Record struct {
	Kind      Kind      `json:"kind"`
	Level     string    `json:"level,omitempty"`
	Text      string    `json:"text,omitempty"`
	Name      string    `json:"name,omitempty"`
	Message   string    `json:"message,omitempty"`
	Stack     string    `json:"stack,omitempty"`
	URL       string    `json:"url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives diagnostic records. Implementations must be safe for
// concurrent use; records arrive on the browser's event goroutine.
type Sink interface {
	Emit(Record)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Record)

// Emit calls f(r).
func (f SinkFunc) Emit(r Record) { f(r) }

// Discard drops every record.
var Discard Sink = SinkFunc(func(Record) {})

// Tee fans a record out to every sink in order.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(r Record) {
		for _, s := range sinks {
			if s != nil {
				s.Emit(r)
			}
		}
	})
}

// Format renders a record as the lines written to the diagnostics channel.
func Format(r Record) string {
	switch r.Kind {
	case KindPageError:
		var b strings.Builder
		fmt.Fprintf(&b, "PAGE ERROR: %s: %s", r.Name, r.Message)
		if r.Stack != "" {
			b.WriteString("\n")
			b.WriteString(r.Stack)
		}
		return b.String()
	case KindLog:
		return fmt.Sprintf("BROWSER LOG [%s]: %s", r.Level, r.Text)
	default:
		return "CONSOLE: " + r.Text
	}
}

// Printer writes formatted records to an io.Writer, one record per line group.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Emit writes r. Write errors are ignored; the channel is best effort.
func (p *Printer) Emit(r Record) {
	line := Format(r)
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.w, line)
}

// Collector retains every record it receives.
type Collector struct {
	mu      sync.Mutex
	records []Record
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Emit stores r.
func (c *Collector) Emit(r Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
}

// Records returns a copy of the collected records in arrival order.
func (c *Collector) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

// PageErrors returns only the page error records.
func (c *Collector) PageErrors() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Record
	for _, r := range c.records {
		if r.Kind == KindPageError {
			out = append(out, r)
		}
	}
	return out
}
