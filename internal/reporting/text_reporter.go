// internal/reporting/text_reporter.go
package reporting

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/xkilldash9x/visverify/internal/diagnostics"
	"github.com/xkilldash9x/visverify/internal/verify"
)

// TextReporter writes one human readable block per result as it arrives.
type TextReporter struct {
	writer io.WriteCloser
	mu     sync.Mutex
}

// NewTextReporter creates a reporter that writes text summaries to writer.
func NewTextReporter(writer io.WriteCloser) *TextReporter {
	return &TextReporter{writer: writer}
}

// Write renders the result immediately; it is safe for concurrent use.
func (r *TextReporter) Write(result *verify.Result) error {
	if result == nil {
		return fmt.Errorf("cannot report a nil result")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := io.WriteString(r.writer, FormatText(result))
	return err
}

// Close closes the underlying writer.
func (r *TextReporter) Close() error {
	return r.writer.Close()
}

// FormatText renders a result summary, ending in a newline.
func FormatText(res *verify.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s (%s) in %dms\n", strings.ToUpper(string(res.Status)), res.Plan, res.Readiness, res.DurationMS)
	if res.Target.URL != "" {
		fmt.Fprintf(&b, "  target:   %s\n", res.Target.URL)
	}
	if res.Artifact != "" {
		fmt.Fprintf(&b, "  artifact: %s (%d bytes)\n", res.Artifact, res.ArtifactSize)
	}
	if res.Error != "" {
		fmt.Fprintf(&b, "  error:    %s\n", res.Error)
	}

	var pageErrors, console int
	for _, d := range res.Diagnostics {
		switch d.Kind {
		case diagnostics.KindPageError:
			pageErrors++
		case diagnostics.KindConsole:
			console++
		}
	}
	fmt.Fprintf(&b, "  diagnostics: %d console, %d page error(s)\n", console, pageErrors)
	return b.String()
}
