// internal/reporting/json_reporter.go
package reporting

import (
	"fmt"
	"io"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/visverify/internal/observability"
	"github.com/xkilldash9x/visverify/internal/verify"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Document is the top-level JSON report.
type Document struct {
	Tool        string           `json:"tool"`
	Version     string           `json:"version"`
	GeneratedAt time.Time        `json:"generated_at"`
	Passed      int              `json:"passed"`
	Failed      int              `json:"failed"`
	Runs        []*verify.Result `json:"runs"`
}

// JSONReporter buffers results and writes one indented document on Close.
// It is thread safe.
type JSONReporter struct {
	writer io.WriteCloser
	logger *zap.Logger
	mu     sync.Mutex
	doc    *Document
}

// NewJSONReporter creates a reporter that takes ownership of writer.
func NewJSONReporter(writer io.WriteCloser, toolVersion string) *JSONReporter {
	return &JSONReporter{
		writer: writer,
		logger: observability.GetLogger().Named("json_reporter"),
		doc: &Document{
			Tool:    ToolName,
			Version: toolVersion,
			// Initialize empty slices (not nil) for proper JSON marshalling
			Runs: []*verify.Result{},
		},
	}
}

// Write adds a result to the document.
func (r *JSONReporter) Write(result *verify.Result) error {
	if result == nil {
		return fmt.Errorf("cannot report a nil result")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.doc.Runs = append(r.doc.Runs, result)
	if result.Status == verify.StatusPassed {
		r.doc.Passed++
	} else {
		r.doc.Failed++
	}
	return nil
}

// Close encodes the document and closes the writer.
func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.doc.GeneratedAt = time.Now().UTC()
	data, encodeErr := json.MarshalIndent(r.doc, "", "  ")
	if encodeErr == nil {
		data = append(data, '\n')
		_, encodeErr = r.writer.Write(data)
	}
	// Always attempt to close the writer, regardless of encoding success.
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to write JSON report", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode JSON report: %w", encodeErr)
	}
	if closeErr != nil {
		r.logger.Error("Failed to close output writer", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}

	r.logger.Debug("Wrote JSON report", zap.Int("runs", len(r.doc.Runs)))
	return nil
}
