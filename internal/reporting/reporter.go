// -- internal/reporting/reporter.go --
package reporting

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/xkilldash9x/visverify/internal/verify"
)

// ToolName identifies the producer in written reports.
const ToolName = "visverify"

// Reporter defines the interface for writing verification results to an output.
type Reporter interface {
	// Write records a single run result.
	Write(result *verify.Result) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format writing to outputPath on fs. An empty
// path or "stdout" writes to standard output.
func New(fs afero.Fs, format, outputPath, toolVersion string) (Reporter, error) {
	switch format {
	case "json", "text":
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		if fs == nil {
			fs = afero.NewOsFs()
		}
		if err := fs.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create report directory for %s: %w", outputPath, err)
		}
		f, err := fs.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	if format == "text" {
		return NewTextReporter(writer), nil
	}
	return NewJSONReporter(writer, toolVersion), nil
}

// WriteFile writes a single result as a report at path. Format is chosen by
// extension: ".txt" and ".log" give text, anything else JSON.
func WriteFile(fs afero.Fs, path, toolVersion string, result *verify.Result) (err error) {
	format := "json"
	switch filepath.Ext(path) {
	case ".txt", ".log":
		format = "text"
	}

	r, err := New(fs, format, path, toolVersion)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return r.Write(result)
}
