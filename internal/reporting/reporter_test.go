// internal/reporting/reporter_test.go
package reporting_test

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/visverify/internal/diagnostics"
	"github.com/xkilldash9x/visverify/internal/reporting"
	"github.com/xkilldash9x/visverify/internal/verify"
)

const testToolVersion = "v1.0.0-test"

func passedResult() *verify.Result {
	return &verify.Result{
		RunID:        "7f1c2b8e-0000-4000-8000-000000000001",
		Plan:         "map",
		Target:       verify.Target{Raw: "Index.html", URL: "file:///srv/atlas/Index.html", Path: "/srv/atlas/Index.html"},
		Readiness:    "selectors",
		Status:       verify.StatusPassed,
		Artifact:     "jules-scratch/verification/verification.png",
		ArtifactSize: 4096,
		StartedAt:    time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
		DurationMS:   1234,
		Diagnostics: []diagnostics.Record{
			{Kind: diagnostics.KindConsole, Level: "log", Text: "tiles loaded: 12"},
		},
	}
}

func failedResult() *verify.Result {
	return &verify.Result{
		Plan:      "demo",
		Readiness: "delay",
		Status:    verify.StatusFailed,
		ErrorCode: verify.CodeNavigation,
		Error:     "NAVIGATION_ERROR: navigate to http://localhost:8000/A/demo.html: HTTP status 404",
		Diagnostics: []diagnostics.Record{
			{Kind: diagnostics.KindPageError, Name: "TypeError", Message: "x is undefined"},
		},
	}
}

func TestNew_UnsupportedFormat(t *testing.T) {
	fs := afero.NewMemMapFs()
	r, err := reporting.New(fs, "sarif", "/reports/out.sarif", testToolVersion)
	assert.Nil(t, r)
	assert.EqualError(t, err, "unsupported output format: sarif")

	exists, err := afero.Exists(fs, "/reports/out.sarif")
	require.NoError(t, err)
	assert.False(t, exists, "nothing is created for an unsupported format")
}

func TestNew_StdoutIsNotClosed(t *testing.T) {
	r, err := reporting.New(nil, "text", "stdout", testToolVersion)
	require.NoError(t, err)
	assert.NoError(t, r.Close())
}

func TestJSONReporter_Document(t *testing.T) {
	fs := afero.NewMemMapFs()
	r, err := reporting.New(fs, "json", "/reports/nested/run.json", testToolVersion)
	require.NoError(t, err)

	require.NoError(t, r.Write(passedResult()))
	require.NoError(t, r.Write(failedResult()))
	assert.Error(t, r.Write(nil))
	require.NoError(t, r.Close())

	data, err := afero.ReadFile(fs, "/reports/nested/run.json")
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, jsoniter.Unmarshal(data, &doc))
	assert.Equal(t, "visverify", doc["tool"])
	assert.Equal(t, testToolVersion, doc["version"])
	assert.EqualValues(t, 1, doc["passed"])
	assert.EqualValues(t, 1, doc["failed"])

	runs, ok := doc["runs"].([]interface{})
	require.True(t, ok)
	require.Len(t, runs, 2)

	first := runs[0].(map[string]interface{})
	assert.Equal(t, "passed", first["status"])
	assert.Equal(t, "file:///srv/atlas/Index.html", first["target"].(map[string]interface{})["url"])
	assert.EqualValues(t, 4096, first["artifact_size"])
	assert.NotContains(t, first, "error_code", "empty fields are omitted")

	second := runs[1].(map[string]interface{})
	assert.Equal(t, "NAVIGATION_ERROR", second["error_code"])
	diags := second["diagnostics"].([]interface{})
	assert.Equal(t, "pageerror", diags[0].(map[string]interface{})["kind"])
}

func TestJSONReporter_EmptyRunsIsArray(t *testing.T) {
	fs := afero.NewMemMapFs()
	r, err := reporting.New(fs, "json", "/empty.json", testToolVersion)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	data, err := afero.ReadFile(fs, "/empty.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"runs": []`)
}

type failingWriter struct {
	closed bool
}

func (w *failingWriter) Write(p []byte) (int, error) { return 0, errors.New("disk full") }
func (w *failingWriter) Close() error { w.closed = true; return nil }

var _ io.WriteCloser = (*failingWriter)(nil)

type recordingWriter struct {
	strings.Builder
	closed bool
}

func (w *recordingWriter) Close() error { w.closed = true; return nil }

func TestJSONReporter_WriteErrorStillCloses(t *testing.T) {
	w := &failingWriter{}
	r := reporting.NewJSONReporter(w, testToolVersion)
	require.NoError(t, r.Write(passedResult()))

	err := r.Close()
	assert.ErrorContains(t, err, "disk full")
	assert.True(t, w.closed)
}

func TestTextReporter_WritesEachResult(t *testing.T) {
	w := &recordingWriter{}
	r := reporting.NewTextReporter(w)

	require.NoError(t, r.Write(passedResult()))
	require.NoError(t, r.Write(failedResult()))
	assert.ErrorContains(t, r.Write(nil), "nil result")
	require.NoError(t, r.Close())

	assert.Equal(t, reporting.FormatText(passedResult())+reporting.FormatText(failedResult()), w.String())
	assert.True(t, w.closed)
}

func TestFormatText(t *testing.T) {
	assert.Equal(t,
		"PASSED map (selectors) in 1234ms\n"+
			"  target:   file:///srv/atlas/Index.html\n"+
			"  artifact: jules-scratch/verification/verification.png (4096 bytes)\n"+
			"  diagnostics: 1 console, 0 page error(s)\n",
		reporting.FormatText(passedResult()))

	assert.Equal(t,
		"FAILED demo (delay) in 0ms\n"+
			"  error:    NAVIGATION_ERROR: navigate to http://localhost:8000/A/demo.html: HTTP status 404\n"+
			"  diagnostics: 0 console, 1 page error(s)\n",
		reporting.FormatText(failedResult()))
}

func TestWriteFile_PicksFormatByExtension(t *testing.T) {
	fs := afero.NewMemMapFs()

	require.NoError(t, reporting.WriteFile(fs, "/out/report.txt", testToolVersion, failedResult()))
	text, err := afero.ReadFile(fs, "/out/report.txt")
	require.NoError(t, err)
	assert.Equal(t, reporting.FormatText(failedResult()), string(text))

	require.NoError(t, reporting.WriteFile(fs, "/out/report.json", testToolVersion, passedResult()))
	data, err := afero.ReadFile(fs, "/out/report.json")
	require.NoError(t, err)
	assert.True(t, jsoniter.Valid(data))
}
