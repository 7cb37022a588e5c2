// internal/browser/harvester_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/visverify/internal/diagnostics"
)

func newTestHarvester(t *testing.T) (*Harvester, *diagnostics.Collector) {
	t.Helper()
	c := diagnostics.NewCollector()
	return NewHarvester(zaptest.NewLogger(t), c), c
}

func TestHarvester_ConsoleEvents(t *testing.T) {
	h, c := newTestHarvester(t)

	h.handleEvent(&runtime.EventConsoleAPICalled{
		Type: runtime.APITypeLog,
		Args: []*runtime.RemoteObject{
			{Type: runtime.TypeString, Value: []byte(`"tiles loaded:"`)},
			{Type: runtime.TypeNumber, Value: []byte(`12`)},
			{Type: runtime.TypeObject, Description: "HTMLDivElement"},
			{Type: runtime.TypeUndefined},
		},
	})

	records := c.Records()
	require.Len(t, records, 1)
	assert.Equal(t, diagnostics.KindConsole, records[0].Kind)
	assert.Equal(t, "log", records[0].Level)
	assert.Equal(t, "tiles loaded: 12 HTMLDivElement [undefined]", records[0].Text)
	assert.False(t, records[0].Timestamp.IsZero())
}

func TestHarvester_ExceptionEvents(t *testing.T) {
	t.Run("error object with V8 stack", func(t *testing.T) {
		h, c := newTestHarvester(t)

		h.handleEvent(&runtime.EventExceptionThrown{
			ExceptionDetails: &runtime.ExceptionDetails{
				Text: "Uncaught",
				URL:  "file:///srv/Index.html",
				Exception: &runtime.RemoteObject{
					Type:        runtime.TypeObject,
					ClassName:   "TypeError",
					Description: "TypeError: Cannot read properties of undefined (reading 'lat')\n    at project (file:///srv/atlas.js:10:3)",
				},
			},
		})

		errs := c.PageErrors()
		require.Len(t, errs, 1)
		assert.Equal(t, "TypeError", errs[0].Name)
		assert.Equal(t, "Cannot read properties of undefined (reading 'lat')", errs[0].Message)
		assert.Equal(t, "    at project (file:///srv/atlas.js:10:3)", errs[0].Stack)
		assert.Equal(t, "file:///srv/Index.html", errs[0].URL)
	})

	t.Run("thrown primitive falls back to the stack trace", func(t *testing.T) {
		h, c := newTestHarvester(t)

		h.handleEvent(&runtime.EventExceptionThrown{
			ExceptionDetails: &runtime.ExceptionDetails{
				Text:      "Uncaught",
				Exception: &runtime.RemoteObject{Type: runtime.TypeString, Value: []byte(`"boom"`)},
				StackTrace: &runtime.StackTrace{
					CallFrames: []*runtime.CallFrame{
						{FunctionName: "", URL: "http://localhost/a.js", LineNumber: 0, ColumnNumber: 4},
						{FunctionName: "init", URL: "http://localhost/a.js", LineNumber: 9, ColumnNumber: 0},
					},
				},
			},
		})

		errs := c.PageErrors()
		require.Len(t, errs, 1)
		assert.Equal(t, "Error", errs[0].Name)
		assert.Equal(t, "boom", errs[0].Message)
		assert.Equal(t, "    at <anonymous> (http://localhost/a.js:1:5)\n    at init (http://localhost/a.js:10:1)", errs[0].Stack)
	})

	t.Run("thrown plain object keeps a message", func(t *testing.T) {
		h, c := newTestHarvester(t)

		h.handleEvent(&runtime.EventExceptionThrown{
			ExceptionDetails: &runtime.ExceptionDetails{
				Text: "Uncaught",
				Exception: &runtime.RemoteObject{
					Type:        runtime.TypeObject,
					ClassName:   "Object",
					Description: "Object",
				},
			},
		})
		h.handleEvent(&runtime.EventExceptionThrown{
			ExceptionDetails: &runtime.ExceptionDetails{
				Text: "Uncaught",
				Exception: &runtime.RemoteObject{
					Type:        runtime.TypeObject,
					ClassName:   "Object",
					Description: "Object",
					Preview: &runtime.ObjectPreview{
						Type: runtime.TypeObject,
						Properties: []*runtime.PropertyPreview{
							{Name: "code", Type: runtime.TypeNumber, Value: "1"},
							{Name: "layer", Type: runtime.TypeString, Value: "tiles"},
						},
					},
				},
			},
		})

		errs := c.PageErrors()
		require.Len(t, errs, 2)
		assert.Equal(t, "Object", errs[0].Name)
		assert.Equal(t, "Uncaught", errs[0].Message)
		assert.Equal(t, "Object", errs[1].Name)
		assert.Equal(t, "{code: 1, layer: tiles}", errs[1].Message)
	})

	t.Run("description without a name prefix is kept whole", func(t *testing.T) {
		h, c := newTestHarvester(t)

		h.handleEvent(&runtime.EventExceptionThrown{
			ExceptionDetails: &runtime.ExceptionDetails{
				Text: "Uncaught",
				Exception: &runtime.RemoteObject{
					Type:        runtime.TypeObject,
					ClassName:   "TileError",
					Description: "tile 4/2/7 missing\n    at load (http://localhost/a.js:3:1)",
				},
			},
		})

		errs := c.PageErrors()
		require.Len(t, errs, 1)
		assert.Equal(t, "TileError", errs[0].Name)
		assert.Equal(t, "tile 4/2/7 missing", errs[0].Message)
	})

	t.Run("missing details are ignored", func(t *testing.T) {
		h, c := newTestHarvester(t)
		h.handleEvent(&runtime.EventExceptionThrown{})
		assert.Empty(t, c.Records())
	})
}

func TestHarvester_LogEntries(t *testing.T) {
	h, c := newTestHarvester(t)

	h.handleEvent(&log.EventEntryAdded{Entry: &log.Entry{
		Source: log.Source("network"),
		Level:  log.LevelError,
		Text:   "Failed to load resource: net::ERR_FILE_NOT_FOUND",
		URL:    "file:///srv/tiles/0/0/0.png",
	}})
	h.handleEvent(&log.EventEntryAdded{})

	records := c.Records()
	require.Len(t, records, 1)
	assert.Equal(t, diagnostics.KindLog, records[0].Kind)
	assert.Equal(t, "error", records[0].Level)
	assert.Equal(t, "file:///srv/tiles/0/0/0.png", records[0].URL)
}

func TestHarvester_WaitNetworkIdle(t *testing.T) {
	t.Run("returns once requests finish and the quiet period passes", func(t *testing.T) {
		h, _ := newTestHarvester(t)
		h.handleEvent(&network.EventRequestWillBeSent{RequestID: "1"})
		h.handleEvent(&network.EventRequestWillBeSent{RequestID: "2"})
		assert.Equal(t, 2, h.InflightCount())

		go func() {
			time.Sleep(30 * time.Millisecond)
			h.handleEvent(&network.EventLoadingFinished{RequestID: "1"})
			h.handleEvent(&network.EventLoadingFailed{RequestID: "2"})
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		start := time.Now()
		require.NoError(t, h.WaitNetworkIdle(ctx, 50*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
		assert.Zero(t, h.InflightCount())
	})

	t.Run("times out while a request is pending", func(t *testing.T) {
		h, _ := newTestHarvester(t)
		h.handleEvent(&network.EventRequestWillBeSent{RequestID: "stuck"})

		ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
		defer cancel()

		err := h.WaitNetworkIdle(ctx, 20*time.Millisecond)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestHarvester_NilSinkDiscards(t *testing.T) {
	h := NewHarvester(zaptest.NewLogger(t), nil)
	assert.NotPanics(t, func() {
		h.handleEvent(&runtime.EventConsoleAPICalled{Type: runtime.APITypeWarning})
	})
	// Stop on a harvester that never started is a no-op.
	assert.NotPanics(t, h.Stop)
}
