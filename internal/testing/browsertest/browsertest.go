// Package browsertest holds shared setup for tests that drive a real Chrome.
package browsertest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/xkilldash9x/visverify/internal/config"
)

// ChromeEnv names an explicit Chrome binary for integration tests.
const ChromeEnv = "VISVERIFY_CHROME"

var chromeCandidates = []string{
	"headless-shell",
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"chrome",
}

// FindChrome returns the path of a usable Chrome binary, or "" when none is installed.
func FindChrome() string {
	if p := os.Getenv(ChromeEnv); p != "" {
		return p
	}
	for _, name := range chromeCandidates {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

// RequireChrome skips the test in -short mode or when no Chrome binary is available.
// It returns the binary path.
func RequireChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser integration test in short mode")
	}
	path := FindChrome()
	if path == "" {
		t.Skipf("no Chrome/Chromium binary found; set %s to run browser integration tests", ChromeEnv)
	}
	return path
}

// BrowserConfig returns a browser configuration tuned for tests: headless,
// sandbox off, an isolated profile directory, and short navigation timeouts.
func BrowserConfig(t *testing.T, execPath string) config.BrowserConfig {
	t.Helper()
	return config.BrowserConfig{
		Headless:          true,
		NoSandbox:         true,
		DisableGPU:        true,
		ExecPath:          execPath,
		UserDataDir:       t.TempDir(),
		Viewport:          config.ViewportConfig{Width: 800, Height: 600},
		NavigationTimeout: 30 * time.Second,
	}
}

// StaticServer serves html at every path and closes when the test ends.
func StaticServer(t *testing.T, html string) *httptest.Server {
	t.Helper()
	return Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintln(w, html)
	}))
}

// Server starts handler and closes it when the test ends.
func Server(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}
