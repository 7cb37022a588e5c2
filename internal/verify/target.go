// internal/verify/target.go
package verify

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
)

// Schemes that are handed to the browser as-is.
var passthroughSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"file":  true,
	"data":  true,
	"about": true,
}

// Target is the page a run loads.
type Target struct {
	// Raw is the reference as configured.
	Raw string `json:"raw"`
	// URL is what the browser navigates to.
	URL string `json:"url"`
	// Path is the local file backing the target, empty for remote targets.
	Path string `json:"path,omitempty"`
}

// ResolveTarget turns a URL or local path into a navigable Target. Local
// paths are checked on fs: they must exist and be regular files.
func ResolveTarget(fs afero.Fs, raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, newError(CodeInvalidPlan, "resolve target", fmt.Errorf("target is empty"))
	}

	if u, err := url.Parse(raw); err == nil && passthroughSchemes[strings.ToLower(u.Scheme)] {
		t := Target{Raw: raw, URL: raw}
		if strings.EqualFold(u.Scheme, "file") {
			t.Path = filepath.FromSlash(u.Path)
		}
		return t, nil
	}

	expanded, err := homedir.Expand(raw)
	if err != nil {
		return Target{}, newError(CodeNavigation, "resolve target", fmt.Errorf("failed to expand %q: %w", raw, err))
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return Target{}, newError(CodeNavigation, "resolve target", fmt.Errorf("failed to make %q absolute: %w", raw, err))
	}

	info, err := fs.Stat(abs)
	if err != nil {
		return Target{}, newError(CodeNavigation, "resolve target", fmt.Errorf("target file %s: %w", abs, err))
	}
	if !info.Mode().IsRegular() {
		return Target{}, newError(CodeNavigation, "resolve target", fmt.Errorf("target %s is not a regular file", abs))
	}

	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return Target{Raw: raw, URL: u.String(), Path: abs}, nil
}
