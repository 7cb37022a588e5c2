// internal/verify/readiness.go
package verify

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultSelectorTimeout = 30 * time.Second
	DefaultQuietPeriod     = 500 * time.Millisecond
	DefaultAssertTimeout   = 5 * time.Second
)

// Readiness describes what must hold before the page is captured.
type Readiness struct {
	// Selectors must each match an element in the DOM.
	Selectors []string `json:"selectors,omitempty"`
	// Timeout bounds each explicit wait (selectors and network idle).
	Timeout time.Duration `json:"timeout,omitempty"`
	// NetworkIdle waits until no request has been in flight for QuietPeriod.
	NetworkIdle bool          `json:"network_idle,omitempty"`
	QuietPeriod time.Duration `json:"quiet_period,omitempty"`
	// Delay is an unconditional wait, used only when no explicit condition is set.
	Delay time.Duration `json:"delay,omitempty"`
	// Settle is a pause after the explicit conditions resolved.
	Settle time.Duration `json:"settle,omitempty"`
}

// Explicit reports whether the readiness has any condition beyond elapsed time.
func (r Readiness) Explicit() bool {
	return len(r.Selectors) > 0 || r.NetworkIdle
}

// Mode is a short label for logs and reports.
func (r Readiness) Mode() string {
	var parts []string
	if r.NetworkIdle {
		parts = append(parts, "network-idle")
	}
	if len(r.Selectors) > 0 {
		parts = append(parts, "selectors")
	}
	if len(parts) == 0 {
		return "delay"
	}
	return strings.Join(parts, "+")
}

// Validate rejects a readiness that cannot be waited on.
func (r Readiness) Validate() error {
	if !r.Explicit() && r.Delay <= 0 {
		return fmt.Errorf("readiness needs selectors, network idle, or a positive delay")
	}
	if r.Timeout < 0 || r.QuietPeriod < 0 || r.Delay < 0 || r.Settle < 0 {
		return fmt.Errorf("readiness durations must not be negative")
	}
	for _, sel := range r.Selectors {
		if strings.TrimSpace(sel) == "" {
			return fmt.Errorf("readiness selectors must not be empty")
		}
	}
	return nil
}

// withDefaults fills unset durations.
func (r Readiness) withDefaults() Readiness {
	if r.Timeout == 0 {
		r.Timeout = DefaultSelectorTimeout
	}
	if r.NetworkIdle && r.QuietPeriod == 0 {
		r.QuietPeriod = DefaultQuietPeriod
	}
	return r
}
