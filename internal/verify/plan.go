// internal/verify/plan.go
package verify

import (
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/visverify/internal/config"
)

// Plan is one fully specified verification run.
type Plan struct {
	Name            string        `json:"name"`
	Target          string        `json:"target"`
	Readiness       Readiness     `json:"readiness"`
	AssertVisible   []string      `json:"assert_visible,omitempty"`
	AssertTimeout   time.Duration `json:"assert_timeout,omitempty"`
	Output          string        `json:"output"`
	FailOnPageError bool          `json:"fail_on_page_error,omitempty"`
}

// PlanFromProfile builds a plan from a configured profile. An empty profile
// output falls back to defaultOutput.
func PlanFromProfile(name string, p config.ProfileConfig, defaultOutput string) Plan {
	output := p.Output
	if output == "" {
		output = defaultOutput
	}
	return Plan{
		Name:   name,
		Target: p.Target,
		Readiness: Readiness{
			Selectors:   append([]string(nil), p.Selectors...),
			Timeout:     p.Timeout,
			NetworkIdle: p.NetworkIdle,
			QuietPeriod: p.QuietPeriod,
			Delay:       p.Delay,
			Settle:      p.Settle,
		},
		AssertVisible:   append([]string(nil), p.AssertVisible...),
		AssertTimeout:   p.AssertTimeout,
		Output:          output,
		FailOnPageError: p.FailOnPageError,
	}
}

// Validate checks the plan before any browser is started.
func (p Plan) Validate() error {
	if strings.TrimSpace(p.Target) == "" {
		return fmt.Errorf("plan %q has no target", p.Name)
	}
	if strings.TrimSpace(p.Output) == "" {
		return fmt.Errorf("plan %q has no output path", p.Name)
	}
	if err := p.Readiness.Validate(); err != nil {
		return fmt.Errorf("plan %q: %w", p.Name, err)
	}
	if p.AssertTimeout < 0 {
		return fmt.Errorf("plan %q: assert timeout must not be negative", p.Name)
	}
	for _, sel := range p.AssertVisible {
		if strings.TrimSpace(sel) == "" {
			return fmt.Errorf("plan %q: visibility assertions must not be empty", p.Name)
		}
	}
	return nil
}

func (p Plan) withDefaults() Plan {
	p.Readiness = p.Readiness.withDefaults()
	if p.AssertTimeout == 0 {
		p.AssertTimeout = DefaultAssertTimeout
	}
	return p
}
