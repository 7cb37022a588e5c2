// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/visverify/internal/artifact"
	"github.com/xkilldash9x/visverify/internal/browser"
	"github.com/xkilldash9x/visverify/internal/config"
	"github.com/xkilldash9x/visverify/internal/diagnostics"
	"github.com/xkilldash9x/visverify/internal/observability"
	"github.com/xkilldash9x/visverify/internal/reporting"
	"github.com/xkilldash9x/visverify/internal/verify"
)

// adHocPlan names a run built purely from flags.
const adHocPlan = "adhoc"

// runFlags holds the command line overrides for a plan.
type runFlags struct {
	target          string
	selectors       []string
	timeout         time.Duration
	delay           time.Duration
	settle          time.Duration
	networkIdle     bool
	assertVisible   []string
	output          string
	report          string
	failOnPageError bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	flags := &runFlags{}

	runCmd := &cobra.Command{
		Use:   "run [profile]",
		Short: "Runs a verification check and saves a screenshot",
		Long: `Runs one verification check. The check comes from a named profile, the
run.default_profile setting, or flags alone. Flags override profile values.

Exit codes: 0 success, 2 navigation error, 3 timeout, 4 assertion failure,
5 page runtime error, 1 anything else.`,
		Example: `  visverify run demo
  visverify run map --output out/map.png
  visverify run --target ./Index.html --selector .atlas-tile-loaded --report run.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := resolvePlan(root.cfg, args, flags, cmd.Flags().Changed)
			if err != nil {
				return err
			}
			reportPath := root.cfg.Artifact.Report
			if cmd.Flags().Changed("report") {
				reportPath = flags.report
			}
			return runVerification(cmd.Context(), root, plan, reportPath, cmd.OutOrStdout())
		},
	}

	f := runCmd.Flags()
	f.StringVarP(&flags.target, "target", "t", "", "URL or local HTML file to verify")
	f.StringArrayVarP(&flags.selectors, "selector", "s", nil, "CSS selector that must be present before capture (repeatable)")
	f.DurationVar(&flags.timeout, "timeout", 0, "deadline for each selector and the network idle wait")
	f.DurationVar(&flags.delay, "delay", 0, "fixed wait before capture, used only without selectors or network idle")
	f.DurationVar(&flags.settle, "settle", 0, "extra pause after readiness conditions resolve")
	f.BoolVar(&flags.networkIdle, "network-idle", false, "wait until the network has been idle")
	f.StringArrayVar(&flags.assertVisible, "assert-visible", nil, "CSS selector that must be visible before capture (repeatable)")
	f.StringVarP(&flags.output, "output", "o", "", "screenshot output path")
	f.StringVar(&flags.report, "report", "", "write a run report to this path (.json or .txt)")
	f.BoolVar(&flags.failOnPageError, "fail-on-page-error", false, "fail the run when the page raises an uncaught error")

	return runCmd
}

// resolvePlan picks the profile and applies flag overrides. changed reports
// whether a flag was set explicitly.
func resolvePlan(cfg *config.Config, args []string, flags *runFlags, changed func(string) bool) (verify.Plan, error) {
	name := cfg.Run.DefaultProfile
	if len(args) == 1 {
		name = args[0]
	}

	var profile config.ProfileConfig
	if name != "" {
		// Viper lowercases map keys.
		p, ok := cfg.Profile(strings.ToLower(name))
		if !ok {
			return verify.Plan{}, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(cfg.ProfileNames(), ", "))
		}
		profile = p
	} else {
		if !changed("target") {
			return verify.Plan{}, errors.New("no profile given and --target not set")
		}
		name = adHocPlan
	}

	plan := verify.PlanFromProfile(strings.ToLower(name), profile, cfg.Artifact.Output)

	if changed("target") {
		plan.Target = flags.target
	}
	if changed("selector") {
		plan.Readiness.Selectors = flags.selectors
	}
	if changed("timeout") {
		plan.Readiness.Timeout = flags.timeout
	}
	if changed("delay") {
		plan.Readiness.Delay = flags.delay
	}
	if changed("settle") {
		plan.Readiness.Settle = flags.settle
	}
	if changed("network-idle") {
		plan.Readiness.NetworkIdle = flags.networkIdle
	}
	if changed("assert-visible") {
		plan.AssertVisible = flags.assertVisible
	}
	if changed("output") {
		plan.Output = flags.output
	}
	if changed("fail-on-page-error") {
		plan.FailOnPageError = flags.failOnPageError
	}
	return plan, nil
}

// runVerification wires the browser, runner and reporter for one plan.
func runVerification(ctx context.Context, root *rootOptions, plan verify.Plan, reportPath string, stdout io.Writer) error {
	cfg := root.cfg
	logger := observability.GetLogger()

	launcher, cleanup, err := root.launch(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize browser: %w", err)
	}
	defer cleanup()

	runCtx, cancel := context.WithTimeout(ctx, cfg.Run.Timeout)
	defer cancel()

	runner := verify.NewRunner(launcher, artifact.NewStore(root.fs), diagnostics.NewPrinter(stdout), logger)
	res, runErr := runner.Run(runCtx, plan)

	if reportPath != "" {
		if err := writeReport(root, reportPath, res); err != nil {
			logger.Error("Failed to write run report", zap.String("path", reportPath), zap.Error(err))
			if runErr == nil {
				return err
			}
		}
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn("Verification aborted by signal", zap.String("plan", plan.Name))
		}
		return fmt.Errorf("verification %q failed: %w", plan.Name, runErr)
	}
	return nil
}

func writeReport(root *rootOptions, path string, res *verify.Result) error {
	resolved, err := artifact.Resolve(path)
	if err != nil {
		return err
	}
	if err := reporting.WriteFile(root.fs, resolved, Version, res); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// browserLauncher opens pages on a chromedp-managed Chrome.
func browserLauncher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (verify.Launcher, func(), error) {
	mgr, err := browser.NewManager(ctx, cfg.Browser, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Run.ShutdownTimeout)
		defer cancel()
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Browser shutdown did not complete cleanly", zap.Error(err))
		}
	}
	launcher := verify.LauncherFunc(func(ctx context.Context, sink diagnostics.Sink) (verify.Page, error) {
		session, err := mgr.Open(ctx, sink)
		if err != nil {
			return nil, err
		}
		return session, nil
	})
	return launcher, cleanup, nil
}
