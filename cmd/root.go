// -- cmd/root.go --
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/visverify/internal/config"
	"github.com/xkilldash9x/visverify/internal/observability"
	"github.com/xkilldash9x/visverify/internal/verify"
)

// launchFunc builds the page launcher for a run. The returned cleanup
// releases the browser and must always be called.
type launchFunc func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (verify.Launcher, func(), error)

// rootOptions is the state shared by the command tree of one invocation.
type rootOptions struct {
	cfgFile string
	verbose bool
	quiet   bool
	v       *viper.Viper
	cfg     *config.Config

	fs     afero.Fs
	launch launchFunc
}

// NewRootCommand builds the visverify command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&rootOptions{
		v:      viper.New(),
		fs:     afero.NewOsFs(),
		launch: browserLauncher,
	})
}

func newRootCommand(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "visverify",
		Short: "Visverify renders a page in headless Chrome and captures a verification screenshot.",
		Long: `Visverify loads a local HTML file or URL in headless Chrome, waits for the
page to be ready (selectors, network idle, or a fixed delay), forwards console
output and page errors to stdout, and saves a full-page screenshot.`,
		// Version is dynamically set at build time. See cmd/version.go.
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// This function runs before any command, setting up config and logging.
			cfg, err := config.Load(opts.v, opts.cfgFile)
			if err != nil {
				// Initialize a fallback logger so the failure is still reported consistently.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", Color: "auto", ServiceName: "visverify"})
				return err
			}
			opts.cfg = cfg
			applyVerbosity(&cfg.Logger, opts.verbose, opts.quiet)
			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting visverify", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "config file (default is ./visverify.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")
	rootCmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "only log warnings and errors")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.AddCommand(
		newRunCmd(opts),
		newProfilesCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// applyVerbosity lets --verbose and --quiet override logger.level.
func applyVerbosity(cfg *config.LoggerConfig, verbose, quiet bool) {
	switch {
	case verbose:
		cfg.Level = "debug"
	case quiet:
		cfg.Level = "warn"
	}
}

// Execute runs the command tree with a signal-aware context.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	}
	return err
}
