// File: internal/config/config.go
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultOutput is where a verification screenshot lands when neither the
// profile nor the command line names another path.
const DefaultOutput = "jules-scratch/verification/verification.png"

// EnvPrefix is the prefix for environment variable overrides (VISVERIFY_LOGGER_LEVEL, ...).
const EnvPrefix = "VISVERIFY"

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig             `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig            `mapstructure:"browser" yaml:"browser"`
	Artifact ArtifactConfig           `mapstructure:"artifact" yaml:"artifact"`
	Run      RunConfig                `mapstructure:"run" yaml:"run"`
	Profiles map[string]ProfileConfig `mapstructure:"profiles" yaml:"profiles"`
}

// LoggerConfig holds all the configuration for the logger. Logs always go to
// stderr; stdout carries page diagnostics. Color is "auto", "always" or
// "never"; auto colours console output on a terminal unless NO_COLOR is set.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	Color       string `mapstructure:"color" yaml:"color"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the headless browser process.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	NoSandbox       bool           `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	DisableGPU      bool           `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ExecPath        string         `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir     string         `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	Debug           bool           `mapstructure:"debug" yaml:"debug"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	// NavigationTimeout bounds a single page load.
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// ViewportConfig is the window size used for rendering and screenshots.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// ArtifactConfig controls where run outputs are written.
type ArtifactConfig struct {
	Output string `mapstructure:"output" yaml:"output"`
	// Report, when set, receives a JSON summary of the run.
	Report string `mapstructure:"report" yaml:"report"`
}

// RunConfig holds settings that apply to every verification run.
type RunConfig struct {
	DefaultProfile  string        `mapstructure:"default_profile" yaml:"default_profile"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ProfileConfig describes one named verification check.
type ProfileConfig struct {
	Description     string        `mapstructure:"description" yaml:"description"`
	Target          string        `mapstructure:"target" yaml:"target"`
	Selectors       []string      `mapstructure:"selectors" yaml:"selectors"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	NetworkIdle     bool          `mapstructure:"network_idle" yaml:"network_idle"`
	QuietPeriod     time.Duration `mapstructure:"quiet_period" yaml:"quiet_period"`
	Delay           time.Duration `mapstructure:"delay" yaml:"delay"`
	Settle          time.Duration `mapstructure:"settle" yaml:"settle"`
	AssertVisible   []string      `mapstructure:"assert_visible" yaml:"assert_visible"`
	AssertTimeout   time.Duration `mapstructure:"assert_timeout" yaml:"assert_timeout"`
	Output          string        `mapstructure:"output" yaml:"output"`
	FailOnPageError bool          `mapstructure:"fail_on_page_error" yaml:"fail_on_page_error"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.color", "auto")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "visverify")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.viewport.width", 1280)
	v.SetDefault("browser.viewport.height", 720)
	v.SetDefault("browser.navigation_timeout", "60s")

	// -- Artifact --
	v.SetDefault("artifact.output", DefaultOutput)
	v.SetDefault("artifact.report", "")

	// -- Run --
	v.SetDefault("run.default_profile", "")
	v.SetDefault("run.timeout", "5m")
	v.SetDefault("run.shutdown_timeout", "15s")

	setProfileDefaults(v)
}

// setProfileDefaults registers the built-in checks for the atlas demo pages.
func setProfileDefaults(v *viper.Viper) {
	v.SetDefault("profiles.demo.description", "Served atlas demo page, fixed settle delay")
	v.SetDefault("profiles.demo.target", "http://localhost:8000/A/demo.html")
	v.SetDefault("profiles.demo.delay", "2s")

	v.SetDefault("profiles.map.description", "Local atlas map, waits for tiles and markers")
	v.SetDefault("profiles.map.target", "Index.html")
	v.SetDefault("profiles.map.selectors", []string{".atlas-tile-loaded", ".atlas-marker-icon"})
	v.SetDefault("profiles.map.timeout", "30s")

	v.SetDefault("profiles.frontend.description", "Local atlas frontend, network idle then tiles")
	v.SetDefault("profiles.frontend.target", "Index.html")
	v.SetDefault("profiles.frontend.network_idle", true)
	v.SetDefault("profiles.frontend.selectors", []string{".atlas-tile-loaded"})
	v.SetDefault("profiles.frontend.timeout", "30s")
	v.SetDefault("profiles.frontend.settle", "2s")
	v.SetDefault("profiles.frontend.output", "screenshot.png")
}

// Load builds a Config from defaults, an optional config file, and the environment.
// A missing config file is only an error when cfgFile names it explicitly.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("visverify")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return NewConfigFromViper(v)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be 'console' or 'json', got %q", c.Logger.Format)
	}
	switch c.Logger.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("logger.color must be 'auto', 'always' or 'never', got %q", c.Logger.Color)
	}
	if c.Browser.Viewport.Width <= 0 || c.Browser.Viewport.Height <= 0 {
		return fmt.Errorf("browser.viewport width and height must be positive integers")
	}
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be a positive duration")
	}
	if c.Run.Timeout <= 0 {
		return fmt.Errorf("run.timeout must be a positive duration")
	}
	if c.Run.DefaultProfile != "" {
		if _, ok := c.Profile(c.Run.DefaultProfile); !ok {
			return fmt.Errorf("run.default_profile %q is not a configured profile", c.Run.DefaultProfile)
		}
	}
	for name, p := range c.Profiles {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("profiles.%s: %w", name, err)
		}
	}
	return nil
}

// Validate checks a single profile. Readiness semantics are checked again
// when the profile becomes a run plan; here we only reject obvious mistakes.
func (p ProfileConfig) Validate() error {
	for _, d := range []struct {
		name string
		val  time.Duration
	}{
		{"timeout", p.Timeout},
		{"quiet_period", p.QuietPeriod},
		{"delay", p.Delay},
		{"settle", p.Settle},
		{"assert_timeout", p.AssertTimeout},
	} {
		if d.val < 0 {
			return fmt.Errorf("%s must not be negative", d.name)
		}
	}
	for _, sel := range append(append([]string{}, p.Selectors...), p.AssertVisible...) {
		if strings.TrimSpace(sel) == "" {
			return fmt.Errorf("selectors must not be empty strings")
		}
	}
	return nil
}

// Profile returns the named profile.
func (c *Config) Profile(name string) (ProfileConfig, bool) {
	p, ok := c.Profiles[strings.ToLower(name)]
	return p, ok
}

// ProfileNames returns the configured profile names in sorted order.
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
