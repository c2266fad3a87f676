// Package config handles configuration loading from CLI flags, environment variables, and TOML files.
package config

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration settings for the conductor host.
type Config struct {
	Controllers ControllersConfig `toml:"controllers"`
	Host        HostConfig        `toml:"host"`
	Logging     LoggingConfig     `toml:"logging"`

	logger *log.Logger
}

// ControllersConfig holds controller discovery settings.
type ControllersConfig struct {
	// Roots are deep-indexed: every nested .lua file is a candidate unit.
	Roots []string `toml:"roots"`
	// Packages is the shared-packages root, indexed shallowly (direct
	// children only). Empty disables it.
	Packages string `toml:"packages"`
	// Context is the execution context, "client" or "server". Units that
	// declare isServer are filtered against it.
	Context string `toml:"context"`
	// HotReload enables the fsnotify watcher on the controller roots.
	HotReload bool `toml:"hot_reload"`
}

// HostConfig holds host signal source settings.
type HostConfig struct {
	// TickInterval is the period of the built-in update ticker.
	TickInterval Duration `toml:"tick_interval"`
	// InputAddr is the listen address for the websocket input bridge
	// ("" = disabled).
	InputAddr string `toml:"input_addr"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Verbosity int `toml:"verbosity"` // 0=warnings, 1=lifecycle, 2=loading, 3=signals
}

// verbosityCounter implements flag.Value for counting -v flags.
type verbosityCounter int

func (v *verbosityCounter) String() string {
	return fmt.Sprintf("%d", *v)
}

func (v *verbosityCounter) Set(string) error {
	*v++
	return nil
}

func (v *verbosityCounter) IsBoolFlag() bool {
	return true
}

// expandVerbosityFlags preprocesses args to expand -vvv into -v -v -v.
// This allows both "-v -v -v" and "-vvv" styles to work.
func expandVerbosityFlags(args []string) []string {
	result := make([]string, 0, len(args))
	for _, arg := range args {
		if len(arg) > 2 && arg[0] == '-' && arg[1] == 'v' {
			allV := true
			for _, c := range arg[1:] {
				if c != 'v' {
					allV = false
					break
				}
			}
			if allV {
				for range arg[1:] {
					result = append(result, "-v")
				}
				continue
			}
		}
		result = append(result, arg)
	}
	return result
}

// Duration is a time.Duration that can be unmarshaled from TOML strings.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// DefaultConfig returns a Config with all default values.
func DefaultConfig() *Config {
	return &Config{
		Controllers: ControllersConfig{
			Roots:   []string{"controllers/"},
			Context: "client",
		},
		Host: HostConfig{
			TickInterval: Duration(time.Second / 60),
		},
		Logging: LoggingConfig{
			Verbosity: 0,
		},
		logger: log.New(os.Stderr, "", log.LstdFlags),
	}
}

// Load loads configuration from CLI flags, environment variables, and TOML file.
// Priority: CLI flags > env vars > TOML file > defaults
func Load(args []string) (*Config, error) {
	cfg := DefaultConfig()

	args = expandVerbosityFlags(args)

	fs := flag.NewFlagSet("conductor", flag.ContinueOnError)
	configPath := fs.String("config", "", "TOML config file path")

	roots := fs.String("roots", "", "Comma-separated controller root directories")
	packages := fs.String("packages", "", "Shared-packages root (indexed shallowly)")
	context := fs.String("context", "", "Execution context: client or server")
	hotReload := fs.Bool("hot-reload", false, "Reload controller scripts on change")

	tick := fs.Duration("tick", 0, "Update tick interval")
	inputAddr := fs.String("input-addr", "", "Websocket input bridge listen address")

	var verbosity verbosityCounter
	fs.Var(&verbosity, "v", "Verbosity level (use -v, -vv, or -vvv)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Load TOML config if present
	path := "conductor.toml"
	if *configPath != "" {
		path = *configPath
	}
	if err := cfg.loadTOML(path); err != nil {
		if *configPath != "" || !os.IsNotExist(err) {
			return nil, err
		}
	}

	cfg.applyEnv()

	// Apply CLI flags (highest priority)
	if *roots != "" {
		cfg.Controllers.Roots = splitList(*roots)
	}
	if *packages != "" {
		cfg.Controllers.Packages = *packages
	}
	if *context != "" {
		cfg.Controllers.Context = *context
	}
	if *hotReload {
		cfg.Controllers.HotReload = true
	}
	if *tick != 0 {
		cfg.Host.TickInterval = Duration(*tick)
	}
	if *inputAddr != "" {
		cfg.Host.InputAddr = *inputAddr
	}
	if verbosity > 0 {
		cfg.Logging.Verbosity = int(verbosity)
	}

	if cfg.Controllers.Context != "client" && cfg.Controllers.Context != "server" {
		return nil, fmt.Errorf("invalid context %q (want client or server)", cfg.Controllers.Context)
	}

	return cfg, nil
}

// loadTOML loads configuration from a TOML file.
func (c *Config) loadTOML(path string) error {
	_, err := toml.DecodeFile(path, c)
	return err
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("CONDUCTOR_ROOTS"); v != "" {
		c.Controllers.Roots = splitList(v)
	}
	if v := os.Getenv("CONDUCTOR_PACKAGES"); v != "" {
		c.Controllers.Packages = v
	}
	if v := os.Getenv("CONDUCTOR_CONTEXT"); v != "" {
		c.Controllers.Context = v
	}
	if v := os.Getenv("CONDUCTOR_HOT_RELOAD"); v != "" {
		c.Controllers.HotReload = v == "true" || v == "1"
	}
	if v := os.Getenv("CONDUCTOR_TICK"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Host.TickInterval = Duration(d)
		}
	}
	if v := os.Getenv("CONDUCTOR_INPUT_ADDR"); v != "" {
		c.Host.InputAddr = v
	}
	if v := os.Getenv("CONDUCTOR_VERBOSITY"); v != "" {
		if verbosity, err := strconv.Atoi(v); err == nil {
			c.Logging.Verbosity = verbosity
		}
	}
}

// splitList splits a comma-separated list, trimming whitespace and dropping
// empty elements.
func splitList(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

// IsServer reports whether the configured execution context is server-side.
func (c *Config) IsServer() bool {
	return c.Controllers.Context == "server"
}

// Verbosity returns the configured verbosity level (0-3).
func (c *Config) Verbosity() int {
	return c.Logging.Verbosity
}

// Log writes a message if the configured verbosity is at least level.
// Level 0 messages (warnings and errors) are always written.
func (c *Config) Log(level int, format string, args ...interface{}) {
	if level > c.Logging.Verbosity {
		return
	}
	if c.logger == nil {
		c.logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	c.logger.Printf(format, args...)
}

// SetLogOutput redirects log output, primarily for tests.
func (c *Config) SetLogOutput(w io.Writer) {
	c.logger = log.New(w, "", 0)
}
