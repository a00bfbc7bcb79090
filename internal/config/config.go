// Package config handles configuration loading from CLI flags,
// environment variables, and TOML files, and carries the logger the
// rest of the engine reports through.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds all settings for a loader run.
type Config struct {
	Mods    ModsConfig    `toml:"mods"`
	Run     RunConfig     `toml:"run"`
	Logging LoggingConfig `toml:"logging"`

	logger *zap.SugaredLogger
}

// ModsConfig holds mod discovery settings.
type ModsConfig struct {
	// Dir is the directory of unpacked mod folders.
	Dir string `toml:"dir"`
	// Trusted lists the mods whose scripts run privileged. Everything
	// else runs restricted.
	Trusted []string `toml:"trusted"`
}

// RunConfig holds lifecycle execution settings.
type RunConfig struct {
	// Timeout bounds each single mod-phase script execution. Zero
	// disables the budget.
	Timeout Duration `toml:"timeout"`
	// Dump is the path the final registry is written to as JSON.
	// Empty skips the dump.
	Dump string `toml:"dump"`
	// History is the path the prototype attribution map is written to
	// as JSON. Empty skips it.
	History string `toml:"history"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level     string `toml:"level"`     // "debug", "info", "warn", "error"
	Verbosity int    `toml:"verbosity"` // 0=none, 1=stages, 2=scripts, 3=registry ops
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
		if len(arg) > 2 && arg[0] == '-' && arg[1] != '-' && arg[1] == 'v' {
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
		Mods: ModsConfig{
			Dir:     "mods",
			Trusted: []string{"core"},
		},
		Logging: LoggingConfig{
			Level:     "info",
			Verbosity: 0,
		},
	}
}

// Load loads configuration from CLI flags, environment variables, and a
// TOML file. Priority: CLI flags > env vars > TOML file > defaults.
func Load(args []string) (*Config, error) {
	cfg := DefaultConfig()

	args = expandVerbosityFlags(args)

	fs := flag.NewFlagSet("datastage", flag.ContinueOnError)
	configPath := fs.String("config", "", "TOML config file (default datastage.toml if present)")

	modsDir := fs.String("mods", "", "Directory of unpacked mod folders")
	dump := fs.String("dump", "", "Write the final prototype registry to this JSON file")
	history := fs.String("history", "", "Write the prototype attribution map to this JSON file")
	timeout := fs.Duration("timeout", 0, "Per-script execution budget (0=none)")

	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	var verbosity verbosityCounter
	fs.Var(&verbosity, "v", "Verbosity level (use -v, -vv, or -vvv)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	path := *configPath
	if path == "" {
		path = "datastage.toml"
	}
	if err := cfg.loadTOML(path); err != nil {
		// A missing default config file is fine; an explicit one is not.
		if *configPath != "" || !os.IsNotExist(err) {
			return nil, err
		}
	}

	cfg.applyEnv()

	if *modsDir != "" {
		cfg.Mods.Dir = *modsDir
	}
	if *dump != "" {
		cfg.Run.Dump = *dump
	}
	if *history != "" {
		cfg.Run.History = *history
	}
	if *timeout != 0 {
		cfg.Run.Timeout = Duration(*timeout)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if verbosity > 0 {
		cfg.Logging.Verbosity = int(verbosity)
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
	if v := os.Getenv("DATASTAGE_MODS"); v != "" {
		c.Mods.Dir = v
	}
	if v := os.Getenv("DATASTAGE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Run.Timeout = Duration(d)
		}
	}
	if v := os.Getenv("DATASTAGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DATASTAGE_VERBOSITY"); v != "" {
		if verbosity, err := strconv.Atoi(v); err == nil {
			c.Logging.Verbosity = verbosity
		}
	}
}

// Verbosity returns the configured verbosity level.
func (c *Config) Verbosity() int {
	return c.Logging.Verbosity
}

// Trusted reports whether a mod's scripts run privileged.
func (c *Config) Trusted(mod string) bool {
	for _, name := range c.Mods.Trusted {
		if name == mod {
			return true
		}
	}
	return false
}

// Logger returns the zap logger for this configuration, building it on
// first use from the configured level.
func (c *Config) Logger() *zap.SugaredLogger {
	if c.logger == nil {
		level, err := zapcore.ParseLevel(c.Logging.Level)
		if err != nil {
			level = zapcore.InfoLevel
		}
		zcfg := zap.NewDevelopmentConfig()
		zcfg.Level = zap.NewAtomicLevelAt(level)
		logger, err := zcfg.Build()
		if err != nil {
			logger = zap.NewNop()
		}
		c.logger = logger.Sugar()
	}
	return c.logger
}

// SetLogger replaces the logger. Tests use this to silence output or
// capture it.
func (c *Config) SetLogger(logger *zap.SugaredLogger) {
	c.logger = logger
}

// Log logs a formatted message gated by the configured verbosity.
// Level 0 always logs as an error; higher levels only log once the
// verbosity reaches them.
func (c *Config) Log(level int, format string, args ...interface{}) {
	if level <= 0 {
		c.Logger().Errorf(format, args...)
		return
	}
	if level > c.Logging.Verbosity {
		return
	}
	if level >= 3 {
		c.Logger().Debugf(format, args...)
		return
	}
	c.Logger().Infof(format, args...)
}
