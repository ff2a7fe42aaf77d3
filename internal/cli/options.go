package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

// Environment variables consulted when the matching flag is not set.
const (
	EnvConfigDir      = "NOTEBOOK_CONFIG_DIR"
	EnvDefaultDataDir = "NOTEBOOK_DEFAULT_DATA_DIR"
	EnvLogLevel       = "NOTEBOOK_LOG_LEVEL"
)

// Options holds the process-level settings shared by every command.
type Options struct {
	ConfigDir      string
	DefaultDataDir string
	LogLevel       string
}

func (o *Options) bindFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.ConfigDir, "config-dir", "", "Directory holding app_config.json (env "+EnvConfigDir+")")
	flags.StringVar(&o.DefaultDataDir, "data-dir-default", "", "Default data directory (env "+EnvDefaultDataDir+")")
	flags.StringVar(&o.LogLevel, "log-level", "warn", "Log level: debug, info, warn, error (env "+EnvLogLevel+")")
}

// applyEnv fills every option whose flag was not given from the environment.
func (o *Options) applyEnv(flags *pflag.FlagSet) {
	fill := func(name, env string, dst *string) {
		if flags.Changed(name) {
			return
		}
		if v, ok := os.LookupEnv(env); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	fill("config-dir", EnvConfigDir, &o.ConfigDir)
	fill("data-dir-default", EnvDefaultDataDir, &o.DefaultDataDir)
	fill("log-level", EnvLogLevel, &o.LogLevel)
}

// ParseLogLevel maps a level name to a slog.Level.
func ParseLogLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelWarn, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}
