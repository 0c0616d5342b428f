package config

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/leapstack-labs/leapvertica/pkg/core"
	"github.com/spf13/pflag"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config // Stores the loaded config for access by commands
)

// flagKeys maps flag names to config keys. Flags not listed map to their
// name with dashes replaced by underscores.
var flagKeys = map[string]string{
	"host":       "connection.host",
	"port":       "connection.port",
	"dbname":     "connection.dbname",
	"user":       "connection.user",
	"password":   "connection.password",
	"dsn":        "connection.dsn",
	"transport":  "connection.transport",
	"persistent": "connection.persistent",
	"allocation": "connection.allocation",
	"env":        "environment",
}

var configNames = []string{"leapvertica.yaml", "leapvertica.yml"}

// configExistsIn returns the config file in dir, or "".
func configExistsIn(dir string) string {
	for _, name := range configNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findConfigUpward searches upward from startDir for a config file.
// Returns empty string if not found within maxUpwardSearchLevels.
func findConfigUpward(startDir string) string {
	dir := startDir
	for range maxUpwardSearchLevels {
		if found := configExistsIn(dir); found != "" {
			return found
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	return LoadConfigForEnvironment(cfgFile, "", flags)
}

// LoadConfigForEnvironment loads configuration and applies the overrides of
// one environment. An empty envOverride uses the configured environment.
func LoadConfigForEnvironment(cfgFile string, envOverride string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]any{
		"connection.type":      DefaultType,
		"connection.transport": core.TransportODBC,
		"environment":          DefaultEnv,
		"verbose":              false,
		"output":               DefaultOutput,
		"schema_file":          DefaultSchemaFile,
		"history_file":         DefaultHistoryFile,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file: explicit path, else the nearest one upward from CWD
	cwd, _ := os.Getwd()
	if cwd == "" {
		cwd = "."
	}
	configFileUsed = cfgFile
	if configFileUsed == "" {
		configFileUsed = findConfigUpward(cwd)
	}
	projectRoot := cwd
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
		if abs, err := filepath.Abs(configFileUsed); err == nil {
			projectRoot = filepath.Dir(abs)
		}
	}

	// 3. Environment variables. A double underscore separates nesting:
	// LEAPVERTICA_CONNECTION__HOST -> connection.host
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags (only the ones explicitly set)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ProjectRoot = projectRoot

	envName := cfg.Environment
	if envOverride != "" {
		envName = envOverride
		cfg.Environment = envOverride
	}
	if envCfg, ok := cfg.Environments[envName]; ok {
		if envCfg.Connection != nil {
			cfg.Connection = MergeConnectionConfig(cfg.Connection, *envCfg.Connection)
		}
		if envCfg.SchemaPrefix != "" {
			cfg.SchemaPrefix = envCfg.SchemaPrefix
		}
	}

	expandConnectionEnvVars(&cfg.Connection)
	cfg.SchemaFile = resolvePathRelativeTo(cfg.SchemaFile, projectRoot)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	currentConfig = &cfg
	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
// This is available after LoadConfig or LoadConfigForEnvironment is called.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() any {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return slog.New(slog.DiscardHandler)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // Return original if not found
	})
}

// expandConnectionEnvVars expands environment variables in the connection
// fields and in string values of the global and shard records.
func expandConnectionEnvVars(c *core.ConnectionConfig) {
	c.DSN = expandEnvVars(c.DSN)
	c.Host = expandEnvVars(c.Host)
	c.DBName = expandEnvVars(c.DBName)
	c.User = expandEnvVars(c.User)
	c.Password = expandEnvVars(c.Password)
	expandMap(c.Global)
	for _, s := range c.Shards {
		expandMap(s)
	}
}

func expandMap(m map[string]any) {
	for key, v := range m {
		if s, ok := v.(string); ok {
			m[key] = expandEnvVars(s)
		}
	}
}

// MergeConnectionConfig merges two connection configs, with override taking
// precedence. Map settings are merged key by key; a non-empty shard list
// replaces the base list.
func MergeConnectionConfig(base, override core.ConnectionConfig) core.ConnectionConfig {
	merged := base
	merged.DriverOptions = mergeMaps(base.DriverOptions, override.DriverOptions)
	merged.DefaultTableOptions = mergeMaps(base.DefaultTableOptions, override.DefaultTableOptions)
	merged.Global = mergeMaps(base.Global, override.Global)

	if override.Type != "" {
		merged.Type = override.Type
	}
	if override.Transport != "" {
		merged.Transport = override.Transport
	}
	if override.DSN != "" {
		merged.DSN = override.DSN
	}
	if override.Host != "" {
		merged.Host = override.Host
	}
	if override.Port != 0 {
		merged.Port = override.Port
	}
	if override.DBName != "" {
		merged.DBName = override.DBName
	}
	if override.User != "" {
		merged.User = override.User
	}
	if override.Password != "" {
		merged.Password = override.Password
	}
	if override.Persistent {
		merged.Persistent = true
	}
	if override.Allocation != "" {
		merged.Allocation = override.Allocation
	}
	if len(override.Shards) > 0 {
		merged.Shards = override.Shards
	}
	return merged
}

func mergeMaps[V any](base, override map[string]V) map[string]V {
	if base == nil && override == nil {
		return nil
	}
	merged := make(map[string]V, len(base)+len(override))
	maps.Copy(merged, base)
	maps.Copy(merged, override)
	return merged
}
