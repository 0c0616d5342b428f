// Package config provides configuration management for the leapvertica CLI.
//
// Settings are layered with koanf: defaults, then leapvertica.yaml, then
// LEAPVERTICA_ environment variables, then explicitly set flags.
package config

import "github.com/leapstack-labs/leapvertica/pkg/core"

// Config holds all CLI configuration options.
type Config struct {
	Connection   core.ConnectionConfig `koanf:"connection"`
	Environment  string                `koanf:"environment"`
	Verbose      bool                  `koanf:"verbose"`
	OutputFormat string                `koanf:"output"`
	SchemaFile   string                `koanf:"schema_file"`
	SchemaPrefix string                `koanf:"schema_prefix"`
	HistoryFile  string                `koanf:"history_file"`
	Environments map[string]EnvConfig  `koanf:"environments"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
}

// EnvConfig holds environment-specific configuration overrides.
type EnvConfig struct {
	Connection   *core.ConnectionConfig `koanf:"connection"`
	SchemaPrefix string                 `koanf:"schema_prefix"`
}

// Default configuration values.
const (
	DefaultConfigFile  = "leapvertica.yaml"
	DefaultType        = "vertica"
	DefaultEnv         = "dev"
	DefaultOutput      = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultSchemaFile  = "schema.yaml"
	DefaultHistoryFile = ".leapvertica_history"
	EnvPrefix          = "LEAPVERTICA_"
)
