package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/leapstack-labs/leapvertica/internal/cli/output"
	"github.com/leapstack-labs/leapvertica/pkg/adapter"
	"github.com/leapstack-labs/leapvertica/pkg/core"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := ValidateConnection(&c.Connection); err != nil {
		return fmt.Errorf("invalid connection configuration: %w", err)
	}
	if c.OutputFormat != "" && !slices.Contains(output.Modes, c.OutputFormat) {
		return fmt.Errorf("unknown output format %q (expected one of %s)", c.OutputFormat, strings.Join(output.Modes, ", "))
	}
	return nil
}

// ValidateConnection checks that the connection type names a registered
// adapter. The type is normalised to lower case.
func ValidateConnection(c *core.ConnectionConfig) error {
	if c.Type == "" {
		return fmt.Errorf("connection type is required")
	}
	c.Type = strings.ToLower(c.Type)
	if !adapter.IsRegistered(c.Type) {
		return &adapter.UnknownAdapterError{Type: c.Type, Available: adapter.ListAdapters()}
	}
	return nil
}
