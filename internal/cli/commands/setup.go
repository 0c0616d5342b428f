package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/leapstack-labs/leapvertica/internal/cli/config"
	"github.com/leapstack-labs/leapvertica/internal/cli/output"
	"github.com/leapstack-labs/leapvertica/pkg/adapter"
	"github.com/leapstack-labs/leapvertica/pkg/core"
	"github.com/leapstack-labs/leapvertica/pkg/sharding"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
	Adapter  adapter.Adapter
}

// newAdapter creates an unconnected adapter for a connection config.
// Tests replace it to connect through an in-memory backend.
var newAdapter = adapter.NewAdapter

// NewCommandContext creates a CommandContext with a connected adapter.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx := NewCommandContextWithoutAdapter(cmd)

	a, err := connectAdapter(cmd.Context(), cmdCtx.Cfg.Connection, cmdCtx.Logger)
	if err != nil {
		return nil, nil, err
	}
	cmdCtx.Adapter = a

	cleanup := func() {
		if err := a.Close(); err != nil {
			cmdCtx.Logger.Warn("failed to close connection", "error", err)
		}
	}
	return cmdCtx, cleanup, nil
}

// NewCommandContextWithoutAdapter creates a CommandContext without a
// database connection. Useful for commands that only read configuration.
func NewCommandContextWithoutAdapter(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// Manager returns the shard manager of the connected adapter.
func (c *CommandContext) Manager() (*sharding.Manager, error) {
	s, ok := c.Adapter.(adapter.Sharded)
	if !ok || s.Manager() == nil {
		return nil, fmt.Errorf("adapter %q does not support sharding", c.Cfg.Connection.Type)
	}
	return s.Manager(), nil
}

func connectAdapter(ctx context.Context, cfg core.ConnectionConfig, logger *slog.Logger) (adapter.Adapter, error) {
	a, err := newAdapter(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := a.Connect(ctx, cfg); err != nil {
		return nil, err
	}
	return a, nil
}

// Helper functions shared across commands

// getConfig returns the current configuration.
// It uses config.GetCurrentConfig() if available, otherwise falls back to environment variables.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}

	port, _ := strconv.Atoi(os.Getenv("LEAPVERTICA_CONNECTION__PORT"))
	return &config.Config{
		Connection: core.ConnectionConfig{
			Type:      getEnvOrDefault("LEAPVERTICA_CONNECTION__TYPE", config.DefaultType),
			Transport: getEnvOrDefault("LEAPVERTICA_CONNECTION__TRANSPORT", core.TransportODBC),
			DSN:       os.Getenv("LEAPVERTICA_CONNECTION__DSN"),
			Host:      os.Getenv("LEAPVERTICA_CONNECTION__HOST"),
			Port:      port,
			DBName:    os.Getenv("LEAPVERTICA_CONNECTION__DBNAME"),
			User:      os.Getenv("LEAPVERTICA_CONNECTION__USER"),
			Password:  os.Getenv("LEAPVERTICA_CONNECTION__PASSWORD"),
		},
		Environment:  getEnvOrDefault("LEAPVERTICA_ENVIRONMENT", config.DefaultEnv),
		Verbose:      os.Getenv("LEAPVERTICA_VERBOSE") == "true",
		OutputFormat: os.Getenv("LEAPVERTICA_OUTPUT"),
		SchemaFile:   getEnvOrDefault("LEAPVERTICA_SCHEMA_FILE", config.DefaultSchemaFile),
		SchemaPrefix: os.Getenv("LEAPVERTICA_SCHEMA_PREFIX"),
		HistoryFile:  getEnvOrDefault("LEAPVERTICA_HISTORY_FILE", config.DefaultHistoryFile),
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
