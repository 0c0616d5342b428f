// Package cli provides the command-line interface for leapvertica.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/leapstack-labs/leapvertica/internal/cli/commands"
	"github.com/leapstack-labs/leapvertica/internal/cli/config"
	"github.com/leapstack-labs/leapvertica/internal/cli/output"
	_ "github.com/leapstack-labs/leapvertica/pkg/adapters/vertica" // register the vertica adapter
	"github.com/leapstack-labs/leapvertica/pkg/core"
	"github.com/spf13/cobra"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile, envFlag string

	rootCmd := &cobra.Command{
		Use:   "leapvertica",
		Short: "leapvertica - sharded Vertica client over ODBC",
		Long: `leapvertica talks to a horizontally sharded Vertica cluster over ODBC.

It routes statements to one shard, fans queries out to every tenant schema
of every shard, migrates schemas from a YAML layout and allocates shards
for new data.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" || cmd.Name() == "init" {
				return nil
			}

			cfg, err := config.LoadConfigForEnvironment(cfgFile, envFlag, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			level := slog.LevelWarn
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			cmd.SetContext(context.WithValue(cmd.Context(), config.LoggerKey(), logger))

			if cfg.Verbose {
				if configFile := config.GetConfigFileUsed(); configFile != "" {
					logger.Info("using config file", "path", configFile)
				}
				logger.Info("using environment", "name", cfg.Environment)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Sharded Vertica client over ODBC, built with Go
`)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./leapvertica.yaml)")
	pf.StringVarP(&envFlag, "env", "e", "", "Environment to use (e.g., dev, staging, prod)")
	pf.String("host", "", "Vertica host")
	pf.Int("port", 0, "Vertica port")
	pf.String("dbname", "", "Database name")
	pf.String("user", "", "Database user")
	pf.String("password", "", "Database password")
	pf.String("dsn", "", "Complete ODBC connection string")
	pf.String("transport", "", "Transport: odbc, vertica, pgx or duckdb")
	pf.Bool("persistent", false, "Share connection pools between commands")
	pf.String("allocation", "", "Shard allocation policy: random or hash")
	pf.String("schema-prefix", "", "Prefix of tenant schemas")
	pf.BoolP("verbose", "v", false, "Verbose output")
	pf.StringP("output", "o", "", "Output format (auto|text|markdown|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return output.Modes, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("env", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"dev", "staging", "prod"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("transport", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{core.TransportODBC, core.TransportVertica, core.TransportPgx, core.TransportDuckDB}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("allocation", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"random", "hash"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewShardsCommand())
	rootCmd.AddCommand(commands.NewQueryCommand())
	rootCmd.AddCommand(commands.NewExecCommand())
	rootCmd.AddCommand(commands.NewSchemaCommand())
	rootCmd.AddCommand(commands.NewAllocateCommand())
	rootCmd.AddCommand(commands.NewLoadCommand())
	rootCmd.AddCommand(commands.NewDoctorCommand())
	rootCmd.AddCommand(commands.NewInitCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for leapvertica.

To load completions:

Bash:
  $ source <(leapvertica completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ leapvertica completion bash > /etc/bash_completion.d/leapvertica
  # macOS:
  $ leapvertica completion bash > $(brew --prefix)/etc/bash_completion.d/leapvertica

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  $ leapvertica completion zsh > "${fpath[1]}/_leapvertica"

Fish:
  $ leapvertica completion fish | source

PowerShell:
  PS> leapvertica completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
