package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/leapstack-labs/leapvertica/pkg/driver"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Format string
	Input  string
	Shard  int
	Schema string
	All    bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Run a query against the cluster",
		Long: `Run SQL against a Vertica shard and print the result set.

Named (:name) and positional (?) placeholders are rewritten by the driver;
use --shard and --schema to pick the session, or --all to run the query in
every schema of every shard and concatenate the rows.

When invoked without arguments on a terminal, enters interactive REPL mode.`,
		Example: `  # Execute SQL directly
  leapvertica query "SELECT * FROM public.events LIMIT 10"

  # Run on one shard, inside one tenant schema
  leapvertica query --shard 2 --schema tenant_42 "SELECT COUNT(*) FROM orders"

  # Fan out to every shard and schema
  leapvertica query --all "SELECT COUNT(*) AS n FROM orders" --format json

  # Interactive mode
  leapvertica query`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "table", "Output format: table, json, csv, tsv, md")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")
	cmd.Flags().IntVar(&opts.Shard, "shard", 0, "Shard id to run on (default: first shard)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "Schema to set as the session search path")
	cmd.Flags().BoolVar(&opts.All, "all", false, "Run in every schema of every shard")

	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "json", "csv", "tsv", "md"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	sqlQuery, interactive, err := readSQL(cmd, args, opts.Input)
	if err != nil {
		return err
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := selectSession(cmd.Context(), cmdCtx, opts.Shard, opts.Schema); err != nil {
		return err
	}

	if interactive {
		return runQueryREPL(cmd, cmdCtx, opts)
	}

	rows, err := runRows(cmd.Context(), cmdCtx, sqlQuery, opts.All)
	if err != nil {
		return err
	}
	return renderResults(cmd.OutOrStdout(), rows, opts.Format)
}

// readSQL resolves the statement from args, --input or piped stdin.
// interactive is true when none is given and stdin is a terminal.
func readSQL(cmd *cobra.Command, args []string, input string) (sql string, interactive bool, err error) {
	switch {
	case len(args) > 0:
		return strings.Join(args, " "), false, nil
	case input != "":
		content, err := os.ReadFile(input) //nolint:gosec // user-provided SQL file
		if err != nil {
			return "", false, fmt.Errorf("failed to read file: %w", err)
		}
		return string(content), false, nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "", true, nil
	}
	content, err := io.ReadAll(in)
	if err != nil {
		return "", false, fmt.Errorf("failed to read stdin: %w", err)
	}
	if strings.TrimSpace(string(content)) == "" {
		return "", false, fmt.Errorf("no SQL given")
	}
	return string(content), false, nil
}

// selectSession makes shard the active shard and, when schema is set, points
// the session search path at it. Zero values leave the session as is.
func selectSession(ctx context.Context, cmdCtx *CommandContext, shard int, schema string) error {
	if shard == 0 && schema == "" {
		return nil
	}
	m, err := cmdCtx.Manager()
	if err != nil {
		return err
	}
	if shard == 0 {
		shard = m.Router().ActiveShardID()
	}
	if schema != "" {
		return m.SelectShardByName(ctx, schema, shard)
	}
	_, err = m.SelectShardByID(ctx, shard)
	return err
}

func runRows(ctx context.Context, cmdCtx *CommandContext, sqlQuery string, all bool) ([]driver.Row, error) {
	sqlQuery = strings.TrimSuffix(strings.TrimSpace(sqlQuery), ";")
	if !all {
		rows, err := cmdCtx.Adapter.Query(ctx, sqlQuery)
		if err != nil {
			return nil, fmt.Errorf("query failed: %w", err)
		}
		return rows, nil
	}

	m, err := cmdCtx.Manager()
	if err != nil {
		return nil, err
	}
	rows, err := m.QueryAll(ctx, sqlQuery)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return rows, nil
}
