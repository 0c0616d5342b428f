package commands

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapvertica/internal/cli/output"
	"github.com/spf13/cobra"
)

// ExecOptions holds options for the exec command.
type ExecOptions struct {
	Input  string
	Shard  int
	Schema string
	All    bool
}

// NewExecCommand creates the exec command.
func NewExecCommand() *cobra.Command {
	opts := &ExecOptions{}

	cmd := &cobra.Command{
		Use:   "exec [SQL]",
		Short: "Execute a statement and report affected rows",
		Long: `Execute a statement that returns no result set (DDL, INSERT, UPDATE,
DELETE, COPY) and report the number of affected rows.

With --all the statement runs once on every shard.`,
		Example: `  leapvertica exec "DELETE FROM events WHERE created_at < '2024-01-01'"
  leapvertica exec --all "SELECT MAKE_AHM_NOW()"
  leapvertica exec --shard 3 --input migrate.sql`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")
	cmd.Flags().IntVar(&opts.Shard, "shard", 0, "Shard id to run on (default: first shard)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "Schema to set as the session search path")
	cmd.Flags().BoolVar(&opts.All, "all", false, "Run once on every shard")

	return cmd
}

// execResult is the JSON output of the exec command.
type execResult struct {
	ShardID  int   `json:"shard_id"`
	Affected int64 `json:"affected"`
}

func runExec(cmd *cobra.Command, args []string, opts *ExecOptions) error {
	stmt, interactive, err := readSQL(cmd, args, opts.Input)
	if err != nil {
		return err
	}
	if interactive {
		return fmt.Errorf("no SQL given")
	}
	stmt = strings.TrimSuffix(strings.TrimSpace(stmt), ";")

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	r := cmdCtx.Renderer
	if err := selectSession(ctx, cmdCtx, opts.Shard, opts.Schema); err != nil {
		return err
	}

	if !opts.All {
		n, err := cmdCtx.Adapter.Exec(ctx, stmt)
		if err != nil {
			return err
		}
		if r.EffectiveMode() == output.ModeJSON {
			m, err := cmdCtx.Manager()
			if err != nil {
				return err
			}
			return r.JSON([]execResult{{ShardID: m.Router().ActiveShardID(), Affected: n}})
		}
		r.Success(fmt.Sprintf("%d rows affected", n))
		return nil
	}

	m, err := cmdCtx.Manager()
	if err != nil {
		return err
	}
	affected, execErr := m.ExecuteAll(ctx, stmt)

	results := make([]execResult, 0, len(affected))
	for _, id := range m.Shards() {
		if n, ok := affected[id]; ok {
			results = append(results, execResult{ShardID: id, Affected: n})
		}
	}

	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(results); err != nil {
			return err
		}
		return execErr
	}
	for _, res := range results {
		r.StatusLine(fmt.Sprintf("shard %d", res.ShardID), "success", fmt.Sprintf("%d rows affected", res.Affected))
	}
	return execErr
}
