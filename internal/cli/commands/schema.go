package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/leapstack-labs/leapvertica/internal/cli/output"
	"github.com/leapstack-labs/leapvertica/pkg/schema"
	"github.com/leapstack-labs/leapvertica/pkg/sharding"
	"github.com/spf13/cobra"
)

// SchemaOptions holds options shared by the schema subcommands.
type SchemaOptions struct {
	File    string
	Prefix  string
	Current bool
	Shard   int
	Schema  string
	Out     string
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand() *cobra.Command {
	opts := &SchemaOptions{}

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Compare, migrate and dump table layouts",
		Long: `Manage the table layout of every tenant schema on every shard.

The target layout is read from a YAML file (schema_file in leapvertica.yaml,
or --file). Only schemas whose name starts with --prefix are visited.`,
	}

	cmd.PersistentFlags().StringVar(&opts.File, "file", "", "Schema YAML file (default: schema_file from config)")
	cmd.PersistentFlags().StringVar(&opts.Prefix, "prefix", "", "Only visit schemas starting with this prefix (default: schema_prefix from config)")
	cmd.PersistentFlags().IntVar(&opts.Shard, "shard", 0, "Shard id for --current and dump")
	cmd.PersistentFlags().StringVar(&opts.Schema, "schema", "", "Schema for --current and dump")

	cmd.AddCommand(newSchemaDiffCommand(opts))
	cmd.AddCommand(newSchemaApplyCommand(opts))
	cmd.AddCommand(newSchemaDumpCommand(opts))

	return cmd
}

func newSchemaDiffCommand(opts *SchemaOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show the statements that migrate each schema to the target layout",
		Long: `Show the full migration, drops included, for every matching schema.
Nothing is executed.`,
		Example: `  leapvertica schema diff
  leapvertica schema diff --prefix tenant_ --file schema.yaml
  leapvertica schema diff --current --shard 2 --schema tenant_42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSchemaUpdate(cmd, opts, false)
		},
	}
	cmd.Flags().BoolVar(&opts.Current, "current", false, "Only diff the current session schema")
	return cmd
}

func newSchemaApplyCommand(opts *SchemaOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply the drop-free migration to each schema",
		Long: `Create missing tables and columns and alter changed columns in every
matching schema. Tables and columns missing from the target layout are
never dropped; use diff to see those.`,
		Example: `  leapvertica schema apply
  leapvertica schema apply --prefix tenant_`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSchemaUpdate(cmd, opts, true)
		},
	}
	cmd.Flags().BoolVar(&opts.Current, "current", false, "Only migrate the current session schema")
	return cmd
}

func newSchemaDumpCommand(opts *SchemaOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Write the live layout of one schema as YAML",
		Example: `  leapvertica schema dump --schema tenant_42 > schema.yaml
  leapvertica schema dump --shard 2 --schema tenant_42 --out schema.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSchemaDump(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.Out, "out", "O", "", "Write to file instead of stdout")
	return cmd
}

func loadTargetSchema(cmdCtx *CommandContext, file string) (*schema.Schema, error) {
	if file == "" {
		file = cmdCtx.Cfg.SchemaFile
	}
	if file == "" {
		return nil, fmt.Errorf("no schema file configured (set schema_file or use --file)")
	}
	target, err := schema.LoadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema file: %w", err)
	}
	return target, nil
}

func runSchemaUpdate(cmd *cobra.Command, opts *SchemaOptions, saveMode bool) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	target, err := loadTargetSchema(cmdCtx, opts.File)
	if err != nil {
		return err
	}
	m, err := cmdCtx.Manager()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var updates []sharding.SchemaUpdate
	var updateErr error
	if opts.Current {
		if err := selectSession(ctx, cmdCtx, opts.Shard, opts.Schema); err != nil {
			return err
		}
		sql, err := m.UpdateCurrentSchema(ctx, target, saveMode)
		updates = []sharding.SchemaUpdate{{ShardID: m.Router().ActiveShardID(), Schema: m.CurrentSchema(), SQL: sql}}
		updateErr = err
	} else {
		prefix := opts.Prefix
		if prefix == "" {
			prefix = cmdCtx.Cfg.SchemaPrefix
		}
		updates, updateErr = m.UpdateSchema(ctx, target, saveMode, prefix)
	}

	if err := renderSchemaUpdates(cmdCtx.Renderer, updates, saveMode); err != nil {
		return err
	}
	return updateErr
}

// schemaUpdateOutput is the JSON output of schema diff and apply.
type schemaUpdateOutput struct {
	ShardID    int      `json:"shard_id"`
	Schema     string   `json:"schema"`
	Statements []string `json:"statements"`
	Applied    bool     `json:"applied"`
}

func renderSchemaUpdates(r *output.Renderer, updates []sharding.SchemaUpdate, applied bool) error {
	if r.EffectiveMode() == output.ModeJSON {
		out := make([]schemaUpdateOutput, len(updates))
		for i, u := range updates {
			out[i] = schemaUpdateOutput{ShardID: u.ShardID, Schema: u.Schema, Statements: u.SQL, Applied: applied}
			if out[i].Statements == nil {
				out[i].Statements = []string{}
			}
		}
		return r.JSON(out)
	}

	if len(updates) == 0 {
		r.Muted("No matching schemas")
		return nil
	}

	changed := 0
	for _, u := range updates {
		name := fmt.Sprintf("shard %d", u.ShardID)
		if u.Schema != "" {
			name += " schema " + u.Schema
		}

		if applied {
			status, detail := "skipped", "up to date"
			if len(u.SQL) > 0 {
				status, detail = "success", fmt.Sprintf("%d statements applied", len(u.SQL))
			}
			r.StatusLine(name, status, detail)
		} else {
			r.Header(2, name)
			if len(u.SQL) == 0 {
				r.Muted("-- up to date")
			}
			for _, stmt := range u.SQL {
				r.Println(strings.TrimSuffix(stmt, ";") + ";")
			}
			r.Println("")
		}
		if len(u.SQL) > 0 {
			changed++
		}
	}

	if applied {
		r.Success(fmt.Sprintf("%d of %d schemas migrated", changed, len(updates)))
	} else {
		r.Muted(fmt.Sprintf("%d of %d schemas differ", changed, len(updates)))
	}
	return nil
}

func runSchemaDump(cmd *cobra.Command, opts *SchemaOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if err := selectSession(ctx, cmdCtx, opts.Shard, opts.Schema); err != nil {
		return err
	}
	m, err := cmdCtx.Manager()
	if err != nil {
		return err
	}
	sm, err := m.Router().SchemaManager()
	if err != nil {
		return err
	}
	live, err := sm.CreateSchema(ctx)
	if err != nil {
		return fmt.Errorf("failed to introspect schema: %w", err)
	}

	var w io.Writer = cmd.OutOrStdout()
	if opts.Out != "" {
		f, err := os.Create(opts.Out) //nolint:gosec // user-provided output path
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", opts.Out, err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	if err := live.Write(w); err != nil {
		return err
	}
	if opts.Out != "" {
		cmdCtx.Renderer.Success(fmt.Sprintf("Wrote %d tables of %s to %s", len(live.Tables), live.Name, opts.Out))
	}
	return nil
}
