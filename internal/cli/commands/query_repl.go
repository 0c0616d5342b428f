package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/leapvertica/pkg/dialects/vertica"
	"github.com/spf13/cobra"
)

const (
	replPrompt     = "vsql> "
	replContinue   = " ...> "
	listTablesStmt = vertica.ListTablesSQL + " ORDER BY table_schema, table_name"
)

func runQueryREPL(cmd *cobra.Command, cmdCtx *CommandContext, opts *QueryOptions) error {
	ctx := cmd.Context()

	historyFile := cmdCtx.Cfg.HistoryFile
	if historyFile != "" && !filepath.IsAbs(historyFile) && cmdCtx.Cfg.ProjectRoot != "" {
		historyFile = filepath.Join(cmdCtx.Cfg.ProjectRoot, historyFile)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     historyFile,
		AutoComplete:    newTableCompleter(ctx, cmdCtx),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "leapvertica query REPL (%s)\n", describeSession(cmdCtx))
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(cmd.OutOrStdout())

	var multiLineBuffer strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			multiLineBuffer.Reset()
			rl.SetPrompt(replPrompt)
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if multiLineBuffer.Len() == 0 && strings.HasPrefix(line, ".") {
			if quit := handleDotCommand(ctx, cmd, cmdCtx, line, opts); quit {
				break
			}
			continue
		}

		// Accumulate multi-line SQL until semicolon
		multiLineBuffer.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			multiLineBuffer.WriteString(" ")
			rl.SetPrompt(replContinue)
			continue
		}
		rl.SetPrompt(replPrompt)

		query := multiLineBuffer.String()
		multiLineBuffer.Reset()

		if err := executeAndRender(ctx, cmd, cmdCtx, query, opts); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout())
	}

	return nil
}

func executeAndRender(ctx context.Context, cmd *cobra.Command, cmdCtx *CommandContext, query string, opts *QueryOptions) error {
	rows, err := runRows(ctx, cmdCtx, query, opts.All)
	if err != nil {
		return err
	}
	return renderResults(cmd.OutOrStdout(), rows, opts.Format)
}

func describeSession(cmdCtx *CommandContext) string {
	m, err := cmdCtx.Manager()
	if err != nil {
		return cmdCtx.Cfg.Connection.Type
	}
	r := m.Router()
	desc := fmt.Sprintf("shard %d: %s/%s", r.ActiveShardID(), r.Host(), r.Database())
	if s := m.CurrentSchema(); s != "" {
		desc += ", schema " + s
	}
	return desc
}

// handleDotCommand runs one dot-command and reports whether the REPL should exit.
func handleDotCommand(ctx context.Context, cmd *cobra.Command, cmdCtx *CommandContext, line string, opts *QueryOptions) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	report := func(err error) {
		if err != nil {
			_, _ = fmt.Fprintf(errOut, "Error: %v\n", err)
		}
	}

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(out)

	case ".tables":
		rows, err := cmdCtx.Adapter.Query(ctx, listTablesStmt)
		if err == nil {
			err = renderResults(out, rows, opts.Format)
		}
		report(err)

	case ".schema":
		if len(parts) < 2 {
			_, _ = fmt.Fprintln(errOut, "Usage: .schema <table>")
			return false
		}
		report(showTable(ctx, out, cmdCtx, parts[1]))

	case ".shards":
		report(renderShards(out, cmdCtx.Cfg.Connection, opts.Format))

	case ".shard":
		if len(parts) < 2 {
			_, _ = fmt.Fprintln(errOut, "Usage: .shard <id> [schema]")
			return false
		}
		id, err := strconv.Atoi(parts[1])
		if err != nil {
			report(fmt.Errorf("invalid shard id %q", parts[1]))
			return false
		}
		schema := ""
		if len(parts) > 2 {
			schema = parts[2]
		}
		if err := selectSession(ctx, cmdCtx, id, schema); err != nil {
			report(err)
			return false
		}
		_, _ = fmt.Fprintf(out, "Now on %s\n", describeSession(cmdCtx))

	case ".all":
		opts.All = !opts.All
		_, _ = fmt.Fprintf(out, "Fan-out to all shards: %t\n", opts.All)

	case ".clear":
		_, _ = fmt.Fprint(out, "\033[H\033[2J")

	default:
		_, _ = fmt.Fprintf(errOut, "Unknown command: %s (type .help for commands)\n", command)
	}
	return false
}

// showTable prints the column metadata and row count of one table.
func showTable(ctx context.Context, w io.Writer, cmdCtx *CommandContext, name string) error {
	meta, err := cmdCtx.Adapter.GetTableMetadata(ctx, name)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "Table: %s.%s (%d rows)\n", meta.Schema, meta.Name, meta.RowCount)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Column", "Type", "Nullable", "Default", "Encoding"})
	for _, col := range meta.Columns {
		nullable := "NO"
		if col.Nullable {
			nullable = "YES"
		}
		def := ""
		if col.Default != nil {
			def = *col.Default
		}
		if col.PrimaryKey {
			def = strings.TrimSpace(def + " (primary key)")
		}
		t.AppendRow(table.Row{col.Name, vertica.ColumnTypeSQL(col), nullable, def, col.Encoding})
	}
	t.Render()
	return nil
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help               Show this help message
  .tables             List all tables
  .schema <table>     Show columns of a table
  .shards             List configured shards
  .shard <id> [name]  Switch shard, optionally setting the search path
  .all                Toggle running queries on every shard and schema
  .clear              Clear the screen
  .quit / .exit       Exit the REPL

Tips:
  - SQL statements must end with a semicolon (;)
  - Use arrow keys to navigate history
  - Tab completion works for table names
`
	_, _ = fmt.Fprintln(w, help)
}

// newTableCompleter creates a readline completer for table names.
func newTableCompleter(ctx context.Context, cmdCtx *CommandContext) *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface

	// Table names are for autocomplete only, a failed lookup is not fatal
	if rows, err := cmdCtx.Adapter.Query(ctx, listTablesStmt); err == nil {
		for _, row := range rows {
			schema, _ := row.Get("schema")
			name, _ := row.Get("name")
			items = append(items, readline.PcItem(fmt.Sprintf("%v.%v", schema, name)))
		}
	}

	items = append(items,
		readline.PcItem(".help"),
		readline.PcItem(".tables"),
		readline.PcItem(".schema"),
		readline.PcItem(".shards"),
		readline.PcItem(".shard"),
		readline.PcItem(".all"),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)

	return readline.NewPrefixCompleter(items...)
}
