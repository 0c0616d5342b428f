package commands

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// rowLoader is implemented by adapters that can bulk load in-memory rows.
type rowLoader interface {
	LoadRows(ctx context.Context, table string, rows [][]any) (int64, error)
}

// LoadOptions holds options for the load command.
type LoadOptions struct {
	TSV    bool
	Shard  int
	Schema string
}

// NewLoadCommand creates the load command.
func NewLoadCommand() *cobra.Command {
	opts := &LoadOptions{}

	cmd := &cobra.Command{
		Use:   "load <table> <file>",
		Short: "Bulk load a CSV or TSV file into a table",
		Long: `Load a file with a header row into a table using COPY FROM LOCAL.

CSV files are copied as they are; a missing table is created with one
VARCHAR column per header field. TSV files (as written by query --format tsv)
are staged row by row into an existing table; empty fields load as NULL.`,
		Example: `  leapvertica load people people.csv
  leapvertica load --shard 2 --schema tenant_42 orders orders.tsv --tsv`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, args[0], args[1], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.TSV, "tsv", false, "Input is tab-separated")
	cmd.Flags().IntVar(&opts.Shard, "shard", 0, "Shard id to load into (default: first shard)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "Schema to set as the session search path")

	return cmd
}

func runLoad(cmd *cobra.Command, table, file string, opts *LoadOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if err := selectSession(ctx, cmdCtx, opts.Shard, opts.Schema); err != nil {
		return err
	}

	if !opts.TSV {
		if err := cmdCtx.Adapter.LoadCSV(ctx, table, file); err != nil {
			return err
		}
		cmdCtx.Renderer.Success(fmt.Sprintf("Loaded %s into %s", file, table))
		return nil
	}

	loader, ok := cmdCtx.Adapter.(rowLoader)
	if !ok {
		return fmt.Errorf("adapter %q cannot load TSV rows", cmdCtx.Cfg.Connection.Type)
	}
	rows, err := readTSV(file)
	if err != nil {
		return err
	}
	n, err := loader.LoadRows(ctx, table, rows)
	if err != nil {
		return err
	}
	cmdCtx.Renderer.Success(fmt.Sprintf("Loaded %d rows into %s", n, table))
	return nil
}

// readTSV reads a tab-separated file, skipping its header. Empty fields
// become nil.
func readTSV(path string) ([][]any, error) {
	f, err := os.Open(path) //nolint:gosec // user-provided input file
	if err != nil {
		return nil, fmt.Errorf("failed to open TSV file: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	if _, err := r.Read(); err != nil {
		return nil, fmt.Errorf("failed to read TSV header: %w", err)
	}

	var rows [][]any
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read TSV: %w", err)
		}
		row := make([]any, len(record))
		for i, field := range record {
			if field != "" {
				row[i] = field
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
