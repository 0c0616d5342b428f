package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	vadapter "github.com/leapstack-labs/leapvertica/pkg/adapters/vertica"
	"github.com/leapstack-labs/leapvertica/pkg/core"
	"github.com/leapstack-labs/leapvertica/pkg/dialects/vertica"
	"github.com/leapstack-labs/leapvertica/pkg/sharding"
	"github.com/spf13/cobra"
)

// NewShardsCommand creates the shards command.
func NewShardsCommand() *cobra.Command {
	var format string
	var connectSQL bool

	cmd := &cobra.Command{
		Use:   "shards",
		Short: "List the configured shards",
		Long: `List every shard with its merged connection parameters.

Shard records are merged over the global template, so the values shown are
the ones each connection is opened with. No connection is made.`,
		Example: `  leapvertica shards
  leapvertica shards --format json
  leapvertica shards --connect-sql`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContextWithoutAdapter(cmd)
			if connectSQL {
				return renderConnectSQL(cmd.OutOrStdout(), cmdCtx.Cfg.Connection)
			}
			return renderShards(cmd.OutOrStdout(), cmdCtx.Cfg.Connection, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table, json")
	cmd.Flags().BoolVar(&connectSQL, "connect-sql", false, "Print the CONNECT TO VERTICA statement of each shard")

	return cmd
}

func renderShards(w io.Writer, cfg core.ConnectionConfig, format string) error {
	shards, err := sharding.ParseShards(vadapter.SingleShard(cfg))
	if err != nil {
		return err
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(shards)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Host", "Port", "Database", "User"})
	for _, s := range shards {
		host := s.Host
		if s.DSN != "" {
			host = "dsn"
		}
		port := ""
		if s.Port != 0 {
			port = strconv.Itoa(s.Port)
		}
		t.AppendRow(table.Row{s.ID, host, port, s.DBName, s.User})
	}
	t.Render()
	_, _ = fmt.Fprintf(w, "(%d shards)\n", len(shards))
	return nil
}

func renderConnectSQL(w io.Writer, cfg core.ConnectionConfig) error {
	shards, err := sharding.ParseShards(vadapter.SingleShard(cfg))
	if err != nil {
		return err
	}
	for _, s := range shards {
		_, _ = fmt.Fprintf(w, "-- shard %d\n%s\n", s.ID, vertica.ConnectToSQL(s))
	}
	return nil
}
