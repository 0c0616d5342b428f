package commands

import (
	"fmt"

	"github.com/leapstack-labs/leapvertica/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewAllocateCommand creates the allocate command.
func NewAllocateCommand() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "allocate [key]",
		Short: "Pick the shard new data should be placed on",
		Long: `Pick a shard for new data using the configured allocation policy.

With the random policy each call picks a shard uniformly. With the hash
policy the key is placed on a consistent-hash ring, so the same key always
maps to the same shard.`,
		Example: `  leapvertica allocate
  leapvertica allocate customer-42
  leapvertica allocate --count 5`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := ""
			if len(args) > 0 {
				key = args[0]
			}
			return runAllocate(cmd, key, count)
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of allocations")

	return cmd
}

func runAllocate(cmd *cobra.Command, key string, count int) error {
	if count < 1 {
		return fmt.Errorf("--count must be positive")
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	m, err := cmdCtx.Manager()
	if err != nil {
		return err
	}

	ids := make([]int, 0, count)
	for range count {
		id, err := m.AllocateShardIDFor(key)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string]any{"key": key, "shards": ids})
	}
	for _, id := range ids {
		db, err := m.DatabaseNameForShardID(id)
		if err != nil {
			return err
		}
		r.Printf("%d\t%s\n", id, db)
	}
	return nil
}
