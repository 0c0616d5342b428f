package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leapvertica/internal/cli/config"
	"github.com/leapstack-labs/leapvertica/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	var sharded bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new leapvertica project",
		Long: `Initialize a new leapvertica project with a configuration file and an
example table layout.

This creates:
  - leapvertica.yaml configuration file
  - schema.yaml target table layout for 'schema diff' and 'schema apply'

Use --sharded to start from a three-shard cluster layout with tenant
schemas, hash allocation and seed data.`,
		Example: `  # Initialize in current directory
  leapvertica init

  # Initialize a sharded project in a new directory
  leapvertica init my-cluster --sharded

  # Force overwrite existing config
  leapvertica init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			cfg := getConfig()
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))

			if sharded {
				return runInitSharded(r, dir, force)
			}
			return runInit(r, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	cmd.Flags().BoolVar(&sharded, "sharded", false, "Create a sharded cluster example with seed data")

	return cmd
}

func prepareInitDir(dir string, force bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, config.DefaultConfigFile)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", config.DefaultConfigFile)
	}
	return nil
}

func runInit(r *output.Renderer, dir string, force bool) error {
	if err := prepareInitDir(dir, force); err != nil {
		return err
	}
	if err := copyTemplate("minimal", dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	files, _ := listTemplateFiles("minimal")
	for _, f := range files {
		r.StatusLine(f, "success", "")
	}

	r.Println("")
	r.Success("leapvertica project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  1. Set VERTICA_PASSWORD and edit the connection in leapvertica.yaml")
	r.Println("  2. Run 'leapvertica doctor' to check the connection")
	r.Println("  3. Run 'leapvertica schema diff' to compare schema.yaml with the database")

	return nil
}

func runInitSharded(r *output.Renderer, dir string, force bool) error {
	if err := prepareInitDir(dir, force); err != nil {
		return err
	}
	if err := copyTemplate("sharded", dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	files, _ := listTemplateFiles("sharded")
	groups := groupTemplateFiles(files)

	r.Header(2, "Configuration")
	for _, f := range groups["config"] {
		r.StatusLine(f, "success", "")
	}

	r.Println("")
	r.Header(2, "Seeds")
	for _, f := range groups["seeds"] {
		r.StatusLine(f, "success", "")
	}

	r.Println("")
	r.Success("leapvertica sharded project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  leapvertica shards               Review the merged shard parameters")
	r.Println("  leapvertica schema apply         Create the tables in every tenant schema")
	r.Println("  leapvertica load customers seeds/customers.csv")
	r.Println("  leapvertica query --all \"SELECT COUNT(*) AS n FROM customers\"")

	return nil
}
