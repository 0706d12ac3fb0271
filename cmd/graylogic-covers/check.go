package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-shutters/internal/cover"
	"github.com/nerrad567/gray-logic-shutters/internal/entries"
	"github.com/nerrad567/gray-logic-shutters/internal/infrastructure/config"
)

func newCheckCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and entries file",
		Long: `Load the configuration and the entries file it points to, validate
both and print the covers each entry controls. Nothing is started and no
connections are made.`,
		Example: `  # Check the default configuration
  graylogic-covers check

  # Check a staged configuration before deploying it
  graylogic-covers check --config /etc/graylogic/config.yaml.new`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return check(cmd.OutOrStdout(), resolveConfigPath(*configPath))
		},
	}
}

// check validates configuration and entries and writes a summary to out.
func check(out io.Writer, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	list, err := entries.LoadFile(cfg.Covers.EntriesFile)
	if err != nil {
		return fmt.Errorf("loading entries: %w", err)
	}

	fmt.Fprintf(out, "config:  %s (site %s, %s)\n", configPath, cfg.Site.ID, cfg.Location())
	fmt.Fprintf(out, "entries: %s\n", cfg.Covers.EntriesFile)

	seen := make(map[string]string)
	for _, e := range list {
		covers := cover.Options(e.Data).Covers()
		fmt.Fprintf(out, "  %s (%s): %d covers\n", e.ID, e.Name, len(covers))
		for _, c := range covers {
			if owner, dup := seen[c]; dup {
				return fmt.Errorf("cover %s is listed by entries %s and %s", c, owner, e.ID)
			}
			seen[c] = e.ID
			fmt.Fprintf(out, "    - %s\n", c)
		}
	}
	if cfg.Security.JWT.Secret == "" {
		fmt.Fprintln(out, "warning: security.jwt.secret is empty, the API is unauthenticated")
	}
	fmt.Fprintln(out, "ok")
	return nil
}
