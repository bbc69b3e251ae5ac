package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/critchecker/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/critchecker/internal/adapter/driven/terminal"
	"github.com/ericfisherdev/critchecker/internal/domain/model"
)

// ErrNoDatabase is returned by show when no database path is configured.
var ErrNoDatabase = errors.New("no database configured; pass --db or set CRITCHECKER_DB_PATH")

func newShowCommand(deps Deps, f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <journal-url>",
		Short: "Print the critiques stored for a launch post by the last run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			launch, err := model.ParseDeviationURL(args[0])
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd, deps, f)
			if err != nil {
				return err
			}
			if cfg.DBPath == "" {
				return ErrNoDatabase
			}

			db, err := sqlite.Open(cmd.Context(), cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer func() {
				if closeErr := db.Close(); closeErr != nil {
					slog.Error("error closing database", "error", closeErr)
				}
			}()

			records, err := sqlite.NewCritiqueRepo(db).ListByLaunch(cmd.Context(), launch)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintf(out, "No critiques stored for %s\n", launch.URL())
				return nil
			}
			fmt.Fprintln(out, terminal.RenderRecords(records))
			return nil
		},
	}
}
