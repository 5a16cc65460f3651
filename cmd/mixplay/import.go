package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/mixplay/pkg/corpus/postgres"
)

func newImportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Copy the transcripts of a directory into PostgreSQL",
		Long: `Reads every transcript file of --transcripts and stores it in the
database given by --dsn (or postgres.dsn). Transcripts already present are
replaced, so the command can be re-run after re-transcribing a file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if c.cfg.Postgres.DSN == "" {
				return errors.New("no database; pass --dsn or set postgres.dsn")
			}
			src, err := newJSONDirSource(c.cfg)
			if err != nil {
				return err
			}

			start := time.Now()
			records, err := src.Load(ctx)
			if err != nil {
				return err
			}

			store, err := postgres.NewStore(ctx, c.cfg.Postgres.DSN, postgres.WithMaxConns(c.cfg.Postgres.MaxConns))
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := store.Import(ctx, records)
			if err != nil {
				return err
			}
			transcripts, words, err := store.Count(ctx)
			if err != nil {
				return err
			}
			slog.Info("import finished",
				"imported", res.Imported,
				"skipped", res.Skipped,
				"words", res.Words,
				"duration", time.Since(start),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d transcripts (%d words, %d skipped); database now holds %d transcripts, %d words\n",
				res.Imported, res.Words, res.Skipped, transcripts, words)
			return nil
		},
	}
}
