package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bindex/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/postgres"
)

var errCatalogDisabled = errors.New("build catalog is disabled: set postgres.enabled or BINDEX_POSTGRES_HOST")

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded index builds from the Postgres catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			if !cfg.Postgres.Enabled {
				return errCatalogDisabled
			}
			ctx := cmd.Context()
			db, err := postgres.New(ctx, cfg.Postgres)
			if err != nil {
				return err
			}
			defer db.Close()
			store := catalog.New(db)
			if err := store.EnsureSchema(ctx); err != nil {
				return err
			}
			builds, err := store.List(ctx, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(builds)
			}
			if len(builds) == 0 {
				fmt.Fprintln(out, "no builds recorded")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tBUILT\tDOCS\tTERMS\tSIZE\tELAPSED\tPATH")
			for _, b := range builds {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					b.ID,
					humanize.Time(b.BuiltAt),
					humanize.Comma(int64(b.Documents)),
					humanize.Comma(int64(b.Terms)),
					humanize.Bytes(uint64(b.FileSize)),
					b.Elapsed.Round(time.Millisecond),
					b.Path,
				)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of builds to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
