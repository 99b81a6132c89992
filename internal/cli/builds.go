package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrtazz/admiral/internal/indexer/catalog"
	"github.com/mrtazz/admiral/pkg/postgres"
)

func newBuildsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "builds",
		Short: "List recent index builds from the PostgreSQL catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.Postgres.Enabled {
				return fmt.Errorf("the build catalog needs postgres.enabled or ADMIRAL_POSTGRES_HOST")
			}
			db, err := postgres.New(a.cfg.Postgres)
			if err != nil {
				return err
			}
			defer db.Close()

			cat := catalog.New(db)
			if err := cat.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			builds, err := cat.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "BUILT\tDOCUMENTS\tTERMS\tDURATION\tFOLDER\tOUTPUT\tID")
			for _, b := range builds {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
					b.BuiltAt.Local().Format("2006-01-02 15:04:05"),
					b.Stats.Documents, b.Stats.Terms, b.Stats.Duration.Round(time.Millisecond),
					b.Folder, b.Output, b.ID)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of builds to list")
	return cmd
}
