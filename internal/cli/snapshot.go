package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mrtazz/admiral/internal/indexer/snapshot"
)

func newSnapshotCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage named index snapshots",
	}

	var from string
	save := &cobra.Command{
		Use:   "save <name>",
		Short: "Store an index file under a name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, _, err := loadIndex(a.cfg, from, "")
			if err != nil {
				return err
			}
			store, err := snapshot.Open(a.cfg.Snapshot.Path)
			if err != nil {
				return err
			}
			defer store.Close()
			meta, err := store.Put(args[0], idx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored snapshot %q: %d documents, %d terms\n", meta.Name, meta.Documents, meta.Terms)
			return nil
		},
	}
	save.Flags().StringVar(&from, "index", "", "index file to store (default index.dataFile)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := snapshot.Open(a.cfg.Snapshot.Path)
			if err != nil {
				return err
			}
			defer store.Close()
			metas, err := store.List()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCREATED\tDOCUMENTS\tTERMS\tBYTES")
			for _, m := range metas {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n",
					m.Name, m.CreatedAt.Format("2006-01-02 15:04:05"), m.Documents, m.Terms, m.SizeBytes)
			}
			return tw.Flush()
		},
	}

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := snapshot.Open(a.cfg.Snapshot.Path)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted snapshot %q\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(save, list, del)
	return cmd
}
