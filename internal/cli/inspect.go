package cli

import (
	"fmt"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mrtazz/admiral/internal/indexer/segment"
	"github.com/mrtazz/admiral/internal/searcher/executor"
)

func newInspectCmd(a *app) *cobra.Command {
	var top int
	var all, histogram bool
	var pairs int
	cmd := &cobra.Command{
		Use:   "inspect <index>",
		Short: "Print an index file's header and its most frequent words",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading index %s: %w", args[0], err)
			}
			idx, header, err := segment.Decode(data)
			if err != nil {
				return fmt.Errorf("loading index %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "file\t%s\n", args[0])
			fmt.Fprintf(tw, "format version\t%d\n", header.Version)
			fmt.Fprintf(tw, "created\t%s\n", header.CreatedAt.Format("2006-01-02 15:04:05 MST"))
			fmt.Fprintf(tw, "size\t%d bytes\n", len(data))
			fmt.Fprintf(tw, "documents\t%d\n", idx.DocCount())
			fmt.Fprintf(tw, "terms\t%d\n", idx.TermCount())
			fmt.Fprintf(tw, "postings\t%d\n", idx.PostingCount())
			fmt.Fprintf(tw, "sections\tpostings %d, dictionary %d, registry %d bytes\n",
				header.PostingsSize, header.DictSize, header.RegistrySize)
			if err := tw.Flush(); err != nil {
				return err
			}

			freqs := idx.WordFrequencies()
			if !all {
				slices.Reverse(freqs)
				if len(freqs) > top {
					freqs = freqs[:top]
				}
			}
			fmt.Fprintln(out)
			tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TERM\tDOCS")
			for _, f := range freqs {
				fmt.Fprintf(tw, "%s\t%d\n", f.Term, f.DocFreq)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if histogram {
				fmt.Fprintln(out)
				tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "DOCS\tTERMS")
				for _, b := range idx.DocFreqHistogram() {
					fmt.Fprintf(tw, "%d\t%d\n", b.DocFreq, b.Terms)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}

			if pairs != 0 {
				fmt.Fprintln(out)
				tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "FIRST\tSECOND\tDOCUMENT")
				for _, p := range executor.New(idx, nil).UniquePairs(pairs) {
					name, _ := idx.FileName(p.DocID)
					fmt.Fprintf(tw, "%s\t%s\t%s\n", p.First, p.Second, name)
				}
				return tw.Flush()
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 20, "number of most frequent words to list")
	cmd.Flags().BoolVar(&all, "all", false, "list every word, least frequent first")
	cmd.Flags().BoolVar(&histogram, "histogram", false, "count the words per document frequency")
	cmd.Flags().IntVar(&pairs, "pairs", 0, "list up to N word pairs found together in exactly one document (-1 for all)")
	return cmd
}
