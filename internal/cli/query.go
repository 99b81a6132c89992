package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mrtazz/admiral/internal/searcher/executor"
	"github.com/mrtazz/admiral/internal/searcher/parser"
)

func newQueryCmd(a *app) *cobra.Command {
	var modeName string
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "query <index> <keywords...>",
		Short: "Run one query against a saved index",
		Long: `Query loads an index file and evaluates the keywords in one of three modes:
  and     documents containing every keyword (default)
  or      documents containing any keyword, best tf-idf score first
  prefix  vocabulary completions of the first keyword`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := parser.ParseMode(modeName)
			if err != nil {
				return err
			}
			idx, _, err := loadIndex(a.cfg, args[0], "")
			if err != nil {
				return err
			}
			plan := parser.Parse(strings.Join(args[1:], " "), mode)
			result, err := executor.New(idx, nil).Execute(cmd.Context(), plan, limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			return printResult(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVarP(&modeName, "mode", "m", "and", "query mode: and, or, prefix")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum results to print (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw result as JSON")
	return cmd
}

func printResult(w io.Writer, result *executor.SearchResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if len(result.Completions) > 0 {
		fmt.Fprintln(tw, "COMPLETION\tDOCS\tPERCENT")
		for _, c := range result.Completions {
			fmt.Fprintf(tw, "%s\t%d\t%.1f%%\n", c.Term, c.DocLength, c.Percentage)
		}
		fmt.Fprintln(tw)
	}
	fmt.Fprintln(tw, "RANK\tDOC\tSCORE\tFILE")
	for i, hit := range result.Results {
		fmt.Fprintf(tw, "%d\t%d\t%.4f\t%s\n", i+1, hit.DocID, hit.Score, hit.FileName)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d of %d matching documents\n", len(result.Results), result.TotalHits)
	return err
}
