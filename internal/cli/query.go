package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	queryK    int
	queryJSON bool
)

var queryCmd = &cobra.Command{
	Use:   "query <text>...",
	Short: "Retrieve resume fragments for one or more queries",
	Long:  `Embed each query, run a k-nearest-neighbour search and print the merged fragments.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryK, "k", "k", 0, "Fragments per query (default: configured default_k)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "Print results as JSON")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c, err := initRuntime(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	k := queryK
	if k == 0 {
		k = c.Runtime.Fetcher.DefaultK()
	}
	fragments, err := c.Runtime.Fetcher.FetchTopK(ctx, args, k)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}

	out := cmd.OutOrStdout()
	if queryJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(fragments) //nolint:wrapcheck // stdout
	}

	if len(fragments) == 0 {
		fmt.Fprintln(out, "No fragments found")
		return nil
	}

	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	for i, f := range fragments {
		yellow.Fprintf(out, "#%d ", i+1)
		fmt.Fprintf(out, "%s", f.ID)
		if src, ok := f.Source(); ok {
			cyan.Fprintf(out, " (%s)", src)
		}
		fmt.Fprintf(out, " score=%.4f\n", f.Score)
		fmt.Fprintf(out, "    %s\n", strings.ReplaceAll(strings.TrimSpace(f.Content), "\n", "\n    "))
	}
	return nil
}
