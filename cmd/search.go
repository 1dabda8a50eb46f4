package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/datapulse/internal/reader"
)

var (
	searchSites         []string
	searchLimit         int
	searchFetch         bool
	searchMinConfidence float64
)

var searchCmd = &cobra.Command{
	Use:   "search <query>...",
	Short: "Search the web through Jina and store the hits",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		items, err := env.Reader.Search(cmd.Context(), strings.Join(args, " "), reader.SearchOptions{
			Sites:         searchSites,
			Limit:         searchLimit,
			FetchContent:  searchFetch,
			MinConfidence: searchMinConfidence,
		})
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), items)
	},
}

func init() {
	searchCmd.Flags().StringSliceVar(&searchSites, "site", nil, "restrict results to these domains")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 5, "max results")
	searchCmd.Flags().BoolVar(&searchFetch, "fetch", false, "read each hit through the collector chain")
	searchCmd.Flags().Float64Var(&searchMinConfidence, "min-confidence", 0, "skip hits below this confidence")
	rootCmd.AddCommand(searchCmd)
}
