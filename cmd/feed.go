package main

import (
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/datapulse/internal/feed"
	"github.com/sells-group/datapulse/internal/reader"
)

var (
	feedFormat        string
	feedProfile       string
	feedSince         string
	feedLimit         int
	feedMinConfidence float64
	feedOutput        string
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Render subscribed inbox items as JSON Feed, RSS or Atom",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := feed.ParseFormat(feedFormat)
		if err != nil {
			return err
		}
		since, err := parseSince(feedSince, time.Now())
		if err != nil {
			return err
		}

		env, err := initEnv(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		items := env.Reader.QueryFeed(reader.FeedQuery{
			Profile:       feedProfile,
			Since:         since,
			MinConfidence: feedMinConfidence,
			Limit:         feedLimit,
		})

		var w io.Writer = cmd.OutOrStdout()
		if feedOutput != "" {
			f, err := os.Create(feedOutput)
			if err != nil {
				return eris.Wrapf(err, "feed: create %s", feedOutput)
			}
			defer f.Close() //nolint:errcheck
			w = f
		}
		return feed.Render(w, format, feedMeta(cfg.Feed, "/feed."+string(format)), items)
	},
}

func init() {
	feedCmd.Flags().StringVar(&feedFormat, "format", "json", "output format: json, rss or atom")
	feedCmd.Flags().StringVar(&feedProfile, "profile", "", "subscription profile (default from config)")
	feedCmd.Flags().StringVar(&feedSince, "since", "", "only items fetched after this duration ago or timestamp")
	feedCmd.Flags().IntVar(&feedLimit, "limit", 50, "max items")
	feedCmd.Flags().Float64Var(&feedMinConfidence, "min-confidence", 0, "skip items below this confidence")
	feedCmd.Flags().StringVarP(&feedOutput, "output", "o", "", "write to file instead of stdout")
	rootCmd.AddCommand(feedCmd)
}
