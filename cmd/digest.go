package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/datapulse/internal/reader"
)

var (
	digestProfile       string
	digestSince         string
	digestMinConfidence float64
	digestTopN          int
	digestSecondaryN    int
	digestMaxPerSource  int
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Build a ranked, source-diverse digest of the inbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, err := parseSince(digestSince, time.Now())
		if err != nil {
			return err
		}

		env, err := initEnv(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		d := env.Reader.BuildDigest(cmd.Context(), reader.DigestOptions{
			Profile:       digestProfile,
			Since:         since,
			MinConfidence: digestMinConfidence,
			TopN:          digestTopN,
			SecondaryN:    digestSecondaryN,
			MaxPerSource:  digestMaxPerSource,
		})
		return writeJSON(cmd.OutOrStdout(), d)
	},
}

func init() {
	digestCmd.Flags().StringVar(&digestProfile, "profile", "", "subscription profile (default from config)")
	digestCmd.Flags().StringVar(&digestSince, "since", "", "only items fetched after this duration ago or timestamp")
	digestCmd.Flags().Float64Var(&digestMinConfidence, "min-confidence", 0, "skip items below this confidence")
	digestCmd.Flags().IntVar(&digestTopN, "top-n", 0, "primary picks (default from config)")
	digestCmd.Flags().IntVar(&digestSecondaryN, "secondary-n", 0, "secondary picks (default from config)")
	digestCmd.Flags().IntVar(&digestMaxPerSource, "max-per-source", 0, "cap per source (default from config)")
	rootCmd.AddCommand(digestCmd)
}
