package main

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/datapulse/internal/reader"
	"github.com/sells-group/datapulse/internal/urlkit"
)

var (
	readMinConfidence float64
	readFailFast      bool
	readConcurrency   int
)

var readCmd = &cobra.Command{
	Use:   "read <url|text>...",
	Short: "Read one or more URLs into the inbox",
	Long:  "Routes each URL through the collector chain, scores it and stores new items. Several URLs are read concurrently; failures are isolated per URL. Arguments may also be pasted text; the URLs inside it are read.",
	RunE: func(cmd *cobra.Command, args []string) error {
		urls := readTargets(args)
		if len(urls) == 0 {
			return cmd.Help()
		}

		env, err := initEnv(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		minConf := cfg.Reader.MinConfidence
		if cmd.Flags().Changed("min-confidence") {
			minConf = readMinConfidence
		}

		if len(urls) == 1 {
			it, err := env.Reader.Read(cmd.Context(), urls[0], minConf)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), it)
		}

		items, err := env.Reader.ReadBatch(cmd.Context(), urls, reader.BatchOptions{
			MinConfidence: minConf,
			FailFast:      readFailFast,
			Concurrency:   readConcurrency,
		})
		if err != nil {
			return err
		}
		zap.L().Info("batch read complete",
			zap.Int("requested", len(urls)),
			zap.Int("stored", len(items)),
			zap.Int("dlq", env.Reader.DLQ().Len()),
		)
		return writeJSON(cmd.OutOrStdout(), items)
	},
}

// readTargets pulls URLs out of each argument. A bare argument without
// embedded URLs is taken as-is; prose without URLs is dropped.
func readTargets(args []string) []string {
	var urls []string
	for _, arg := range args {
		if found := urlkit.ExtractURLs(arg); len(found) > 0 {
			urls = append(urls, found...)
			continue
		}
		if arg = strings.TrimSpace(arg); arg != "" && !strings.ContainsAny(arg, " \t\n") {
			urls = append(urls, arg)
		}
	}
	return reader.DedupURLs(urls)
}

func init() {
	readCmd.Flags().Float64Var(&readMinConfidence, "min-confidence", 0, "reject items scoring below this confidence (default from config)")
	readCmd.Flags().BoolVar(&readFailFast, "fail-fast", false, "abort the batch on the first failure")
	readCmd.Flags().IntVar(&readConcurrency, "concurrency", 0, "max concurrent reads (default from config)")
	rootCmd.AddCommand(readCmd)
}
