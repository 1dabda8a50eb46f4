package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/datapulse/internal/urlkit"
)

var detectOffline bool

var detectCmd = &cobra.Command{
	Use:   "detect <url>",
	Short: "Show which collector handles a URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if detectOffline {
			fmt.Fprintln(cmd.OutOrStdout(), urlkit.PlatformHint(args[0]))
			return nil
		}

		env, err := initEnv(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		fmt.Fprintln(cmd.OutOrStdout(), env.Reader.DetectPlatform(cmd.Context(), args[0]))
		return nil
	},
}

func init() {
	detectCmd.Flags().BoolVar(&detectOffline, "offline", false, "guess from the URL alone without fetching")
	rootCmd.AddCommand(detectCmd)
}
