package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	inboxLimit         int
	inboxMinConfidence float64
	inboxUnset         bool
)

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Inspect and manage the unified inbox",
}

var inboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored items, highest confidence first",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		return writeJSON(cmd.OutOrStdout(), env.Reader.ListMemory(inboxLimit, inboxMinConfidence))
	},
}

var inboxUnprocessedCmd = &cobra.Command{
	Use:   "unprocessed",
	Short: "List items not yet marked processed",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		return writeJSON(cmd.OutOrStdout(), env.Inbox.QueryUnprocessed(inboxLimit, inboxMinConfidence))
	},
}

var inboxMarkCmd = &cobra.Command{
	Use:   "mark <id>",
	Short: "Mark an item processed (or unprocessed with --unset)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		if !env.Inbox.MarkProcessed(args[0], !inboxUnset) {
			return eris.Errorf("inbox: no item with id %s", args[0])
		}
		if err := env.Inbox.Save(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "marked %s processed=%t\n", args[0], !inboxUnset)
		return nil
	},
}

var inboxClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every stored item",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		n := env.Inbox.Clear()
		if err := env.Inbox.Save(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %d items\n", n)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{inboxListCmd, inboxUnprocessedCmd} {
		c.Flags().IntVar(&inboxLimit, "limit", 20, "max items to list")
		c.Flags().Float64Var(&inboxMinConfidence, "min-confidence", 0, "skip items below this confidence")
	}
	inboxMarkCmd.Flags().BoolVar(&inboxUnset, "unset", false, "mark the item unprocessed instead")

	inboxCmd.AddCommand(inboxListCmd, inboxUnprocessedCmd, inboxMarkCmd, inboxClearCmd)
	rootCmd.AddCommand(inboxCmd)
}
