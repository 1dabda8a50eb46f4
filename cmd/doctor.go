package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check collector health grouped by tier",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		h := env.Reader.Health(cmd.Context())
		if err := writeJSON(cmd.OutOrStdout(), h); err != nil {
			return err
		}
		if !h.OK {
			return eris.New("doctor: one or more collectors report errors")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
