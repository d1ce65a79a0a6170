package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "eapproval",
		Short:         "Rule-based validation of e-approval documents",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newRulesCmd(),
		newValidateCmd(),
		newMigrateCmd(),
	)
	return root
}
