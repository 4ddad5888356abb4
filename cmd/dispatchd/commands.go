package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dispatchd",
		Short: "Context-aware tool dispatch daemon",
	}
	cmd.AddCommand(newServeCmd())
	return cmd
}
