package main

import (
	"os"

	"github.com/soberly/recovery/cmd/soberctl/cmd"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "soberctl",
		Short:        "Operator tools for the recovery API",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cmd.MigrateCmd())
	rootCmd.AddCommand(cmd.SeedCmd())
	rootCmd.AddCommand(cmd.EvaluateCmd())
	rootCmd.AddCommand(cmd.TokensCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
