package cmd

import (
	"fmt"
	"time"

	"github.com/soberly/recovery/internal/app"
	"github.com/soberly/recovery/internal/config"
	"github.com/soberly/recovery/internal/db"
	"github.com/spf13/cobra"
)

func TokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Maintain stored refresh tokens",
	}

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete used and expired refresh tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := wireApp()
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.AuthService.PruneTokens(olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d tokens\n", n)
			return nil
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "keep tokens used or expired more recently than this")
	cmd.AddCommand(prune)

	return cmd
}

// wireApp builds the services from the environment without serving HTTP.
func wireApp() (*app.App, error) {
	cfg := config.Load()
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a, err := app.Wire(cfg, database)
	if err != nil {
		database.Close()
		return nil, err
	}
	return a, nil
}
