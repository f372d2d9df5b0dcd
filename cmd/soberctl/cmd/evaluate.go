package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func EvaluateCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run milestone evaluation for one user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}

			a, err := wireApp()
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.MilestoneService.Evaluate(userID)
			if err != nil {
				return fmt.Errorf("failed to evaluate milestones: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user ID to evaluate")
	return cmd
}
