package cmd

import (
	"fmt"
	"io/fs"

	"github.com/soberly/recovery"
	"github.com/soberly/recovery/internal/repository"
	"github.com/soberly/recovery/internal/service"
	"github.com/spf13/cobra"
)

func SeedCmd() *cobra.Command {
	opts := &dbOptions{}
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load reference data",
	}
	addDBFlags(cmd, opts)

	cmd.AddCommand(&cobra.Command{
		Use:   "strategies",
		Short: "Insert the built-in coping strategy catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := opts.open()
			if err != nil {
				return err
			}
			defer database.Close()

			catalog, err := fs.Sub(recovery.StrategiesFS, "content/strategies")
			if err != nil {
				return err
			}
			copingService := service.NewCopingService(repository.NewCopingRepository(database))
			n, err := copingService.SeedCatalog(catalog)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d strategies\n", n)
			return nil
		},
	})

	return cmd
}
