package cmd

import (
	"fmt"

	"github.com/igvedmak/parkspeak/internal/database"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := bootstrap()
		if err != nil {
			printError("startup failed", err)
			return err
		}
		defer log.Sync()

		if err := database.Init(log); err != nil {
			printError("migration failed", err)
			return err
		}
		fmt.Println("Database schema is up to date.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
