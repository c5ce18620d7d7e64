package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Import keys from a pre-rotation wallet",
	Long: `Moves the single key pair stored by wallets that predate key rotation
into the key history. Running it again is harmless.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.Close()

		migrated, err := s.engine.Vault().MigrateLegacy(ctx)
		if err != nil {
			return err
		}
		if !migrated {
			fmt.Println("Nothing to migrate.")
			return nil
		}
		fmt.Println("Legacy keys imported into the key history.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
