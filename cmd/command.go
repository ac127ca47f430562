package cmd

import (
	"fmt"

	"github.com/Sp1ker2/rat/internal/database"
	"github.com/spf13/cobra"
)

var commandCmd = &cobra.Command{
	Use:   "command [name]",
	Short: "Run a one-time maintenance command (migrate, migrate-create, seed)",
	RunE:  runCommand,
}

func init() {
	rootCmd.AddCommand(commandCmd)
}

func runCommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		fmt.Println("available: migrate, migrate-create <name>, seed")
		return nil
	}
	switch name := args[0]; name {
	case "migrate":
		return runMigrateUp(cmd, nil)
	case "migrate-create":
		if len(args) < 2 || args[1] == "" {
			return fmt.Errorf("migration name required: command migrate-create <name>")
		}
		return database.CreateMigration(args[1])
	case "seed":
		return runSeed(cmd, nil)
	default:
		return fmt.Errorf("unknown command: %s", name)
	}
}
