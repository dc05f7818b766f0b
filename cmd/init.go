package cmd

import (
	"github.com/spf13/cobra"

	"github.com/shaharnoy/Klettrack-sub002/internal/localdb"
	"github.com/shaharnoy/Klettrack-sub002/internal/output"
	"github.com/shaharnoy/Klettrack-sub002/internal/syncconfig"
)

var initCmd = &cobra.Command{
	Use:     "init",
	Short:   "Create the local database",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := syncconfig.DataDir()
		if err != nil {
			return err
		}
		db, err := localdb.Initialize(dir)
		if err != nil {
			output.Error("initialize: %v", err)
			return err
		}
		defer db.Close()

		output.Success("Initialized klettrack database in %s", dir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
