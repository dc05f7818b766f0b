package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaharnoy/Klettrack-sub002/internal/output"
)

var syncTailCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent sync activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		if limit <= 0 || limit > 200 {
			output.Error("limit must be between 1 and 200")
			return fmt.Errorf("invalid limit: %d", limit)
		}

		db, err := openLocalDB()
		if err != nil {
			output.Error("open database: %v", err)
			return err
		}
		defer db.Close()

		entries, err := db.SyncLogTail(limit)
		if err != nil {
			output.Error("query sync log: %v", err)
			return err
		}

		if len(entries) == 0 {
			output.Info("No sync activity recorded.")
			return nil
		}

		for _, e := range entries {
			fmt.Println(output.FormatSyncLogLine(e.Timestamp, e.Direction, e.Outcome, e.Entity, e.EntityID))
		}
		return nil
	},
}

func init() {
	syncTailCmd.Flags().Int("limit", 50, "Max entries to show")
	syncCmd.AddCommand(syncTailCmd)
}
