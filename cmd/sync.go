package cmd

import (
	"github.com/spf13/cobra"

	"github.com/shaharnoy/Klettrack-sub002/internal/output"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Sync the local log with the server",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openLocalDB()
		if err != nil {
			output.Error("open database: %v", err)
			return err
		}
		defer db.Close()

		r, err := newReconciler(db)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		summary, err := r.Sync()
		if err != nil {
			output.Error("sync: %s", friendlySyncError(err))
			return err
		}

		if summary.CursorReset {
			output.Warning("cursor was stale; re-pulled the full log")
		}
		output.Success("Synced: %d pushed, %d applied", summary.Acked, summary.Applied)
		if summary.Conflicts > 0 {
			output.Warning("%d conflict(s); run 'klettrack sync conflicts'", summary.Conflicts)
		}
		if summary.Failed > 0 {
			output.Warning("%d mutation(s) rejected; run 'klettrack sync failed'", summary.Failed)
		}
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local sync state",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openLocalDB()
		if err != nil {
			output.Error("open database: %v", err)
			return err
		}
		defer db.Close()

		pending, err := db.CountPending()
		if err != nil {
			return err
		}
		conflicts, err := db.ConflictedMutations()
		if err != nil {
			return err
		}
		failed, err := db.FailedMutations()
		if err != nil {
			return err
		}
		state, err := db.GetSyncState()
		if err != nil {
			return err
		}

		output.Info("Pending:   %d", pending)
		output.Info("Conflicts: %d", len(conflicts))
		output.Info("Failed:    %d", len(failed))
		if state.Cursor == "" {
			output.Info("Cursor:    (never synced)")
		} else {
			output.Info("Cursor:    %s", state.Cursor)
		}
		if state.LastSyncAt != nil {
			output.Info("Last sync: %s", output.FormatTimeAgo(*state.LastSyncAt))
		}
		return nil
	},
}

var syncFailedCmd = &cobra.Command{
	Use:   "failed",
	Short: "Show mutations the server rejected",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openLocalDB()
		if err != nil {
			output.Error("open database: %v", err)
			return err
		}
		defer db.Close()

		failed, err := db.FailedMutations()
		if err != nil {
			return err
		}
		if len(failed) == 0 {
			output.Info("No rejected mutations.")
			return nil
		}
		for _, m := range failed {
			output.Info("%s  %s/%s  %s", m.OpID, m.Entity, m.EntityID, m.Reason)
		}
		return nil
	},
}

var syncDiscardCmd = &cobra.Command{
	Use:   "discard <op-id>",
	Short: "Discard a parked mutation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openLocalDB()
		if err != nil {
			output.Error("open database: %v", err)
			return err
		}
		defer db.Close()

		if err := db.DeleteMutation(args[0]); err != nil {
			output.Error("discard: %v", err)
			return err
		}
		output.Success("Discarded %s", args[0])
		return nil
	},
}

func init() {
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncFailedCmd)
	syncCmd.AddCommand(syncDiscardCmd)
	rootCmd.AddCommand(syncCmd)
}
