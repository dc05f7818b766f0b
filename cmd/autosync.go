package cmd

import (
	"log/slog"
	"time"

	"github.com/shaharnoy/Klettrack-sub002/internal/syncconfig"
)

// autoSyncAfterMutation runs a quick sync round after a mutating command
// completes. Runs synchronously but with a short timeout. Errors are logged,
// not surfaced; the local write already succeeded.
func autoSyncAfterMutation() {
	if !syncconfig.GetAutoSyncEnabled() {
		return
	}
	if !syncconfig.IsAuthenticated() {
		return
	}

	db, err := openLocalDB()
	if err != nil {
		slog.Debug("autosync: open db", "err", err)
		return
	}
	defer db.Close()

	r, err := newReconciler(db)
	if err != nil {
		slog.Debug("autosync: reconciler", "err", err)
		return
	}
	// Short timeout so a slow server never stalls the CLI.
	r.SetHTTPTimeout(5 * time.Second)

	summary, err := r.Sync()
	if err != nil {
		slog.Debug("autosync: sync", "err", err, "hint", friendlySyncError(err))
		return
	}
	slog.Debug("autosync: done", "acked", summary.Acked, "applied", summary.Applied, "conflicts", summary.Conflicts)
}
