package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaharnoy/Klettrack-sub002/internal/entity"
	"github.com/shaharnoy/Klettrack-sub002/internal/localdb"
	"github.com/shaharnoy/Klettrack-sub002/internal/output"
)

var listCmd = &cobra.Command{
	Use:     "list <entity>",
	Short:   "List local records of one kind",
	Long:    "List local records of one kind. Valid kinds: " + strings.Join(entity.Names(), ", ") + ".",
	GroupID: "query",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := args[0]
		if !entity.IsValid(kind) {
			output.Error("unknown entity %q (valid: %s)", kind, strings.Join(entity.Names(), ", "))
			return fmt.Errorf("unknown entity: %s", kind)
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		db, err := openLocalDB()
		if err != nil {
			output.Error("open database: %v", err)
			return err
		}
		defer db.Close()

		recs, err := db.ListRecords(kind)
		if err != nil {
			output.Error("list %s: %v", kind, err)
			return err
		}

		if asJSON {
			return output.JSON(recs)
		}

		if len(recs) == 0 {
			output.Info("No %s recorded.", kind)
			return nil
		}
		for _, rec := range recs {
			output.Info("%s  v%d  %s", output.Title(rec.ID), rec.Version, summarizeDoc(rec))
		}
		return nil
	},
}

// summarizeDoc renders a one-line preview of a record's fields.
func summarizeDoc(rec localdb.LocalRecord) string {
	var parts []string
	for _, key := range []string{"name", "route_name", "grade", "exercise", "focus", "started_at", "performed_at"} {
		if v, ok := rec.Doc[key]; ok {
			parts = append(parts, strings.Trim(string(v), `"`))
		}
	}
	if len(parts) == 0 {
		return output.Subtle(fmt.Sprintf("%d fields", len(rec.Doc)))
	}
	return strings.Join(parts, "  ")
}

var deleteCmd = &cobra.Command{
	Use:     "delete <entity> <id>",
	Short:   "Delete a record",
	GroupID: "log",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, id := args[0], args[1]
		if !entity.IsValid(kind) {
			output.Error("unknown entity %q (valid: %s)", kind, strings.Join(entity.Names(), ", "))
			return fmt.Errorf("unknown entity: %s", kind)
		}

		db, err := openLocalDB()
		if err != nil {
			output.Error("open database: %v", err)
			return err
		}
		defer db.Close()

		if err := enqueueDelete(db, kind, id); err != nil {
			output.Error("%v", err)
			return err
		}

		output.Success("Deleted %s %s", strings.TrimSuffix(kind, "s"), id)
		autoSyncAfterMutation()
		return nil
	},
}

func init() {
	listCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
}
