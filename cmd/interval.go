package cmd

import (
	"github.com/spf13/cobra"

	"github.com/shaharnoy/Klettrack-sub002/internal/output"
)

var intervalCmd = &cobra.Command{
	Use:     "interval",
	Short:   "Manage interval timer templates and results",
	GroupID: "plan",
}

var intervalTemplateCmd = &cobra.Command{
	Use:   "template",
	Short: "Create an interval template",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		work, _ := cmd.Flags().GetInt("work")
		rest, _ := cmd.Flags().GetInt("rest")
		rounds, _ := cmd.Flags().GetInt("rounds")
		notes, _ := cmd.Flags().GetString("notes")

		fields, err := newPayload().
			setString("name", name).
			set("work_seconds", work).
			set("rest_seconds", rest).
			setInt("rounds", rounds).
			setString("notes", notes).
			build()
		if err != nil {
			return err
		}

		db, err := openLocalDB()
		if err != nil {
			output.Error("open database: %v", err)
			return err
		}
		defer db.Close()

		id := newEntityID()
		if err := enqueueUpsert(db, "interval_templates", id, fields); err != nil {
			output.Error("%v", err)
			return err
		}

		output.Success("Created interval template %s (%s)", name, id)
		autoSyncAfterMutation()
		return nil
	},
}

var intervalRecordCmd = &cobra.Command{
	Use:   "record <template-id>",
	Short: "Record a completed interval round",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		templateID := args[0]
		round, _ := cmd.Flags().GetInt("round")
		completed, _ := cmd.Flags().GetInt("completed")
		performedAt, _ := cmd.Flags().GetString("date")

		performedAt, err := resolveTimeFlag(performedAt)
		if err != nil {
			output.Error("invalid --date: %v", err)
			return err
		}

		fields, err := newPayload().
			setString("template_id", templateID).
			setInt("round", round).
			setInt("completed_seconds", completed).
			setString("performed_at", performedAt).
			build()
		if err != nil {
			return err
		}

		db, err := openLocalDB()
		if err != nil {
			output.Error("open database: %v", err)
			return err
		}
		defer db.Close()

		id := newEntityID()
		if err := enqueueUpsert(db, "intervals", id, fields); err != nil {
			output.Error("%v", err)
			return err
		}

		output.Success("Recorded interval for template %s", templateID)
		autoSyncAfterMutation()
		return nil
	},
}

func init() {
	intervalTemplateCmd.Flags().String("name", "", "Template name (required)")
	intervalTemplateCmd.Flags().Int("work", 0, "Work duration in seconds (required)")
	intervalTemplateCmd.Flags().Int("rest", 0, "Rest duration in seconds (required)")
	intervalTemplateCmd.Flags().Int("rounds", 0, "Number of rounds")
	intervalTemplateCmd.Flags().String("notes", "", "Free-form notes")
	intervalTemplateCmd.MarkFlagRequired("name")
	intervalTemplateCmd.MarkFlagRequired("work")
	intervalTemplateCmd.MarkFlagRequired("rest")

	intervalRecordCmd.Flags().Int("round", 0, "Round number")
	intervalRecordCmd.Flags().Int("completed", 0, "Seconds completed")
	intervalRecordCmd.Flags().String("date", "", "When it was performed, e.g. 2026-03-01, yesterday, -2d")

	intervalCmd.AddCommand(intervalTemplateCmd)
	intervalCmd.AddCommand(intervalRecordCmd)
	rootCmd.AddCommand(intervalCmd)
}
