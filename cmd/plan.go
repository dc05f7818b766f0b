package cmd

import (
	"github.com/spf13/cobra"

	"github.com/shaharnoy/Klettrack-sub002/internal/output"
)

var planCmd = &cobra.Command{
	Use:     "plan",
	Short:   "Manage training plans",
	GroupID: "plan",
}

var planCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a training plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		startsOn, _ := cmd.Flags().GetString("starts")
		weeks, _ := cmd.Flags().GetInt("weeks")
		notes, _ := cmd.Flags().GetString("notes")

		fields, err := newPayload().
			setString("name", name).
			setString("starts_on", startsOn).
			setInt("weeks", weeks).
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
		if err := enqueueUpsert(db, "plans", id, fields); err != nil {
			output.Error("%v", err)
			return err
		}

		output.Success("Created plan %s (%s)", name, id)
		autoSyncAfterMutation()
		return nil
	},
}

var planDayCmd = &cobra.Command{
	Use:   "day <plan-id>",
	Short: "Add a day to a plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		planID := args[0]
		dayIndex, _ := cmd.Flags().GetInt("index")
		focus, _ := cmd.Flags().GetString("focus")
		notes, _ := cmd.Flags().GetString("notes")

		fields, err := newPayload().
			setString("plan_id", planID).
			set("day_index", dayIndex).
			setString("focus", focus).
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
		if err := enqueueUpsert(db, "plan_days", id, fields); err != nil {
			output.Error("%v", err)
			return err
		}

		output.Success("Added day %d to plan %s", dayIndex, planID)
		autoSyncAfterMutation()
		return nil
	},
}

func init() {
	planCreateCmd.Flags().String("name", "", "Plan name (required)")
	planCreateCmd.Flags().String("starts", "", "Start date, e.g. 2026-03-01")
	planCreateCmd.Flags().Int("weeks", 0, "Plan length in weeks")
	planCreateCmd.Flags().String("notes", "", "Free-form notes")
	planCreateCmd.MarkFlagRequired("name")

	planDayCmd.Flags().Int("index", 0, "Day index within the plan (required)")
	planDayCmd.Flags().String("focus", "", "Training focus for the day")
	planDayCmd.Flags().String("notes", "", "Free-form notes")
	planDayCmd.MarkFlagRequired("index")

	planCmd.AddCommand(planCreateCmd)
	planCmd.AddCommand(planDayCmd)
	rootCmd.AddCommand(planCmd)
}
