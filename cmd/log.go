package cmd

import (
	"github.com/spf13/cobra"

	"github.com/shaharnoy/Klettrack-sub002/internal/output"
)

var logCmd = &cobra.Command{
	Use:     "log",
	Short:   "Record climbs, activities and sessions",
	GroupID: "log",
}

var logClimbCmd = &cobra.Command{
	Use:   "climb",
	Short: "Record a climb",
	RunE: func(cmd *cobra.Command, args []string) error {
		grade, _ := cmd.Flags().GetString("grade")
		route, _ := cmd.Flags().GetString("route")
		style, _ := cmd.Flags().GetString("style")
		location, _ := cmd.Flags().GetString("location")
		attempts, _ := cmd.Flags().GetInt("attempts")
		notes, _ := cmd.Flags().GetString("notes")
		climbedAt, _ := cmd.Flags().GetString("date")

		climbedAt, err := resolveTimeFlag(climbedAt)
		if err != nil {
			output.Error("invalid --date: %v", err)
			return err
		}

		fields, err := newPayload().
			setString("grade", grade).
			setString("route_name", route).
			setString("style", style).
			setString("location", location).
			setInt("attempts", attempts).
			setString("notes", notes).
			setString("climbed_at", climbedAt).
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
		if err := enqueueUpsert(db, "climbs", id, fields); err != nil {
			output.Error("%v", err)
			return err
		}

		output.Success("Logged climb %s (%s)", route, grade)
		autoSyncAfterMutation()
		return nil
	},
}

var logActivityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Record a training activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		kind, _ := cmd.Flags().GetString("kind")
		duration, _ := cmd.Flags().GetInt("duration")
		notes, _ := cmd.Flags().GetString("notes")
		performedAt, _ := cmd.Flags().GetString("date")

		performedAt, err := resolveTimeFlag(performedAt)
		if err != nil {
			output.Error("invalid --date: %v", err)
			return err
		}

		fields, err := newPayload().
			setString("name", name).
			setString("kind", kind).
			setInt("duration_minutes", duration).
			setString("notes", notes).
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
		if err := enqueueUpsert(db, "activities", id, fields); err != nil {
			output.Error("%v", err)
			return err
		}

		output.Success("Logged activity %s", name)
		autoSyncAfterMutation()
		return nil
	},
}

var logSessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start a training session record",
	RunE: func(cmd *cobra.Command, args []string) error {
		startedAt, _ := cmd.Flags().GetString("started")
		kind, _ := cmd.Flags().GetString("kind")
		location, _ := cmd.Flags().GetString("location")
		notes, _ := cmd.Flags().GetString("notes")

		startedAt, err := resolveTimeFlag(startedAt)
		if err != nil {
			output.Error("invalid --started: %v", err)
			return err
		}

		fields, err := newPayload().
			setString("started_at", startedAt).
			setString("kind", kind).
			setString("location", location).
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
		if err := enqueueUpsert(db, "sessions", id, fields); err != nil {
			output.Error("%v", err)
			return err
		}

		output.Success("Started session %s", id)
		autoSyncAfterMutation()
		return nil
	},
}

var logItemCmd = &cobra.Command{
	Use:   "item <session-id>",
	Short: "Add an exercise to a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := args[0]
		exercise, _ := cmd.Flags().GetString("exercise")
		sets, _ := cmd.Flags().GetInt("sets")
		reps, _ := cmd.Flags().GetInt("reps")
		weight, _ := cmd.Flags().GetFloat64("weight")
		order, _ := cmd.Flags().GetInt("order")
		notes, _ := cmd.Flags().GetString("notes")

		p := newPayload().
			setString("session_id", sessionID).
			setString("exercise", exercise).
			setInt("sets", sets).
			setInt("reps", reps).
			setInt("order_index", order).
			setString("notes", notes)
		if weight > 0 {
			p.set("weight_kg", weight)
		}
		fields, err := p.build()
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
		if err := enqueueUpsert(db, "session_items", id, fields); err != nil {
			output.Error("%v", err)
			return err
		}

		output.Success("Added %s to session %s", exercise, sessionID)
		autoSyncAfterMutation()
		return nil
	},
}

func init() {
	logClimbCmd.Flags().String("grade", "", "Grade (required), e.g. 7a or V6")
	logClimbCmd.Flags().String("route", "", "Route or problem name")
	logClimbCmd.Flags().String("style", "", "Ascent style: onsight, flash, redpoint, attempt")
	logClimbCmd.Flags().String("location", "", "Crag or gym")
	logClimbCmd.Flags().Int("attempts", 0, "Number of attempts")
	logClimbCmd.Flags().String("notes", "", "Free-form notes")
	logClimbCmd.Flags().String("date", "", "When it was climbed, e.g. 2026-03-01, yesterday, -2d")
	logClimbCmd.MarkFlagRequired("grade")

	logActivityCmd.Flags().String("name", "", "Activity name (required)")
	logActivityCmd.Flags().String("kind", "", "Activity kind, e.g. fingerboard, cardio")
	logActivityCmd.Flags().Int("duration", 0, "Duration in minutes")
	logActivityCmd.Flags().String("notes", "", "Free-form notes")
	logActivityCmd.Flags().String("date", "", "When it was performed, e.g. 2026-03-01, yesterday, -2d")
	logActivityCmd.MarkFlagRequired("name")

	logSessionCmd.Flags().String("started", "", "Session start time (required), e.g. now, yesterday, 2026-03-01T18:00:00Z")
	logSessionCmd.Flags().String("kind", "", "Session kind, e.g. bouldering, endurance")
	logSessionCmd.Flags().String("location", "", "Crag or gym")
	logSessionCmd.Flags().String("notes", "", "Free-form notes")
	logSessionCmd.MarkFlagRequired("started")

	logItemCmd.Flags().String("exercise", "", "Exercise name (required)")
	logItemCmd.Flags().Int("sets", 0, "Number of sets")
	logItemCmd.Flags().Int("reps", 0, "Reps per set")
	logItemCmd.Flags().Float64("weight", 0, "Added weight in kg")
	logItemCmd.Flags().Int("order", 0, "Position within the session")
	logItemCmd.Flags().String("notes", "", "Free-form notes")
	logItemCmd.MarkFlagRequired("exercise")

	logCmd.AddCommand(logClimbCmd)
	logCmd.AddCommand(logActivityCmd)
	logCmd.AddCommand(logSessionCmd)
	logCmd.AddCommand(logItemCmd)
	rootCmd.AddCommand(logCmd)
}
