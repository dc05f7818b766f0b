package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var version string

// SetVersion sets the version string
func SetVersion(v string) {
	version = v
}

var rootCmd = &cobra.Command{
	Use:   "klettrack",
	Short: "Climbing and training log with multi-device sync",
	Long: `klettrack - A personal climbing and training log.

Everything is written locally first and synced to a server when one is
configured, so the log works offline and merges across devices.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "log", Title: "Logging Commands:"},
		&cobra.Group{ID: "plan", Title: "Planning Commands:"},
		&cobra.Group{ID: "query", Title: "Query Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "system", Title: "System Commands:"},
	)

	rootCmd.SetHelpCommandGroupID("system")
	rootCmd.SetCompletionCommandGroupID("system")

	rootCmd.AddCommand(&cobra.Command{
		Use:     "version",
		Short:   "Print the klettrack version",
		GroupID: "system",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	})
}
