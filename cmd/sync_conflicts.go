package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/shaharnoy/Klettrack-sub002/internal/localdb"
	"github.com/shaharnoy/Klettrack-sub002/internal/output"
	"github.com/shaharnoy/Klettrack-sub002/internal/reconcile"
	"github.com/shaharnoy/Klettrack-sub002/internal/syncclient"
)

var syncConflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Show writes the server refused because the record moved",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openLocalDB()
		if err != nil {
			output.Error("open database: %v", err)
			return err
		}
		defer db.Close()

		conflicts, err := db.ConflictedMutations()
		if err != nil {
			output.Error("query conflicts: %v", err)
			return err
		}

		if len(conflicts) == 0 {
			output.Info("No conflicts.")
			return nil
		}

		fmt.Print(output.SectionHeader("conflicts"))
		for _, c := range conflicts {
			fmt.Println("  " + output.FormatConflictLine(c.OpID, c.Entity, c.EntityID, c.Reason, c.ServerVersion))
		}
		output.Info("\nResolve with 'klettrack sync resolve <op-id>'")
		return nil
	},
}

var syncResolveCmd = &cobra.Command{
	Use:   "resolve <op-id>",
	Short: "Resolve a conflict by keeping your version or the server's",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opID := args[0]
		choice, _ := cmd.Flags().GetString("keep")

		db, err := openLocalDB()
		if err != nil {
			output.Error("open database: %v", err)
			return err
		}
		defer db.Close()

		m, err := db.GetMutationByOpID(opID)
		if err != nil {
			return err
		}
		if m == nil || m.State != localdb.StateConflicted {
			output.Error("no conflicted mutation with opId %s", opID)
			return fmt.Errorf("not found: %s", opID)
		}

		if choice == "" {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				output.Error("no terminal; pass --keep mine or --keep server")
				return fmt.Errorf("--keep required")
			}
			choice, err = promptResolution(m)
			if err != nil {
				return err
			}
		}

		switch choice {
		case "mine":
			newOpID, err := reconcile.KeepMine(db, opID)
			if err != nil {
				output.Error("keep mine: %v", err)
				return err
			}
			output.Success("Kept your version; requeued as %s", newOpID)
			output.Info("Run 'klettrack sync' to push it.")
		case "server":
			if err := reconcile.KeepServer(db, opID); err != nil {
				output.Error("keep server: %v", err)
				return err
			}
			output.Success("Kept the server's version; local write discarded")
		default:
			output.Error("invalid choice %q (mine or server)", choice)
			return fmt.Errorf("invalid choice: %s", choice)
		}
		return nil
	},
}

// promptResolution shows both sides of the conflict and asks which to keep.
func promptResolution(m *localdb.PendingMutation) (string, error) {
	mine := renderDoc(m.Payload)

	theirs := "(record does not exist on the server)"
	if len(m.ServerDoc) > 0 {
		var env syncclient.ServerDoc
		if err := json.Unmarshal(m.ServerDoc, &env); err == nil {
			theirs = renderDoc(env.Doc)
		}
	}

	var choice string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Conflict on %s/%s", m.Entity, m.EntityID)).
				Description(fmt.Sprintf("Yours:\n%s\n\nServer's:\n%s", mine, theirs)).
				Options(
					huh.NewOption("Keep mine (retry my write)", "mine"),
					huh.NewOption("Keep server (discard my write)", "server"),
				).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return choice, nil
}

func renderDoc(doc map[string]json.RawMessage) string {
	if len(doc) == 0 {
		return "  (empty)"
	}
	b, err := json.MarshalIndent(doc, "  ", "  ")
	if err != nil {
		return "  (unrenderable)"
	}
	return "  " + string(b)
}

func init() {
	syncResolveCmd.Flags().String("keep", "", "Resolution without prompting: mine or server")
	syncCmd.AddCommand(syncConflictsCmd)
	syncCmd.AddCommand(syncResolveCmd)
}
