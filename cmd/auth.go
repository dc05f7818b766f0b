package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/shaharnoy/Klettrack-sub002/internal/output"
	"github.com/shaharnoy/Klettrack-sub002/internal/syncclient"
	"github.com/shaharnoy/Klettrack-sub002/internal/syncconfig"
)

var authCmd = &cobra.Command{
	Use:     "auth",
	Short:   "Manage sync authentication",
	GroupID: "system",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to a sync server with an API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		serverURL, _ := cmd.Flags().GetString("server")
		if serverURL == "" {
			serverURL = syncconfig.GetServerURL()
		}
		email, _ := cmd.Flags().GetString("email")

		apiKey, _ := cmd.Flags().GetString("key")
		if apiKey == "" {
			// Keys are secrets; read without echo when on a terminal.
			if term.IsTerminal(int(os.Stdin.Fd())) {
				fmt.Print("API key: ")
				b, err := term.ReadPassword(int(os.Stdin.Fd()))
				fmt.Println()
				if err != nil {
					return fmt.Errorf("read key: %w", err)
				}
				apiKey = strings.TrimSpace(string(b))
			} else {
				reader := bufio.NewReader(os.Stdin)
				line, err := reader.ReadString('\n')
				if err != nil {
					return fmt.Errorf("read key: %w", err)
				}
				apiKey = strings.TrimSpace(line)
			}
		}
		if apiKey == "" {
			return fmt.Errorf("api key required")
		}

		deviceID, err := syncconfig.GetDeviceID()
		if err != nil {
			return fmt.Errorf("get device id: %w", err)
		}

		client := syncclient.New(serverURL, apiKey, deviceID)
		if _, err := client.HealthCheck(); err != nil {
			output.Error("server unreachable: %s", friendlySyncError(err))
			return err
		}
		// whoami both proves the key works and tells us whose it is.
		who, err := client.WhoAmI()
		if err != nil {
			output.Error("key rejected: %s", friendlySyncError(err))
			return err
		}
		if who.Email != "" {
			email = who.Email
		}

		creds := &syncconfig.AuthCredentials{
			APIKey:    apiKey,
			UserID:    who.UserID,
			Email:     email,
			ServerURL: serverURL,
			DeviceID:  deviceID,
		}
		if err := syncconfig.SaveAuth(creds); err != nil {
			return fmt.Errorf("save credentials: %w", err)
		}

		output.Success("Logged in to %s as %s", serverURL, email)
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := syncconfig.ClearAuth(); err != nil {
			return err
		}
		output.Success("Logged out")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication state",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := syncconfig.LoadAuth()
		if err != nil {
			return err
		}
		if creds == nil || creds.APIKey == "" {
			output.Info("Not logged in")
			return nil
		}
		output.Info("Server:  %s", creds.ServerURL)
		if creds.Email != "" {
			output.Info("Email:   %s", creds.Email)
		}
		output.Info("Device:  %s", creds.DeviceID)
		return nil
	},
}

func init() {
	authLoginCmd.Flags().String("server", "", "Sync server URL")
	authLoginCmd.Flags().String("key", "", "API key (prompted if omitted)")
	authLoginCmd.Flags().String("email", "", "Account email, stored for display only")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}
