package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lanehq/possync/internal/output"
	"github.com/lanehq/possync/internal/syncconfig"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage device credentials",
}

var authLoginCmd = &cobra.Command{
	Use:   "login <api-key>",
	Short: "Store the API key for this device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := syncconfig.LoadAuth()
		if err != nil {
			return fmt.Errorf("load credentials: %w", err)
		}
		if creds == nil {
			creds = &syncconfig.AuthCredentials{}
		}
		creds.APIKey = args[0]
		creds.ServerURL = syncconfig.GetServerURL()
		if creds.DeviceID == "" {
			creds.DeviceID = syncconfig.GenerateDeviceID()
		}
		if err := syncconfig.SaveAuth(creds); err != nil {
			return fmt.Errorf("save credentials: %w", err)
		}
		output.Success("credentials stored (device %s)", creds.DeviceID)
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := syncconfig.ClearAuth(); err != nil {
			return fmt.Errorf("clear credentials: %w", err)
		}
		output.Success("credentials removed")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOut {
			return output.JSON(map[string]any{
				"authenticated": syncconfig.IsAuthenticated(),
				"server":        syncconfig.GetServerURL(),
			})
		}
		if syncconfig.IsAuthenticated() {
			output.Success("authenticated against %s", syncconfig.GetServerURL())
		} else {
			output.Warning("no API key configured; run 'possync auth login <api-key>'")
		}
		return nil
	},
}

func init() {
	authCmd.AddCommand(authLoginCmd, authLogoutCmd, authStatusCmd)
	rootCmd.AddCommand(authCmd)
}
