package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var version string

// SetVersion sets the version string
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

var (
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "possync",
	Short: "Offline-first data sync for point-of-sale devices",
	Long: `possync - keeps a point-of-sale device's local catalog, orders, and
configuration reconciled with the backend.

Runs a durable retry queue and tiered background pollers so the register
keeps working through network drops and catches up when connectivity
returns.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "machine-readable JSON output")
}
