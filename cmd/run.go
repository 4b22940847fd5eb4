package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lanehq/possync/internal/output"
	"github.com/lanehq/possync/internal/syncconfig"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync daemon",
	Long: `Starts the connectivity watcher, the retry queue processor, and the
tiered pollers, then blocks until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, database, watcher, err := buildEngine()
		if err != nil {
			return err
		}
		defer database.Close()

		watcher.Start()
		defer watcher.Stop()

		if syncconfig.GetPollEnabled() {
			eng.Start()
		} else {
			slog.Info("polling disabled by configuration, queue processor only")
			eng.Start()
			eng.StopPolling()
		}
		defer eng.Stop()

		output.Info("possync %s running (ctrl-c to stop)", version)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		s := <-sig
		slog.Info("shutting down", "signal", s.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
