package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lanehq/possync/internal/engine"
	"github.com/lanehq/possync/internal/entity"
	"github.com/lanehq/possync/internal/output"
)

var syncTimeout time.Duration

var syncCmd = &cobra.Command{
	Use:   "sync [entity]",
	Short: "Force an immediate sync",
	Long: `Reconciles every entity now, or just the named one. Fails fast when
the backend is unreachable.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, database, watcher, err := buildEngine()
		if err != nil {
			return err
		}
		defer database.Close()

		watcher.Start()
		defer watcher.Stop()

		ctx, cancel := context.WithTimeout(cmd.Context(), syncTimeout)
		defer cancel()

		// Give the probe a moment to establish reachability.
		waitUntilOnline(ctx, watcher.Online)

		if len(args) == 1 {
			return syncOne(ctx, eng, entity.ID(args[0]))
		}

		if err := eng.ForceSync(ctx); err != nil {
			if errors.Is(err, engine.ErrOffline) {
				if jsonOut {
					output.JSONError(output.ErrCodeOffline, "backend unreachable")
				} else {
					output.Error("backend unreachable, try again once connectivity returns")
				}
			}
			return err
		}

		if jsonOut {
			return output.JSON(map[string]string{"status": "ok"})
		}
		output.Success("sync complete")
		return nil
	},
}

func syncOne(ctx context.Context, eng *engine.SyncEngine, id entity.ID) error {
	if err := eng.Sync(ctx, id); err != nil {
		if jsonOut {
			output.JSONError(output.ErrCodeSyncFailed, err.Error())
		} else {
			output.Error("sync %s: %v", id, err)
		}
		return fmt.Errorf("sync %s: %w", id, err)
	}

	if jsonOut {
		return output.JSON(map[string]string{"status": "ok", "entity": string(id)})
	}
	output.Success("%s synced", id)
	return nil
}

// waitUntilOnline polls the watcher briefly so a just-started probe can
// complete its first check before we decide we are offline.
func waitUntilOnline(ctx context.Context, online func() bool) {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if online() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func init() {
	syncCmd.Flags().DurationVar(&syncTimeout, "timeout", 2*time.Minute, "overall sync timeout")
	rootCmd.AddCommand(syncCmd)
}
