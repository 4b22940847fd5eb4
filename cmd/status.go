package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lanehq/possync/internal/entity"
	"github.com/lanehq/possync/internal/output"
	"github.com/lanehq/possync/internal/syncconfig"
)

type entityStatus struct {
	Entity   entity.ID `json:"entity"`
	Tier     string    `json:"tier"`
	SyncedAt time.Time `json:"synced_at,omitzero"`
	Records  int       `json:"records"`
	Dirty    int64     `json:"dirty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync state for every entity",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, database, watcher, err := buildEngine()
		if err != nil {
			return err
		}
		defer database.Close()

		watcher.Start()
		defer watcher.Stop()
		waitUntilOnline(cmd.Context(), watcher.Online)

		registry := entity.DefaultRegistry()
		ctx := context.Background()

		var rows []entityStatus
		for _, id := range registry.All() {
			desc, err := registry.Describe(id)
			if err != nil {
				return err
			}
			mark, err := eng.Watermarks().Get(desc)
			if err != nil {
				return err
			}
			repo := database.Local.Repo(id)
			total, err := repo.Count(ctx)
			if err != nil {
				return err
			}
			dirty, err := repo.CountDirty(ctx)
			if err != nil {
				return err
			}
			rows = append(rows, entityStatus{
				Entity:   id,
				Tier:     desc.Tier.String(),
				SyncedAt: mark,
				Records:  total,
				Dirty:    dirty,
			})
		}

		pending := eng.Queue().Snapshot()

		// Settings derived from the last business details pull.
		derivedKeys, err := database.KV.Keys("derived:")
		if err != nil {
			return err
		}
		derived := make(map[string]string, len(derivedKeys))
		for _, key := range derivedKeys {
			value, _, err := database.KV.Get(key)
			if err != nil {
				return err
			}
			derived[strings.TrimPrefix(key, "derived:")] = value
		}

		if jsonOut {
			return output.JSON(map[string]any{
				"device_online": watcher.Online(),
				"server":        syncconfig.GetServerURL(),
				"entities":      rows,
				"queue":         pending,
				"derived":       derived,
			})
		}

		output.Info("%s  %s", output.ConnectivityBadge(watcher.Online()), syncconfig.GetServerURL())
		output.Info("%s", output.SectionHeader("entities"))
		for _, row := range rows {
			desc, _ := registry.Describe(row.Entity)
			output.Info("  %s", output.EntityStatusLine(row.Entity, desc.Tier, row.SyncedAt, row.Dirty))
		}
		output.Info("%s", output.SectionHeader("queue"))
		output.Info("  %s", output.QueueLine(pending))
		if len(derivedKeys) > 0 {
			output.Info("%s", output.SectionHeader("derived settings"))
			var lines []string
			for _, key := range derivedKeys {
				name := strings.TrimPrefix(key, "derived:")
				lines = append(lines, fmt.Sprintf("%s = %s", name, derived[name]))
			}
			for _, line := range output.IndentLines(lines, 2) {
				output.Info("%s", line)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
