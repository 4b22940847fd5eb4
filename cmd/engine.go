package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/lanehq/possync/internal/db"
	"github.com/lanehq/possync/internal/engine"
	"github.com/lanehq/possync/internal/entity"
	"github.com/lanehq/possync/internal/netwatch"
	"github.com/lanehq/possync/internal/remote"
	"github.com/lanehq/possync/internal/syncconfig"
)

// buildEngine assembles a SyncEngine from the device configuration. The
// returned cleanup closes the database; callers stop the engine themselves.
func buildEngine() (*engine.SyncEngine, *db.DB, *netwatch.ProbeWatcher, error) {
	deviceID, err := syncconfig.GetDeviceID()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("device id: %w", err)
	}

	client := remote.New(syncconfig.GetServerURL(), syncconfig.GetAPIKey(), deviceID)

	watcher := netwatch.NewProbeWatcher(func(ctx context.Context) error {
		_, err := client.Health(ctx)
		return err
	}, syncconfig.GetProbeInterval())

	path, err := db.DefaultPath()
	if err != nil {
		return nil, nil, nil, err
	}
	database, err := db.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}

	high, medium, low := syncconfig.GetTierIntervals()
	eng, err := engine.New(engine.Config{
		Remote:  client,
		Store:   database.Local,
		KV:      database.KV,
		Watcher: watcher,
		Scope: engine.Scope{
			CompanyID:  syncconfig.GetCompanyID(),
			LocationID: syncconfig.GetLocationID(),
		},
		QueueInterval: syncconfig.GetQueueInterval(),
		TierIntervals: map[entity.Tier]time.Duration{
			entity.TierHigh:   high,
			entity.TierMedium: medium,
			entity.TierLow:    low,
		},
		StartupStagger: syncconfig.GetStagger(),
	})
	if err != nil {
		database.Close()
		return nil, nil, nil, fmt.Errorf("build engine: %w", err)
	}

	return eng, database, watcher, nil
}
