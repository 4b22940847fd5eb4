package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lanehq/possync/internal/bus"
	"github.com/lanehq/possync/internal/entity"
	"github.com/lanehq/possync/internal/localstore"
	"github.com/lanehq/possync/internal/remote"
)

// pull runs one entity's full inbound reconciliation: paginated fetch from
// the watermark, bulk upsert, then watermark advance and cache invalidation
// once this run's own writes are committed.
//
// Safe under concurrent invocation for the same entity: each run re-reads
// the watermark at start and advances it with its own completion snapshot;
// a race costs at most redundant idempotent upserts.
func (e *SyncEngine) pull(ctx context.Context, desc entity.Descriptor) error {
	since, err := e.marks.Get(desc)
	if err != nil {
		return err
	}

	repo := e.store.Repo(desc.Name)
	received := 0
	page := 1

	for {
		resp, err := e.remote.Pull(ctx, remote.PullRequest{
			Endpoint:   desc.Endpoint,
			Since:      since,
			Page:       page,
			PageSize:   desc.PageSize,
			Order:      string(desc.Order),
			CompanyID:  e.scope.CompanyID,
			LocationID: e.scope.LocationID,
		})
		if err != nil {
			// Aborting without advancing the watermark: the next attempt
			// resumes from the last confirmed position.
			return fmt.Errorf("pull %s page %d: %w", desc.Name, page, err)
		}

		if len(resp.Results) > 0 {
			recs := make([]localstore.Record, len(resp.Results))
			for i, r := range resp.Results {
				recs[i] = localstore.Record{ID: r.ID, UpdatedAt: r.UpdatedAt, Data: r.Data}
			}
			if err := repo.BulkUpsert(ctx, recs); err != nil {
				return fmt.Errorf("upsert %s page %d: %w", desc.Name, page, err)
			}
			received += len(resp.Results)
		}

		if len(resp.Results) < desc.PageSize {
			break
		}
		if resp.Count > 0 && received >= resp.Count {
			break
		}
		if desc.MaxPages > 0 && page >= desc.MaxPages {
			slog.Debug("pull: page cap reached", "entity", desc.Name, "pages", page)
			break
		}
		page++
	}

	if received == 0 {
		return nil
	}

	// The snapshot is taken only now, after this run's final page has
	// committed, so a crash mid-pagination re-fetches rather than skips.
	e.marks.Set(desc, e.now())
	e.bus.Publish(bus.Event{Topic: bus.TopicCacheInvalidate, Entity: desc.Name})
	e.runHooks(ctx, desc.Name)

	slog.Debug("pull: complete", "entity", desc.Name, "records", received, "pages", page)
	return nil
}
