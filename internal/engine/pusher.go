package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lanehq/possync/internal/entity"
	"github.com/lanehq/possync/internal/remote"
)

const pushBatchSize = 500

// push sends locally-mutated records for one entity to the server in
// batches. Delivery is at-least-once: accepted ids are marked synced,
// rejected ids are logged and stay dirty, and a transport failure leaves
// the whole remainder dirty for the next run.
func (e *SyncEngine) push(ctx context.Context, desc entity.Descriptor) error {
	repo := e.store.Repo(desc.Name)

	dirty, err := repo.FindDirty(ctx)
	if err != nil {
		return fmt.Errorf("find dirty %s: %w", desc.Name, err)
	}
	if len(dirty) == 0 {
		return nil
	}

	pushed := 0
	for start := 0; start < len(dirty); start += pushBatchSize {
		end := start + pushBatchSize
		if end > len(dirty) {
			end = len(dirty)
		}
		batch := dirty[start:end]

		wire := make([]remote.Record, len(batch))
		for i, rec := range batch {
			wire[i] = remote.Record{ID: rec.ID, UpdatedAt: rec.UpdatedAt, Data: rec.Data}
		}

		resp, err := e.remote.Push(ctx, desc.Endpoint, wire)
		if err != nil {
			return fmt.Errorf("push %s: %w", desc.Name, err)
		}

		if err := repo.MarkSynced(ctx, resp.Accepted); err != nil {
			// The server has the records; a re-push is deduplicated by id.
			return fmt.Errorf("mark synced %s: %w", desc.Name, err)
		}
		pushed += len(resp.Accepted)

		for _, rej := range resp.Rejected {
			slog.Warn("push: record rejected, left dirty",
				"entity", desc.Name, "id", rej.ID, "reason", rej.Reason)
		}
	}

	slog.Debug("push: complete", "entity", desc.Name, "records", pushed)
	return nil
}
