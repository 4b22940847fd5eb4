package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lanehq/possync/internal/entity"
	"github.com/lanehq/possync/internal/kv"
	"github.com/lanehq/possync/internal/localstore"
)

// Hook runs after a successful pull of its entity. Hooks keep entity-specific
// side effects (re-deriving configuration, entitlements) out of the core
// pull loop.
type Hook func(ctx context.Context) error

// RegisterHook attaches a post-pull hook for an entity. Hooks run in
// registration order; a hook failure is logged and does not fail the pull.
func (e *SyncEngine) RegisterHook(id entity.ID, h Hook) {
	e.hooksMu.Lock()
	e.hooks[id] = append(e.hooks[id], h)
	e.hooksMu.Unlock()
}

func (e *SyncEngine) runHooks(ctx context.Context, id entity.ID) {
	e.hooksMu.Lock()
	hooks := make([]Hook, len(e.hooks[id]))
	copy(hooks, e.hooks[id])
	e.hooksMu.Unlock()

	for _, h := range hooks {
		if err := h(ctx); err != nil {
			slog.Warn("engine: post-pull hook failed", "entity", id, "err", err)
		}
	}
}

var zeroTime time.Time

// Derived-state keys written by the business details hook.
const (
	DerivedCurrencyKey = "derived:currency"
	DerivedTimezoneKey = "derived:timezone"
	DerivedFeaturesKey = "derived:features"
)

// businessDetailsHook re-derives currency, timezone, and feature
// entitlements from the freshly pulled business configuration so dependent
// read paths pick them up without re-parsing records.
func businessDetailsHook(store *kv.Store, local *localstore.Store) Hook {
	return func(ctx context.Context) error {
		recs, err := local.Repo(entity.BusinessDetails).FindModifiedSince(ctx, zeroTime)
		if err != nil {
			return fmt.Errorf("read business details: %w", err)
		}
		if len(recs) == 0 {
			return nil
		}

		// Business details is a singleton on the server; take the newest row.
		latest := recs[len(recs)-1]

		var details struct {
			Currency string   `json:"currency"`
			Timezone string   `json:"timezone"`
			Features []string `json:"features"`
		}
		if err := json.Unmarshal(latest.Data, &details); err != nil {
			return fmt.Errorf("parse business details %s: %w", latest.ID, err)
		}

		if details.Currency != "" {
			if err := store.Set(DerivedCurrencyKey, details.Currency); err != nil {
				return err
			}
		}
		if details.Timezone != "" {
			if err := store.Set(DerivedTimezoneKey, details.Timezone); err != nil {
				return err
			}
		}
		if details.Features != nil {
			data, err := json.Marshal(details.Features)
			if err != nil {
				return fmt.Errorf("marshal features: %w", err)
			}
			if err := store.Set(DerivedFeaturesKey, string(data)); err != nil {
				return err
			}
		}
		return nil
	}
}
