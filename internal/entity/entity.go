// Package entity defines the closed set of syncable entities and the static
// descriptors the engine uses to reconcile each one.
package entity

import (
	"errors"
	"fmt"
	"time"
)

// ID identifies one syncable entity category.
type ID string

// Canonical entity identifiers.
const (
	Products        ID = "products"
	PriceLists      ID = "price_lists"
	Taxes           ID = "taxes"
	Orders          ID = "orders"
	OrderSequence   ID = "order_sequence"
	Customers       ID = "customers"
	Collections     ID = "collections"
	KitchenStations ID = "kitchen_stations"
	BusinessDetails ID = "business_details"
	Templates       ID = "templates"
	Batches         ID = "batches"
	StockMovements  ID = "stock_movements"
)

// Tier groups entities by how stale they are allowed to get.
type Tier int

const (
	TierHigh Tier = iota
	TierMedium
	TierLow
)

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	case TierLow:
		return "low"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// PageOrder controls the direction a pull paginates in.
type PageOrder string

const (
	OrderAsc  PageOrder = "asc"
	OrderDesc PageOrder = "desc"
)

// ErrUnknownEntity is returned when an ID is not in the registry.
// This is a configuration error: callers must not retry it.
var ErrUnknownEntity = errors.New("unknown entity")

// Descriptor is the static per-entity record the engine reconciles from.
// Adding an entity to the system means adding one Descriptor here.
type Descriptor struct {
	Name            ID
	Tier            Tier
	Endpoint        string // remote path segment, e.g. "products"
	PageSize        int
	Order           PageOrder
	MaxPages        int           // 0 = unlimited
	InitialLookback time.Duration // 0 = pull from epoch on first sync
	WatermarkKey    string
	InvalidationKey string
	Pushable        bool
}

// Registry maps entity IDs to descriptors and tier sweep order.
type Registry struct {
	byID  map[ID]Descriptor
	tiers map[Tier][]ID
}

const defaultPageSize = 1000

// DefaultRegistry returns the full entity set known to the engine.
// Tier lists are ordered: sweeps pull entities in this sequence.
func DefaultRegistry() *Registry {
	descs := []Descriptor{
		{Name: Products, Tier: TierHigh, Endpoint: "products", Order: OrderAsc, Pushable: true},
		{Name: Orders, Tier: TierHigh, Endpoint: "orders", Order: OrderDesc,
			InitialLookback: 30 * 24 * time.Hour, MaxPages: 20, Pushable: true},
		{Name: OrderSequence, Tier: TierHigh, Endpoint: "order-sequence", Order: OrderAsc},

		{Name: Collections, Tier: TierMedium, Endpoint: "collections", Order: OrderAsc},
		{Name: Customers, Tier: TierMedium, Endpoint: "customers", Order: OrderAsc, Pushable: true},
		{Name: KitchenStations, Tier: TierMedium, Endpoint: "kitchen-stations", Order: OrderAsc},
		{Name: BusinessDetails, Tier: TierMedium, Endpoint: "business-details", Order: OrderAsc},

		{Name: PriceLists, Tier: TierLow, Endpoint: "price-lists", Order: OrderAsc},
		{Name: Taxes, Tier: TierLow, Endpoint: "taxes", Order: OrderAsc},
		{Name: Templates, Tier: TierLow, Endpoint: "templates", Order: OrderAsc},
		{Name: Batches, Tier: TierLow, Endpoint: "batches", Order: OrderAsc},
		{Name: StockMovements, Tier: TierLow, Endpoint: "stock-movements", Order: OrderDesc, MaxPages: 10},
	}

	r := &Registry{
		byID:  make(map[ID]Descriptor, len(descs)),
		tiers: make(map[Tier][]ID),
	}
	for _, d := range descs {
		if d.PageSize == 0 {
			d.PageSize = defaultPageSize
		}
		if d.WatermarkKey == "" {
			d.WatermarkKey = "watermark:" + string(d.Name)
		}
		if d.InvalidationKey == "" {
			d.InvalidationKey = "cache:" + string(d.Name)
		}
		r.byID[d.Name] = d
		r.tiers[d.Tier] = append(r.tiers[d.Tier], d.Name)
	}
	return r
}

// Describe looks up the descriptor for an entity.
func (r *Registry) Describe(id ID) (Descriptor, error) {
	d, ok := r.byID[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownEntity, id)
	}
	return d, nil
}

// Tier returns the ordered entity list for one priority tier.
func (r *Registry) Tier(t Tier) []ID {
	return r.tiers[t]
}

// All returns every registered entity ID, high tier first.
func (r *Registry) All() []ID {
	var out []ID
	for _, t := range []Tier{TierHigh, TierMedium, TierLow} {
		out = append(out, r.tiers[t]...)
	}
	return out
}
