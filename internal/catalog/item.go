// Package catalog defines the inventory item model and its durable store.
// The catalog is the source of truth for item attributes and stock quantities;
// the search indexes are derived from it and rebuilt against it during repair.
package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	errs "github.com/restocker/invsearch/internal/errors"
)

// Item is a single inventory item.
// ID is unique and immutable for the lifetime of the item.
type Item struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category,omitempty"`
	Unit        string    `json:"uom,omitempty"`
	OnHandQty   float64   `json:"on_hand_qty"`
	LastCost    float64   `json:"last_cost"`
	Vendor      string    `json:"vendor,omitempty"`
	SKU         string    `json:"sku,omitempty"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Validate checks that the item satisfies the boundary contract.
// The core never accepts untyped or incomplete items internally.
func (i *Item) Validate() error {
	if i == nil {
		return errs.New(errs.ErrCodeInvalidItem, "item is nil", nil)
	}
	if strings.TrimSpace(i.ID) == "" {
		return errs.New(errs.ErrCodeInvalidItem, "item id is required", nil)
	}
	if strings.TrimSpace(i.Name) == "" {
		return errs.New(errs.ErrCodeInvalidItem, "item name is required", nil).
			WithDetail("id", i.ID)
	}
	if i.OnHandQty < 0 {
		return errs.New(errs.ErrCodeInvalidItem, "on-hand quantity must not be negative", nil).
			WithDetail("id", i.ID)
	}
	if i.LastCost < 0 {
		return errs.New(errs.ErrCodeInvalidItem, "last cost must not be negative", nil).
			WithDetail("id", i.ID)
	}
	return nil
}

// EmbeddableText returns the concatenated text fed to the embedding model.
// Re-embedding is skipped when this text is unchanged between versions.
func (i *Item) EmbeddableText() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{i.Name, i.Category, i.Vendor, i.SKU, i.Description} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " | ")
}

// EmbedHash returns a stable fingerprint of the embeddable text, used to
// detect when the expensive embedding step can be skipped.
func (i *Item) EmbedHash() string {
	sum := sha256.Sum256([]byte(i.EmbeddableText()))
	return hex.EncodeToString(sum[:])
}

// Stats summarizes the catalog for dashboards and the stats tool.
type Stats struct {
	ItemCount   int            `json:"item_count"`
	VendorCount int            `json:"vendor_count"`
	TotalValue  float64        `json:"total_value"`
	Categories  map[string]int `json:"categories"`
}

// Store is the durable record of inventory items.
//
// GetItem returns (nil, nil) when the item does not exist; an error means the
// store itself was unreachable. All write operations are idempotent so the
// at-least-once change feed can safely redeliver.
type Store interface {
	GetItem(ctx context.Context, id string) (*Item, error)
	PutItem(ctx context.Context, item *Item) error
	DeleteItem(ctx context.Context, id string) error

	// ListItems returns all items ordered by ID, for rebuild and repair.
	ListItems(ctx context.Context) ([]*Item, error)

	// GetEmbedHash returns the fingerprint of the last-embedded text for the
	// item, or "" if the item was never embedded.
	GetEmbedHash(ctx context.Context, id string) (string, error)
	SetEmbedHash(ctx context.Context, id, hash string) error

	Stats(ctx context.Context) (*Stats, error)

	Close() error
}
