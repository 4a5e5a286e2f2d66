// Package search is the query engine: it validates a request, reads the
// lexical and vector indexes, fuses the two result sets deterministically,
// and enriches the ranked IDs from the catalog.
package search

import (
	"time"

	errs "github.com/restocker/invsearch/internal/errors"
)

// Mode selects which index (or both) serves a query.
type Mode string

const (
	ModeKeyword  Mode = "keyword"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

// ParseMode maps a request string to a Mode. An empty string selects hybrid;
// anything else unknown is an invalid argument.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeHybrid, nil
	case ModeKeyword, ModeSemantic, ModeHybrid:
		return Mode(s), nil
	default:
		return "", errs.New(errs.ErrCodeUnknownMode, "unknown search mode", nil).
			WithDetail("mode", s).
			WithSuggestion("use keyword, semantic, or hybrid")
	}
}

// Request is one search invocation. Limit must be positive; callers apply
// their own default before reaching the engine.
type Request struct {
	Query string
	Mode  string
	Limit int
}

// Result is one ranked item. Score is always in [0,1].
type Result struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Unit      string   `json:"uom,omitempty"`
	OnHandQty float64  `json:"on_hand_qty"`
	LastCost  float64  `json:"last_cost"`
	Score     float64  `json:"score"`
	Origins   []string `json:"origins"`
}

// Response carries the ranked results plus the effective parameters actually
// used, so clamping and mode degradation stay visible to the caller.
type Response struct {
	Results []Result `json:"results"`

	// EffectiveMode differs from the requested mode when the engine degraded
	// to keyword-only because embeddings were unavailable.
	EffectiveMode Mode `json:"effective_mode"`

	// EffectiveLimit differs from the requested limit when it was clamped.
	EffectiveLimit int `json:"effective_limit"`

	// Degraded is set when EffectiveMode differs from the requested mode.
	Degraded bool `json:"degraded,omitempty"`
}

// Config tunes the engine.
type Config struct {
	// Alpha is the hybrid fusion weight: score = α·lexical + (1-α)·semantic.
	Alpha float64

	// MaxLimit caps the per-request result count; larger requests are
	// clamped and the clamp reported via EffectiveLimit.
	MaxLimit int

	// EmbedTimeout bounds the query-side embedding call. On expiry the
	// request degrades to keyword-only instead of failing.
	EmbedTimeout time.Duration
}

// DefaultConfig returns the documented engine defaults.
func DefaultConfig() Config {
	return Config{
		Alpha:        0.5,
		MaxLimit:     100,
		EmbedTimeout: 3 * time.Second,
	}
}

// Stats reports catalog and index sizes for dashboards.
type Stats struct {
	ItemCount     int            `json:"item_count"`
	VendorCount   int            `json:"vendor_count"`
	TotalValue    float64        `json:"total_value"`
	Categories    map[string]int `json:"categories"`
	IndexedItems  int            `json:"indexed_items"`
	EmbeddedItems int            `json:"embedded_items"`
}
