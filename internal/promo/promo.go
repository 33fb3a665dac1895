package promo

import (
	"context"
)

// Engine computes the discount a promo code grants on a cart subtotal. It is
// the only discount authority the checkout core consults.
type Engine interface {
	// ComputeDiscount validates the code and returns the discount amount.
	// An empty code is valid and grants no discount. Invalid codes return
	// model.ErrInvalidPromoCode or model.ErrInvalidPromoLength.
	ComputeDiscount(ctx context.Context, code string, subtotal float64) (float64, error)

	// Close releases resources held by the engine.
	Close() error
}

// CodeSet represents a loaded set of promo codes for O(1) lookup.
type CodeSet interface {
	// Contains checks if a code exists in the set.
	Contains(code string) bool

	// Size returns the number of codes in the set.
	Size() int
}

// Loader defines the interface for loading promo-code files.
type Loader interface {
	// Load reads a gzipped code file and returns a CodeSet.
	Load(ctx context.Context, path string) (CodeSet, error)
}
