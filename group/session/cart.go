package session

import "strings"

const (
	MaxCartLines    = 100
	MaxItemQuantity = 99
	MaxNoteLength   = 280
)

// ValidateItems checks a cart snapshot at the sync boundary and returns a
// normalized copy. A nil slice is rejected; an empty slice clears the cart.
func ValidateItems(items []CartItem) ([]CartItem, error) {
	if items == nil {
		return nil, invalidf("items are required")
	}
	if len(items) > MaxCartLines {
		return nil, invalidf("at most %d cart lines allowed, got %d", MaxCartLines, len(items))
	}

	out := make([]CartItem, 0, len(items))
	for i, it := range cloneItems(items) {
		it.ProductRef = strings.TrimSpace(it.ProductRef)
		it.VariantRef = strings.TrimSpace(it.VariantRef)
		it.Note = strings.TrimSpace(it.Note)

		if it.ProductRef == "" {
			return nil, invalidf("item %d: product_ref is required", i)
		}
		if it.Quantity < 1 || it.Quantity > MaxItemQuantity {
			return nil, invalidf("item %d: quantity must be between 1 and %d", i, MaxItemQuantity)
		}
		if it.UnitPriceSnapshot != nil && *it.UnitPriceSnapshot < 0 {
			return nil, invalidf("item %d: unit_price_snapshot must not be negative", i)
		}
		if len(it.Note) > MaxNoteLength {
			return nil, invalidf("item %d: note longer than %d characters", i, MaxNoteLength)
		}
		out = append(out, it)
	}
	return out, nil
}
