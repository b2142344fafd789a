// Package snapshot serializes carts and maps them onto key-value storage.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/utafrali/gomarketplace/internal/domain"
)

// ErrCorrupt marks stored data that could not be decoded.
var ErrCorrupt = errors.New("corrupt snapshot")

// Encode serializes the cart as a JSON array of line items. An empty cart
// encodes as [].
func Encode(c domain.Cart) ([]byte, error) {
	data, err := json.Marshal(c.Items())
	if err != nil {
		return nil, fmt.Errorf("marshal cart: %w", err)
	}
	return data, nil
}

// Decode parses a JSON array of line items. Lines with a non-positive
// quantity or a repeated id are dropped, as NewCart does.
func Decode(data []byte) (domain.Cart, error) {
	var items []domain.LineItem
	if err := json.Unmarshal(data, &items); err != nil {
		return domain.Cart{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return domain.NewCart(items), nil
}

// EncodeItem serializes a single line item.
func EncodeItem(item domain.LineItem) ([]byte, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("marshal line item %s: %w", item.ID, err)
	}
	return data, nil
}

// DecodeItem parses a single line item. An item without an id is corrupt.
func DecodeItem(data []byte) (domain.LineItem, error) {
	var item domain.LineItem
	if err := json.Unmarshal(data, &item); err != nil {
		return domain.LineItem{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if item.ID == "" {
		return domain.LineItem{}, fmt.Errorf("%w: line item without id", ErrCorrupt)
	}
	return item, nil
}
