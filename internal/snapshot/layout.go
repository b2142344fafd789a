package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/utafrali/gomarketplace/internal/domain"
	"github.com/utafrali/gomarketplace/internal/persistence"
)

// Layout names accepted by ParseLayout.
const (
	LayoutSingle  = "single"
	LayoutPerItem = "per_item"
)

// Change describes one mutation to persist. Item is the line the mutation
// touched; a Quantity of 0 means the line was removed. A nil Item asks the
// layout to write the whole cart.
type Change struct {
	Cart domain.Cart
	Item *domain.LineItem
}

// Layout maps a cart onto keys of a persistence.KV.
type Layout interface {
	// Name returns the layout identifier.
	Name() string

	// Load reads the persisted cart. Missing data yields an empty cart and no
	// error. On corrupt data Load returns whatever it could recover together
	// with an error matching ErrCorrupt.
	Load(ctx context.Context, kv persistence.KV) (domain.Cart, error)

	// Save persists the change.
	Save(ctx context.Context, kv persistence.KV, change Change) error

	// Clear removes every key the layout owns.
	Clear(ctx context.Context, kv persistence.KV) error
}

// Key separators under the configured prefix. They differ so the single key
// never falls inside the per-item key space.
const (
	singleKeySuffix = "/cart"
	perItemSep      = ":"
)

// ParseLayout returns the layout called name, rooted at prefix.
func ParseLayout(name, prefix string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case LayoutSingle, "":
		return SingleKey{Key: prefix + singleKeySuffix}, nil
	case LayoutPerItem:
		return PerItem{Prefix: prefix + perItemSep}, nil
	default:
		return nil, fmt.Errorf("unknown storage layout %q", name)
	}
}

// SingleKey stores the whole cart as one JSON array under Key.
type SingleKey struct {
	Key string
}

// Name implements Layout.
func (SingleKey) Name() string { return LayoutSingle }

// Load implements Layout.
func (l SingleKey) Load(ctx context.Context, kv persistence.KV) (domain.Cart, error) {
	data, err := kv.Get(ctx, l.Key)
	if err != nil {
		if persistence.IsNotFound(err) {
			return domain.Cart{}, nil
		}
		return domain.Cart{}, fmt.Errorf("get %s: %w", l.Key, err)
	}
	cart, err := Decode(data)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("decode %s: %w", l.Key, err)
	}
	return cart, nil
}

// Save implements Layout. The full cart is written on every change.
func (l SingleKey) Save(ctx context.Context, kv persistence.KV, change Change) error {
	data, err := Encode(change.Cart)
	if err != nil {
		return err
	}
	if err := kv.Set(ctx, l.Key, data); err != nil {
		return fmt.Errorf("set %s: %w", l.Key, err)
	}
	return nil
}

// Clear implements Layout.
func (l SingleKey) Clear(ctx context.Context, kv persistence.KV) error {
	if err := kv.Remove(ctx, l.Key); err != nil {
		return fmt.Errorf("remove %s: %w", l.Key, err)
	}
	return nil
}

// PerItem stores each line under Prefix+id.
type PerItem struct {
	Prefix string
}

// Name implements Layout.
func (PerItem) Name() string { return LayoutPerItem }

// Key returns the storage key of a line.
func (l PerItem) Key(id string) string {
	return l.Prefix + id
}

// Load implements Layout. Lines come back ordered by key; corrupt entries
// are skipped and reported.
func (l PerItem) Load(ctx context.Context, kv persistence.KV) (domain.Cart, error) {
	keys, err := kv.ListKeys(ctx, l.Prefix)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("list %s*: %w", l.Prefix, err)
	}

	items := make([]domain.LineItem, 0, len(keys))
	var errs []error
	for _, key := range keys {
		data, err := kv.Get(ctx, key)
		if err != nil {
			if persistence.IsNotFound(err) {
				continue
			}
			return domain.Cart{}, fmt.Errorf("get %s: %w", key, err)
		}
		item, err := DecodeItem(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("decode %s: %w", key, err))
			continue
		}
		items = append(items, item)
	}
	return domain.NewCart(items), errors.Join(errs...)
}

// Save implements Layout. Only the touched line's key is written; a full
// write also removes keys of lines no longer in the cart.
func (l PerItem) Save(ctx context.Context, kv persistence.KV, change Change) error {
	if change.Item != nil {
		return l.saveItem(ctx, kv, *change.Item)
	}

	keep := make(map[string]struct{}, change.Cart.Len())
	for _, item := range change.Cart.Items() {
		keep[l.Key(item.ID)] = struct{}{}
		if err := l.saveItem(ctx, kv, item); err != nil {
			return err
		}
	}

	keys, err := kv.ListKeys(ctx, l.Prefix)
	if err != nil {
		return fmt.Errorf("list %s*: %w", l.Prefix, err)
	}
	for _, key := range keys {
		if _, ok := keep[key]; ok {
			continue
		}
		if err := kv.Remove(ctx, key); err != nil {
			return fmt.Errorf("remove %s: %w", key, err)
		}
	}
	return nil
}

// Clear implements Layout.
func (l PerItem) Clear(ctx context.Context, kv persistence.KV) error {
	keys, err := kv.ListKeys(ctx, l.Prefix)
	if err != nil {
		return fmt.Errorf("list %s*: %w", l.Prefix, err)
	}
	for _, key := range keys {
		if err := kv.Remove(ctx, key); err != nil {
			return fmt.Errorf("remove %s: %w", key, err)
		}
	}
	return nil
}

func (l PerItem) saveItem(ctx context.Context, kv persistence.KV, item domain.LineItem) error {
	key := l.Key(item.ID)
	if item.Quantity <= 0 {
		if err := kv.Remove(ctx, key); err != nil {
			return fmt.Errorf("remove %s: %w", key, err)
		}
		return nil
	}

	data, err := EncodeItem(item)
	if err != nil {
		return err
	}
	if err := kv.Set(ctx, key, data); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
