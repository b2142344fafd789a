package domain

// LineItem is one product entry in the cart together with its quantity.
type LineItem struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Product is the input of an add: a line item without a quantity.
type Product struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price"`
}

// Cart is an ordered collection of line items, unique by ID.
//
// Cart is a value: every transition returns a new Cart backed by a fresh
// slice, so a Cart handed to an observer never changes underneath it.
type Cart struct {
	items []LineItem
}

// NewCart builds a cart from items, keeping the first occurrence of each ID
// and dropping entries whose quantity is not positive.
func NewCart(items []LineItem) Cart {
	out := make([]LineItem, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		out = append(out, item)
	}
	return Cart{items: out}
}

// Items returns a copy of the line items in cart order.
func (c Cart) Items() []LineItem {
	out := make([]LineItem, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of distinct line items.
func (c Cart) Len() int {
	return len(c.items)
}

// Find returns the line item with the given ID.
func (c Cart) Find(id string) (LineItem, bool) {
	if i := c.indexOf(id); i >= 0 {
		return c.items[i], true
	}
	return LineItem{}, false
}

// ItemCount returns the total number of units in the cart.
func (c Cart) ItemCount() int {
	var count int
	for _, item := range c.items {
		count += item.Quantity
	}
	return count
}

// Total returns the sum of price times quantity over all items.
func (c Cart) Total() float64 {
	var total float64
	for _, item := range c.items {
		total += item.Price * float64(item.Quantity)
	}
	return total
}

// WithAdded returns the cart after adding one unit of p.
//
// An existing line keeps its stored title, image and price; only the
// quantity grows. A new line is appended with quantity 1.
func (c Cart) WithAdded(p Product) (Cart, LineItem) {
	if i := c.indexOf(p.ID); i >= 0 {
		return c.withQuantity(i, c.items[i].Quantity+1)
	}

	item := LineItem{
		ID:       p.ID,
		Title:    p.Title,
		ImageURL: p.ImageURL,
		Price:    p.Price,
		Quantity: 1,
	}
	items := make([]LineItem, len(c.items), len(c.items)+1)
	copy(items, c.items)
	return Cart{items: append(items, item)}, item
}

// WithIncremented returns the cart with one more unit of id. The boolean is
// false, and the cart unchanged, when id is not in the cart.
func (c Cart) WithIncremented(id string) (Cart, LineItem, bool) {
	i := c.indexOf(id)
	if i < 0 {
		return c, LineItem{}, false
	}
	next, item := c.withQuantity(i, c.items[i].Quantity+1)
	return next, item, true
}

// WithDecremented returns the cart with one fewer unit of id. When the
// quantity reaches zero the line is removed and the returned item carries
// Quantity 0. The boolean is false when id is not in the cart.
func (c Cart) WithDecremented(id string) (Cart, LineItem, bool) {
	i := c.indexOf(id)
	if i < 0 {
		return c, LineItem{}, false
	}
	next, item := c.withQuantity(i, c.items[i].Quantity-1)
	return next, item, true
}

// withQuantity returns a copy of the cart with item i set to qty, removing it
// when qty is not positive.
func (c Cart) withQuantity(i, qty int) (Cart, LineItem) {
	item := c.items[i]
	if qty <= 0 {
		items := make([]LineItem, 0, len(c.items)-1)
		items = append(items, c.items[:i]...)
		items = append(items, c.items[i+1:]...)
		item.Quantity = 0
		return Cart{items: items}, item
	}

	items := make([]LineItem, len(c.items))
	copy(items, c.items)
	items[i].Quantity = qty
	return Cart{items: items}, items[i]
}

// indexOf returns the position of id, or -1.
func (c Cart) indexOf(id string) int {
	for i := range c.items {
		if c.items[i].ID == id {
			return i
		}
	}
	return -1
}
