package cart

import (
	"errors"
	"strings"
	"sync"

	"eclatpos/backend/internal/domain"
)

var (
	ErrInsufficientStock = errors.New("not enough stock for another unit")
	ErrNotInCart         = errors.New("product is not in the cart")
)

// Cart is one operator's pending sale. Lines keep the product's price and
// stock as they were when the line was last touched.
type Cart struct {
	mu    sync.Mutex
	lines []domain.CartLine
}

func New() *Cart {
	return &Cart{}
}

// Add puts one more unit of product in the cart. A new line needs at least
// one unit in stock; an existing line can only grow while qty < stock.
func (c *Cart) Add(product domain.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.lines {
		if c.lines[i].ProductID != product.ID {
			continue
		}
		if c.lines[i].Qty >= product.Stock {
			return ErrInsufficientStock
		}
		c.lines[i].Qty++
		c.lines[i].Name = product.Name
		c.lines[i].Barcode = product.Barcode
		c.lines[i].UnitPriceCents = product.PriceCents
		c.lines[i].Stock = product.Stock
		return nil
	}

	if product.Stock < 1 {
		return ErrInsufficientStock
	}
	c.lines = append(c.lines, domain.CartLine{
		ProductID:      product.ID,
		Name:           product.Name,
		Barcode:        product.Barcode,
		UnitPriceCents: product.PriceCents,
		Stock:          product.Stock,
		Qty:            1,
	})
	return nil
}

// Remove takes one unit off the line and drops it at zero.
func (c *Cart) Remove(productID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.lines {
		if c.lines[i].ProductID != productID {
			continue
		}
		c.lines[i].Qty--
		if c.lines[i].Qty <= 0 {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
		}
		return nil
	}
	return ErrNotInCart
}

// Scan adds the product whose barcode equals code exactly. It reports
// false without error when nothing matches, so the caller keeps the input.
func (c *Cart) Scan(code string, products []domain.Product) (bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return false, nil
	}
	for _, p := range products {
		if p.Barcode == code {
			return true, c.Add(p)
		}
	}
	return false, nil
}

// Sync replaces each line's price and stock with the current catalog
// values. Lines whose product vanished are dropped.
func (c *Cart) Sync(products []domain.Product) {
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.lines[:0]
	for _, line := range c.lines {
		p, ok := byID[line.ProductID]
		if !ok {
			continue
		}
		line.Name = p.Name
		line.Barcode = p.Barcode
		line.UnitPriceCents = p.PriceCents
		line.Stock = p.Stock
		kept = append(kept, line)
	}
	c.lines = kept
}

func (c *Cart) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := int64(0)
	for _, line := range c.lines {
		total += line.UnitPriceCents * int64(line.Qty)
	}
	return total
}

func (c *Cart) Lines() []domain.CartLine {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

// Len is the number of distinct lines.
func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
}

func (c *Cart) View() domain.CartView {
	lines := c.Lines()
	view := domain.CartView{Lines: lines}
	for _, line := range lines {
		view.ItemCount += line.Qty
		view.TotalCents += line.UnitPriceCents * int64(line.Qty)
	}
	return view
}

// SaleLines freezes the cart into sale lines at the prices it holds.
func (c *Cart) SaleLines() []domain.SaleLine {
	lines := c.Lines()
	out := make([]domain.SaleLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, domain.SaleLine{
			ProductID:      line.ProductID,
			Name:           line.Name,
			Barcode:        line.Barcode,
			UnitPriceCents: line.UnitPriceCents,
			Qty:            line.Qty,
		})
	}
	return out
}

// Registry hands out one cart per operator. Carts live only in memory.
type Registry struct {
	mu    sync.Mutex
	carts map[string]*Cart
}

func NewRegistry() *Registry {
	return &Registry{carts: make(map[string]*Cart)}
}

func (r *Registry) For(owner string) *Cart {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.carts[owner]
	if !ok {
		c = New()
		r.carts[owner] = c
	}
	return c
}

func (r *Registry) Drop(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.carts, owner)
}
