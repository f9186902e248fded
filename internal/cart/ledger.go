// Package cart implements the in-memory order ledger built on top of a
// resolved catalog: line items in insertion order, decimal-exact totals, and
// the minimum-order gate.
package cart

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/amberlow/catalink/internal/catalog"
)

// UnknownProductError reports an operation referencing a product that is not
// in the active catalog.
type UnknownProductError struct {
	ProductID string
}

func (e *UnknownProductError) Error() string {
	return fmt.Sprintf("product %s not in active catalog", e.ProductID)
}

// InvalidQuantityError reports a caller-supplied quantity outside the
// operation's allowed range. This is caller misuse, not a data error.
type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity %d for product %s", e.Quantity, e.ProductID)
}

// LineItem is one cart entry. It references a product by id and never owns
// the product itself.
type LineItem struct {
	ProductID string
	Quantity  int
}

// Totals is derived from the ledger on demand and never stored.
type Totals struct {
	ItemCount     int
	Subtotal      decimal.Decimal
	RetailValue   decimal.Decimal
	Profit        decimal.Decimal
	MarginPercent decimal.Decimal
}

// Ledger accumulates line items against one catalog for one session.
// It is a single-consumer structure: all mutations are synchronous, and no
// two sessions share a ledger.
type Ledger struct {
	cat   *catalog.Payload
	items []LineItem // insertion order is display and export order
}

// NewLedger creates an empty ledger bound to the given catalog.
func NewLedger(cat *catalog.Payload) *Ledger {
	return &Ledger{cat: cat}
}

// Catalog returns the catalog the ledger is bound to.
func (l *Ledger) Catalog() *catalog.Payload { return l.cat }

func (l *Ledger) find(productID string) int {
	for i := range l.items {
		if l.items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// AddItem adds quantity of a product to the cart. Quantities of an existing
// line item sum; a new product appends a line item. The product must exist in
// the active catalog and quantity must be at least 1.
func (l *Ledger) AddItem(productID string, quantity int) error {
	if quantity < 1 {
		return &InvalidQuantityError{ProductID: productID, Quantity: quantity}
	}
	if l.cat.Product(productID) == nil {
		return &UnknownProductError{ProductID: productID}
	}

	if i := l.find(productID); i >= 0 {
		l.items[i].Quantity += quantity
		return nil
	}
	l.items = append(l.items, LineItem{ProductID: productID, Quantity: quantity})
	return nil
}

// SetQuantity replaces a line item's quantity. Zero removes the line item;
// negative quantities are rejected.
func (l *Ledger) SetQuantity(productID string, quantity int) error {
	if quantity < 0 {
		return &InvalidQuantityError{ProductID: productID, Quantity: quantity}
	}
	if quantity == 0 {
		l.RemoveItem(productID)
		return nil
	}
	if l.cat.Product(productID) == nil {
		return &UnknownProductError{ProductID: productID}
	}

	if i := l.find(productID); i >= 0 {
		l.items[i].Quantity = quantity
		return nil
	}
	l.items = append(l.items, LineItem{ProductID: productID, Quantity: quantity})
	return nil
}

// RemoveItem deletes the line item for the product. Removing an absent
// product is a no-op.
func (l *Ledger) RemoveItem(productID string) {
	i := l.find(productID)
	if i < 0 {
		return
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
}

// Items returns a copy of the line items in insertion order.
func (l *Ledger) Items() []LineItem {
	out := make([]LineItem, len(l.items))
	copy(out, l.items)
	return out
}

// Len returns the number of line items (not the summed quantity).
func (l *Ledger) Len() int { return len(l.items) }

// Totals recomputes the derived totals from scratch. Division by a zero
// retail value yields a zero margin, never a fault.
func (l *Ledger) Totals() Totals {
	t := Totals{
		Subtotal:      decimal.Zero,
		RetailValue:   decimal.Zero,
		Profit:        decimal.Zero,
		MarginPercent: decimal.Zero,
	}

	for _, item := range l.items {
		p := l.cat.Product(item.ProductID)
		if p == nil {
			// Ledger invariant: AddItem/SetQuantity only admit known products.
			continue
		}
		qty := decimal.NewFromInt(int64(item.Quantity))
		t.ItemCount += item.Quantity
		t.Subtotal = t.Subtotal.Add(p.UnitPrice.Mul(qty))
		t.RetailValue = t.RetailValue.Add(p.MSRP.Mul(qty))
	}

	t.Profit = t.RetailValue.Sub(t.Subtotal)
	if !t.RetailValue.IsZero() {
		t.MarginPercent = t.Profit.Div(t.RetailValue).Mul(hundred)
	}
	return t
}

// MeetsMinimum reports whether the subtotal satisfies the company's
// minimum-order threshold.
func (l *Ledger) MeetsMinimum() bool {
	return l.Totals().Subtotal.GreaterThanOrEqual(l.cat.Company.MinimumOrder)
}

// Shortfall returns how far the subtotal is below the minimum order, floored
// at zero.
func (l *Ledger) Shortfall() decimal.Decimal {
	s := l.cat.Company.MinimumOrder.Sub(l.Totals().Subtotal)
	if s.IsNegative() {
		return decimal.Zero
	}
	return s
}

var hundred = decimal.NewFromInt(100)
