// Package catalog defines the personalized catalog payload that travels
// inside a share link, together with its structural validation rules and
// the freshness gate applied after resolution.
package catalog

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// FormatVersion is the payload schema version this build produces and accepts.
const FormatVersion = "1"

// Payload is a complete personalized catalog: company terms, the customer it
// was generated for, and the product list with customer-specific pricing.
// A payload is immutable once encoded; it is superseded, never patched.
type Payload struct {
	FormatVersion string
	GeneratedAt   time.Time
	// ExpiresAt is zero when the generator did not stamp a validity window.
	// Such payloads classify as Unversioned, not Expired.
	ExpiresAt time.Time
	Company   Company
	Customer  Customer
	Products  []Product
	// AllowEmpty marks an intentionally empty product list. Without it an
	// empty catalog is rejected as a schema violation.
	AllowEmpty bool
}

// Company holds the selling company's order terms.
type Company struct {
	Name         string
	MinimumOrder decimal.Decimal
	Currency     string
}

// Customer identifies who the catalog was personalized for.
type Customer struct {
	ID           string
	Name         string
	Tier         string
	DiscountRate decimal.Decimal
	CreditLimit  decimal.Decimal
}

// Product is a single catalog item with customer-specific wholesale pricing
// next to the list price.
type Product struct {
	ID            string
	SKU           string
	Title         string
	UnitPrice     decimal.Decimal
	MSRP          decimal.Decimal
	MarginPercent decimal.Decimal
	Category      string
	Publisher     string
	MinQty        int
	CaseQty       int
	InStock       bool
	Featured      bool
}

// Margin returns the retail margin of the product as a percentage of MSRP,
// or zero when MSRP is zero.
func (p Product) Margin() decimal.Decimal {
	if p.MSRP.IsZero() {
		return decimal.Zero
	}
	return p.MSRP.Sub(p.UnitPrice).Div(p.MSRP).Mul(hundred)
}

// Product returns the product with the given id, or nil when absent.
func (p *Payload) Product(id string) *Product {
	for i := range p.Products {
		if p.Products[i].ID == id {
			return &p.Products[i]
		}
	}
	return nil
}

// Publishers returns the distinct publisher names in the catalog, sorted.
func (p *Payload) Publishers() []string {
	return distinct(p.Products, func(pr Product) string { return pr.Publisher })
}

// Categories returns the distinct category names in the catalog, sorted.
func (p *Payload) Categories() []string {
	return distinct(p.Products, func(pr Product) string { return pr.Category })
}

func distinct(products []Product, key func(Product) string) []string {
	seen := make(map[string]struct{}, len(products))
	out := make([]string, 0, len(products))
	for _, pr := range products {
		k := key(pr)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var hundred = decimal.NewFromInt(100)
