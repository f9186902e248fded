package catalog

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// marginTolerance is the maximum deviation, in percentage points, tolerated
// between a precomputed MarginPercent and the value derived from the prices.
var marginTolerance = decimal.RequireFromString("0.25")

// SchemaViolationError reports a payload that parsed but is semantically
// invalid. The payload carrying it is never partially usable.
type SchemaViolationError struct {
	Field  string
	Reason string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("schema violation: %s: %s", e.Field, e.Reason)
}

func violation(field, format string, args ...any) error {
	return &SchemaViolationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the structural invariants of the payload: required fields,
// unique product ids, non-negative money, unit price not above MSRP, and
// sane pack quantities. It also normalizes MarginPercent in place: absent
// values are derived from the prices, present values are checked against the
// derived figure within a small tolerance.
func (p *Payload) Validate() error {
	if p.FormatVersion == "" {
		return violation("formatVersion", "required")
	}
	if p.GeneratedAt.IsZero() {
		return violation("generatedAt", "required")
	}
	if p.Company.Name == "" {
		return violation("company.name", "required")
	}
	if p.Company.MinimumOrder.IsNegative() {
		return violation("company.minimumOrder", "must not be negative")
	}
	if p.Customer.ID == "" {
		return violation("customer.id", "required")
	}
	if p.Customer.DiscountRate.IsNegative() {
		return violation("customer.discountRate", "must not be negative")
	}
	if p.Customer.CreditLimit.IsNegative() {
		return violation("customer.creditLimit", "must not be negative")
	}

	if len(p.Products) == 0 && !p.AllowEmpty {
		return violation("products", "empty catalog without allowEmpty")
	}

	seen := make(map[string]struct{}, len(p.Products))
	for i := range p.Products {
		if err := validateProduct(&p.Products[i], i); err != nil {
			return err
		}
		id := p.Products[i].ID
		if _, dup := seen[id]; dup {
			return violation(fmt.Sprintf("products[%d].id", i), "duplicate product id %q", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func validateProduct(pr *Product, i int) error {
	field := func(name string) string { return fmt.Sprintf("products[%d].%s", i, name) }

	if pr.ID == "" {
		return violation(field("id"), "required")
	}
	if pr.SKU == "" {
		return violation(field("sku"), "required")
	}
	if pr.Title == "" {
		return violation(field("title"), "required")
	}
	if pr.UnitPrice.IsNegative() {
		return violation(field("unitPrice"), "must not be negative")
	}
	if pr.MSRP.IsNegative() {
		return violation(field("msrp"), "must not be negative")
	}
	if pr.UnitPrice.GreaterThan(pr.MSRP) {
		return violation(field("unitPrice"), "%s exceeds msrp %s", pr.UnitPrice, pr.MSRP)
	}
	if pr.MinQty < 1 {
		return violation(field("minQty"), "must be at least 1")
	}
	if pr.CaseQty < 1 {
		return violation(field("caseQty"), "must be at least 1")
	}

	// MarginPercent is derived data. A missing value is filled in; a stated
	// value that disagrees with the prices is a corruption signal.
	derived := pr.Margin()
	if pr.MarginPercent.IsZero() {
		pr.MarginPercent = derived.Round(2)
		return nil
	}
	if pr.MarginPercent.Sub(derived).Abs().GreaterThan(marginTolerance) {
		return violation(field("marginPercent"),
			"stated %s disagrees with derived %s", pr.MarginPercent, derived.Round(2))
	}
	return nil
}
