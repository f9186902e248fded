package catalog

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPayload() *Payload {
	return &Payload{
		FormatVersion: FormatVersion,
		GeneratedAt:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		ExpiresAt:     time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
		Company: Company{
			Name:         "Pine & Quill Distribution",
			MinimumOrder: decimal.RequireFromString("850"),
			Currency:     "USD",
		},
		Customer: Customer{
			ID:           "cust-1042",
			Name:         "Harbor Light Books",
			Tier:         "gold",
			DiscountRate: decimal.RequireFromString("42"),
			CreditLimit:  decimal.RequireFromString("15000"),
		},
		Products: []Product{
			{
				ID: "p1", SKU: "PQ-0001", Title: "The Tidewater Atlas",
				UnitPrice: decimal.RequireFromString("9.00"),
				MSRP:      decimal.RequireFromString("16.99"),
				Category:  "Reference", Publisher: "Seabright Press",
				MinQty: 1, CaseQty: 12, InStock: true, Featured: true,
			},
			{
				ID: "p2", SKU: "PQ-0002", Title: "Lanterns of the North",
				UnitPrice: decimal.RequireFromString("5.00"),
				MSRP:      decimal.RequireFromString("10.00"),
				Category:  "Fiction", Publisher: "Copperleaf",
				MinQty: 1, CaseQty: 24, InStock: true,
			},
		},
	}
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, testPayload().Validate())
}

func TestValidate_DerivesMargin(t *testing.T) {
	p := testPayload()
	require.NoError(t, p.Validate())

	// (16.99-9.00)/16.99*100 = 47.03
	assert.Equal(t, "47.03", p.Products[0].MarginPercent.StringFixed(2))
	assert.Equal(t, "50.00", p.Products[1].MarginPercent.StringFixed(2))
}

func TestValidate_AcceptsStatedMarginWithinTolerance(t *testing.T) {
	p := testPayload()
	p.Products[1].MarginPercent = decimal.RequireFromString("50.1")
	require.NoError(t, p.Validate())
}

func TestValidate_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Payload)
		field  string
	}{
		{"missing format version", func(p *Payload) { p.FormatVersion = "" }, "formatVersion"},
		{"missing generated at", func(p *Payload) { p.GeneratedAt = time.Time{} }, "generatedAt"},
		{"missing company name", func(p *Payload) { p.Company.Name = "" }, "company.name"},
		{"negative minimum order", func(p *Payload) {
			p.Company.MinimumOrder = decimal.RequireFromString("-1")
		}, "company.minimumOrder"},
		{"missing customer id", func(p *Payload) { p.Customer.ID = "" }, "customer.id"},
		{"empty products", func(p *Payload) { p.Products = nil }, "products"},
		{"duplicate product id", func(p *Payload) { p.Products[1].ID = "p1" }, "products[1].id"},
		{"missing sku", func(p *Payload) { p.Products[0].SKU = "" }, "products[0].sku"},
		{"negative price", func(p *Payload) {
			p.Products[0].UnitPrice = decimal.RequireFromString("-2")
		}, "products[0].unitPrice"},
		{"price above msrp", func(p *Payload) {
			p.Products[0].UnitPrice = decimal.RequireFromString("20.00")
		}, "products[0].unitPrice"},
		{"zero min qty", func(p *Payload) { p.Products[0].MinQty = 0 }, "products[0].minQty"},
		{"zero case qty", func(p *Payload) { p.Products[0].CaseQty = 0 }, "products[0].caseQty"},
		{"margin disagrees with prices", func(p *Payload) {
			p.Products[0].MarginPercent = decimal.RequireFromString("80")
		}, "products[0].marginPercent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPayload()
			tt.mutate(p)

			err := p.Validate()
			var sv *SchemaViolationError
			require.ErrorAs(t, err, &sv)
			assert.Equal(t, tt.field, sv.Field)
		})
	}
}

func TestValidate_AllowEmpty(t *testing.T) {
	p := testPayload()
	p.Products = nil
	p.AllowEmpty = true
	require.NoError(t, p.Validate())
}

func TestPayloadLookups(t *testing.T) {
	p := testPayload()

	require.NotNil(t, p.Product("p2"))
	assert.Equal(t, "PQ-0002", p.Product("p2").SKU)
	assert.Nil(t, p.Product("nope"))

	assert.Equal(t, []string{"Copperleaf", "Seabright Press"}, p.Publishers())
	assert.Equal(t, []string{"Fiction", "Reference"}, p.Categories())
}
