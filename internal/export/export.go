// Package export renders a cart ledger into a flat order record for
// download or email. The minimum-order policy is a hard gate here: no rows
// are produced for an order below threshold.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/amberlow/catalink/internal/cart"
)

// Header is the column contract of the flat record. Downstream spreadsheet
// tooling depends on these exact names in this exact order.
var Header = []string{"SKU", "Title", "Quantity", "UnitPrice", "LineTotal", "LineProfit"}

// MinimumNotMetError reports an export refused because the order is below
// the company's minimum. Shortfall is how much is missing.
type MinimumNotMetError struct {
	Minimum   decimal.Decimal
	Subtotal  decimal.Decimal
	Shortfall decimal.Decimal
}

func (e *MinimumNotMetError) Error() string {
	return fmt.Sprintf("order subtotal %s is below the %s minimum (short %s)",
		e.Subtotal.StringFixed(2), e.Minimum.StringFixed(2), e.Shortfall.StringFixed(2))
}

// Row is one exported line item.
type Row struct {
	SKU        string
	Title      string
	Quantity   int
	UnitPrice  decimal.Decimal
	LineTotal  decimal.Decimal
	LineProfit decimal.Decimal
}

// Report is a complete export: item rows in ledger insertion order plus the
// order totals for the trailing summary row. Two exports of an unchanged
// ledger produce identical reports.
type Report struct {
	Rows   []Row
	Totals cart.Totals
}

// Export validates the minimum-order gate and renders the ledger. It fails
// closed with *MinimumNotMetError rather than producing a sub-minimum record.
func Export(l *cart.Ledger) (*Report, error) {
	totals := l.Totals()
	minimum := l.Catalog().Company.MinimumOrder
	if totals.Subtotal.LessThan(minimum) {
		return nil, &MinimumNotMetError{
			Minimum:   minimum,
			Subtotal:  totals.Subtotal,
			Shortfall: minimum.Sub(totals.Subtotal),
		}
	}

	items := l.Items()
	rows := make([]Row, 0, len(items))
	for _, item := range items {
		p := l.Catalog().Product(item.ProductID)
		if p == nil {
			return nil, errors.Errorf("ledger references unknown product %s", item.ProductID)
		}
		qty := decimal.NewFromInt(int64(item.Quantity))
		rows = append(rows, Row{
			SKU:        p.SKU,
			Title:      p.Title,
			Quantity:   item.Quantity,
			UnitPrice:  p.UnitPrice,
			LineTotal:  p.UnitPrice.Mul(qty),
			LineProfit: p.MSRP.Sub(p.UnitPrice).Mul(qty),
		})
	}

	return &Report{Rows: rows, Totals: totals}, nil
}

// WriteCSV writes the report as RFC 4180 CSV: header, one row per line item,
// and a trailing TOTAL summary row.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return errors.Wrap(err, "write header")
	}
	for _, row := range r.Rows {
		rec := []string{
			row.SKU,
			row.Title,
			strconv.Itoa(row.Quantity),
			row.UnitPrice.StringFixed(2),
			row.LineTotal.StringFixed(2),
			row.LineProfit.StringFixed(2),
		}
		if err := cw.Write(rec); err != nil {
			return errors.Wrap(err, "write row")
		}
	}

	summary := []string{
		"TOTAL",
		"",
		strconv.Itoa(r.Totals.ItemCount),
		"",
		r.Totals.Subtotal.StringFixed(2),
		r.Totals.Profit.StringFixed(2),
	}
	if err := cw.Write(summary); err != nil {
		return errors.Wrap(err, "write summary row")
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, "flush csv")
	}
	return nil
}
