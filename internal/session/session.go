// Package session ties one resolved catalog to one cart ledger for the
// lifetime of a customer visit. All state is owned by the Session value;
// there are no package-level catalog or cart singletons.
package session

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/amberlow/catalink/internal/cart"
	"github.com/amberlow/catalink/internal/catalog"
	"github.com/amberlow/catalink/internal/export"
	"github.com/amberlow/catalink/internal/resolver"
)

// ErrCatalogExpired blocks checkout on an expired catalog. The cart survives;
// the customer needs a re-issued link before exporting the order.
var ErrCatalogExpired = errors.New("catalog expired: re-acquire before checkout")

// Session owns exactly one resolved catalog payload and one cart ledger.
type Session struct {
	ID         string
	Catalog    *catalog.Payload
	Ledger     *cart.Ledger
	Source     resolver.Source
	Freshness  catalog.Freshness
	resolution *resolver.Resolution
}

// Start resolves catalog state through the given resolver and opens a
// session over it. transport is the share-link payload ("" when the visitor
// arrived without one); clientID keys the local cache.
func Start(ctx context.Context, r *resolver.Resolver, transport, clientID string) (*Session, error) {
	res, err := r.Resolve(ctx, transport, clientID)
	if err != nil {
		return nil, errors.Wrap(err, "start session")
	}
	return FromResolution(res), nil
}

// FromResolution opens a session over an already-resolved catalog.
func FromResolution(res *resolver.Resolution) *Session {
	return &Session{
		ID:         uuid.New().String(),
		Catalog:    res.Payload,
		Ledger:     cart.NewLedger(res.Payload),
		Source:     res.Source,
		Freshness:  res.Freshness,
		resolution: res,
	}
}

// RequiresReacquisition reports whether checkout is blocked until a newer
// catalog is resolved. The gate only classifies; the cart is kept intact.
func (s *Session) RequiresReacquisition() bool {
	return s.Freshness == catalog.Expired
}

// Checkout exports the cart as a flat order report. It refuses on an expired
// catalog and delegates the minimum-order gate to the exporter.
func (s *Session) Checkout() (*export.Report, error) {
	if s.RequiresReacquisition() {
		return nil, ErrCatalogExpired
	}
	return export.Export(s.Ledger)
}
