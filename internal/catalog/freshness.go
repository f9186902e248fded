package catalog

import "time"

// Freshness classifies whether resolved catalog data is current.
type Freshness int

const (
	// Fresh means the catalog is inside its validity window.
	Fresh Freshness = iota
	// Expired means the validity window has passed. Expired catalogs remain
	// structurally usable so existing carts survive, but callers must demand
	// re-acquisition before checkout.
	Expired
	// Unversioned means the generator stamped no expiry. Usable, but flagged.
	Unversioned
)

// String implements fmt.Stringer.
func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Expired:
		return "expired"
	case Unversioned:
		return "unversioned"
	default:
		return "unknown"
	}
}

// Classify applies the expiry gate to a payload at the given instant.
// It only classifies; it never discards data.
func Classify(p *Payload, now time.Time) Freshness {
	if p.ExpiresAt.IsZero() {
		return Unversioned
	}
	if now.After(p.ExpiresAt) {
		return Expired
	}
	return Fresh
}
