// Package httpapi serves the default catalog over HTTP: the canonical JSON
// document for resolver fallback and a ready-made share link.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/amberlow/catalink/internal/catalog"
	"github.com/amberlow/catalink/internal/codec"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// CatalogTTL is the validity window stamped on every served document.
	// Zero serves unversioned documents with no expiry.
	CatalogTTL time.Duration
}

// Handler serves the default catalog. The base document is validated once at
// construction and never mutated; each response gets fresh timestamps.
type Handler struct {
	base  *catalog.Payload
	ttl   time.Duration
	codec codec.Codec

	now func() time.Time
}

// NewHandler builds a Handler around the given base catalog.
func NewHandler(cfg Config, base *catalog.Payload) *Handler {
	return &Handler{
		base: base,
		ttl:  cfg.CatalogTTL,
		now:  time.Now,
	}
}

// Register attaches the catalog routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/catalog", h.GetCatalog)
	mux.HandleFunc("GET /api/catalog/link", h.GetCatalogLink)
}

// stamped returns a copy of the base catalog with fresh issue and expiry
// timestamps.
func (h *Handler) stamped() *catalog.Payload {
	p := *h.base
	p.GeneratedAt = h.now().UTC().Truncate(time.Second)
	if h.ttl > 0 {
		p.ExpiresAt = p.GeneratedAt.Add(h.ttl)
	}
	return &p
}

// GetCatalog serves the default catalog as a canonical JSON document.
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	doc := codec.MarshalPayload(h.stamped())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(doc); err != nil {
		zctx.From(r.Context()).Debug("write catalog response", zap.Error(err))
	}
}

// GetCatalogLink serves the default catalog as a transport string, ready to be
// placed in a URL fragment.
func (h *Handler) GetCatalogLink(w http.ResponseWriter, r *http.Request) {
	transport, err := h.codec.Encode(h.stamped())
	if err != nil {
		zctx.From(r.Context()).Error("encode catalog link", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write([]byte(transport)); err != nil {
		zctx.From(r.Context()).Debug("write link response", zap.Error(err))
	}
}
