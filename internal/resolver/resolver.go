// Package resolver reconstructs catalog state from the available sources.
//
// Sources are tried in strict order, first success wins: the transport
// payload carried by the share link, then the client's persisted cache, then
// a remote default catalog. Terminal failure is ErrNoCatalogAvailable, a
// recoverable condition for the caller, never a crash.
package resolver

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/amberlow/catalink/internal/catalog"
	"github.com/amberlow/catalink/internal/codec"
)

// ErrNoCatalogAvailable is the terminal resolution failure: every tier was
// tried and none produced a usable catalog. Retry policy belongs to the
// caller.
var ErrNoCatalogAvailable = errors.New("no catalog available from any source")

// ErrCacheMiss is returned by Store implementations when no entry exists for
// the client.
var ErrCacheMiss = errors.New("cache entry not found")

// CacheEntryVersion is the current persisted cache blob version.
const CacheEntryVersion = 1

// CacheEntry is the persisted cache blob: the last successfully resolved
// transport string for a client plus when it was resolved.
type CacheEntry struct {
	Version    int
	ClientID   string
	ResolvedAt time.Time
	Transport  string
}

// Store persists the last resolved catalog per client.
type Store interface {
	// Load returns the entry for the client, or ErrCacheMiss.
	Load(ctx context.Context, clientID string) (*CacheEntry, error)
	Save(ctx context.Context, entry *CacheEntry) error
}

// Fetcher retrieves the unpersonalized default catalog from a remote
// collaborator. Implementations must treat the response as untrusted input.
type Fetcher interface {
	FetchDefault(ctx context.Context) (*catalog.Payload, error)
}

// Source identifies which tier produced a resolution.
type Source int

const (
	SourceTransport Source = iota
	SourceCache
	SourceRemote
)

func (s Source) String() string {
	switch s {
	case SourceTransport:
		return "transport"
	case SourceCache:
		return "cache"
	case SourceRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Resolution is a successfully resolved catalog with its provenance and
// freshness classification.
type Resolution struct {
	Payload    *catalog.Payload
	Source     Source
	Freshness  catalog.Freshness
	ResolvedAt time.Time
}

// Config tunes resolver behaviour.
type Config struct {
	// FetchTimeout bounds the remote default fetch. Zero means 10s.
	FetchTimeout time.Duration
	// EagerFetch starts the remote fetch concurrently with the earlier tiers
	// and aborts it as soon as one of them succeeds.
	EagerFetch bool
}

// Resolver runs the tiered lookup. Store and Fetcher are optional; a nil
// tier is simply skipped.
type Resolver struct {
	codec   *codec.Codec
	store   Store
	fetcher Fetcher
	cfg     Config
	now     func() time.Time
	lg      *zap.Logger
}

// New creates a Resolver.
func New(c *codec.Codec, store Store, fetcher Fetcher, cfg Config, lg *zap.Logger) *Resolver {
	if c == nil {
		c = &codec.Codec{}
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Resolver{
		codec:   c,
		store:   store,
		fetcher: fetcher,
		cfg:     cfg,
		now:     time.Now,
		lg:      lg,
	}
}

// Resolve reconstructs catalog state for a client. transport is the payload
// carried by the share link ("" when absent); clientID keys the persisted
// cache ("" disables it).
//
// A transport-tier success unconditionally overwrites the cache: the link is
// always authoritative over what was cached. Decode failures fall through to
// the next tier and are never retried against the same source.
func (r *Resolver) Resolve(ctx context.Context, transport, clientID string) (*Resolution, error) {
	now := r.now()

	var pending *pendingFetch
	if r.cfg.EagerFetch && r.fetcher != nil {
		pending = r.startFetch(ctx)
		defer pending.cancel()
	}

	// Tier 1: transport payload.
	if transport != "" {
		p, err := r.codec.Decode(transport)
		if err != nil {
			r.lg.Warn("transport payload rejected", zap.Error(err))
		} else {
			r.persist(ctx, clientID, transport, now)
			return &Resolution{
				Payload:    p,
				Source:     SourceTransport,
				Freshness:  catalog.Classify(p, now),
				ResolvedAt: now,
			}, nil
		}
	}

	// Tier 2: persisted cache, skipped when expired.
	var lastResort *Resolution
	if r.store != nil && clientID != "" {
		if res := r.fromCache(ctx, clientID, now); res != nil {
			if res.Freshness != catalog.Expired {
				return res, nil
			}
			lastResort = res
		}
	}

	// Tier 3: remote default.
	if r.fetcher != nil {
		p, err := r.awaitFetch(ctx, pending)
		if err != nil {
			r.lg.Warn("default catalog fetch failed", zap.Error(err))
		} else {
			return &Resolution{
				Payload:    p,
				Source:     SourceRemote,
				Freshness:  catalog.Classify(p, now),
				ResolvedAt: now,
			}, nil
		}
	}

	// An expired cached catalog beats no catalog: it keeps the customer's
	// cart alive, flagged for re-acquisition before checkout.
	if lastResort != nil {
		return lastResort, nil
	}
	return nil, ErrNoCatalogAvailable
}

// persist overwrites the cache with the authoritative transport string.
// Cache write failures degrade the next visit, not this one.
func (r *Resolver) persist(ctx context.Context, clientID, transport string, now time.Time) {
	if r.store == nil || clientID == "" {
		return
	}
	entry := &CacheEntry{
		Version:    CacheEntryVersion,
		ClientID:   clientID,
		ResolvedAt: now,
		Transport:  transport,
	}
	if err := r.store.Save(ctx, entry); err != nil {
		r.lg.Warn("cache write failed", zap.String("client_id", clientID), zap.Error(err))
	}
}

func (r *Resolver) fromCache(ctx context.Context, clientID string, now time.Time) *Resolution {
	entry, err := r.store.Load(ctx, clientID)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			r.lg.Warn("cache read failed", zap.String("client_id", clientID), zap.Error(err))
		}
		return nil
	}

	// The cached blob is a transport string, so a corrupted cache fails the
	// same integrity checks as a corrupted link.
	p, err := r.codec.Decode(entry.Transport)
	if err != nil {
		r.lg.Warn("cached payload rejected", zap.String("client_id", clientID), zap.Error(err))
		return nil
	}

	return &Resolution{
		Payload:    p,
		Source:     SourceCache,
		Freshness:  catalog.Classify(p, now),
		ResolvedAt: entry.ResolvedAt,
	}
}

type fetchResult struct {
	payload *catalog.Payload
	err     error
}

type pendingFetch struct {
	ch     chan fetchResult
	cancel context.CancelFunc
}

// startFetch launches the remote fetch concurrently. The returned cancel
// aborts it; resolving from an earlier tier abandons the fetch mid-flight.
func (r *Resolver) startFetch(ctx context.Context) *pendingFetch {
	fctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	p := &pendingFetch{ch: make(chan fetchResult, 1), cancel: cancel}
	go func() {
		payload, err := r.fetchDefault(fctx)
		p.ch <- fetchResult{payload: payload, err: err}
	}()
	return p
}

func (r *Resolver) awaitFetch(ctx context.Context, pending *pendingFetch) (*catalog.Payload, error) {
	if pending == nil {
		fctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
		defer cancel()
		return r.fetchDefault(fctx)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-pending.ch:
		return res.payload, res.err
	}
}

func (r *Resolver) fetchDefault(ctx context.Context) (*catalog.Payload, error) {
	p, err := r.fetcher.FetchDefault(ctx)
	if err != nil {
		return nil, err
	}
	// The remote document is untrusted regardless of the Fetcher impl.
	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, "remote default catalog")
	}
	return p, nil
}
