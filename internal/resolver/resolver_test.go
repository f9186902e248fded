package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amberlow/catalink/internal/catalog"
	"github.com/amberlow/catalink/internal/codec"
)

var testNow = time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

// --- Mock implementations ---

type mockStore struct {
	entry   *CacheEntry
	loadErr error
	saved   []*CacheEntry
}

func (m *mockStore) Load(_ context.Context, clientID string) (*CacheEntry, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.entry == nil || m.entry.ClientID != clientID {
		return nil, ErrCacheMiss
	}
	return m.entry, nil
}

func (m *mockStore) Save(_ context.Context, entry *CacheEntry) error {
	m.saved = append(m.saved, entry)
	return nil
}

type mockFetcher struct {
	payload *catalog.Payload
	err     error
	block   bool // block until ctx is done
	calls   int
	aborted chan struct{} // closed when a blocked fetch observes cancellation
}

func (m *mockFetcher) FetchDefault(ctx context.Context) (*catalog.Payload, error) {
	m.calls++
	if m.block {
		<-ctx.Done()
		if m.aborted != nil {
			close(m.aborted)
		}
		return nil, ctx.Err()
	}
	return m.payload, m.err
}

// --- Helpers ---

func testPayload(expiresAt time.Time) *catalog.Payload {
	return &catalog.Payload{
		FormatVersion: catalog.FormatVersion,
		GeneratedAt:   testNow.Add(-24 * time.Hour),
		ExpiresAt:     expiresAt,
		Company: catalog.Company{
			Name:         "Pine & Quill Distribution",
			MinimumOrder: decimal.RequireFromString("850"),
			Currency:     "USD",
		},
		Customer: catalog.Customer{ID: "cust-1042", Name: "Harbor Light Books"},
		Products: []catalog.Product{{
			ID: "p1", SKU: "PQ-0001", Title: "The Tidewater Atlas",
			UnitPrice: decimal.RequireFromString("9.00"),
			MSRP:      decimal.RequireFromString("16.99"),
			MinQty:    1, CaseQty: 12, InStock: true,
		}},
	}
}

func encodeTransport(t *testing.T, p *catalog.Payload) string {
	t.Helper()
	s, err := (&codec.Codec{}).Encode(p)
	require.NoError(t, err)
	return s
}

func newResolver(store Store, fetcher Fetcher, cfg Config) *Resolver {
	r := New(&codec.Codec{}, store, fetcher, cfg, nil)
	r.now = func() time.Time { return testNow }
	return r
}

func freshEntry(t *testing.T) *CacheEntry {
	t.Helper()
	return &CacheEntry{
		Version:    CacheEntryVersion,
		ClientID:   "cust-1042",
		ResolvedAt: testNow.Add(-time.Hour),
		Transport:  encodeTransport(t, testPayload(testNow.Add(48*time.Hour))),
	}
}

// --- Tests ---

func TestResolve_TransportWins(t *testing.T) {
	store := &mockStore{entry: freshEntry(t)}
	fetcher := &mockFetcher{payload: testPayload(testNow.Add(time.Hour))}
	r := newResolver(store, fetcher, Config{})

	transport := encodeTransport(t, testPayload(testNow.Add(72*time.Hour)))
	res, err := r.Resolve(context.Background(), transport, "cust-1042")
	require.NoError(t, err)

	assert.Equal(t, SourceTransport, res.Source)
	assert.Equal(t, catalog.Fresh, res.Freshness)
	assert.Zero(t, fetcher.calls)

	// Transport is authoritative: the cache is overwritten.
	require.Len(t, store.saved, 1)
	assert.Equal(t, transport, store.saved[0].Transport)
	assert.Equal(t, "cust-1042", store.saved[0].ClientID)
}

func TestResolve_ExpiredTransportStillResolves(t *testing.T) {
	r := newResolver(nil, nil, Config{})

	transport := encodeTransport(t, testPayload(testNow.Add(-time.Hour)))
	res, err := r.Resolve(context.Background(), transport, "")
	require.NoError(t, err)

	assert.Equal(t, SourceTransport, res.Source)
	assert.Equal(t, catalog.Expired, res.Freshness)
}

func TestResolve_FallsBackToFreshCache(t *testing.T) {
	store := &mockStore{entry: freshEntry(t)}
	fetcher := &mockFetcher{payload: testPayload(testNow.Add(time.Hour))}
	r := newResolver(store, fetcher, Config{})

	res, err := r.Resolve(context.Background(), "CAT1.garbage.zz", "cust-1042")
	require.NoError(t, err)

	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, catalog.Fresh, res.Freshness)
	assert.Equal(t, testNow.Add(-time.Hour), res.ResolvedAt)
	assert.Zero(t, fetcher.calls, "remote tier must not run when the cache is fresh")
	assert.Empty(t, store.saved, "cache hits do not rewrite the cache")
}

func TestResolve_SkipsExpiredCacheForRemote(t *testing.T) {
	entry := freshEntry(t)
	entry.Transport = encodeTransport(t, testPayload(testNow.Add(-time.Hour)))
	store := &mockStore{entry: entry}
	fetcher := &mockFetcher{payload: testPayload(testNow.Add(time.Hour))}
	r := newResolver(store, fetcher, Config{})

	res, err := r.Resolve(context.Background(), "", "cust-1042")
	require.NoError(t, err)

	assert.Equal(t, SourceRemote, res.Source)
	assert.Equal(t, 1, fetcher.calls)
	assert.Empty(t, store.saved, "remote defaults are not persisted")
}

func TestResolve_ExpiredCacheIsLastResort(t *testing.T) {
	entry := freshEntry(t)
	entry.Transport = encodeTransport(t, testPayload(testNow.Add(-time.Hour)))
	store := &mockStore{entry: entry}
	fetcher := &mockFetcher{err: errors.New("connection refused")}
	r := newResolver(store, fetcher, Config{})

	res, err := r.Resolve(context.Background(), "", "cust-1042")
	require.NoError(t, err)

	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, catalog.Expired, res.Freshness)
}

func TestResolve_NoCatalogAvailable(t *testing.T) {
	store := &mockStore{}
	fetcher := &mockFetcher{err: errors.New("connection refused")}
	r := newResolver(store, fetcher, Config{})

	_, err := r.Resolve(context.Background(), "not-a-payload", "cust-1042")
	assert.ErrorIs(t, err, ErrNoCatalogAvailable)
}

func TestResolve_NoTiersConfigured(t *testing.T) {
	r := newResolver(nil, nil, Config{})

	_, err := r.Resolve(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrNoCatalogAvailable)
}

func TestResolve_RemoteTimeout(t *testing.T) {
	fetcher := &mockFetcher{block: true}
	r := newResolver(nil, fetcher, Config{FetchTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := r.Resolve(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrNoCatalogAvailable)
	assert.Less(t, time.Since(start), 5*time.Second, "fetch must not hang")
}

func TestResolve_InvalidRemoteDocumentRejected(t *testing.T) {
	bad := testPayload(testNow.Add(time.Hour))
	bad.Products[0].UnitPrice = decimal.RequireFromString("999.00") // above MSRP
	fetcher := &mockFetcher{payload: bad}
	r := newResolver(nil, fetcher, Config{})

	_, err := r.Resolve(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrNoCatalogAvailable)
}

func TestResolve_EagerFetchAbortedOnTransportHit(t *testing.T) {
	fetcher := &mockFetcher{block: true, aborted: make(chan struct{})}
	r := newResolver(nil, fetcher, Config{EagerFetch: true, FetchTimeout: time.Minute})

	transport := encodeTransport(t, testPayload(testNow.Add(time.Hour)))
	res, err := r.Resolve(context.Background(), transport, "")
	require.NoError(t, err)
	assert.Equal(t, SourceTransport, res.Source)

	select {
	case <-fetcher.aborted:
	case <-time.After(2 * time.Second):
		t.Fatal("eager fetch was not cancelled after transport resolution")
	}
}

func TestResolve_EagerFetchUsedWhenTransportFails(t *testing.T) {
	fetcher := &mockFetcher{payload: testPayload(testNow.Add(time.Hour))}
	r := newResolver(nil, fetcher, Config{EagerFetch: true})

	res, err := r.Resolve(context.Background(), "CAT1.broken.00", "")
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, res.Source)
	assert.Equal(t, 1, fetcher.calls)
}
