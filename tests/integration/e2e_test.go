package integration

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/amberlow/catalink/internal/catalog"
	"github.com/amberlow/catalink/internal/codec"
	"github.com/amberlow/catalink/internal/export"
	"github.com/amberlow/catalink/internal/httpapi"
	"github.com/amberlow/catalink/internal/resolver"
	"github.com/amberlow/catalink/internal/seed"
	"github.com/amberlow/catalink/internal/session"
	"github.com/amberlow/catalink/internal/storage/filecache"
	"github.com/amberlow/catalink/pkg/httpmiddleware"
)

// startServer runs the catalog server in-process: the same handler and
// middleware stack the binary wires up, minus telemetry.
func startServer(t *testing.T, ttl time.Duration) *httptest.Server {
	t.Helper()

	base, err := codec.DecodeDocument(seed.DefaultCatalog)
	require.NoError(t, err, "embedded default catalog must be valid")

	h := httpapi.NewHandler(httpapi.Config{CatalogTTL: ttl}, base)
	mux := http.NewServeMux()
	h.Register(mux)

	srv := httptest.NewServer(httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zaptest.NewLogger(t)),
	))
	t.Cleanup(srv.Close)
	return srv
}

func newResolver(t *testing.T, srv *httptest.Server) *resolver.Resolver {
	t.Helper()

	store, err := filecache.New(t.TempDir())
	require.NoError(t, err)

	var fetcher resolver.Fetcher
	if srv != nil {
		fetcher = resolver.NewHTTPFetcher(srv.URL, srv.Client())
	}
	return resolver.New(nil, store, fetcher, resolver.Config{FetchTimeout: 5 * time.Second}, zaptest.NewLogger(t))
}

func fetchLink(t *testing.T, srv *httptest.Server) string {
	t.Helper()

	resp, err := srv.Client().Get(srv.URL + "/api/catalog/link")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	transport := strings.TrimSpace(string(body))
	require.True(t, strings.HasPrefix(transport, "CAT1."))
	return transport
}

func TestSharedLinkToCheckout(t *testing.T) {
	srv := startServer(t, time.Hour)
	r := newResolver(t, srv)

	transport := fetchLink(t, srv)

	sess, err := session.Start(context.Background(), r, transport, "client-1")
	require.NoError(t, err)
	assert.Equal(t, resolver.SourceTransport, sess.Source)
	assert.False(t, sess.RequiresReacquisition())

	// Order enough to clear the 850 minimum: 90 cases worth of the atlas.
	require.NoError(t, sess.Ledger.AddItem("pq-0001", 90))

	report, err := sess.Checkout()
	require.NoError(t, err)
	require.NotEmpty(t, report.Rows)
	assert.Equal(t, "PQ-0001", report.Rows[0].SKU)
	assert.Equal(t, "917.10", report.Totals.Subtotal.StringFixed(2))

	var csv strings.Builder
	require.NoError(t, report.WriteCSV(&csv))
	assert.True(t, strings.HasPrefix(csv.String(), "SKU,Title,Quantity,UnitPrice,LineTotal,LineProfit"))
	assert.Contains(t, csv.String(), "TOTAL,,90,,917.10,")
}

func TestNoLinkFallsBackToRemoteDefault(t *testing.T) {
	srv := startServer(t, time.Hour)
	r := newResolver(t, srv)

	sess, err := session.Start(context.Background(), r, "", "client-2")
	require.NoError(t, err)
	assert.Equal(t, resolver.SourceRemote, sess.Source)
	assert.Equal(t, "default", sess.Catalog.Customer.ID)
	assert.NotEmpty(t, sess.Catalog.Products)
}

func TestLinkPersistsAndCacheSurvivesServerOutage(t *testing.T) {
	srv := startServer(t, time.Hour)

	dir := t.TempDir()
	store, err := filecache.New(dir)
	require.NoError(t, err)

	transport := fetchLink(t, srv)
	fetcher := resolver.NewHTTPFetcher(srv.URL, srv.Client())

	r := resolver.New(nil, store, fetcher, resolver.Config{FetchTimeout: 5 * time.Second}, zaptest.NewLogger(t))
	res, err := r.Resolve(context.Background(), transport, "client-3")
	require.NoError(t, err)
	require.Equal(t, resolver.SourceTransport, res.Source)

	// Server gone, link lost: the persisted cache still resolves.
	srv.Close()

	res, err = r.Resolve(context.Background(), "", "client-3")
	require.NoError(t, err)
	assert.Equal(t, resolver.SourceCache, res.Source)
	assert.Equal(t, catalog.Fresh, res.Freshness)
}

func TestExpiredLinkBlocksCheckoutButKeepsCart(t *testing.T) {
	base, err := codec.DecodeDocument(seed.DefaultCatalog)
	require.NoError(t, err)
	base.GeneratedAt = time.Now().Add(-48 * time.Hour).UTC().Truncate(time.Second)
	base.ExpiresAt = time.Now().Add(-24 * time.Hour).UTC().Truncate(time.Second)

	var c codec.Codec
	expired, err := c.Encode(base)
	require.NoError(t, err)

	// No store and no fetcher: the expired transport is all there is.
	r := resolver.New(nil, nil, nil, resolver.Config{}, zaptest.NewLogger(t))

	sess, err := session.Start(context.Background(), r, expired, "")
	require.NoError(t, err)
	assert.True(t, sess.RequiresReacquisition())

	require.NoError(t, sess.Ledger.AddItem("pq-0001", 90))

	_, err = sess.Checkout()
	require.ErrorIs(t, err, session.ErrCatalogExpired)

	// The cart survives the refusal.
	assert.Equal(t, 1, sess.Ledger.Len())
}

func TestCorruptLinkFallsThroughToRemote(t *testing.T) {
	srv := startServer(t, time.Hour)
	r := newResolver(t, srv)

	transport := fetchLink(t, srv)
	mangled := transport[:len(transport)-4] + "0000"

	sess, err := session.Start(context.Background(), r, mangled, "client-4")
	require.NoError(t, err)
	assert.Equal(t, resolver.SourceRemote, sess.Source)
}

func TestMinimumOrderGateEndToEnd(t *testing.T) {
	srv := startServer(t, time.Hour)
	r := newResolver(t, srv)

	sess, err := session.Start(context.Background(), r, fetchLink(t, srv), "client-5")
	require.NoError(t, err)

	// One book is far below the 850 minimum.
	require.NoError(t, sess.Ledger.AddItem("pq-0002", 1))

	_, err = sess.Checkout()
	var minErr *export.MinimumNotMetError
	if !assert.ErrorAs(t, err, &minErr) {
		return
	}
	assert.Equal(t, "850.00", minErr.Minimum.StringFixed(2))
	assert.True(t, minErr.Shortfall.IsPositive())
}
