package resolver

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"

	"github.com/amberlow/catalink/internal/catalog"
	"github.com/amberlow/catalink/internal/codec"
)

// catalogPath is the document endpoint exposed by the default-catalog server.
const catalogPath = "/api/catalog"

var _ Fetcher = (*HTTPFetcher)(nil)

// HTTPFetcher retrieves the default catalog document over HTTP. The response
// body is size-capped and passes full codec validation before use.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFetcher creates a fetcher for the given server base URL. A nil
// client falls back to http.DefaultClient; timeouts are driven by the
// resolver's context, not the client.
func NewHTTPFetcher(baseURL string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// FetchDefault implements Fetcher.
func (f *HTTPFetcher) FetchDefault(ctx context.Context) (*catalog.Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+catalogPath, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch default catalog")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("default catalog endpoint returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, codec.DefaultMaxDecodedBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "read default catalog")
	}
	if len(body) > codec.DefaultMaxDecodedBytes {
		return nil, errors.Wrap(codec.ErrPayloadTooLarge, "default catalog")
	}

	return codec.DecodeDocument(body)
}
