package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHTTPAdapter(t *testing.T, handler http.HandlerFunc) *HTTPAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	a, err := NewHTTPAdapter(HTTPOptions{BaseURL: srv.URL, ReqPerSec: 1000, Burst: 1000, Token: "sekret"})
	require.NoError(t, err)
	return a
}

func TestHTTPAdapterSearch(t *testing.T) {
	var gotPath, gotAuth string
	a := newHTTPAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"listings":[{"external_id":"x1","title":"Set","price":100}]}`))
	})

	page, err := a.SearchListings(context.Background(), SearchParams{Query: "vintage", Page: 2, MinPrice: 50})
	require.NoError(t, err)
	require.Len(t, page.Listings, 1)
	assert.Equal(t, "x1", page.Listings[0].ExternalID)
	assert.True(t, page.HasMore)
	assert.Equal(t, "/api/search?min_price=50&page=2&q=vintage", gotPath)
	assert.Equal(t, "Bearer sekret", gotAuth)
}

func TestHTTPAdapterSearchBareArray(t *testing.T) {
	a := newHTTPAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"external_id":"x1","title":"Set","price":100}]`))
	})

	page, err := a.SearchListings(context.Background(), SearchParams{Query: "q", Page: 1})
	require.NoError(t, err)
	assert.Len(t, page.Listings, 1)
}

func TestHTTPAdapterFetchListingWrapped(t *testing.T) {
	a := newHTTPAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/listings/x1", r.URL.Path)
		w.Write([]byte(`{"listing":{"external_id":"x1","title":"Set","price":100,"description":"<p>hi</p>"}}`))
	})

	d, raw, err := a.FetchListing(context.Background(), "x1")
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.Equal(t, "x1", d.ExternalID)
	assert.Equal(t, "<p>hi</p>", d.Description)
}

func TestHTTPAdapterUpstreamError(t *testing.T) {
	a := newHTTPAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTooManyRequests)
	})

	_, err := a.SearchListings(context.Background(), SearchParams{Query: "q", Page: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestNewHTTPAdapterRequiresBaseURL(t *testing.T) {
	_, err := NewHTTPAdapter(HTTPOptions{})
	assert.Error(t, err)
}
