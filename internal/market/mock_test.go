package market

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockSearchDeterministic(t *testing.T) {
	m := NewMockAdapter()
	ctx := context.Background()

	a, err := m.SearchListings(ctx, SearchParams{Query: "vintage", Page: 2})
	require.NoError(t, err)
	b, err := m.SearchListings(ctx, SearchParams{Query: "vintage", Page: 2})
	require.NoError(t, err)

	assert.Equal(t, a.Raw, b.Raw, "same page, same payload")
	assert.Len(t, a.Listings, 20)
	assert.True(t, a.HasMore)
	assert.Equal(t, "m0000021", a.Listings[0].ExternalID)
}

func TestMockSearchOutOfRange(t *testing.T) {
	m := NewMockAdapter()
	page, err := m.SearchListings(context.Background(), SearchParams{Page: 99})
	require.NoError(t, err)
	assert.Empty(t, page.Listings)
	assert.False(t, page.HasMore)
}

func TestMockMinPriceFilter(t *testing.T) {
	m := NewMockAdapter()
	page, err := m.SearchListings(context.Background(), SearchParams{Page: 1, MinPrice: 1700})
	require.NoError(t, err)
	for _, s := range page.Listings {
		assert.GreaterOrEqual(t, s.Price, 1700)
	}
	assert.Less(t, len(page.Listings), 20)
}

func TestMockParseSearchPayloadRoundTrip(t *testing.T) {
	m := NewMockAdapter()
	page, err := m.SearchListings(context.Background(), SearchParams{Page: 1})
	require.NoError(t, err)

	parsed, err := m.ParseSearchPayload(page.Raw)
	require.NoError(t, err)
	assert.Equal(t, page.Listings, parsed)

	_, err = m.ParseSearchPayload([]byte("not json"))
	assert.Error(t, err)
}

func TestMockFetchListing(t *testing.T) {
	m := NewMockAdapter()
	d, raw, err := m.FetchListing(context.Background(), "m0000003")
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	assert.Equal(t, "m0000003", d.ExternalID)
	assert.Contains(t, d.Description, "10030", "n=3 cycles onto the first catalog id")
	assert.Equal(t, "active", d.Status)

	_, _, err = m.FetchListing(context.Background(), "bogus")
	assert.Error(t, err)
}
