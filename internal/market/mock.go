package market

import (
	"context"
	"encoding/json"
	"fmt"
)

// MockAdapter synthesizes deterministic listings: same query and page always
// yield the same payload, which keeps captured runs replayable in tests and
// offline demos. A slice of the generated listings carries a known catalog
// id in the description so reconciliation has something to find.
type MockAdapter struct {
	Pages   int
	PerPage int

	// CatalogIDs are cycled into generated descriptions.
	CatalogIDs []string
}

func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		Pages:      3,
		PerPage:    20,
		CatalogIDs: []string{"10030", "7894", "60210"},
	}
}

func (m *MockAdapter) Name() string { return "mock" }

type mockSearchPayload struct {
	Listings []Summary `json:"listings"`
	Page     int       `json:"page"`
	HasMore  bool      `json:"has_more"`
}

func (m *MockAdapter) SearchListings(_ context.Context, params SearchParams) (SearchPage, error) {
	if params.Page < 1 || params.Page > m.Pages {
		return SearchPage{}, nil
	}

	payload := mockSearchPayload{Page: params.Page, HasMore: params.Page < m.Pages}
	for i := 0; i < m.PerPage; i++ {
		n := (params.Page-1)*m.PerPage + i + 1
		s := Summary{
			ExternalID: fmt.Sprintf("m%07d", n),
			Title:      m.title(n),
			Price:      1500 + n*25,
			URL:        fmt.Sprintf("https://mock.example/listing/m%07d", n),
		}
		if s.Price >= params.MinPrice {
			payload.Listings = append(payload.Listings, s)
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return SearchPage{}, err
	}
	return SearchPage{Listings: payload.Listings, Raw: raw, HasMore: payload.HasMore}, nil
}

func (m *MockAdapter) FetchListing(_ context.Context, externalID string) (Detail, []byte, error) {
	var n int
	if _, err := fmt.Sscanf(externalID, "m%d", &n); err != nil {
		return Detail{}, nil, fmt.Errorf("mock: unknown listing id %q", externalID)
	}

	d := Detail{
		ExternalID: externalID,
		Title:      m.title(n),
		Price:      1500 + n*25,
		URL:        fmt.Sprintf("https://mock.example/listing/%s", externalID),
		Description: fmt.Sprintf(
			"<p>Complete set <b>%s</b> in good condition.</p><p>Pickup in Rotterdam, 3011 AB.</p>",
			m.catalogID(n)),
		Location:   "Rotterdam",
		PostalCode: "3011 AB",
		Status:     "active",
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return Detail{}, nil, err
	}
	return d, raw, nil
}

func (m *MockAdapter) ParseSearchPayload(raw []byte) ([]Summary, error) {
	var payload mockSearchPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("mock: parse search payload: %w", err)
	}
	return payload.Listings, nil
}

func (m *MockAdapter) title(n int) string {
	return fmt.Sprintf("Set %s collection item #%d", m.catalogID(n), n)
}

func (m *MockAdapter) catalogID(n int) string {
	if len(m.CatalogIDs) == 0 {
		return "10030"
	}
	return m.CatalogIDs[n%len(m.CatalogIDs)]
}
