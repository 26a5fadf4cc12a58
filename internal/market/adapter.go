// Package market abstracts the upstream marketplace search/detail API.
// Adapters stay deliberately narrow: fetch a page, fetch a detail, parse a
// payload. The default mock adapter is fully offline so the pipeline can
// run and be tested without network access.
package market

import "context"

// SearchParams describes one paginated marketplace search request.
type SearchParams struct {
	Query    string
	Page     int
	MinPrice int
}

// Summary is the lightweight listing record a search page carries.
type Summary struct {
	ExternalID string `json:"external_id"`
	Title      string `json:"title"`
	Price      int    `json:"price"`
	URL        string `json:"url,omitempty"`
}

// Detail is a full listing record from the detail endpoint.
type Detail struct {
	ExternalID  string `json:"external_id"`
	Title       string `json:"title"`
	Price       int    `json:"price"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"` // usually HTML
	Location    string `json:"location,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	Status      string `json:"status,omitempty"` // active/expired/sold/removed
}

// SearchPage bundles parsed summaries with the verbatim upstream payload so
// capture can persist the raw bytes untouched.
type SearchPage struct {
	Listings []Summary
	Raw      []byte
	HasMore  bool
}

type Adapter interface {
	Name() string
	SearchListings(ctx context.Context, params SearchParams) (SearchPage, error)
	FetchListing(ctx context.Context, externalID string) (Detail, []byte, error)

	// ParseSearchPayload re-parses a stored raw search payload; the
	// materialize stage replays capture output through this.
	ParseSearchPayload(raw []byte) ([]Summary, error)
}
