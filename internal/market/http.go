package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPAdapter talks to a JSON marketplace API:
//
//	GET {base}/api/search?q=...&page=...&min_price=...
//	GET {base}/api/listings/{external_id}
//
// Responses may be either an object with a "listings"/"listing" wrapper or
// the bare value. Requests go through the per-host limiter.
type HTTPAdapter struct {
	baseURL string
	hc      *http.Client
	limiter *HostLimiter
	ua      string
	token   string
}

type HTTPOptions struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	ReqPerSec float64
	Burst     int

	// Token is sent as a bearer header when set; loaded from the keyring.
	Token string
}

func NewHTTPAdapter(opts HTTPOptions) (*HTTPAdapter, error) {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		return nil, errors.New("marketplace base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid marketplace base URL: %w", err)
	}
	to := opts.Timeout
	if to <= 0 {
		to = 20 * time.Second
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = "marketpipe/1.0 (+local)"
	}
	rps := opts.ReqPerSec
	if rps <= 0 {
		rps = 1.0
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 2
	}
	return &HTTPAdapter{
		baseURL: strings.TrimRight(base, "/"),
		hc:      &http.Client{Timeout: to},
		limiter: NewHostLimiter(rps, burst),
		ua:      ua,
		token:   opts.Token,
	}, nil
}

func (a *HTTPAdapter) Name() string { return "http" }

func (a *HTTPAdapter) SearchListings(ctx context.Context, params SearchParams) (SearchPage, error) {
	q := url.Values{}
	q.Set("q", params.Query)
	q.Set("page", strconv.Itoa(params.Page))
	if params.MinPrice > 0 {
		q.Set("min_price", strconv.Itoa(params.MinPrice))
	}
	raw, err := a.get(ctx, a.baseURL+"/api/search?"+q.Encode())
	if err != nil {
		return SearchPage{}, fmt.Errorf("search page %d: %w", params.Page, err)
	}

	listings, err := a.ParseSearchPayload(raw)
	if err != nil {
		return SearchPage{}, err
	}
	return SearchPage{Listings: listings, Raw: raw, HasMore: len(listings) > 0}, nil
}

func (a *HTTPAdapter) FetchListing(ctx context.Context, externalID string) (Detail, []byte, error) {
	raw, err := a.get(ctx, a.baseURL+"/api/listings/"+url.PathEscape(externalID))
	if err != nil {
		return Detail{}, nil, fmt.Errorf("fetch listing %s: %w", externalID, err)
	}

	// {"listing":{...}} or bare object
	var wrapper struct {
		Listing *Detail `json:"listing"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Listing != nil {
		return *wrapper.Listing, raw, nil
	}
	var d Detail
	if err := json.Unmarshal(raw, &d); err != nil {
		return Detail{}, nil, fmt.Errorf("parse listing %s: %w", externalID, err)
	}
	return d, raw, nil
}

func (a *HTTPAdapter) ParseSearchPayload(raw []byte) ([]Summary, error) {
	// {"listings":[...]} or bare array
	var wrapper struct {
		Listings []Summary `json:"listings"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Listings != nil {
		return wrapper.Listings, nil
	}
	var list []Summary
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("parse search payload: %w", err)
	}
	return list, nil
}

func (a *HTTPAdapter) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := a.limiter.WaitURL(ctx, rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", a.ua)
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	res, err := a.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("status %d", res.StatusCode)
	}
	return io.ReadAll(io.LimitReader(res.Body, 4<<20))
}
