package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chargemap/internal/types"
)

// DefaultFetchTimeout bounds a single fetch, response body included.
const DefaultFetchTimeout = 5000 * time.Millisecond

const chargeSitesPath = "/api/chargesites"

// NetworkError is a fetch that produced a non-2xx response or no response at
// all. StatusCode is zero when no response was received.
type NetworkError struct {
	StatusCode int
	StatusText string
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return "network response was not ok: " + e.StatusText
	}
	if e.Err != nil {
		return "network request failed: " + e.Err.Error()
	}
	return "network request failed"
}

func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError is a fetch that did not complete within the client timeout.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string { return "request timed out" }

// ChargeSiteClient fetches charge sites from the backend API.
type ChargeSiteClient struct {
	base    *BaseClient
	baseURL string
	timeout time.Duration
}

// NewChargeSiteClient returns a client for the backend at baseURL. A
// non-positive timeout falls back to DefaultFetchTimeout.
func NewChargeSiteClient(base *BaseClient, baseURL string, timeout time.Duration) *ChargeSiteClient {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &ChargeSiteClient{
		base:    base,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
	}
}

// ChargeSitesQuery renders the query string for region and filters. The
// parameter order is fixed (lat, lon, latd, lond, obf, res, pri) and filter
// axes set to FilterAny are omitted.
func ChargeSitesQuery(region types.Region, filters types.Filters) string {
	var b strings.Builder
	b.WriteString("lat=")
	b.WriteString(formatFloat(region.Latitude))
	b.WriteString("&lon=")
	b.WriteString(formatFloat(region.Longitude))
	b.WriteString("&latd=")
	b.WriteString(formatFloat(region.LatitudeDelta))
	b.WriteString("&lond=")
	b.WriteString(formatFloat(region.LongitudeDelta))

	for _, p := range []struct {
		key string
		f   types.Filter
	}{
		{"obf", filters.ObfuscatedFilter},
		{"res", filters.ReservedFilter},
		{"pri", filters.PrivateFilter},
	} {
		if v, ok := p.f.QueryValue(); ok {
			b.WriteString("&")
			b.WriteString(p.key)
			b.WriteString("=")
			b.WriteString(v)
		}
	}
	return b.String()
}

// FetchChargeSites requests the sites within region that satisfy filters.
// It returns *TimeoutError when the backend does not answer in time and
// *NetworkError for any other failure. A cancelled ctx is reported as a
// *NetworkError wrapping ctx.Err().
func (c *ChargeSiteClient) FetchChargeSites(ctx context.Context, region types.Region, filters types.Filters) ([]types.ChargeSite, error) {
	ctx, cancel := context.WithTimeoutCause(ctx, c.timeout, &TimeoutError{Timeout: c.timeout})
	defer cancel()

	endpoint := c.baseURL + chargeSitesPath + "?" + ChargeSitesQuery(region, filters)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &NetworkError{
			StatusCode: resp.StatusCode,
			StatusText: statusText(resp),
		}
	}

	var sites []types.ChargeSite
	if err := json.NewDecoder(resp.Body).Decode(&sites); err != nil {
		return nil, c.classify(ctx, fmt.Errorf("decode charge sites: %w", err))
	}
	if sites == nil {
		sites = []types.ChargeSite{}
	}
	return sites, nil
}

func (c *ChargeSiteClient) classify(ctx context.Context, err error) error {
	var te *TimeoutError
	if errors.As(context.Cause(ctx), &te) {
		return te
	}
	return &NetworkError{Err: err}
}

// statusText prefers the reason phrase the server sent, falling back to the
// canonical text for the code.
func statusText(resp *http.Response) string {
	code := strconv.Itoa(resp.StatusCode)
	if text := strings.TrimSpace(strings.TrimPrefix(resp.Status, code)); text != "" {
		return text
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return code
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
