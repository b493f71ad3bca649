package postcode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultRelayURL    = "https://cf-cors-air.pathway-group.workers.dev/api/"
	DefaultUpstreamURL = "https://pathwaygroup.co.uk/dev/hubhook/hspics/src/postcodes/v2/api/asf"
	defaultTimeout     = 15 * time.Second
)

// HTTPError is returned when the lookup call completes with a non-2xx status.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
}

// Client queries the postcode lookup API through a CORS relay.
type Client struct {
	relayURL    string
	upstreamURL string
	httpClient  *http.Client
}

// NewClient creates a Client. Empty URLs fall back to the public defaults;
// a timeout <= 0 uses 15s.
func NewClient(relayURL, upstreamURL string, timeout time.Duration) *Client {
	if relayURL == "" {
		relayURL = DefaultRelayURL
	}
	if upstreamURL == "" {
		upstreamURL = DefaultUpstreamURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		relayURL:    relayURL,
		upstreamURL: upstreamURL,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// RequestURL builds the relay-routed lookup URL for a postcode.
func (c *Client) RequestURL(pc string) string {
	return c.relayURL + "?url=" + c.upstreamURL + "?postcode=" + encodeComponent(pc)
}

// Lookup fetches the raw lookup result for pc. A 404 carried in the JSON
// body is not an error here; callers check LookupResult.Found.
func (c *Client) Lookup(ctx context.Context, pc string) (LookupResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.RequestURL(pc), nil)
	if err != nil {
		return LookupResult{}, fmt.Errorf("creating lookup request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return LookupResult{}, fmt.Errorf("lookup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return LookupResult{}, &HTTPError{StatusCode: resp.StatusCode}
	}

	var result LookupResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return LookupResult{}, fmt.Errorf("decoding lookup response: %w", err)
	}
	return result, nil
}

// encodeComponent escapes s the way encodeURIComponent does for the
// characters that can appear in a postcode (spaces become %20, not +).
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
