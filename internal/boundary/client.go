package boundary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	DefaultURL        = "https://overpass-api.de/api/interpreter"
	DefaultArea       = "England"
	DefaultAdminLevel = 8
	MaxAttempts       = 3
	initialBackoff    = 1000 * time.Millisecond
	backoffFactor     = 2
	maxJitter         = 500 * time.Millisecond
	defaultTimeout    = 60 * time.Second
)

// Recorder receives one outcome per request attempt ("ok", "empty",
// "gateway_timeout", "network", "status", "error").
type Recorder interface {
	BoundaryAttempt(outcome string)
}

// Options configures a Client. Zero values select the defaults.
type Options struct {
	URL               string
	Area              string
	AdminLevel        int
	MaxAttempts       int
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Recorder          Recorder
	Logger            *slog.Logger

	// Sleep waits between attempts; nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client fetches administrative district boundaries from an Overpass
// interpreter. Failures never reach the caller: every problem resolves to
// a nil FeatureCollection after logging.
type Client struct {
	url         string
	area        string
	adminLevel  int
	maxAttempts int
	httpClient  *http.Client
	limiter     *rate.Limiter
	recorder    Recorder
	logger      *slog.Logger
	group       singleflight.Group

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

// NewClient creates a Client from opts.
func NewClient(opts Options) *Client {
	c := &Client{
		url:         opts.URL,
		area:        opts.Area,
		adminLevel:  opts.AdminLevel,
		maxAttempts: opts.MaxAttempts,
		httpClient:  opts.HTTPClient,
		recorder:    opts.Recorder,
		logger:      opts.Logger,
		sleep:       sleepCtx,
		jitter:      randomJitter,
	}
	if c.url == "" {
		c.url = DefaultURL
	}
	if c.area == "" {
		c.area = DefaultArea
	}
	if c.adminLevel <= 0 {
		c.adminLevel = DefaultAdminLevel
	}
	if c.maxAttempts <= 0 || c.maxAttempts > MaxAttempts {
		c.maxAttempts = MaxAttempts
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if opts.Sleep != nil {
		c.sleep = opts.Sleep
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	} else {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return c
}

// Query returns the Overpass QL used to select districtName's boundary.
func (c *Client) Query(districtName string) string {
	name := quote(districtName)
	return fmt.Sprintf(`[out:json][timeout:25];
area["name"=%s]->.a;
(
  relation["admin_level"="%d"]["name"=%s](area.a);
  way["admin_level"="%d"]["name"=%s](area.a);
);
out geom;`, quote(c.area), c.adminLevel, name, c.adminLevel, name)
}

// FetchBoundary returns the boundary polygons for districtName, or nil when
// the name is empty, nothing matched, or every attempt failed. Concurrent
// calls for the same district share one fetch.
func (c *Client) FetchBoundary(ctx context.Context, districtName string) *FeatureCollection {
	if districtName == "" {
		return nil
	}
	v, _, _ := c.group.Do(districtName, func() (any, error) {
		return c.fetch(ctx, districtName), nil
	})
	fc, _ := v.(*FeatureCollection)
	return fc
}

func (c *Client) fetch(ctx context.Context, districtName string) *FeatureCollection {
	body := "data=" + url.QueryEscape(c.Query(districtName))

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			c.logger.Error("boundary: rate limiter wait failed", "district", districtName, "error", err)
			return nil
		}

		fc, status, err := c.do(ctx, body, districtName)
		switch {
		case err != nil && isTransient(ctx, err):
			c.record("network")
			if attempt == c.maxAttempts {
				c.logger.Error("boundary: network error on final attempt", "district", districtName, "attempt", attempt, "error", err)
				break
			}
			c.logger.Warn("boundary: network error, retrying", "district", districtName, "attempt", attempt, "max_attempts", c.maxAttempts, "error", err)
			if !c.wait(ctx, attempt, districtName) {
				return nil
			}
			continue

		case err != nil:
			c.record("error")
			c.logger.Error("boundary: request failed", "district", districtName, "error", err)
			return nil

		case status == http.StatusGatewayTimeout:
			c.record("gateway_timeout")
			if attempt == c.maxAttempts {
				break
			}
			c.logger.Warn("boundary: gateway timeout, retrying", "district", districtName, "attempt", attempt, "max_attempts", c.maxAttempts)
			if !c.wait(ctx, attempt, districtName) {
				return nil
			}
			continue

		case status < 200 || status >= 300:
			c.record("status")
			c.logger.Error("boundary: unexpected status", "district", districtName, "status", status)
			return nil

		default:
			if fc == nil {
				c.record("empty")
				c.logger.Debug("boundary: no matching elements", "district", districtName)
			} else {
				c.record("ok")
			}
			return fc
		}
	}

	c.logger.Error("boundary: giving up", "district", districtName, "attempts", c.maxAttempts)
	return nil
}

// do performs one request. A non-nil error means no usable HTTP response;
// otherwise status carries the response code and fc the parsed polygons
// (only for 2xx).
func (c *Client) do(ctx context.Context, body, districtName string) (*FeatureCollection, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("creating boundary request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}

	var parsed interpreterResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decoding boundary response: %w", err)
	}
	return parsed.toFeatureCollection(districtName), resp.StatusCode, nil
}

// wait sleeps for the backoff of the given attempt. Returns false if ctx ended.
func (c *Client) wait(ctx context.Context, attempt int, districtName string) bool {
	d := Backoff(attempt) + c.jitter()
	if err := c.sleep(ctx, d); err != nil {
		c.logger.Error("boundary: retry wait aborted", "district", districtName, "error", err)
		return false
	}
	return true
}

func (c *Client) record(outcome string) {
	if c.recorder != nil {
		c.recorder.BoundaryAttempt(outcome)
	}
}

// Backoff returns the base delay before the retry that follows attempt
// (1-based), without jitter.
func Backoff(attempt int) time.Duration {
	return time.Duration(float64(initialBackoff) * math.Pow(backoffFactor, float64(attempt-1)))
}

// isTransient reports whether err means the request never got a usable
// server answer (DNS, refused or reset connections, truncated responses,
// client timeouts). Only the caller's own ctx ending is final; a timeout of
// the HTTP client also matches context.DeadlineExceeded and is retried.
func isTransient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true
		}
		err = urlErr.Err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

var qlEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", "", "\t", `\t`)

// quote renders s as an Overpass QL double-quoted string literal.
func quote(s string) string {
	return `"` + qlEscaper.Replace(s) + `"`
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func randomJitter() time.Duration {
	return rand.N(maxJitter)
}
