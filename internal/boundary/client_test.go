package boundary

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const singlePolygonJSON = `{"elements":[{"type":"relation","id":1,
	"geometry":[{"lat":51.50,"lon":-0.14},{"lat":51.51,"lon":-0.13},{"lat":51.50,"lon":-0.12}],
	"tags":{"name":"Westminster","admin_level":"8"}}]}`

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return nil
}

func (r *recordingSleeper) total() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum time.Duration
	for _, w := range r.waits {
		sum += w
	}
	return sum
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *countingRecorder) BoundaryAttempt(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

// newTestClient points a Client at baseURL with no jitter and a recording sleeper.
func newTestClient(baseURL string) (*Client, *recordingSleeper, *countingRecorder) {
	rec := &countingRecorder{}
	c := NewClient(Options{URL: baseURL, Recorder: rec})
	s := &recordingSleeper{}
	c.sleep = s.sleep
	c.jitter = func() time.Duration { return 0 }
	return c, s, rec
}

func TestFetchBoundary_EmptyNameMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c, _, _ := newTestClient(srv.URL)
	assert.Nil(t, c.FetchBoundary(context.Background(), ""))
	assert.Zero(t, calls.Load())
}

func TestFetchBoundary_SinglePolygon(t *testing.T) {
	var gotContentType, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		values, err := url.ParseQuery(string(body))
		require.NoError(t, err)
		gotQuery = values.Get("data")
		fmt.Fprint(w, singlePolygonJSON)
	}))
	defer srv.Close()

	c, sleeper, rec := newTestClient(srv.URL)
	fc := c.FetchBoundary(context.Background(), "Westminster")
	require.NotNil(t, fc)

	assert.Equal(t, "application/x-www-form-urlencoded", gotContentType)
	assert.Contains(t, gotQuery, `area["name"="England"]->.a;`)
	assert.Contains(t, gotQuery, `relation["admin_level"="8"]["name"="Westminster"](area.a);`)
	assert.Contains(t, gotQuery, `way["admin_level"="8"]["name"="Westminster"](area.a);`)
	assert.True(t, strings.HasSuffix(gotQuery, "out geom;"))

	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1)
	f := fc.Features[0]
	assert.Equal(t, "Feature", f.Type)
	assert.Equal(t, "Polygon", f.Geometry.Type)
	require.Len(t, f.Geometry.Coordinates, 1)
	assert.Equal(t, [2]float64{-0.14, 51.50}, f.Geometry.Coordinates[0][0], "ring points are [lon, lat]")
	assert.Equal(t, "Westminster", f.Properties["name"])
	assert.Equal(t, 3, fc.PointCount())

	assert.Empty(t, sleeper.waits)
	assert.Equal(t, []string{"ok"}, rec.outcomes)
}

func TestFetchBoundary_TagsFallBackToDistrictName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"elements":[
			{"type":"way","geometry":[{"lat":1,"lon":2},{"lat":3,"lon":4}]},
			{"type":"node"}
		]}`)
	}))
	defer srv.Close()

	c, _, _ := newTestClient(srv.URL)
	fc := c.FetchBoundary(context.Background(), "Camden")
	require.NotNil(t, fc)
	require.Len(t, fc.Features, 1, "elements without geometry are skipped")
	assert.Equal(t, map[string]string{"name": "Camden"}, fc.Features[0].Properties)
}

func TestFetchBoundary_NoElements(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"elements":[]}`)
	}))
	defer srv.Close()

	c, _, rec := newTestClient(srv.URL)
	assert.Nil(t, c.FetchBoundary(context.Background(), "Nowhere"))
	assert.Equal(t, []string{"empty"}, rec.outcomes)
}

func TestFetchBoundary_RetriesGatewayTimeoutThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusGatewayTimeout)
			return
		}
		fmt.Fprint(w, singlePolygonJSON)
	}))
	defer srv.Close()

	c, sleeper, rec := newTestClient(srv.URL)
	fc := c.FetchBoundary(context.Background(), "Westminster")
	require.NotNil(t, fc)
	assert.Len(t, fc.Features, 1)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.waits)
	assert.Equal(t, 3*time.Second, sleeper.total())
	assert.Equal(t, []string{"gateway_timeout", "gateway_timeout", "ok"}, rec.outcomes)
}

func TestFetchBoundary_AlwaysGatewayTimeout(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	c, sleeper, _ := newTestClient(srv.URL)
	assert.Nil(t, c.FetchBoundary(context.Background(), "Westminster"))
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, sleeper.waits, 2, "no wait after the final attempt")
}

func TestFetchBoundary_OtherStatusIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, sleeper, rec := newTestClient(srv.URL)
	assert.Nil(t, c.FetchBoundary(context.Background(), "Westminster"))
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, sleeper.waits)
	assert.Equal(t, []string{"status"}, rec.outcomes)
}

func TestFetchBoundary_MalformedJSONIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, "<html>not json</html>")
	}))
	defer srv.Close()

	c, _, _ := newTestClient(srv.URL)
	assert.Nil(t, c.FetchBoundary(context.Background(), "Westminster"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchBoundary_NetworkErrorRetriesUntilExhausted(t *testing.T) {
	// Closed server: every attempt gets connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c, sleeper, rec := newTestClient(srv.URL)
	assert.Nil(t, c.FetchBoundary(context.Background(), "Westminster"))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.waits)
	assert.Equal(t, []string{"network", "network", "network"}, rec.outcomes)
}

func TestFetchBoundary_MalformedURLIsNotRetried(t *testing.T) {
	c, sleeper, rec := newTestClient("ftp://overpass.invalid/api")
	assert.Nil(t, c.FetchBoundary(context.Background(), "Westminster"))
	assert.Empty(t, sleeper.waits)
	assert.Equal(t, []string{"error"}, rec.outcomes)
}

func TestFetchBoundary_CancelledContextStopsRetrying(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	c, _, _ := newTestClient(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	assert.Nil(t, c.FetchBoundary(ctx, "Westminster"))
}

func TestQuery_EscapesQuotes(t *testing.T) {
	c := NewClient(Options{})
	q := c.Query(`King's "Lynn"`)
	assert.Contains(t, q, `["name"="King's \"Lynn\""]`)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, Backoff(1))
	assert.Equal(t, 2*time.Second, Backoff(2))
	assert.Equal(t, 4*time.Second, Backoff(3))
}

func TestRandomJitterBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		j := randomJitter()
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.Less(t, j, maxJitter)
	}
}

func TestIsTransient(t *testing.T) {
	live := context.Background()
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want bool
	}{
		{"truncated response", live, &url.Error{Op: "Post", URL: "x", Err: io.ErrUnexpectedEOF}, true},
		{"client timeout", live, &url.Error{Op: "Post", URL: "x", Err: context.DeadlineExceeded}, true},
		{"caller cancelled", cancelled, &url.Error{Op: "Post", URL: "x", Err: context.Canceled}, false},
		{"caller cancelled during timeout", cancelled, &url.Error{Op: "Post", URL: "x", Err: context.DeadlineExceeded}, false},
		{"request construction", live, fmt.Errorf("creating boundary request: %w", fmt.Errorf("bad method")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransient(tt.ctx, tt.err))
		})
	}
}

func TestFetchBoundary_ClientTimeoutIsRetried(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	rec := &countingRecorder{}
	c := NewClient(Options{
		URL:        srv.URL,
		Recorder:   rec,
		HTTPClient: &http.Client{Timeout: 50 * time.Millisecond},
	})
	sleeper := &recordingSleeper{}
	c.sleep = sleeper.sleep
	c.jitter = func() time.Duration { return 0 }

	assert.Nil(t, c.FetchBoundary(context.Background(), "Westminster"))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.waits)
	assert.Equal(t, []string{"network", "network", "network"}, rec.outcomes)
}

func TestNewClient_AttemptsCappedAtThree(t *testing.T) {
	tests := []struct {
		configured int
		want       int
	}{
		{configured: 0, want: MaxAttempts},
		{configured: 1, want: 1},
		{configured: 3, want: 3},
		{configured: 10, want: MaxAttempts},
	}
	for _, tt := range tests {
		c := NewClient(Options{MaxAttempts: tt.configured})
		if c.maxAttempts != tt.want {
			t.Errorf("MaxAttempts %d: got %d attempts, want %d", tt.configured, c.maxAttempts, tt.want)
		}
	}
}

func TestQuery_EscapesControlCharacters(t *testing.T) {
	c := NewClient(Options{})
	q := c.Query("Bath and\nNorth\tEast\r")
	assert.Contains(t, q, `["name"="Bath and\nNorth\tEast"]`)
	assert.NotContains(t, q, "and\nNorth")
}
