// Package geocode resolves free-text addresses to coordinates via Nominatim,
// with retry, city-center bounding, and in-process memoization of both hits
// and misses.
package geocode

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/sanitiza-group/cert-cli/internal/resilience"
)

const defaultSearchURL = "https://nominatim.openstreetmap.org/search"

// Query is one address to resolve. Address is the free-text query and the
// cache key; City and State, when known, let the resolver anchor the search
// around the city center first.
type Query struct {
	Address string
	City    string
	State   string
}

// Result is the outcome of a resolution. Matched false is a valid,
// cacheable outcome, not an error.
type Result struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"long"`
	Matched bool    `json:"matched"`
	Source  string  `json:"source,omitempty"`
}

// Client resolves addresses to coordinates. Implementations never surface
// lookup failures as errors; absence of coordinates is reported via
// Result.Matched. The returned error is reserved for context cancellation.
type Client interface {
	Resolve(ctx context.Context, q Query) (*Result, error)
}

// Option configures the Nominatim client.
type Option func(*nominatim)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(n *nominatim) { n.httpClient = hc }
}

// WithBaseURL overrides the search endpoint (used by tests and self-hosted
// Nominatim instances).
func WithBaseURL(u string) Option {
	return func(n *nominatim) { n.baseURL = u }
}

// WithUserAgent sets the User-Agent header. Nominatim's usage policy
// requires an identifying agent.
func WithUserAgent(ua string) Option {
	return func(n *nominatim) { n.userAgent = ua }
}

// WithCountry sets the country appended to unqualified queries and sent on
// structured city lookups. Default "Brazil".
func WithCountry(c string) Option {
	return func(n *nominatim) { n.country = c }
}

// WithRateLimit sets the requests-per-second limit for outbound calls.
// The public endpoint allows one request per second.
func WithRateLimit(rps float64) Option {
	return func(n *nominatim) { n.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(d time.Duration) Option {
	return func(n *nominatim) { n.timeout = d }
}

// WithRetry overrides the retry policy for the precise lookup.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(n *nominatim) { n.retry = cfg }
}

// WithBoundingBoxDelta sets the half-width, in degrees, of the viewbox
// placed around a resolved city center. Default 0.2.
func WithBoundingBoxDelta(delta float64) Option {
	return func(n *nominatim) { n.bboxDelta = delta }
}

type nominatim struct {
	baseURL    string
	userAgent  string
	country    string
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
	retry      resilience.RetryConfig
	bboxDelta  float64
	cache      *memCache
}

// NewClient creates a Nominatim-backed Client with the given options.
func NewClient(opts ...Option) Client {
	n := &nominatim{
		baseURL:    defaultSearchURL,
		userAgent:  "cert-cli/1.0",
		country:    "Brazil",
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(1, 1),
		timeout:    5 * time.Second,
		retry:      resilience.DefaultRetryConfig(),
		bboxDelta:  0.2,
		cache:      newMemCache(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}
