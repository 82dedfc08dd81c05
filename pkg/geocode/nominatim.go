package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sanitiza-group/cert-cli/internal/resilience"
)

// place is a single candidate in a Nominatim search response. Coordinates
// arrive as strings.
type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (p place) coords() (float64, float64, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return 0, 0, eris.Wrap(err, "geocode: parse lat")
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return 0, 0, eris.Wrap(err, "geocode: parse lon")
	}
	return lat, lon, nil
}

// Resolve implements Client. Lookup failures are logged and degrade to an
// unmatched result; only context cancellation is returned as an error.
func (n *nominatim) Resolve(ctx context.Context, q Query) (*Result, error) {
	key := n.cache.key(q.Address)
	if cached, ok := n.cache.get(key); ok {
		zap.L().Debug("geocode cache hit",
			zap.String("address", q.Address),
			zap.Bool("matched", cached.Matched),
		)
		return cached, nil
	}

	// Coarse city center first. Best-effort: a miss here only widens the
	// subsequent search.
	center := n.cityCenter(ctx, q)

	places, err := n.searchPrecise(ctx, q, center)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		zap.L().Warn("geocode: precise lookup failed",
			zap.String("address", q.Address),
			zap.Error(err),
		)
	}

	result := n.pickResult(q, places, center, err != nil)
	n.cache.put(key, result)
	return result, nil
}

// pickResult applies the candidate/fallback rules: a candidate wins; an
// empty candidate list falls back to the city center (trading precision for
// coverage); an exhausted lookup or no data at all is unmatched.
func (n *nominatim) pickResult(q Query, places []place, center *Result, lookupFailed bool) *Result {
	if len(places) > 0 {
		lat, lon, err := places[0].coords()
		if err == nil {
			return &Result{Lat: lat, Lon: lon, Matched: true, Source: "nominatim"}
		}
		zap.L().Warn("geocode: malformed candidate coordinates",
			zap.String("address", q.Address),
			zap.Error(err),
		)
	}

	if !lookupFailed && center != nil {
		return &Result{Lat: center.Lat, Lon: center.Lon, Matched: true, Source: "city-center"}
	}

	return &Result{Matched: false}
}

// cityCenter resolves the coarse (city, state, country) center via a
// structured lookup. Failures are silently ignored beyond a debug log.
func (n *nominatim) cityCenter(ctx context.Context, q Query) *Result {
	if strings.TrimSpace(q.City) == "" {
		return nil
	}

	params := url.Values{
		"city":    {q.City},
		"country": {n.country},
		"format":  {"json"},
		"limit":   {"1"},
	}
	if strings.TrimSpace(q.State) != "" {
		params.Set("state", q.State)
	}

	places, err := n.doSearch(ctx, params)
	if err != nil || len(places) == 0 {
		zap.L().Debug("geocode: city center lookup missed",
			zap.String("city", q.City),
			zap.Error(err),
		)
		return nil
	}

	lat, lon, err := places[0].coords()
	if err != nil {
		return nil
	}
	return &Result{Lat: lat, Lon: lon, Matched: true, Source: "city-center"}
}

// searchPrecise issues the free-text lookup, bounded to the city center's
// viewbox when one is known, retrying transient failures.
func (n *nominatim) searchPrecise(ctx context.Context, q Query, center *Result) ([]place, error) {
	query := strings.TrimSpace(q.Address)
	lower := strings.ToLower(query)
	if !strings.Contains(lower, "brazil") && !strings.Contains(lower, "brasil") {
		query = query + ", " + n.country
	}

	params := url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"1"},
	}
	if center != nil {
		params.Set("viewbox", n.viewbox(center))
		params.Set("bounded", "1")
	}

	cfg := n.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("nominatim", "search")
	}

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]place, error) {
		return n.doSearch(ctx, params)
	})
}

// viewbox renders the bounding box of center ± bboxDelta degrees in
// Nominatim's left,top,right,bottom order.
func (n *nominatim) viewbox(center *Result) string {
	b := geom.NewBounds(geom.XY)
	b.Extend(geom.NewPointFlat(geom.XY, []float64{center.Lon - n.bboxDelta, center.Lat - n.bboxDelta}))
	b.Extend(geom.NewPointFlat(geom.XY, []float64{center.Lon + n.bboxDelta, center.Lat + n.bboxDelta}))
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.Min(0), b.Max(1), b.Max(0), b.Min(1))
}

// doSearch performs one rate-limited, timeout-bounded request against the
// search endpoint.
func (n *nominatim) doSearch(ctx context.Context, params url.Values) ([]place, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit")
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "geocode: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("geocode: nominatim returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "geocode: read body"), 0)
	}

	var places []place
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}
	return places, nil
}
