// Package heatmap builds the geocoded certificate-density view grouped by
// city and neighborhood, memoized through a TTL file cache.
package heatmap

import (
	"context"
	"strings"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sanitiza-group/cert-cli/internal/model"
	"github.com/sanitiza-group/cert-cli/pkg/geocode"
)

// Item is one (city, neighborhood) group with its certificate count and,
// when resolution succeeded, its coordinates. Lat/Lon are nil for unresolved
// locations; the JSON field names are part of the cache file format.
type Item struct {
	City         string   `json:"city"`
	Neighborhood string   `json:"bairro"`
	Address      string   `json:"address"`
	Count        int      `json:"count"`
	Lat          *float64 `json:"lat"`
	Lon          *float64 `json:"long"`
}

// Builder aggregates certificates into heatmap items and geocodes each
// distinct location.
type Builder struct {
	geocoder    geocode.Client
	concurrency int
}

// NewBuilder creates a Builder resolving at most concurrency locations in
// parallel (default 4).
func NewBuilder(geocoder geocode.Client, concurrency int) *Builder {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Builder{geocoder: geocoder, concurrency: concurrency}
}

// Build groups certificates by (city, neighborhood) and resolves one
// coordinate per group. Certificates without a city are skipped. Item order
// follows first appearance in the input. The only error returned is context
// cancellation; unresolvable locations simply keep nil coordinates.
func (b *Builder) Build(ctx context.Context, certs []model.Certificate) ([]Item, error) {
	index := make(map[string]int)
	var items []Item

	for _, cert := range certs {
		city := strings.TrimSpace(cert.City)
		if city == "" {
			continue
		}
		neighborhood := strings.TrimSpace(cert.Neighborhood)

		key := city + "|" + neighborhood
		if i, ok := index[key]; ok {
			items[i].Count++
			continue
		}

		index[key] = len(items)
		items = append(items, Item{
			City:         city,
			Neighborhood: neighborhood,
			Address:      composeAddress(cert, city, neighborhood),
			Count:        1,
		})
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(b.concurrency)
	for i := range items {
		eg.Go(func() error {
			r, err := b.geocoder.Resolve(gctx, geocode.Query{
				Address: items[i].Address,
				City:    items[i].City,
			})
			if err != nil {
				return err
			}
			if r.Matched {
				items[i].Lat = &r.Lat
				items[i].Lon = &r.Lon
			} else {
				zap.L().Debug("heatmap: location unresolved",
					zap.String("city", items[i].City),
					zap.String("bairro", items[i].Neighborhood),
				)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return items, nil
}

// composeAddress prefers the certificate's street address; otherwise it
// falls back to "neighborhood, city, Brazil".
func composeAddress(cert model.Certificate, city, neighborhood string) string {
	if addr := strings.TrimSpace(cert.Address); addr != "" {
		return addr
	}
	parts := make([]string, 0, 3)
	if neighborhood != "" {
		parts = append(parts, neighborhood)
	}
	parts = append(parts, city, "Brazil")
	return strings.Join(parts, ", ")
}

// Bounds returns the [minLon, minLat, maxLon, maxLat] envelope of all
// resolved items, for map viewport fitting. ok is false when nothing
// resolved.
func Bounds(items []Item) (box [4]float64, ok bool) {
	b := geom.NewBounds(geom.XY)
	for _, it := range items {
		if it.Lat == nil || it.Lon == nil {
			continue
		}
		b.Extend(geom.NewPointFlat(geom.XY, []float64{*it.Lon, *it.Lat}))
		ok = true
	}
	if !ok {
		return box, false
	}
	return [4]float64{b.Min(0), b.Min(1), b.Max(0), b.Max(1)}, true
}
