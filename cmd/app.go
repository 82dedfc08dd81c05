package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sanitiza-group/cert-cli/internal/artifact"
	"github.com/sanitiza-group/cert-cli/internal/dedup"
	"github.com/sanitiza-group/cert-cli/internal/heatmap"
	"github.com/sanitiza-group/cert-cli/internal/ingest"
	"github.com/sanitiza-group/cert-cli/internal/store"
	"github.com/sanitiza-group/cert-cli/pkg/geocode"
)

// appEnv wires the certificate provider and the services every command
// shares.
type appEnv struct {
	provider store.Provider
	geocoder geocode.Client
	heatmap  *heatmap.Service
	resolver *artifact.Resolver
	ingest   *ingest.Service
}

func newAppEnv(ctx context.Context) (*appEnv, error) {
	provider, err := store.Open(ctx, store.Config{
		Driver: cfg.Store.Driver,
		DSN:    cfg.Store.DSN,
		Pool:   &store.PoolConfig{MaxConns: cfg.Store.MaxConns, MinConns: cfg.Store.MinConns},
	})
	if err != nil {
		return nil, eris.Wrap(err, "app: open store")
	}

	geocoder := geocode.NewClient(
		geocode.WithBaseURL(cfg.Geocode.BaseURL),
		geocode.WithUserAgent(cfg.Geocode.UserAgent),
		geocode.WithCountry(cfg.Geocode.Country),
		geocode.WithTimeout(cfg.Geocode.Timeout()),
		geocode.WithRetry(cfg.Geocode.Retry()),
		geocode.WithRateLimit(cfg.Geocode.RateRPS),
		geocode.WithBoundingBoxDelta(cfg.Geocode.BBoxDelta),
	)

	heatmapSvc := heatmap.NewService(
		provider,
		heatmap.NewBuilder(geocoder, cfg.Geocode.Concurrency),
		heatmap.NewFileCache(cfg.Heatmap.CachePath, cfg.Heatmap.TTL()),
	)

	engine := ingest.NewHTTPEngine(cfg.Engine.BaseURL, cfg.Engine.Timeout())
	resolver := artifact.NewResolver(cfg.Artifacts.OutputDir, engine)
	index := dedup.NewIndex(cfg.Uploads.IndexPath)
	ingestSvc := ingest.NewService(engine, resolver, index, cfg.Uploads.TempDir)

	return &appEnv{
		provider: provider,
		geocoder: geocoder,
		heatmap:  heatmapSvc,
		resolver: resolver,
		ingest:   ingestSvc,
	}, nil
}

func (e *appEnv) Close() {
	_ = e.provider.Close()
}
