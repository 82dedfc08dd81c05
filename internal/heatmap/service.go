package heatmap

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sanitiza-group/cert-cli/internal/model"
)

// CertificateSource supplies the certificate collection to aggregate.
type CertificateSource interface {
	ListCertificates(ctx context.Context) ([]model.Certificate, error)
}

// Service composes the builder with the file cache: reads within the TTL
// return the persisted payload without touching the geocoder, anything else
// recomputes and rewrites.
type Service struct {
	source  CertificateSource
	builder *Builder
	cache   *FileCache
}

// NewService wires a heatmap Service.
func NewService(source CertificateSource, builder *Builder, cache *FileCache) *Service {
	return &Service{source: source, builder: builder, cache: cache}
}

// CityHeatmap returns the heatmap, served from the cache when fresh.
func (s *Service) CityHeatmap(ctx context.Context) ([]Item, error) {
	if items, ok := s.cache.Read(time.Now()); ok {
		zap.L().Debug("heatmap: served from cache", zap.Int("items", len(items)))
		return items, nil
	}
	return s.Refresh(ctx)
}

// Refresh recomputes the heatmap unconditionally and rewrites the cache.
// A cache write failure is logged and swallowed; the computed result is
// still returned.
func (s *Service) Refresh(ctx context.Context) ([]Item, error) {
	certs, err := s.source.ListCertificates(ctx)
	if err != nil {
		return nil, err
	}

	items, err := s.builder.Build(ctx, certs)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Write(items); err != nil {
		zap.L().Warn("heatmap: cache write failed", zap.Error(err))
	}
	return items, nil
}

// ClearCache drops the persisted heatmap.
func (s *Service) ClearCache() error {
	return s.cache.Clear()
}

// CacheStatus reports the persisted heatmap's freshness.
func (s *Service) CacheStatus() Status {
	return s.cache.Status(time.Now())
}
