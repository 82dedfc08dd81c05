// Package store reads the certificate collection maintained by the external
// document engine. All access is read-only; the engine owns the schema and
// every write.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sanitiza-group/cert-cli/internal/model"
)

// ErrNotFound marks a lookup for a certificate that is not in the store.
var ErrNotFound = eris.New("store: not found")

// Provider is the read-only view over the engine's certificate database.
// Row order is whatever the underlying store yields; callers needing a
// stable order sort themselves.
type Provider interface {
	ListCertificates(ctx context.Context) ([]model.Certificate, error)
	GetCertificateByID(ctx context.Context, id string) (*model.Certificate, error)
	GetBundleByNumber(ctx context.Context, number string) (*model.Bundle, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	ListMethods(ctx context.Context) ([]model.Method, error)
	Close() error
}

// Config selects and parameterizes the backing database.
type Config struct {
	Driver string      `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DSN    string      `yaml:"dsn" mapstructure:"dsn"`
	Pool   *PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// Open creates a Provider for the configured driver.
func Open(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLite(cfg.DSN)
	case "postgres":
		return NewPostgres(ctx, cfg.DSN, cfg.Pool)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
