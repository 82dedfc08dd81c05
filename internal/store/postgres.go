package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sanitiza-group/cert-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the provider uses, satisfied by
// pgxmock in tests.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresProvider implements Provider using pgxpool.
type PostgresProvider struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresProvider with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresProvider, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresProvider{pool: pool}, nil
}

func (s *PostgresProvider) Close() error {
	s.pool.Close()
	return nil
}

const pgCertColumns = `id, numero_certificado, cnpj, razao_social, endereco, bairro, cidade, valor, pragas_tratadas, data_execucao`

func (s *PostgresProvider) ListCertificates(ctx context.Context) ([]model.Certificate, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgCertColumns+` FROM certificados`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list certificates")
	}
	defer rows.Close()

	var certs []model.Certificate
	for rows.Next() {
		var cert model.Certificate
		if err := rows.Scan(
			&cert.ID, &cert.Number, &cert.CNPJ, &cert.CorporateName, &cert.Address,
			&cert.Neighborhood, &cert.City, &cert.RawValue, &cert.Pests, &cert.ExecutedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan certificate")
		}
		certs = append(certs, cert)
	}
	return certs, eris.Wrap(rows.Err(), "postgres: list certificates")
}

func (s *PostgresProvider) GetCertificateByID(ctx context.Context, id string) (*model.Certificate, error) {
	var cert model.Certificate
	err := s.pool.QueryRow(ctx,
		`SELECT `+pgCertColumns+` FROM certificados WHERE id = $1`, id,
	).Scan(
		&cert.ID, &cert.Number, &cert.CNPJ, &cert.CorporateName, &cert.Address,
		&cert.Neighborhood, &cert.City, &cert.RawValue, &cert.Pests, &cert.ExecutedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "certificate id %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get certificate %s", id)
	}
	return &cert, nil
}

func (s *PostgresProvider) GetBundleByNumber(ctx context.Context, number string) (*model.Bundle, error) {
	var cert model.Certificate
	err := s.pool.QueryRow(ctx,
		`SELECT `+pgCertColumns+` FROM certificados WHERE numero_certificado = $1`, number,
	).Scan(
		&cert.ID, &cert.Number, &cert.CNPJ, &cert.CorporateName, &cert.Address,
		&cert.Neighborhood, &cert.City, &cert.RawValue, &cert.Pests, &cert.ExecutedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "certificate %s", number)
		}
		return nil, eris.Wrapf(err, "postgres: get bundle %s", number)
	}

	bundle := &model.Bundle{Certificate: cert}

	prodRows, err := s.pool.Query(ctx,
		`SELECT numero_certificado, nome, classe_quimica, principio_ativo FROM produtos WHERE numero_certificado = $1`, number)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: bundle products")
	}
	defer prodRows.Close()
	for prodRows.Next() {
		var p model.Product
		if err := prodRows.Scan(&p.CertificateNumber, &p.Name, &p.ChemicalClass, &p.ActiveIngredient); err != nil {
			return nil, eris.Wrap(err, "postgres: scan product")
		}
		bundle.Products = append(bundle.Products, p)
	}
	if err := prodRows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: bundle products")
	}

	methRows, err := s.pool.Query(ctx,
		`SELECT numero_certificado, descricao, equipamento FROM metodos WHERE numero_certificado = $1`, number)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: bundle methods")
	}
	defer methRows.Close()
	for methRows.Next() {
		var m model.Method
		if err := methRows.Scan(&m.CertificateNumber, &m.Description, &m.Equipment); err != nil {
			return nil, eris.Wrap(err, "postgres: scan method")
		}
		bundle.Methods = append(bundle.Methods, m)
	}
	return bundle, eris.Wrap(methRows.Err(), "postgres: bundle methods")
}

func (s *PostgresProvider) ListProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT numero_certificado, nome, classe_quimica, principio_ativo FROM produtos`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list products")
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.CertificateNumber, &p.Name, &p.ChemicalClass, &p.ActiveIngredient); err != nil {
			return nil, eris.Wrap(err, "postgres: scan product")
		}
		products = append(products, p)
	}
	return products, eris.Wrap(rows.Err(), "postgres: list products")
}

func (s *PostgresProvider) ListMethods(ctx context.Context) ([]model.Method, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT numero_certificado, descricao, equipamento FROM metodos`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list methods")
	}
	defer rows.Close()

	var methods []model.Method
	for rows.Next() {
		var m model.Method
		if err := rows.Scan(&m.CertificateNumber, &m.Description, &m.Equipment); err != nil {
			return nil, eris.Wrap(err, "postgres: scan method")
		}
		methods = append(methods, m)
	}
	return methods, eris.Wrap(rows.Err(), "postgres: list methods")
}
