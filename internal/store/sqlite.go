package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sanitiza-group/cert-cli/internal/model"
)

// SQLiteProvider implements Provider using modernc.org/sqlite.
type SQLiteProvider struct {
	db *sql.DB
}

// NewSQLite opens the engine's SQLite database at dsn and configures WAL
// mode. The schema is the engine's; nothing is created or migrated here.
func NewSQLite(dsn string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteProvider{db: db}, nil
}

func (s *SQLiteProvider) Close() error {
	return s.db.Close()
}

const sqliteCertColumns = `id, numero_certificado, cnpj, razao_social, endereco, bairro, cidade, valor, pragas_tratadas, data_execucao`

func (s *SQLiteProvider) ListCertificates(ctx context.Context) ([]model.Certificate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteCertColumns+` FROM certificados`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list certificates")
	}
	defer rows.Close()

	var certs []model.Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		certs = append(certs, *cert)
	}
	return certs, eris.Wrap(rows.Err(), "sqlite: list certificates")
}

func (s *SQLiteProvider) GetCertificateByID(ctx context.Context, id string) (*model.Certificate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteCertColumns+` FROM certificados WHERE id = ?`, id)
	cert, err := scanCertificate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "certificate id %s", id)
		}
		return nil, err
	}
	return cert, nil
}

func (s *SQLiteProvider) GetBundleByNumber(ctx context.Context, number string) (*model.Bundle, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteCertColumns+` FROM certificados WHERE numero_certificado = ?`, number)
	cert, err := scanCertificate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "certificate %s", number)
		}
		return nil, err
	}

	bundle := &model.Bundle{Certificate: *cert}

	prodRows, err := s.db.QueryContext(ctx,
		`SELECT numero_certificado, nome, classe_quimica, principio_ativo FROM produtos WHERE numero_certificado = ?`, number)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: bundle products")
	}
	defer prodRows.Close()
	for prodRows.Next() {
		var p model.Product
		if err := prodRows.Scan(&p.CertificateNumber, &p.Name, &p.ChemicalClass, &p.ActiveIngredient); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product")
		}
		bundle.Products = append(bundle.Products, p)
	}
	if err := prodRows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: bundle products")
	}

	methRows, err := s.db.QueryContext(ctx,
		`SELECT numero_certificado, descricao, equipamento FROM metodos WHERE numero_certificado = ?`, number)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: bundle methods")
	}
	defer methRows.Close()
	for methRows.Next() {
		var m model.Method
		if err := methRows.Scan(&m.CertificateNumber, &m.Description, &m.Equipment); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan method")
		}
		bundle.Methods = append(bundle.Methods, m)
	}
	return bundle, eris.Wrap(methRows.Err(), "sqlite: bundle methods")
}

func (s *SQLiteProvider) ListProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT numero_certificado, nome, classe_quimica, principio_ativo FROM produtos`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list products")
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.CertificateNumber, &p.Name, &p.ChemicalClass, &p.ActiveIngredient); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product")
		}
		products = append(products, p)
	}
	return products, eris.Wrap(rows.Err(), "sqlite: list products")
}

func (s *SQLiteProvider) ListMethods(ctx context.Context) ([]model.Method, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT numero_certificado, descricao, equipamento FROM metodos`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list methods")
	}
	defer rows.Close()

	var methods []model.Method
	for rows.Next() {
		var m model.Method
		if err := rows.Scan(&m.CertificateNumber, &m.Description, &m.Equipment); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan method")
		}
		methods = append(methods, m)
	}
	return methods, eris.Wrap(rows.Err(), "sqlite: list methods")
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCertificate(row scanner) (*model.Certificate, error) {
	var (
		cert     model.Certificate
		executed string
	)
	err := row.Scan(
		&cert.ID,
		&cert.Number,
		&cert.CNPJ,
		&cert.CorporateName,
		&cert.Address,
		&cert.Neighborhood,
		&cert.City,
		&cert.RawValue,
		&cert.Pests,
		&executed,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan certificate")
	}
	cert.ExecutedAt = parseExecutedAt(executed)
	return &cert, nil
}

// parseExecutedAt accepts the date formats the engine has been observed to
// write. An unparseable value yields the zero time, which buckets under
// "0001-01" rather than failing the whole listing.
func parseExecutedAt(raw string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}
