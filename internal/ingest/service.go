// Package ingest accepts spreadsheet uploads, rejects duplicates, runs the
// external document engine, and records what was processed.
package ingest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sanitiza-group/cert-cli/internal/artifact"
	"github.com/sanitiza-group/cert-cli/internal/dedup"
	"github.com/sanitiza-group/cert-cli/internal/model"
)

// ErrDuplicate marks an upload whose content hash is already in the ledger.
var ErrDuplicate = eris.New("ingest: upload already processed")

// ErrUnsupportedType marks an upload with a disallowed extension.
var ErrUnsupportedType = eris.New("ingest: unsupported file type")

// ProcessOutput is what the external document engine returns for one
// processed spreadsheet.
type ProcessOutput struct {
	Bundle          model.Bundle
	CertificateID   string
	SpreadsheetPath string
}

// Engine is the external document engine that materializes certificate
// bundles, either from an uploaded spreadsheet or from a hand-filled form
// payload.
type Engine interface {
	Process(ctx context.Context, path string) (*ProcessOutput, error)
	CreateManual(ctx context.Context, payload json.RawMessage) (*ProcessOutput, error)
}

// Receipt summarizes a completed upload.
type Receipt struct {
	ID                string    `json:"id"`
	Filename          string    `json:"filename"`
	Hash              string    `json:"hash"`
	CertificateNumber string    `json:"numero_certificado"`
	CertificateID     string    `json:"cert_id"`
	PDFPath           string    `json:"pdf"`
	SpreadsheetPath   string    `json:"planilha"`
	ProcessedAt       time.Time `json:"processed_at"`
}

// Service runs the upload pipeline: dedup check, engine processing with one
// sanitize-and-retry on failure, PDF resolution, ledger append.
type Service struct {
	engine   Engine
	resolver *artifact.Resolver
	index    *dedup.Index
	tempDir  string
}

// NewService wires an upload Service. tempDir holds uploads while the
// engine runs; it is created on demand.
func NewService(engine Engine, resolver *artifact.Resolver, index *dedup.Index, tempDir string) *Service {
	return &Service{engine: engine, resolver: resolver, index: index, tempDir: tempDir}
}

// ProcessUpload validates, deduplicates, and processes one uploaded
// spreadsheet. A repeated upload returns ErrDuplicate before any engine
// work. The temp copy is removed when the pipeline finishes.
func (s *Service) ProcessUpload(ctx context.Context, filename string, data []byte) (*Receipt, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".xlsx" && ext != ".xls" {
		return nil, eris.Wrapf(ErrUnsupportedType, "%s", filename)
	}

	hash := dedup.HashBytes(data)
	seen, err := s.index.Exists(hash)
	if err != nil {
		return nil, err
	}
	if seen {
		zap.L().Info("ingest: duplicate upload rejected",
			zap.String("filename", filename),
			zap.String("hash", hash),
		)
		return nil, eris.Wrapf(ErrDuplicate, "%s", filename)
	}

	tmpPath, err := s.writeTemp(ext, data)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmpPath)

	out, err := s.process(ctx, tmpPath)
	if err != nil {
		return nil, err
	}

	pdfPath, err := s.resolver.EnsureExists(ctx, out.Bundle)
	if err != nil {
		return nil, err
	}

	entry := dedup.Entry{
		Hash:              hash,
		Filename:          filename,
		CertificateNumber: out.Bundle.Certificate.Number,
		CertificateID:     out.CertificateID,
		PDF:               pdfPath,
		Spreadsheet:       out.SpreadsheetPath,
		ProcessedAt:       time.Now().UTC(),
	}
	if err := s.index.Add(entry); err != nil {
		return nil, err
	}

	zap.L().Info("ingest: upload processed",
		zap.String("filename", filename),
		zap.String("certificate", entry.CertificateNumber),
	)

	return &Receipt{
		ID:                uuid.NewString(),
		Filename:          filename,
		Hash:              hash,
		CertificateNumber: entry.CertificateNumber,
		CertificateID:     entry.CertificateID,
		PDFPath:           entry.PDF,
		SpreadsheetPath:   entry.Spreadsheet,
		ProcessedAt:       entry.ProcessedAt,
	}, nil
}

// CreateManual sends a hand-filled certificate payload to the engine and
// resolves the resulting PDF. Manual creations carry no source file, so the
// dedup ledger is not involved.
func (s *Service) CreateManual(ctx context.Context, payload json.RawMessage) (*Receipt, error) {
	out, err := s.engine.CreateManual(ctx, payload)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: manual creation")
	}
	if out.Bundle.Certificate.Number == "" {
		return nil, eris.New("ingest: engine returned no certificate number")
	}

	pdfPath, err := s.resolver.EnsureExists(ctx, out.Bundle)
	if err != nil {
		return nil, err
	}

	zap.L().Info("ingest: manual certificate created",
		zap.String("certificate", out.Bundle.Certificate.Number),
	)

	return &Receipt{
		ID:                uuid.NewString(),
		CertificateNumber: out.Bundle.Certificate.Number,
		CertificateID:     out.CertificateID,
		PDFPath:           pdfPath,
		SpreadsheetPath:   out.SpreadsheetPath,
		ProcessedAt:       time.Now().UTC(),
	}, nil
}

// process runs the engine, and on failure sanitizes the workbook and
// retries once. The retry only happens when sanitization actually changed
// something.
func (s *Service) process(ctx context.Context, path string) (*ProcessOutput, error) {
	out, err := s.engine.Process(ctx, path)
	if err == nil {
		return out, nil
	}

	changed, sanErr := sanitizeSpreadsheet(path)
	if sanErr != nil || !changed {
		if sanErr != nil {
			zap.L().Warn("ingest: sanitize failed", zap.Error(sanErr))
		}
		return nil, eris.Wrap(err, "ingest: engine processing")
	}

	zap.L().Info("ingest: retrying engine after sanitize", zap.String("path", path))
	out, err = s.engine.Process(ctx, path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: engine processing after sanitize")
	}
	return out, nil
}

func (s *Service) writeTemp(ext string, data []byte) (string, error) {
	if err := os.MkdirAll(s.tempDir, 0o755); err != nil {
		return "", eris.Wrap(err, "ingest: create temp dir")
	}
	f, err := os.CreateTemp(s.tempDir, "upload-*"+ext)
	if err != nil {
		return "", eris.Wrap(err, "ingest: create temp file")
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", eris.Wrap(err, "ingest: write temp file")
	}
	return f.Name(), nil
}
