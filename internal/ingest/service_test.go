package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sanitiza-group/cert-cli/internal/artifact"
	"github.com/sanitiza-group/cert-cli/internal/dedup"
	"github.com/sanitiza-group/cert-cli/internal/model"
)

func buildWorkbook(t *testing.T, rows [][]string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Certificados")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "upload.xlsx")
	require.NoError(t, f.Save(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

type fakeEngine struct {
	out       *ProcessOutput
	manualOut *ProcessOutput
	failures  int // fail this many calls before succeeding
	calls     int
	lastPath  string

	manualCalls int
	lastPayload json.RawMessage
}

func (f *fakeEngine) Process(ctx context.Context, path string) (*ProcessOutput, error) {
	f.calls++
	f.lastPath = path
	if f.calls <= f.failures {
		return nil, errors.New("engine: missing nome fantasia")
	}
	return f.out, nil
}

func (f *fakeEngine) CreateManual(ctx context.Context, payload json.RawMessage) (*ProcessOutput, error) {
	f.manualCalls++
	f.lastPayload = payload
	if f.manualOut == nil {
		return nil, errors.New("engine: invalid payload")
	}
	return f.manualOut, nil
}

func newTestService(t *testing.T, engine Engine) (*Service, *dedup.Index, string) {
	t.Helper()
	root := t.TempDir()
	pdfDir := filepath.Join(root, "pdfs")
	require.NoError(t, os.MkdirAll(pdfDir, 0o755))
	index := dedup.NewIndex(filepath.Join(root, "processed.jsonl"))
	resolver := artifact.NewResolver(pdfDir, nil)
	return NewService(engine, resolver, index, filepath.Join(root, "tmp")), index, pdfDir
}

func certOutput() *ProcessOutput {
	return &ProcessOutput{
		Bundle: model.Bundle{Certificate: model.Certificate{
			Number: "123/2024",
			CNPJ:   "12345678000190",
			City:   "Imperatriz",
		}},
		CertificateID:   "42",
		SpreadsheetPath: "certificados_jan.xlsx",
	}
}

func TestProcessUpload_Success(t *testing.T) {
	engine := &fakeEngine{out: certOutput()}
	svc, index, pdfDir := newTestService(t, engine)

	pdf := filepath.Join(pdfDir, "12345678-123-2024.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF"), 0o644))

	data := buildWorkbook(t, [][]string{{"Nome Fantasia", "Razão Social"}, {"Norte", "Dedetizadora Norte LTDA"}})
	receipt, err := svc.ProcessUpload(context.Background(), "certificados_jan.xlsx", data)
	require.NoError(t, err)

	assert.NotEmpty(t, receipt.ID)
	assert.Equal(t, "123/2024", receipt.CertificateNumber)
	assert.Equal(t, "42", receipt.CertificateID)
	assert.Equal(t, pdf, receipt.PDFPath)
	assert.Equal(t, dedup.HashBytes(data), receipt.Hash)
	assert.Equal(t, 1, engine.calls)

	entry, err := index.Lookup(receipt.Hash)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "123/2024", entry.CertificateNumber)
	assert.Equal(t, pdf, entry.PDF)

	// The temp copy is cleaned up after processing.
	leftovers, err := os.ReadDir(filepath.Dir(engine.lastPath))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestProcessUpload_DuplicateRejectedBeforeEngine(t *testing.T) {
	engine := &fakeEngine{out: certOutput()}
	svc, _, pdfDir := newTestService(t, engine)
	require.NoError(t, os.WriteFile(filepath.Join(pdfDir, "12345678-123-2024.pdf"), []byte("%PDF"), 0o644))

	data := buildWorkbook(t, [][]string{{"Nome Fantasia", "Razão Social"}, {"Norte", "Norte LTDA"}})
	_, err := svc.ProcessUpload(context.Background(), "first.xlsx", data)
	require.NoError(t, err)

	_, err = svc.ProcessUpload(context.Background(), "renamed.xlsx", data)
	require.ErrorIs(t, err, ErrDuplicate, "identical bytes under a new name are still a duplicate")
	assert.Equal(t, 1, engine.calls)
}

func TestProcessUpload_UnsupportedExtension(t *testing.T) {
	engine := &fakeEngine{out: certOutput()}
	svc, _, _ := newTestService(t, engine)

	_, err := svc.ProcessUpload(context.Background(), "notas.csv", []byte("a,b,c"))
	require.ErrorIs(t, err, ErrUnsupportedType)
	assert.Zero(t, engine.calls)
}

func TestProcessUpload_SanitizeRetry(t *testing.T) {
	engine := &fakeEngine{out: certOutput(), failures: 1}
	svc, _, pdfDir := newTestService(t, engine)
	require.NoError(t, os.WriteFile(filepath.Join(pdfDir, "12345678-123-2024.pdf"), []byte("%PDF"), 0o644))

	data := buildWorkbook(t, [][]string{
		{"Nome Fantasia", "Razão Social"},
		{"", "Dedetizadora Norte LTDA"},
	})
	receipt, err := svc.ProcessUpload(context.Background(), "quebrada.xlsx", data)
	require.NoError(t, err)
	assert.Equal(t, 2, engine.calls, "one failure, one retry after sanitize")
	assert.Equal(t, "123/2024", receipt.CertificateNumber)
}

func TestProcessUpload_EngineFailureWithoutFixableDefect(t *testing.T) {
	engine := &fakeEngine{out: certOutput(), failures: 10}
	svc, index, _ := newTestService(t, engine)

	// Nothing for the sanitizer to repair, so no retry happens.
	data := buildWorkbook(t, [][]string{{"Coluna A"}, {"valor"}})
	_, err := svc.ProcessUpload(context.Background(), "irreparavel.xlsx", data)
	require.Error(t, err)
	assert.Equal(t, 1, engine.calls)

	// Failed uploads are not recorded; a fixed re-upload must get through.
	ok, lookupErr := index.Exists(dedup.HashBytes(data))
	require.NoError(t, lookupErr)
	assert.False(t, ok)
}

func TestCreateManual_Success(t *testing.T) {
	engine := &fakeEngine{manualOut: certOutput()}
	svc, index, pdfDir := newTestService(t, engine)

	pdf := filepath.Join(pdfDir, "12345678-123-2024.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF"), 0o644))

	payload := json.RawMessage(`{"numero_certificado":"123/2024","cidade":"Imperatriz"}`)
	receipt, err := svc.CreateManual(context.Background(), payload)
	require.NoError(t, err)

	assert.NotEmpty(t, receipt.ID)
	assert.Equal(t, "123/2024", receipt.CertificateNumber)
	assert.Equal(t, "42", receipt.CertificateID)
	assert.Equal(t, pdf, receipt.PDFPath)
	assert.Equal(t, 1, engine.manualCalls)
	assert.JSONEq(t, string(payload), string(engine.lastPayload), "payload is forwarded untouched")

	// No source file, so nothing lands in the upload ledger.
	entries, err := index.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreateManual_EngineReturnsNoNumber(t *testing.T) {
	engine := &fakeEngine{manualOut: &ProcessOutput{}}
	svc, _, _ := newTestService(t, engine)

	_, err := svc.CreateManual(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no certificate number")
}

func TestCreateManual_EngineError(t *testing.T) {
	engine := &fakeEngine{}
	svc, _, _ := newTestService(t, engine)

	_, err := svc.CreateManual(context.Background(), json.RawMessage(`{"numero_certificado":"9/2024"}`))
	require.Error(t, err)
	assert.Equal(t, 1, engine.manualCalls)
}

func TestProcessUpload_GenerationFailureSurfaces(t *testing.T) {
	engine := &fakeEngine{out: certOutput()}
	svc, _, _ := newTestService(t, engine)
	// No PDF on disk and no renderer configured.

	data := buildWorkbook(t, [][]string{{"Nome Fantasia", "Razão Social"}, {"Norte", "Norte LTDA"}})
	_, err := svc.ProcessUpload(context.Background(), "sem-pdf.xlsx", data)

	var genErr *artifact.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "123/2024", genErr.CertificateNumber)
}
