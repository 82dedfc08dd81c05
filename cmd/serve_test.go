package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanitiza-group/cert-cli/internal/artifact"
	"github.com/sanitiza-group/cert-cli/internal/dedup"
	"github.com/sanitiza-group/cert-cli/internal/heatmap"
	"github.com/sanitiza-group/cert-cli/internal/ingest"
	"github.com/sanitiza-group/cert-cli/internal/model"
	"github.com/sanitiza-group/cert-cli/internal/store"
	"github.com/sanitiza-group/cert-cli/pkg/geocode"
)

type fakeProvider struct {
	certs    []model.Certificate
	products []model.Product
	methods  []model.Method
}

func (f *fakeProvider) ListCertificates(ctx context.Context) ([]model.Certificate, error) {
	return f.certs, nil
}

func (f *fakeProvider) GetCertificateByID(ctx context.Context, id string) (*model.Certificate, error) {
	for i := range f.certs {
		if f.certs[i].ID == id {
			return &f.certs[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeProvider) GetBundleByNumber(ctx context.Context, number string) (*model.Bundle, error) {
	for i := range f.certs {
		if f.certs[i].Number == number {
			return &model.Bundle{Certificate: f.certs[i]}, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeProvider) ListProducts(ctx context.Context) ([]model.Product, error) {
	return f.products, nil
}

func (f *fakeProvider) ListMethods(ctx context.Context) ([]model.Method, error) {
	return f.methods, nil
}

func (f *fakeProvider) Close() error { return nil }

type stubGeocoder struct{}

func (stubGeocoder) Resolve(ctx context.Context, q geocode.Query) (*geocode.Result, error) {
	return &geocode.Result{Lat: -5.5, Lon: -47.4, Matched: true}, nil
}

type stubEngine struct{}

func (stubEngine) Process(ctx context.Context, path string) (*ingest.ProcessOutput, error) {
	return &ingest.ProcessOutput{
		Bundle: model.Bundle{Certificate: model.Certificate{Number: "123/2024", City: "Imperatriz"}},
	}, nil
}

func (stubEngine) CreateManual(ctx context.Context, payload json.RawMessage) (*ingest.ProcessOutput, error) {
	var cert model.Certificate
	if err := json.Unmarshal(payload, &cert); err != nil {
		return nil, err
	}
	return &ingest.ProcessOutput{Bundle: model.Bundle{Certificate: cert}}, nil
}

func newTestEnv(t *testing.T) (*appEnv, *dedup.Index, string) {
	t.Helper()
	root := t.TempDir()

	provider := &fakeProvider{
		certs: []model.Certificate{
			{ID: "1", Number: "123/2024", City: "Imperatriz", Neighborhood: "Centro", RawValue: "R$ 1.500,00",
				ExecutedAt: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		},
		products: []model.Product{{CertificateNumber: "123/2024", Name: "K-Otrine", ChemicalClass: "Piretroide"}},
		methods:  []model.Method{{CertificateNumber: "123/2024", Description: "Pulverização"}},
	}

	geocoder := stubGeocoder{}
	heatmapSvc := heatmap.NewService(
		provider,
		heatmap.NewBuilder(geocoder, 2),
		heatmap.NewFileCache(filepath.Join(root, "heatmap.json"), time.Hour),
	)

	resolver := artifact.NewResolver(filepath.Join(root, "pdfs"), nil)
	index := dedup.NewIndex(filepath.Join(root, "processed.jsonl"))
	ingestSvc := ingest.NewService(stubEngine{}, resolver, index, filepath.Join(root, "tmp"))

	return &appEnv{
		provider: provider,
		geocoder: geocoder,
		heatmap:  heatmapSvc,
		resolver: resolver,
		ingest:   ingestSvc,
	}, index, root
}

func doRequest(t *testing.T, env *appEnv, method, target string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	newRouter(env).ServeHTTP(rec, req)
	return rec
}

func TestServe_Health(t *testing.T) {
	env, _, _ := newTestEnv(t)
	rec := doRequest(t, env, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServe_Overview(t *testing.T) {
	env, _, _ := newTestEnv(t)
	rec := doRequest(t, env, http.MethodGet, "/dashboard/overview", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	for _, key := range []string{
		"totals", "certificadosPorMes", "certificadosPorCidade", "certificadosPorPraga",
		"classesQuimicas", "metodosAplicacao", "produtosPorNome", "valorFinanceiro",
	} {
		assert.Contains(t, body, key)
	}
}

func TestServe_CertificateCharts(t *testing.T) {
	env, _, _ := newTestEnv(t)
	rec := doRequest(t, env, http.MethodGet, "/dashboard/certificate/123%2F2024", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "distribuicaoProdutos")
	assert.Contains(t, body, "distribuicaoMetodos")

	rec = doRequest(t, env, http.MethodGet, "/dashboard/certificate/999%2F2024", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServe_Heatmap(t *testing.T) {
	env, _, _ := newTestEnv(t)
	rec := doRequest(t, env, http.MethodGet, "/dashboard/heatmap", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data   []heatmap.Item `json:"data"`
		Bounds *[4]float64    `json:"bounds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Imperatriz", body.Data[0].City)
	require.NotNil(t, body.Bounds)
	assert.InDelta(t, -47.4, body.Bounds[0], 1e-9)
}

func TestServe_Certificates(t *testing.T) {
	env, _, _ := newTestEnv(t)

	rec := doRequest(t, env, http.MethodGet, "/certificates/", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var certs []model.Certificate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &certs))
	assert.Len(t, certs, 1)

	rec = doRequest(t, env, http.MethodGet, "/certificates/1", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, env, http.MethodGet, "/certificates/999", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServe_CreateManualCertificate(t *testing.T) {
	env, _, root := newTestEnv(t)
	pdfDir := filepath.Join(root, "pdfs")
	require.NoError(t, os.MkdirAll(pdfDir, 0o755))
	pdf := filepath.Join(pdfDir, "imperatriz_123-2024.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF"), 0o644))

	body := bytes.NewBufferString(`{"numero_certificado":"123/2024","cidade":"Imperatriz"}`)
	rec := doRequest(t, env, http.MethodPost, "/certificates/", body, "application/json")
	require.Equal(t, http.StatusCreated, rec.Code)

	var receipt ingest.Receipt
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	assert.Equal(t, "123/2024", receipt.CertificateNumber)
	assert.Equal(t, pdf, receipt.PDFPath)
}

func TestServe_CreateManualRejectsBadJSON(t *testing.T) {
	env, _, _ := newTestEnv(t)
	rec := doRequest(t, env, http.MethodPost, "/certificates/", bytes.NewBufferString("not json"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestServe_UploadMissingFile(t *testing.T) {
	env, _, _ := newTestEnv(t)
	body, contentType := multipartBody(t, "outro", "a.xlsx", []byte("x"))
	rec := doRequest(t, env, http.MethodPost, "/certificates/upload", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServe_UploadBadExtension(t *testing.T) {
	env, _, _ := newTestEnv(t)
	body, contentType := multipartBody(t, "planilha", "notas.csv", []byte("a,b"))
	rec := doRequest(t, env, http.MethodPost, "/certificates/upload", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServe_UploadDuplicate(t *testing.T) {
	env, index, _ := newTestEnv(t)
	data := []byte("workbook bytes")
	require.NoError(t, index.Add(dedup.Entry{Hash: dedup.HashBytes(data)}))

	body, contentType := multipartBody(t, "planilha", "repetida.xlsx", data)
	rec := doRequest(t, env, http.MethodPost, "/certificates/upload", body, contentType)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServe_AdminCache(t *testing.T) {
	env, _, _ := newTestEnv(t)

	rec := doRequest(t, env, http.MethodGet, "/admin/cache/status", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status heatmap.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Exists)

	// Populate, verify fresh, clear, verify gone.
	doRequest(t, env, http.MethodGet, "/dashboard/heatmap", nil, "")
	rec = doRequest(t, env, http.MethodGet, "/admin/cache/status", nil, "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Fresh)

	rec = doRequest(t, env, http.MethodPost, "/admin/cache/clear", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, env, http.MethodGet, "/admin/cache/status", nil, "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Exists)
}

func TestServe_AdminPDFs(t *testing.T) {
	env, _, _ := newTestEnv(t)
	rec := doRequest(t, env, http.MethodGet, "/admin/pdfs?q=imperatriz&limit=10", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []artifact.FileEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Empty(t, entries)
}
