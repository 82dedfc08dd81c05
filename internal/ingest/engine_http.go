package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sanitiza-group/cert-cli/internal/model"
)

// HTTPEngine talks to the document engine service over HTTP. The engine
// shares the artifacts filesystem, so the paths it returns are valid
// locally.
type HTTPEngine struct {
	baseURL string
	client  *http.Client
}

// NewHTTPEngine creates an engine client for baseURL.
func NewHTTPEngine(baseURL string, timeout time.Duration) *HTTPEngine {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPEngine{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// engineResponse is the engine's processing result.
type engineResponse struct {
	Bundle        model.Bundle `json:"certificado_completo"`
	CertificateID string       `json:"cert_id"`
	Spreadsheet   string       `json:"planilha"`
}

// Process uploads the spreadsheet at path to the engine's processing
// endpoint and returns the materialized bundle.
func (e *HTTPEngine) Process(ctx context.Context, path string) (*ProcessOutput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "engine: open spreadsheet")
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("planilha", filepath.Base(path))
	if err != nil {
		return nil, eris.Wrap(err, "engine: build form")
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, eris.Wrap(err, "engine: copy spreadsheet")
	}
	if err := mw.Close(); err != nil {
		return nil, eris.Wrap(err, "engine: finish form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/process", &body)
	if err != nil {
		return nil, eris.Wrap(err, "engine: build request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "engine: process request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, eris.Errorf("engine: process returned %d: %s", resp.StatusCode, msg)
	}

	var er engineResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, eris.Wrap(err, "engine: decode response")
	}
	return &ProcessOutput{
		Bundle:          er.Bundle,
		CertificateID:   er.CertificateID,
		SpreadsheetPath: er.Spreadsheet,
	}, nil
}

// CreateManual asks the engine to materialize a hand-filled certificate.
// The payload is forwarded untouched; the engine owns its validation.
func (e *HTTPEngine) CreateManual(ctx context.Context, payload json.RawMessage) (*ProcessOutput, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/manual", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "engine: build manual request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "engine: manual request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, eris.Errorf("engine: manual creation returned %d: %s", resp.StatusCode, msg)
	}

	var er engineResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, eris.Wrap(err, "engine: decode manual response")
	}
	return &ProcessOutput{
		Bundle:          er.Bundle,
		CertificateID:   er.CertificateID,
		SpreadsheetPath: er.Spreadsheet,
	}, nil
}

// Generate asks the engine to render the certificate PDF. Implements
// artifact.Renderer.
func (e *HTTPEngine) Generate(ctx context.Context, bundle model.Bundle) (string, error) {
	payload, err := json.Marshal(bundle)
	if err != nil {
		return "", eris.Wrap(err, "engine: marshal bundle")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/render", bytes.NewReader(payload))
	if err != nil {
		return "", eris.Wrap(err, "engine: build render request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "engine: render request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", eris.Errorf("engine: render returned %d: %s", resp.StatusCode, msg)
	}

	var out struct {
		PDF string `json:"pdf"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", eris.Wrap(err, "engine: decode render response")
	}
	return out.PDF, nil
}
