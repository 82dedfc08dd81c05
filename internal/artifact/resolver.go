// Package artifact locates, generates, and names certificate PDFs on disk.
package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sanitiza-group/cert-cli/internal/model"
	"github.com/sanitiza-group/cert-cli/internal/normalize"
)

// Renderer produces a PDF for a certificate bundle and returns its path.
// It is only invoked when no existing file can be located.
type Renderer interface {
	Generate(ctx context.Context, bundle model.Bundle) (string, error)
}

// GenerationError marks a failed PDF render. It carries the certificate
// number so callers can report which document is blocked.
type GenerationError struct {
	CertificateNumber string
	Err               error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("artifact: generating pdf for certificate %s: %v", e.CertificateNumber, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Resolver finds existing certificate PDFs by identifier matching and falls
// back to the renderer when nothing is on disk.
type Resolver struct {
	outputDir string
	renderer  Renderer
}

// NewResolver creates a Resolver over outputDir. renderer may be nil when
// only lookup is needed.
func NewResolver(outputDir string, renderer Renderer) *Resolver {
	return &Resolver{outputDir: outputDir, renderer: renderer}
}

// FindExisting locates a PDF for cert. The primary strategy globs on the
// first 8 digits of the registration id plus the sanitized certificate
// number and takes the lexicographically first hit. When that misses, a
// fuzzy pass over files matching just the number picks the candidate whose
// accent-stripped name contains the city, then the corporate name, then
// falls back to the first candidate.
func (r *Resolver) FindExisting(cert model.Certificate) (string, bool) {
	number := sanitizeNumber(cert.Number)
	if number == "" {
		return "", false
	}

	if cnpj8 := cnpjPrefix(cert.CNPJ); cnpj8 != "" {
		pattern := filepath.Join(r.outputDir, "*"+cnpj8+"*"+number+"*.pdf")
		if matches, err := filepath.Glob(pattern); err == nil && len(matches) > 0 {
			sort.Strings(matches)
			return matches[0], true
		}
	}

	candidates, err := filepath.Glob(filepath.Join(r.outputDir, "*"+number+"*.pdf"))
	if err != nil || len(candidates) == 0 {
		return "", false
	}
	sort.Strings(candidates)

	if match := pickFuzzy(candidates, cert.City); match != "" {
		return match, true
	}
	if match := pickFuzzy(candidates, cert.CorporateName); match != "" {
		return match, true
	}
	return candidates[0], true
}

// pickFuzzy returns the first candidate whose folded filename contains the
// dash- or space-joined variant of token.
func pickFuzzy(candidates []string, token string) string {
	dashed := normalize.Slug(token)
	if dashed == "" {
		return ""
	}
	spaced := strings.ReplaceAll(dashed, "-", " ")
	for _, c := range candidates {
		name := normalize.Fold(filepath.Base(c))
		if strings.Contains(name, dashed) || strings.Contains(name, spaced) {
			return c
		}
	}
	return ""
}

// EnsureExists returns an existing PDF for the bundle's certificate or
// renders a new one. Render failures surface as a *GenerationError. Newly
// rendered files get a city-prefixed copy when the certificate has a city.
func (r *Resolver) EnsureExists(ctx context.Context, bundle model.Bundle) (string, error) {
	cert := bundle.Certificate
	if path, ok := r.FindExisting(cert); ok {
		return path, nil
	}

	if r.renderer == nil {
		return "", &GenerationError{CertificateNumber: cert.Number, Err: eris.New("no renderer configured")}
	}

	path, err := r.renderer.Generate(ctx, bundle)
	if err != nil {
		return "", &GenerationError{CertificateNumber: cert.Number, Err: err}
	}
	zap.L().Info("artifact: pdf generated",
		zap.String("certificate", cert.Number),
		zap.String("path", path),
	)

	if strings.TrimSpace(cert.City) != "" {
		path = r.EnsureCityPrefixedCopy(path, cert.City)
	}
	return path, nil
}

// EnsureCityPrefixedCopy returns a copy of path named "{city}_{name}" with
// the city slugged. When the filename already carries the city token the
// original path comes back unchanged, and an existing copy is reused. Copy
// failures are non-fatal: the un-prefixed path is returned.
func (r *Resolver) EnsureCityPrefixedCopy(path, city string) string {
	cityTok := normalize.Slug(city)
	if cityTok == "" {
		return path
	}

	name := normalize.Fold(filepath.Base(path))
	if strings.Contains(name, cityTok) || strings.Contains(name, strings.ReplaceAll(cityTok, "-", " ")) {
		return path
	}

	dest := filepath.Join(filepath.Dir(path), cityTok+"_"+filepath.Base(path))
	if _, err := os.Stat(dest); err == nil {
		return dest
	}

	if err := copyFile(path, dest); err != nil {
		zap.L().Warn("artifact: city-prefixed copy failed",
			zap.String("source", path),
			zap.String("dest", dest),
			zap.Error(err),
		)
		return path
	}
	return dest
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrap(err, "artifact: open source")
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "artifact: create copy")
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return eris.Wrap(err, "artifact: copy")
	}
	return nil
}

// sanitizeNumber makes a certificate number filename-safe.
func sanitizeNumber(number string) string {
	return strings.ReplaceAll(strings.TrimSpace(number), "/", "-")
}

// cnpjPrefix returns the first 8 digits of a registration id, the part
// identifying the company across branch offices.
func cnpjPrefix(cnpj string) string {
	var digits strings.Builder
	for _, r := range cnpj {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
			if digits.Len() == 8 {
				break
			}
		}
	}
	if digits.Len() < 8 {
		return ""
	}
	return digits.String()
}
