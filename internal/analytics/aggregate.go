// Package analytics turns certificate collections into the chart-ready
// aggregates served by the dashboard.
package analytics

import (
	"math"
	"sort"
	"strings"

	"github.com/sanitiza-group/cert-cli/internal/model"
)

// Bucket is one labeled count in an aggregation dimension. Output order is
// significant: count descending, ties in first-seen input order.
type Bucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Totals holds raw record counts.
type Totals struct {
	Certificates int `json:"certificados"`
	Products     int `json:"produtos"`
	Methods      int `json:"metodos"`
}

// FinanceSummary holds the sum and mean of all parseable certificate values,
// rounded to two decimals. Unparseable values are excluded from both.
type FinanceSummary struct {
	Total   float64 `json:"total"`
	Average float64 `json:"media"`
}

// Overview is the full dashboard aggregation.
type Overview struct {
	Totals             Totals         `json:"totals"`
	ByMonth            []Bucket       `json:"certificadosPorMes"`
	ByCity             []Bucket       `json:"certificadosPorCidade"`
	ByPest             []Bucket       `json:"certificadosPorPraga"`
	ChemicalClasses    []Bucket       `json:"classesQuimicas"`
	ApplicationMethods []Bucket       `json:"metodosAplicacao"`
	ProductNames       []Bucket       `json:"produtosPorNome"`
	Finance            FinanceSummary `json:"valorFinanceiro"`
}

// CertificateCharts is the per-certificate drill-down view.
type CertificateCharts struct {
	Certificate     model.Certificate `json:"certificado"`
	Products        []model.Product   `json:"produtos"`
	Methods         []model.Method    `json:"metodos"`
	ProductsByClass []Bucket          `json:"distribuicaoProdutos"`
	MethodsByType   []Bucket          `json:"distribuicaoMetodos"`
}

// counter accumulates label counts while remembering first-seen order, so
// that equal counts sort deterministically.
type counter struct {
	counts map[string]int
	order  []string
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

// add counts one occurrence of label. Labels are trimmed; empty labels are
// excluded entirely rather than bucketed as "unknown".
func (c *counter) add(label string) {
	label = strings.TrimSpace(label)
	if label == "" {
		return
	}
	if _, seen := c.counts[label]; !seen {
		c.order = append(c.order, label)
	}
	c.counts[label]++
}

// buckets returns the counted labels sorted by count descending. The sort is
// stable over first-seen order, which is the documented tie-break.
func (c *counter) buckets() []Bucket {
	out := make([]Bucket, 0, len(c.order))
	for _, label := range c.order {
		out = append(out, Bucket{Label: label, Count: c.counts[label]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}

// BuildOverview aggregates the certificate, product, and method collections
// into the dashboard overview. Results are independent of input order except
// for the documented tie-break.
func BuildOverview(certs []model.Certificate, products []model.Product, methods []model.Method) Overview {
	byMonth := newCounter()
	byCity := newCounter()
	byPest := newCounter()
	for _, cert := range certs {
		byMonth.add(cert.Month())
		byCity.add(cert.City)
		for _, tag := range cert.PestTags() {
			byPest.add(tag)
		}
	}

	classes := newCounter()
	names := newCounter()
	for _, p := range products {
		classes.add(p.ChemicalClass)
		names.add(p.Name)
	}

	appMethods := newCounter()
	for _, m := range methods {
		appMethods.add(m.Description)
	}

	return Overview{
		Totals: Totals{
			Certificates: len(certs),
			Products:     len(products),
			Methods:      len(methods),
		},
		ByMonth:            byMonth.buckets(),
		ByCity:             byCity.buckets(),
		ByPest:             byPest.buckets(),
		ChemicalClasses:    classes.buckets(),
		ApplicationMethods: appMethods.buckets(),
		ProductNames:       names.buckets(),
		Finance:            buildFinanceSummary(certs),
	}
}

// BuildCertificateCharts builds the drill-down distributions for a single
// certificate bundle. Blank classes and descriptions get placeholder labels
// here, unlike the overview, because a pie chart slice cannot be omitted.
func BuildCertificateCharts(bundle model.Bundle) CertificateCharts {
	byClass := newCounter()
	for _, p := range bundle.Products {
		if strings.TrimSpace(p.ChemicalClass) == "" {
			byClass.add("Sem classe")
			continue
		}
		byClass.add(p.ChemicalClass)
	}

	byType := newCounter()
	for _, m := range bundle.Methods {
		if strings.TrimSpace(m.Description) == "" {
			byType.add("Sem descrição")
			continue
		}
		byType.add(m.Description)
	}

	return CertificateCharts{
		Certificate:     bundle.Certificate,
		Products:        bundle.Products,
		Methods:         bundle.Methods,
		ProductsByClass: byClass.buckets(),
		MethodsByType:   byType.buckets(),
	}
}

func buildFinanceSummary(certs []model.Certificate) FinanceSummary {
	var total float64
	var n int
	for _, cert := range certs {
		if v, ok := ParseMonetaryValue(cert.RawValue); ok {
			total += v
			n++
		}
	}

	var avg float64
	if n > 0 {
		avg = total / float64(n)
	}
	return FinanceSummary{
		Total:   round2(total),
		Average: round2(avg),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
