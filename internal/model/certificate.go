// Package model defines the certificate records exchanged with the document
// engine and the aggregate views built on top of them.
package model

import (
	"strings"
	"time"
)

// Certificate is a single pest-control treatment certificate as materialized
// by the document engine. Records are read-only once loaded.
type Certificate struct {
	ID            string    `json:"id"`
	Number        string    `json:"numero_certificado"`
	CNPJ          string    `json:"cnpj"`
	CorporateName string    `json:"razao_social"`
	Address       string    `json:"endereco"`
	Neighborhood  string    `json:"bairro"`
	City          string    `json:"cidade"`
	RawValue      string    `json:"valor"`
	Pests         string    `json:"pragas_tratadas"`
	ExecutedAt    time.Time `json:"data_execucao"`
}

// Month returns the execution month in YYYY-MM form.
func (c Certificate) Month() string {
	return c.ExecutedAt.Format("2006-01")
}

// PestTags splits the comma-separated pest list into trimmed, non-empty tags.
// A tag appearing twice is returned twice; callers decide how to count.
func (c Certificate) PestTags() []string {
	var tags []string
	for _, part := range strings.Split(c.Pests, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Product is a product application row associated with a certificate by
// certificate number (convention, not a foreign key).
type Product struct {
	CertificateNumber string `json:"numero_certificado"`
	Name              string `json:"produto"`
	ChemicalClass     string `json:"classe_quimica"`
	ActiveIngredient  string `json:"principio_ativo"`
}

// Method is an application method row associated with a certificate by
// certificate number.
type Method struct {
	CertificateNumber string `json:"numero_certificado"`
	Description       string `json:"metodo"`
	Equipment         string `json:"equipamento"`
}

// Bundle groups a certificate with its product and method rows.
type Bundle struct {
	Certificate Certificate `json:"certificado"`
	Products    []Product   `json:"produtos"`
	Methods     []Method    `json:"metodos"`
}
