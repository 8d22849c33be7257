package models

import (
	"strings"
	"time"
)

// Identifier schemes recognized in ProductEntity.Identifiers.
const (
	SchemeEAN    = "ean"
	SchemeGTIN8  = "gtin8"
	SchemeGTIN12 = "gtin12"
	SchemeGTIN13 = "gtin13"
	SchemeGTIN14 = "gtin14"
	SchemeISBN   = "isbn"
	SchemeMPN    = "mpn"
	SchemeSKU    = "sku"
	SchemeASIN   = "asin"
)

// GTINSchemes lists identifier schemes that hold a Global Trade Item Number,
// in lookup priority order.
var GTINSchemes = []string{SchemeEAN, SchemeGTIN8, SchemeGTIN12, SchemeGTIN13, SchemeGTIN14, SchemeISBN}

// Price is a monetary amount with its ISO 4217 currency code.
type Price struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// ProductEntity is the structured record extracted from a storefront page.
// Produced only by successful extraction; Validate enforces the schema.
type ProductEntity struct {
	Name        string            `json:"name"`
	Brand       string            `json:"brand"`
	Price       Price             `json:"price"`
	Category    string            `json:"category"`
	Description string            `json:"description,omitempty"`
	Identifiers map[string]string `json:"identifiers,omitempty"`
	InStock     *bool             `json:"in_stock,omitempty"`
	SourceURL   string            `json:"source_url"`
	ExtractedAt time.Time         `json:"extracted_at"`
}

// Validate checks the entity against the schema contract:
// non-empty name/brand/category, non-negative price amount, valid currency
// code, and known identifier schemes. Fields are whitespace-trimmed in place.
// Returns a MALFORMED_RESPONSE error describing the first violation.
func (p *ProductEntity) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	p.Brand = strings.TrimSpace(p.Brand)
	p.Category = strings.TrimSpace(p.Category)
	p.Description = strings.TrimSpace(p.Description)

	if p.Name == "" {
		return NewExtractError(ErrKindMalformedResponse, "product name is empty", nil)
	}
	if p.Brand == "" {
		return NewExtractError(ErrKindMalformedResponse, "product brand is empty", nil)
	}
	if p.Category == "" {
		return NewExtractError(ErrKindMalformedResponse, "product category is empty", nil)
	}
	if p.Price.Amount < 0 {
		return NewExtractError(ErrKindMalformedResponse, "price amount is negative", nil)
	}
	if !ValidCurrency(p.Price.Currency) {
		return NewExtractError(ErrKindMalformedResponse, "invalid currency code: "+p.Price.Currency, nil)
	}

	for scheme, value := range p.Identifiers {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			delete(p.Identifiers, scheme)
			continue
		}
		p.Identifiers[scheme] = trimmed
		if !knownScheme(scheme) {
			return NewExtractError(ErrKindMalformedResponse, "unknown identifier scheme: "+scheme, nil)
		}
	}
	return nil
}

// ValidCurrency reports whether code looks like an ISO 4217 currency code
// (exactly three ASCII uppercase letters).
func ValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

func knownScheme(scheme string) bool {
	switch scheme {
	case SchemeEAN, SchemeGTIN8, SchemeGTIN12, SchemeGTIN13, SchemeGTIN14,
		SchemeISBN, SchemeMPN, SchemeSKU, SchemeASIN:
		return true
	default:
		return false
	}
}

// GTIN returns the first GTIN-family identifier on the entity, or "".
func (p *ProductEntity) GTIN() string {
	for _, scheme := range GTINSchemes {
		if v := p.Identifiers[scheme]; v != "" {
			return v
		}
	}
	return ""
}
