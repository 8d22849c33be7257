// Package extractor turns a fetched page into a validated ProductEntity.
// Pages carrying complete schema.org Product markup are answered directly;
// everything else goes through the cleaning pipeline and the completion
// model, with one stricter re-prompt before a malformed result is final.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/storesleuth/cleaner"
	"github.com/use-agent/storesleuth/llm"
	"github.com/use-agent/storesleuth/models"
)

// Options controls one extraction.
type Options struct {
	// CSSSelector narrows the content handed to the model.
	CSSSelector string
}

// Result is one successful extraction.
type Result struct {
	Product *models.ProductEntity

	// Usage is set only when the model was consulted.
	Usage *models.LLMUsage

	// UsedModel is false when structured markup answered the page.
	UsedModel bool
}

// Engine coordinates the fast path and the model path.
type Engine struct {
	backend llm.Backend
	cleaner *cleaner.Cleaner
}

// New creates an Engine.
func New(backend llm.Backend, cl *cleaner.Cleaner) *Engine {
	return &Engine{backend: backend, cleaner: cl}
}

// Extract produces a validated entity from a page snapshot.
func (e *Engine) Extract(ctx context.Context, page *models.PageContent, opts Options) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, models.NewExtractError(models.ErrKindUnsupportedPage,
			"page HTML could not be parsed", err)
	}

	structured := parseStructuredData(doc)

	if !looksLikeProductPage(doc, structured) {
		return nil, models.NewExtractError(models.ErrKindUnsupportedPage,
			"page carries no product markers", nil)
	}

	if entity := entityFromStructured(structured, page); entity != nil {
		slog.Debug("structured markup answered the page", "url", page.FinalURL)
		return &Result{Product: entity, UsedModel: false}, nil
	}

	return e.extractWithModel(ctx, page, structured, opts)
}

// entityFromStructured builds a complete entity from schema.org data alone.
// Returns nil when the markup is missing required fields; the partial data
// still feeds the model path as hints.
func entityFromStructured(sp *structuredProduct, page *models.PageContent) *models.ProductEntity {
	if sp == nil || sp.Name == "" || sp.Brand == "" || sp.Category == "" ||
		sp.PriceRaw == "" || sp.Currency == "" {
		return nil
	}

	amount, err := models.ParsePrice(sp.PriceRaw)
	if err != nil {
		return nil
	}

	entity := &models.ProductEntity{
		Name:        sp.Name,
		Brand:       sp.Brand,
		Category:    sp.Category,
		Description: sp.Description,
		Price:       models.Price{Amount: amount, Currency: sp.Currency},
		Identifiers: sp.Identifiers,
		InStock:     sp.InStock,
		SourceURL:   page.URL,
		ExtractedAt: time.Now().UTC(),
	}
	if err := entity.Validate(); err != nil {
		return nil
	}
	return entity
}

func (e *Engine) extractWithModel(ctx context.Context, page *models.PageContent, sp *structuredProduct, opts Options) (*Result, error) {
	prepared, err := e.cleaner.Prepare(page, opts.CSSSelector)
	if err != nil {
		return nil, err
	}

	userContent := buildUserContent(prepared, sp, page)

	res, err := e.backend.Complete(ctx, llm.CompletionRequest{
		System: systemPrompt,
		User:   userContent,
	})
	if err != nil {
		return nil, err
	}

	entity, parseErr := parseModelOutput(res.Content, sp, page)
	if parseErr == nil {
		return &Result{Product: entity, Usage: &res.Usage, UsedModel: true}, nil
	}

	// One stricter re-prompt: feed the violation back and demand compliance.
	slog.Debug("model output rejected, re-prompting",
		"url", page.FinalURL, "error", parseErr)
	retry, err := e.backend.Complete(ctx, llm.CompletionRequest{
		System: systemPrompt + "\n\nYour previous answer was rejected: " +
			parseErr.Error() + "\nReturn strictly schema-conformant JSON this time.",
		User: userContent,
	})
	if err != nil {
		return nil, err
	}

	usage := models.LLMUsage{
		PromptTokens:     res.Usage.PromptTokens + retry.Usage.PromptTokens,
		CompletionTokens: res.Usage.CompletionTokens + retry.Usage.CompletionTokens,
		TotalTokens:      res.Usage.TotalTokens + retry.Usage.TotalTokens,
	}

	entity, parseErr = parseModelOutput(retry.Content, sp, page)
	if parseErr != nil {
		return nil, models.NewExtractError(models.ErrKindMalformedResponse,
			"model output failed validation twice", parseErr)
	}
	return &Result{Product: entity, Usage: &usage, UsedModel: true}, nil
}

const systemPrompt = `You are a product data extraction engine for storefront pages. Extract the single primary product from the provided page content and return ONLY a JSON object with this exact shape:

{
  "name": string,
  "brand": string,
  "price": {"amount": number, "currency": string},
  "category": string,
  "description": string or null,
  "identifiers": object mapping scheme to value, or null,
  "in_stock": boolean or null
}

Rules:
- name, brand and category are required and must be non-empty.
- price.amount is the current selling price as a plain number, price.currency is the ISO 4217 code.
- identifiers may only use these schemes: ean, gtin8, gtin12, gtin13, gtin14, isbn, mpn, sku, asin.
- Use null for unknown optional fields. Never invent values.
- Return only the JSON object, no markdown fences, no commentary.`

// buildUserContent assembles the model input: page metadata hints, any
// partial structured data, then the cleaned Markdown.
func buildUserContent(prepared *cleaner.Prepared, sp *structuredProduct, page *models.PageContent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Page URL: %s\n", page.FinalURL)
	if prepared.Meta.Title != "" {
		fmt.Fprintf(&b, "Page title: %s\n", prepared.Meta.Title)
	}
	if prepared.Meta.SiteName != "" {
		fmt.Fprintf(&b, "Site name: %s\n", prepared.Meta.SiteName)
	}
	if prepared.Meta.Brand != "" {
		fmt.Fprintf(&b, "Declared brand: %s\n", prepared.Meta.Brand)
	}
	if sp != nil {
		hints, _ := json.Marshal(map[string]any{
			"name": sp.Name, "brand": sp.Brand, "category": sp.Category,
			"price": sp.PriceRaw, "currency": sp.Currency,
		})
		fmt.Fprintf(&b, "Partial structured data found on the page: %s\n", hints)
	}
	b.WriteString("\nPage content:\n\n")
	b.WriteString(prepared.Markdown)
	return b.String()
}

// modelProduct is the wire shape the model is asked to produce. Price amount
// tolerates both a JSON number and a formatted string.
type modelProduct struct {
	Name        string            `json:"name"`
	Brand       string            `json:"brand"`
	Price       modelPrice        `json:"price"`
	Category    string            `json:"category"`
	Description *string           `json:"description"`
	Identifiers map[string]string `json:"identifiers"`
	InStock     *bool             `json:"in_stock"`
}

type modelPrice struct {
	Amount   json.RawMessage `json:"amount"`
	Currency string          `json:"currency"`
}

// parseModelOutput decodes and validates the model's answer, folding in
// structured-data identifiers (markup beats model output for identifiers).
func parseModelOutput(raw string, sp *structuredProduct, page *models.PageContent) (*models.ProductEntity, error) {
	raw = stripFences(raw)

	var mp modelProduct
	if err := json.Unmarshal([]byte(raw), &mp); err != nil {
		return nil, fmt.Errorf("output is not valid JSON: %w", err)
	}

	amount, err := parseAmount(mp.Price.Amount)
	if err != nil {
		return nil, fmt.Errorf("price amount: %w", err)
	}

	entity := &models.ProductEntity{
		Name:        mp.Name,
		Brand:       mp.Brand,
		Category:    mp.Category,
		Price:       models.Price{Amount: amount, Currency: strings.ToUpper(strings.TrimSpace(mp.Price.Currency))},
		Identifiers: mp.Identifiers,
		InStock:     mp.InStock,
		SourceURL:   page.URL,
		ExtractedAt: time.Now().UTC(),
	}
	if mp.Description != nil {
		entity.Description = *mp.Description
	}

	if sp != nil && len(sp.Identifiers) > 0 {
		if entity.Identifiers == nil {
			entity.Identifiers = map[string]string{}
		}
		for scheme, value := range sp.Identifiers {
			entity.Identifiers[scheme] = value
		}
	}
	if entity.InStock == nil && sp != nil {
		entity.InStock = sp.InStock
	}

	if err := entity.Validate(); err != nil {
		return nil, err
	}
	return entity, nil
}

// parseAmount accepts a JSON number or a formatted price string.
func parseAmount(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("missing")
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("not a number or string")
	}
	return models.ParsePrice(s)
}

// stripFences removes a ```json fence if the model wrapped its answer anyway.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}
