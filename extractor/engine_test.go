package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/storesleuth/cleaner"
	"github.com/use-agent/storesleuth/llm"
	"github.com/use-agent/storesleuth/models"
)

type fakeModel struct {
	responses []string
	err       error
	calls     int
	requests  []llm.CompletionRequest
}

func (m *fakeModel) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	idx := m.calls
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	m.calls++
	return &llm.CompletionResult{
		Content: m.responses[idx],
		Usage:   models.LLMUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	}, nil
}

func enginePage(html string) *models.PageContent {
	return &models.PageContent{
		URL:      "https://shop.example.com/p/widget",
		FinalURL: "https://shop.example.com/p/widget",
		HTML:     html,
	}
}

const completeStructuredHTML = `<html><head><script type="application/ld+json">
{"@type":"Product","name":"Fast Widget","brand":"Acme","category":"Widgets",
 "gtin13":"4006381333931",
 "offers":{"price":"49.00","priceCurrency":"EUR","availability":"https://schema.org/InStock"}}
</script></head><body><button>Add to cart</button></body></html>`

const partialProductHTML = `<html><head><meta property="og:type" content="product"></head>
<body><div class="product">
<h1>Manual Widget</h1><span class="price">$25.00</span>
<button>Add to cart</button>
<p>A widget described at length for the extraction model to read. It does
widget things reliably and is made by a reputable widget company.</p>
</div></body></html>`

const validModelJSON = `{"name":"Manual Widget","brand":"Acme","price":{"amount":25,"currency":"USD"},"category":"Widgets","description":"A widget.","identifiers":{"sku":"MW-1"},"in_stock":true}`

func TestExtractStructuredFastPath(t *testing.T) {
	model := &fakeModel{}
	e := New(model, cleaner.New(0))

	res, err := e.Extract(context.Background(), enginePage(completeStructuredHTML), Options{})
	require.NoError(t, err)
	assert.False(t, res.UsedModel)
	assert.Zero(t, model.calls)
	assert.Equal(t, "Fast Widget", res.Product.Name)
	assert.Equal(t, 49.0, res.Product.Price.Amount)
	assert.Equal(t, "4006381333931", res.Product.GTIN())
	require.NotNil(t, res.Product.InStock)
	assert.True(t, *res.Product.InStock)
}

func TestExtractModelPath(t *testing.T) {
	model := &fakeModel{responses: []string{validModelJSON}}
	e := New(model, cleaner.New(0))

	res, err := e.Extract(context.Background(), enginePage(partialProductHTML), Options{})
	require.NoError(t, err)
	assert.True(t, res.UsedModel)
	assert.Equal(t, 1, model.calls)
	assert.Equal(t, "Manual Widget", res.Product.Name)
	assert.Equal(t, "USD", res.Product.Price.Currency)
	assert.Equal(t, "MW-1", res.Product.Identifiers[models.SchemeSKU])
	require.NotNil(t, res.Usage)
	assert.Equal(t, 150, res.Usage.TotalTokens)
}

func TestExtractRepromptOnMalformed(t *testing.T) {
	model := &fakeModel{responses: []string{
		`{"name":"Manual Widget","brand":"","price":{"amount":25,"currency":"USD"},"category":"Widgets"}`,
		validModelJSON,
	}}
	e := New(model, cleaner.New(0))

	res, err := e.Extract(context.Background(), enginePage(partialProductHTML), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, model.calls)
	assert.Equal(t, "Acme", res.Product.Brand)
	// Usage accumulates across both calls.
	assert.Equal(t, 300, res.Usage.TotalTokens)
	// The re-prompt names the violation.
	assert.Contains(t, model.requests[1].System, "rejected")
}

func TestExtractMalformedTwiceFails(t *testing.T) {
	model := &fakeModel{responses: []string{`not json at all`}}
	e := New(model, cleaner.New(0))

	_, err := e.Extract(context.Background(), enginePage(partialProductHTML), Options{})
	require.Error(t, err)
	assert.Equal(t, models.ErrKindMalformedResponse, models.ErrKind(err))
	assert.Equal(t, 2, model.calls)
}

func TestExtractMissingPriceIsMalformed(t *testing.T) {
	model := &fakeModel{responses: []string{
		`{"name":"Manual Widget","brand":"Acme","price":{"amount":null,"currency":"USD"},"category":"Widgets"}`,
	}}
	e := New(model, cleaner.New(0))

	_, err := e.Extract(context.Background(), enginePage(partialProductHTML), Options{})
	require.Error(t, err)
	assert.Equal(t, models.ErrKindMalformedResponse, models.ErrKind(err))
}

func TestExtractUnsupportedPage(t *testing.T) {
	model := &fakeModel{}
	e := New(model, cleaner.New(0))

	_, err := e.Extract(context.Background(),
		enginePage(`<html><body><article>A long essay about nothing commercial.</article></body></html>`),
		Options{})
	require.Error(t, err)
	assert.Equal(t, models.ErrKindUnsupportedPage, models.ErrKind(err))
	assert.Zero(t, model.calls)
}

func TestExtractModelUnavailable(t *testing.T) {
	model := &fakeModel{err: models.NewExtractError(models.ErrKindModelUnavailable, "quota", nil)}
	e := New(model, cleaner.New(0))

	_, err := e.Extract(context.Background(), enginePage(partialProductHTML), Options{})
	require.Error(t, err)
	assert.Equal(t, models.ErrKindModelUnavailable, models.ErrKind(err))
}

func TestExtractStringAmountAccepted(t *testing.T) {
	model := &fakeModel{responses: []string{
		`{"name":"Manual Widget","brand":"Acme","price":{"amount":"1.299,00","currency":"EUR"},"category":"Widgets"}`,
	}}
	e := New(model, cleaner.New(0))

	res, err := e.Extract(context.Background(), enginePage(partialProductHTML), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1299.0, res.Product.Price.Amount)
}

func TestExtractFencedOutputAccepted(t *testing.T) {
	model := &fakeModel{responses: []string{"```json\n" + validModelJSON + "\n```"}}
	e := New(model, cleaner.New(0))

	res, err := e.Extract(context.Background(), enginePage(partialProductHTML), Options{})
	require.NoError(t, err)
	assert.Equal(t, "Manual Widget", res.Product.Name)
}

func TestExtractMergesStructuredIdentifiers(t *testing.T) {
	html := `<html><head><script type="application/ld+json">
	{"@type":"Product","name":"Partial Widget","gtin13":"5901234123457"}
	</script></head><body><span class="price">$10</span><button>Add to cart</button></body></html>`

	model := &fakeModel{responses: []string{
		`{"name":"Partial Widget","brand":"Acme","price":{"amount":10,"currency":"USD"},"category":"Widgets"}`,
	}}
	e := New(model, cleaner.New(0))

	res, err := e.Extract(context.Background(), enginePage(html), Options{})
	require.NoError(t, err)
	assert.True(t, res.UsedModel)
	assert.Equal(t, "5901234123457", res.Product.Identifiers[models.SchemeGTIN13])
}
