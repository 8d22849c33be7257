// Package cleaner prepares raw page HTML for the extraction model. It strips
// boilerplate (nav, footers, cookie banners), converts the remaining content
// to Markdown, and truncates it to the model's content budget. Less noise in
// means fewer hallucinated fields out.
package cleaner

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/use-agent/storesleuth/models"
)

// Prepared is the model-ready view of a page.
type Prepared struct {
	// Markdown is the cleaned page content, truncated to the token budget.
	Markdown string

	// Meta carries page-level metadata (OG tags, meta description, canonical
	// link) used as extraction hints and fallbacks.
	Meta PageMeta

	// Tokens is the estimated token count of Markdown after truncation.
	Tokens int

	// Truncated reports whether the content budget was hit.
	Truncated bool
}

// Cleaner runs the preparation pipeline. The Markdown converter is created
// once and reused across requests (goroutine-safe).
type Cleaner struct {
	mdConverter *converter.Converter

	// MaxContentTokens bounds the prepared Markdown; 0 disables truncation.
	MaxContentTokens int
}

// New initialises a Cleaner with a pre-configured Markdown converter.
func New(maxContentTokens int) *Cleaner {
	return &Cleaner{
		mdConverter:      newMarkdownConverter(),
		MaxContentTokens: maxContentTokens,
	}
}

// Prepare runs the full pipeline on a fetched page.
//
// Flow:
//  1. Optional CSS selector scopes the document to the matched elements.
//  2. Readability and score-based pruning run concurrently; the better
//     result wins (see autoExtract).
//  3. The surviving HTML is converted to Markdown.
//  4. The Markdown is truncated to the content token budget.
//
// Page metadata is always read from the full raw HTML, before any scoping,
// so OG tags in <head> survive a selector that matches only the product box.
func (c *Cleaner) Prepare(page *models.PageContent, cssSelector string) (*Prepared, error) {
	rawHTML := page.HTML
	meta := ExtractPageMeta(rawHTML)

	scoped := rawHTML
	if cssSelector != "" {
		selected, err := ApplyCSSSelector(rawHTML, cssSelector)
		if err != nil {
			return nil, models.NewExtractError(models.ErrKindInvalidInput,
				"invalid css selector", err)
		}
		scoped = selected
	}

	article := autoExtract(scoped, page.FinalURL)

	md, err := ToMarkdown(c.mdConverter, article.Content, page.FinalURL)
	if err != nil {
		slog.Warn("markdown conversion failed, using plain text",
			"url", page.FinalURL, "error", err)
		md = article.TextContent
	}
	md = strings.TrimSpace(md)

	truncated := false
	if c.MaxContentTokens > 0 {
		md, truncated = TruncateTokens(md, c.MaxContentTokens)
	}

	if meta.Title == "" {
		meta.Title = firstNonEmpty(article.Title, page.Title)
	}
	if meta.Description == "" {
		meta.Description = article.Excerpt
	}
	if meta.SiteName == "" {
		meta.SiteName = article.SiteName
	}

	return &Prepared{
		Markdown:  md,
		Meta:      meta,
		Tokens:    EstimateTokens(md),
		Truncated: truncated,
	}, nil
}

// autoExtract runs readability and pruning concurrently and picks the result
// with more extracted text. A result more than 10x longer than the other is
// assumed to have kept boilerplate and loses if the shorter one is still
// substantial.
func autoExtract(rawHTML, sourceURL string) readability.Article {
	var (
		readabilityArticle readability.Article
		prunedHTML         string
		pruneErr           error
	)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		readabilityArticle, _ = ExtractContent(rawHTML, sourceURL)
	}()

	go func() {
		defer wg.Done()
		prunedHTML, pruneErr = PruneContent(rawHTML, sourceURL)
	}()

	wg.Wait()

	if pruneErr != nil {
		slog.Debug("pruning failed, using readability result",
			"url", sourceURL, "error", pruneErr)
		return readabilityArticle
	}

	prunedText := stripTags(prunedHTML)
	readabilityText := strings.TrimSpace(readabilityArticle.TextContent)

	useReadability := len(readabilityText) >= len(prunedText)
	if useReadability && len(prunedText) > minReadableChars {
		if len(readabilityText) > 10*len(prunedText) {
			useReadability = false
		}
	} else if !useReadability && len(readabilityText) > minReadableChars {
		if len(prunedText) > 10*len(readabilityText) {
			useReadability = true
		}
	}

	if useReadability {
		return readabilityArticle
	}

	return readability.Article{
		Title:       readabilityArticle.Title,
		Byline:      readabilityArticle.Byline,
		Excerpt:     readabilityArticle.Excerpt,
		SiteName:    readabilityArticle.SiteName,
		Language:    readabilityArticle.Language,
		Content:     prunedHTML,
		TextContent: prunedText,
	}
}

// stripTags extracts visible text from an HTML fragment.
func stripTags(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	return strings.TrimSpace(doc.Text())
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
