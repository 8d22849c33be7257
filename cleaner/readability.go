package cleaner

import (
	"log/slog"
	nurl "net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// minReadableChars is the least text readability output must carry to count
// as a real extraction. The algorithm is tuned for articles; on a product
// page it sometimes latches onto a review snippet or a shipping notice and
// discards the actual listing. Under this threshold we assume that happened
// and keep the whole page.
const minReadableChars = 50

// ExtractContent runs readability over rawHTML and reports whether it
// produced a usable article. On success the Article carries cleaned HTML in
// Content, plain text in TextContent, and page metadata (Title, Excerpt,
// SiteName, Language) used later as extraction hints.
//
// Extraction must never sink a request on its own: a bad source URL, a
// readability error, or a too-thin result all degrade to the raw page so the
// rest of the pipeline still has content to work with.
func ExtractContent(rawHTML string, sourceURL string) (readability.Article, bool) {
	pageURL, err := nurl.Parse(sourceURL)
	if err != nil {
		slog.Warn("readability skipped: unparseable source URL",
			"url", sourceURL, "error", err)
		return rawPageArticle(rawHTML), false
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), pageURL)
	if err != nil {
		slog.Warn("readability failed, keeping raw page",
			"url", sourceURL, "error", err)
		return rawPageArticle(rawHTML), false
	}

	if len(strings.TrimSpace(article.TextContent)) < minReadableChars {
		slog.Warn("readability result too thin, keeping raw page",
			"url", sourceURL, "length", len(article.TextContent))
		return rawPageArticle(rawHTML), false
	}

	return article, true
}

// rawPageArticle dresses the unprocessed page up as an Article so fallback
// and success flow through the same shape downstream.
func rawPageArticle(rawHTML string) readability.Article {
	return readability.Article{
		Content:     rawHTML,
		TextContent: rawHTML, // crude, but downstream must never see empty content
	}
}
