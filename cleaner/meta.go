package cleaner

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageMeta is page-level metadata pulled from <head>. The extraction engine
// uses it as hints (OG titles are often the cleanest product name on the
// page) and as fallbacks when the body yields nothing.
type PageMeta struct {
	Title       string
	Description string
	Image       string
	SiteName    string
	Brand       string

	// Canonical is the href of <link rel="canonical">, if present.
	Canonical string
}

// ExtractPageMeta parses Open Graph tags, the meta description, and the
// canonical link from raw HTML. Missing fields stay empty.
func ExtractPageMeta(rawHTML string) PageMeta {
	var meta PageMeta

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return meta
	}

	doc.Find("meta[property]").Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("property")
		content, _ := s.Attr("content")
		if content == "" {
			return
		}
		switch prop {
		case "og:title":
			meta.Title = content
		case "og:description":
			meta.Description = content
		case "og:image":
			meta.Image = content
		case "og:site_name":
			meta.SiteName = content
		case "product:brand", "og:brand":
			meta.Brand = content
		}
	})

	if meta.Description == "" {
		if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
			meta.Description = desc
		}
	}

	if href, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
		meta.Canonical = strings.TrimSpace(href)
	}

	return meta
}
