package cleaner

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// ApplyCSSSelector narrows rawHTML down to the elements matching selector, so
// extraction can focus on the product area of a template-heavy page (say,
// "#product-detail" on a storefront padded with recommendation rails and
// footer link farms). Matches are concatenated as outer HTML in document
// order, since variant pages can legitimately repeat the selected block.
//
// A selector that matches nothing is a soft miss: storefront themes rename
// their containers often enough that a stale selector should degrade to
// whole-page extraction, not an empty result.
func ApplyCSSSelector(rawHTML string, selector string) (string, error) {
	sel, err := cascadia.Parse(selector)
	if err != nil {
		return "", err
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, node := range cascadia.QueryAll(doc, sel) {
		if err := html.Render(&b, node); err != nil {
			return "", err
		}
	}
	if b.Len() == 0 {
		return rawHTML, nil
	}
	return b.String(), nil
}
