package extractor

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// rePriceText matches visible price strings like "$19.99", "19,99 €",
// "EUR 1.299,00".
var rePriceText = regexp.MustCompile(`(?i)([$€£¥]|USD|EUR|GBP|CHF|SEK|NOK|DKK|PLN)\s?\d{1,3}([.,\s]\d{3})*([.,]\d{1,2})?|\d{1,3}([.,]\d{3})*([.,]\d{1,2})?\s?([$€£¥]|USD|EUR|GBP)`)

// cartPhrases are button/label texts that only appear on purchasable pages.
var cartPhrases = []string{
	"add to cart", "add to basket", "add to bag", "buy now",
	"in den warenkorb", "ajouter au panier", "añadir al carrito",
	"aggiungi al carrello", "koop nu", "kup teraz",
}

// looksLikeProductPage reports whether the document carries enough commerce
// markers to be worth extracting. Pages with schema.org Product data always
// qualify; otherwise at least two independent signals are required, so a blog
// post that merely mentions a price is not mistaken for a storefront page.
func looksLikeProductPage(doc *goquery.Document, structured *structuredProduct) bool {
	if structured != nil {
		return true
	}

	signals := 0

	if ogType, _ := doc.Find(`meta[property="og:type"]`).Attr("content"); strings.Contains(strings.ToLower(ogType), "product") {
		signals += 2
	}

	text := strings.ToLower(doc.Text())
	for _, phrase := range cartPhrases {
		if strings.Contains(text, phrase) {
			signals++
			break
		}
	}

	if rePriceText.MatchString(doc.Text()) {
		signals++
	}

	if doc.Find(`[class*="product"], [id*="product"], [class*="price"], [itemprop="price"]`).Length() > 0 {
		signals++
	}

	return signals >= 2
}
