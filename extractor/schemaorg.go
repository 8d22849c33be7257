package extractor

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/storesleuth/models"
)

// gtinKeys maps schema.org identifier property names to identifier schemes.
var gtinKeys = map[string]string{
	"gtin":   models.SchemeEAN,
	"gtin8":  models.SchemeGTIN8,
	"gtin12": models.SchemeGTIN12,
	"gtin13": models.SchemeGTIN13,
	"gtin14": models.SchemeGTIN14,
	"ean":    models.SchemeEAN,
	"isbn":   models.SchemeISBN,
}

// structuredProduct is a partial entity assembled from schema.org markup.
// Fields stay zero-valued when the markup does not provide them.
type structuredProduct struct {
	Name        string
	Brand       string
	Description string
	Category    string
	Identifiers map[string]string
	PriceRaw    string
	Currency    string
	InStock     *bool
}

// parseStructuredData scans JSON-LD blocks and microdata for a schema.org
// Product and returns the best candidate, or nil when the page carries none.
// JSON-LD wins over microdata when both are present.
func parseStructuredData(doc *goquery.Document) *structuredProduct {
	if p := parseJSONLD(doc); p != nil {
		return p
	}
	return parseMicrodata(doc)
}

func parseJSONLD(doc *goquery.Document) *structuredProduct {
	var found *structuredProduct
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data any
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return true // malformed block, keep scanning
		}
		if p := findProductNode(data, 0); p != nil {
			found = productFromJSONLD(p)
			return false
		}
		return true
	})
	return found
}

// findProductNode walks a decoded JSON-LD document looking for a node whose
// @type is (or includes) Product. Handles @graph wrappers and top-level
// arrays, bounded to a small depth.
func findProductNode(data any, depth int) map[string]any {
	if depth > 4 {
		return nil
	}
	switch v := data.(type) {
	case []any:
		for _, item := range v {
			if p := findProductNode(item, depth+1); p != nil {
				return p
			}
		}
	case map[string]any:
		if hasType(v, "Product") {
			return v
		}
		if graph, ok := v["@graph"]; ok {
			return findProductNode(graph, depth+1)
		}
	}
	return nil
}

func hasType(node map[string]any, want string) bool {
	switch t := node["@type"].(type) {
	case string:
		return strings.EqualFold(t, want)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.EqualFold(s, want) {
				return true
			}
		}
	}
	return false
}

func productFromJSONLD(node map[string]any) *structuredProduct {
	p := &structuredProduct{Identifiers: map[string]string{}}

	p.Name = stringProp(node, "name")
	p.Description = stringProp(node, "description")
	p.Brand = nameOrString(node["brand"])
	p.Category = categoryProp(node["category"])

	for key, scheme := range gtinKeys {
		if v := stringProp(node, key); v != "" {
			if _, exists := p.Identifiers[scheme]; !exists {
				p.Identifiers[scheme] = v
			}
		}
	}
	if v := stringProp(node, "mpn"); v != "" {
		p.Identifiers[models.SchemeMPN] = v
	}
	if v := stringProp(node, "sku"); v != "" {
		p.Identifiers[models.SchemeSKU] = v
	}
	collectProperties(node["additionalProperty"], p.Identifiers)

	if offer := bestOffer(node["offers"]); offer != nil {
		p.PriceRaw = offerPrice(offer)
		p.Currency = strings.ToUpper(stringProp(offer, "priceCurrency"))
		p.InStock = offerInStock(offer)
		for key, scheme := range gtinKeys {
			if v := stringProp(offer, key); v != "" {
				if _, exists := p.Identifiers[scheme]; !exists {
					p.Identifiers[scheme] = v
				}
			}
		}
	}

	if p.Name == "" {
		return nil
	}
	return p
}

// bestOffer picks the most useful offer from an offers value, which may be a
// single object, an array, or an AggregateOffer. Ranking: in-stock and priced
// beats in-stock unpriced beats unknown beats out-of-stock.
func bestOffer(offers any) map[string]any {
	var candidates []map[string]any
	switch v := offers.(type) {
	case map[string]any:
		if hasType(v, "AggregateOffer") {
			if nested := bestOffer(v["offers"]); nested != nil {
				return nested
			}
		}
		candidates = append(candidates, v)
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				candidates = append(candidates, m)
			}
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	best := candidates[0]
	bestScore := scoreOffer(best)
	for _, c := range candidates[1:] {
		if s := scoreOffer(c); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best
}

func scoreOffer(offer map[string]any) int {
	score := 0
	avail := availabilityToken(stringProp(offer, "availability"))
	switch avail {
	case "instock", "limitedavailability", "onlineonly", "instoreonly":
		score += 4
	case "preorder", "presale", "backorder":
		score += 2
	case "outofstock", "soldout", "discontinued":
		score -= 4
	}
	if offerPrice(offer) != "" {
		score += 3
	}
	if !offerValidNow(offer) {
		score -= 2
	}
	return score
}

func offerPrice(offer map[string]any) string {
	if v := anyToString(offer["price"]); v != "" {
		return v
	}
	if spec, ok := offer["priceSpecification"].(map[string]any); ok {
		return anyToString(spec["price"])
	}
	return ""
}

// offerInStock maps schema.org availability onto a tri-state stock flag,
// folding in the offer validity window when one is declared.
func offerInStock(offer map[string]any) *bool {
	avail := availabilityToken(stringProp(offer, "availability"))
	var in bool
	switch avail {
	case "instock", "limitedavailability", "onlineonly", "instoreonly":
		in = true
	case "outofstock", "soldout", "discontinued":
		in = false
	default:
		return nil
	}
	if in && !offerValidNow(offer) {
		in = false
	}
	return &in
}

// offerValidNow checks validFrom/validThrough against the current time.
// Unparseable or absent bounds count as valid.
func offerValidNow(offer map[string]any) bool {
	now := time.Now()
	if from := stringProp(offer, "validFrom"); from != "" {
		if t, err := parseSchemaTime(from); err == nil && now.Before(t) {
			return false
		}
	}
	if through := stringProp(offer, "validThrough"); through != "" {
		if t, err := parseSchemaTime(through); err == nil && now.After(t) {
			return false
		}
	}
	return true
}

func parseSchemaTime(s string) (time.Time, error) {
	var err error
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// availabilityToken normalizes "https://schema.org/InStock", "http://...",
// and bare "InStock" forms to a lowercase token.
func availabilityToken(s string) string {
	s = strings.TrimSuffix(s, "/")
	if idx := strings.LastIndexByte(s, '/'); idx >= 0 {
		s = s[idx+1:]
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// collectProperties pulls identifier-like entries (mpn, sku, ean) out of a
// schema.org additionalProperty / PropertyValue list.
func collectProperties(props any, identifiers map[string]string) {
	list, ok := props.([]any)
	if !ok {
		if single, sok := props.(map[string]any); sok {
			list = []any{single}
		} else {
			return
		}
	}
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(stringProp(m, "name")))
		value := anyToString(m["value"])
		if value == "" {
			continue
		}
		switch name {
		case "mpn", "manufacturer part number", "herstellernummer":
			if _, exists := identifiers[models.SchemeMPN]; !exists {
				identifiers[models.SchemeMPN] = value
			}
		case "sku", "artikelnummer":
			if _, exists := identifiers[models.SchemeSKU]; !exists {
				identifiers[models.SchemeSKU] = value
			}
		case "ean", "gtin", "gtin13", "barcode":
			if _, exists := identifiers[models.SchemeEAN]; !exists {
				identifiers[models.SchemeEAN] = value
			}
		}
	}
}

func parseMicrodata(doc *goquery.Document) *structuredProduct {
	scope := doc.Find(`[itemtype*="schema.org/Product"]`).First()
	if scope.Length() == 0 {
		return nil
	}

	p := &structuredProduct{Identifiers: map[string]string{}}
	p.Name = itemprop(scope, "name")
	p.Brand = itemprop(scope, "brand")
	p.Description = itemprop(scope, "description")
	p.Category = itemprop(scope, "category")

	for key, scheme := range gtinKeys {
		if v := itemprop(scope, key); v != "" {
			if _, exists := p.Identifiers[scheme]; !exists {
				p.Identifiers[scheme] = v
			}
		}
	}
	if v := itemprop(scope, "mpn"); v != "" {
		p.Identifiers[models.SchemeMPN] = v
	}
	if v := itemprop(scope, "sku"); v != "" {
		p.Identifiers[models.SchemeSKU] = v
	}

	p.PriceRaw = itemprop(scope, "price")
	p.Currency = strings.ToUpper(itemprop(scope, "priceCurrency"))
	if avail := availabilityToken(itemprop(scope, "availability")); avail != "" {
		switch avail {
		case "instock", "limitedavailability", "onlineonly", "instoreonly":
			in := true
			p.InStock = &in
		case "outofstock", "soldout", "discontinued":
			in := false
			p.InStock = &in
		}
	}

	if p.Name == "" {
		return nil
	}
	return p
}

// itemprop reads a microdata property value, preferring content/href/value
// attributes over element text.
func itemprop(scope *goquery.Selection, name string) string {
	sel := scope.Find(`[itemprop="` + name + `"]`).First()
	if sel.Length() == 0 {
		return ""
	}
	for _, attr := range []string{"content", "href", "value"} {
		if v, ok := sel.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return strings.TrimSpace(sel.Text())
}

func stringProp(node map[string]any, key string) string {
	return anyToString(node[key])
}

// anyToString renders scalar JSON values as strings; numbers keep their
// decimal form so price parsing sees the original text.
func anyToString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	return ""
}

// nameOrString handles schema.org values that may be a plain string or an
// object with a name property (brand is usually {"@type":"Brand","name":...}).
func nameOrString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		return stringProp(t, "name")
	}
	return ""
}

// categoryProp renders a category that may be a string, a list of breadcrumb
// segments, or a Thing with a name.
func categoryProp(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := nameOrString(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " > ")
	case map[string]any:
		return stringProp(t, "name")
	}
	return ""
}
