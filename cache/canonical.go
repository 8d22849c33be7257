package cache

import (
	"net/url"
	"sort"
	"strings"
)

// trackingParams are query parameters that never change page content and are
// stripped during canonicalization.
var trackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {},
	"utm_content": {}, "utm_id": {},
	"gclid": {}, "gclsrc": {}, "dclid": {}, "fbclid": {}, "msclkid": {},
	"mc_cid": {}, "mc_eid": {}, "igshid": {}, "ttclid": {},
	"ref": {}, "referrer": {}, "affiliate_id": {}, "aff_id": {},
	"_ga": {}, "_gl": {},
}

// Canonicalize normalizes a URL so that trivially different spellings of the
// same page share one cache key. It lowercases scheme and host, drops default
// ports, strips fragments and tracking parameters (plus extraStrip), sorts
// the surviving query, and removes a trailing slash from non-root paths.
// The function is idempotent: Canonicalize(Canonicalize(u)) == Canonicalize(u).
func Canonicalize(rawURL string, extraStrip []string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Host[:strings.LastIndexByte(u.Host, ':')]
	}

	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
	}

	q := u.Query()
	for param := range q {
		if _, tracked := trackingParams[strings.ToLower(param)]; tracked {
			q.Del(param)
		}
	}
	for _, param := range extraStrip {
		q.Del(param)
	}

	if len(q) == 0 {
		u.RawQuery = ""
	} else {
		u.RawQuery = sortedEncode(q)
	}

	return u.String()
}

// sortedEncode renders query values in deterministic key order.
func sortedEncode(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vals := q[k]
		sort.Strings(vals)
		for _, v := range vals {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
