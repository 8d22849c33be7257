package models

// ExtractRequest is the payload for POST /api/v1/extract and
// POST /api/v1/jobs.
type ExtractRequest struct {
	// URL is the storefront product page to extract. Required.
	URL string `json:"url" binding:"required,url"`

	// Timeout is the max duration in seconds for one fetch attempt.
	// Default: 30. Max: 120.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=120"`

	// Stealth enables anti-bot-detection evasions in the browser path.
	Stealth bool `json:"stealth,omitempty"`

	// FetchMode controls the fetching strategy.
	// "auto" (default): HTTP probe first, browser when the page needs JS.
	// "http": force plain HTTP. "browser": force the headless browser.
	FetchMode string `json:"fetch_mode,omitempty" binding:"omitempty,oneof=auto browser http"`

	// CSSSelector optionally narrows the page content handed to the
	// extraction model to the matched elements.
	CSSSelector string `json:"css_selector,omitempty"`

	// MaxAge is the maximum acceptable cache age in seconds. 0 uses the
	// server default TTL; -1 bypasses the cache entirely.
	MaxAge int `json:"max_age,omitempty"`

	// AllowStale opts in to receiving an expired cache entry (flagged as
	// stale) instead of waiting for a fresh extraction under load.
	AllowStale bool `json:"allow_stale,omitempty"`

	// WebhookURL, when set on an async job, receives a signed completion event.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`
}

// Defaults applies default values to unset fields.
func (r *ExtractRequest) Defaults() {
	if r.Timeout == 0 {
		r.Timeout = 30
	}
	if r.FetchMode == "" {
		r.FetchMode = "auto"
	}
}
