package models

// ExtractResponse is the response for POST /api/v1/extract and for a
// finished job's result.
type ExtractResponse struct {
	// Success indicates whether the extraction completed without errors.
	Success bool `json:"success"`

	// Product is the extracted entity. Set only when Success is true.
	Product *ProductEntity `json:"product,omitempty"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "stale", "miss".
	CacheStatus string `json:"cache_status,omitempty"`

	// FetchMethod records which fetch path produced the page ("http",
	// "browser"); empty on cache hits.
	FetchMethod string `json:"fetch_method,omitempty"`

	// Attempts is the number of attempts the job consumed.
	Attempts int `json:"attempts,omitempty"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// LLMUsage reports model token consumption (absent on fast-path or
	// cached results).
	LLMUsage *LLMUsage `json:"llm_usage,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// FetchMs is the time spent navigating and rendering the page.
	FetchMs int64 `json:"fetch_ms"`

	// ExtractionMs is the time spent in the extraction step.
	ExtractionMs int64 `json:"extraction_ms"`
}

// LLMUsage reports token consumption from the model call.
type LLMUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// JobAcceptedResponse is the response for POST /api/v1/jobs.
type JobAcceptedResponse struct {
	ID     string   `json:"id"`
	Status JobPhase `json:"status"`
}

// JobStatusResponse is the response for GET /api/v1/jobs/:id.
type JobStatusResponse struct {
	Job    JobSnapshot    `json:"job"`
	Result *ProductEntity `json:"result,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	PoolStats PoolStats `json:"pool_stats"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the render session pool.
type PoolStats struct {
	MaxSessions    int `json:"max_sessions"`
	ActiveSessions int `json:"active_sessions"`
	OpenSessions   int `json:"open_sessions"`
}
