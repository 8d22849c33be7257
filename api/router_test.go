package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/storesleuth/cache"
	"github.com/use-agent/storesleuth/cleaner"
	"github.com/use-agent/storesleuth/config"
	"github.com/use-agent/storesleuth/extractor"
	"github.com/use-agent/storesleuth/fetcher"
	"github.com/use-agent/storesleuth/llm"
	"github.com/use-agent/storesleuth/models"
	"github.com/use-agent/storesleuth/orchestrator"
	"github.com/use-agent/storesleuth/renderer"
	"github.com/use-agent/storesleuth/session"
)

const apiKey = "test-api-key"

const routerProductHTML = `<html><head><script type="application/ld+json">
{"@type":"Product","name":"API Widget","brand":"Acme","category":"Widgets",
 "offers":{"price":"9.99","priceCurrency":"USD","availability":"https://schema.org/InStock"}}
</script></head><body><button>Add to cart</button></body></html>`

type routerSession struct{}

func (routerSession) Navigate(ctx context.Context, url string, opts renderer.NavigateOptions) (*renderer.NavigateResult, error) {
	return &renderer.NavigateResult{HTML: routerProductHTML, FinalURL: url, StatusCode: 200}, nil
}
func (routerSession) Reset() error { return nil }
func (routerSession) Close() error { return nil }

type routerBackend struct{}

func (routerBackend) OpenSession(ctx context.Context) (renderer.Session, error) {
	return routerSession{}, nil
}
func (routerBackend) Close() error { return nil }

type routerModel struct{}

func (routerModel) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResult, error) {
	return nil, models.NewExtractError(models.ErrKindModelUnavailable, "no model in tests", nil)
}

func newTestRouter(t *testing.T) (http.Handler, *cache.Cache) {
	t.Helper()

	pool := session.New(routerBackend{}, config.SessionConfig{MaxSessions: 2})
	f := fetcher.New(pool, config.FetchConfig{
		Timeout:       5 * time.Second,
		MaxTimeout:    120 * time.Second,
		SettleWindow:  time.Millisecond,
		ProbeTimeout:  time.Second,
		HostMemoryTTL: time.Minute,
	}, "")
	engine := extractor.New(routerModel{}, cleaner.New(0))
	c := cache.New(time.Hour, 100, nil)

	orch := orchestrator.New(f, engine, c, config.OrchestratorConfig{
		MaxConcurrentJobs: 4,
		MaxAttempts:       1,
		BackoffBase:       time.Millisecond,
		BackoffCap:        time.Millisecond,
		BlockedBackoff:    time.Millisecond,
		HostRPS:           1000,
		HostBurst:         1000,
	}, config.FetchConfig{MaxTimeout: 120 * time.Second})

	t.Cleanup(func() {
		orch.Close()
		f.Stop()
		pool.Close()
		c.Close()
	})

	cfg := &config.Config{
		Server:    config.ServerConfig{Mode: "test"},
		Auth:      config.AuthConfig{Enabled: true, APIKeys: []string{apiKey}},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
	}
	return NewRouter(cfg, Deps{
		Orchestrator: orch,
		Pool:         pool,
		Cache:        c,
		StartedAt:    time.Now(),
	}), c
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("X-API-Key", apiKey)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthUnauthenticated(t *testing.T) {
	h, _ := newTestRouter(t)

	w := doJSON(t, h, http.MethodGet, "/api/v1/health", "", false)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, 2, resp.PoolStats.MaxSessions)
}

func TestExtractRequiresAuth(t *testing.T) {
	h, _ := newTestRouter(t)

	w := doJSON(t, h, http.MethodPost, "/api/v1/extract",
		`{"url":"https://shop.example.com/p/1"}`, false)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var resp models.ExtractResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.ErrKindUnauthorized, resp.Error.Kind)
}

func TestExtractBearerAuthAccepted(t *testing.T) {
	h, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/extract",
		strings.NewReader(`{"url":"https://shop.example.com/p/1","fetch_mode":"browser"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestExtractSuccess(t *testing.T) {
	h, _ := newTestRouter(t)

	w := doJSON(t, h, http.MethodPost, "/api/v1/extract",
		`{"url":"https://shop.example.com/p/1","fetch_mode":"browser"}`, true)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.ExtractResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	assert.Equal(t, "API Widget", resp.Product.Name)
	assert.Equal(t, 9.99, resp.Product.Price.Amount)
}

func TestExtractRejectsBadPayload(t *testing.T) {
	h, _ := newTestRouter(t)

	for _, body := range []string{`{`, `{}`, `{"url":"not a url"}`} {
		w := doJSON(t, h, http.MethodPost, "/api/v1/extract", body, true)
		require.Equal(t, http.StatusBadRequest, w.Code, "payload %q", body)

		var resp models.ExtractResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, models.ErrKindInvalidInput, resp.Error.Kind)
	}
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	h, _ := newTestRouter(t)

	w := doJSON(t, h, http.MethodPost, "/api/v1/jobs",
		`{"url":"https://shop.example.com/p/2","fetch_mode":"browser"}`, true)
	require.Equal(t, http.StatusAccepted, w.Code)

	var accepted models.JobAcceptedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.ID)
	assert.Equal(t, models.JobQueued, accepted.Status)

	// Poll until the job finishes.
	deadline := time.Now().Add(5 * time.Second)
	var status models.JobStatusResponse
	for {
		w = doJSON(t, h, http.MethodGet, "/api/v1/jobs/"+accepted.ID, "", true)
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
		if status.Job.Phase.Terminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job stuck in phase %s", status.Job.Phase)
		}
		time.Sleep(10 * time.Millisecond)
	}

	require.Equal(t, models.JobSucceeded, status.Job.Phase)
	require.NotNil(t, status.Result)
	assert.Equal(t, "API Widget", status.Result.Name)
}

func TestJobStatusUnknownID(t *testing.T) {
	h, _ := newTestRouter(t)

	w := doJSON(t, h, http.MethodGet, "/api/v1/jobs/not-a-job", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, h, http.MethodDelete, "/api/v1/jobs/not-a-job", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCacheInvalidation(t *testing.T) {
	h, c := newTestRouter(t)

	w := doJSON(t, h, http.MethodDelete, "/api/v1/cache", "", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Populate via a sync extraction, then drop the entry.
	w = doJSON(t, h, http.MethodPost, "/api/v1/extract",
		`{"url":"https://shop.example.com/p/3","fetch_mode":"browser"}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, c.Len())

	w = doJSON(t, h, http.MethodDelete,
		"/api/v1/cache?url=https://shop.example.com/p/3", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"invalidated":true}`, w.Body.String())
	assert.Equal(t, 0, c.Len())
}
