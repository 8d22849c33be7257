package fetcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/storesleuth/config"
	"github.com/use-agent/storesleuth/models"
	"github.com/use-agent/storesleuth/renderer"
	"github.com/use-agent/storesleuth/session"
)

type stubSession struct {
	result *renderer.NavigateResult
	err    error
	visits int
}

func (s *stubSession) Navigate(ctx context.Context, url string, opts renderer.NavigateOptions) (*renderer.NavigateResult, error) {
	s.visits++
	if s.err != nil {
		return nil, s.err
	}
	res := *s.result
	if res.FinalURL == "" {
		res.FinalURL = url
	}
	return &res, nil
}

func (s *stubSession) Reset() error { return nil }
func (s *stubSession) Close() error { return nil }

type stubBackend struct {
	session *stubSession
}

func (b *stubBackend) OpenSession(ctx context.Context) (renderer.Session, error) {
	return b.session, nil
}
func (b *stubBackend) Close() error { return nil }

func newTestFetcher(s *stubSession) *Fetcher {
	pool := session.New(&stubBackend{session: s}, config.SessionConfig{MaxSessions: 1})
	return New(pool, config.FetchConfig{
		Timeout:       time.Second,
		SettleWindow:  10 * time.Millisecond,
		ProbeTimeout:  time.Second,
		HostMemoryTTL: time.Minute,
	}, "")
}

func TestFetchBrowserPath(t *testing.T) {
	s := &stubSession{result: &renderer.NavigateResult{
		HTML: "<html><body>product</body></html>", Title: "Product", StatusCode: 200,
	}}
	f := newTestFetcher(s)
	defer f.Stop()

	page, err := f.Fetch(context.Background(), "https://shop.example.com/p/1", Options{Mode: "browser"})
	require.NoError(t, err)
	assert.Equal(t, models.FetchMethodBrowser, page.FetchMethod)
	assert.Equal(t, "Product", page.Title)
	assert.Equal(t, 200, page.StatusCode)
	assert.Equal(t, 1, s.visits)

	// The winning path is remembered for the host.
	assert.Equal(t, models.FetchMethodBrowser, f.mem.Get("shop.example.com"))
}

func TestFetchBrowserBlockedStatus(t *testing.T) {
	s := &stubSession{result: &renderer.NavigateResult{HTML: "<html></html>", StatusCode: 403}}
	f := newTestFetcher(s)
	defer f.Stop()

	_, err := f.Fetch(context.Background(), "https://shop.example.com/p/1", Options{Mode: "browser"})
	require.Error(t, err)
	assert.Equal(t, models.ErrKindBlocked, models.ErrKind(err))
}

func TestFetchBrowserNavigationError(t *testing.T) {
	s := &stubSession{err: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	f := newTestFetcher(s)
	defer f.Stop()

	_, err := f.Fetch(context.Background(), "https://nosuch.example.com/", Options{Mode: "browser"})
	require.Error(t, err)
	assert.Equal(t, models.ErrKindNavigation, models.ErrKind(err))
}

func TestFetchInvalidURL(t *testing.T) {
	f := newTestFetcher(&stubSession{})
	defer f.Stop()

	_, err := f.Fetch(context.Background(), "not a url", Options{})
	require.Error(t, err)
	assert.Equal(t, models.ErrKindInvalidInput, models.ErrKind(err))
}

func TestClassifyFetchErr(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		want   string
	}{
		{"deadline", context.DeadlineExceeded, 0, models.ErrKindFetchTimeout},
		{"canceled", context.Canceled, 0, models.ErrKindCancelled},
		{"chromium error", errors.New("net::ERR_CONNECTION_RESET"), 0, models.ErrKindNavigation},
		{"dns failure", errors.New("dial tcp: lookup x: no such host"), 0, models.ErrKindNavigation},
		{"unknown browser failure", errors.New("target crashed"), 0, models.ErrKindRenderCrash},
		{"status 403", nil, 403, models.ErrKindBlocked},
		{"status 429", nil, 429, models.ErrKindBlocked},
		{"status 503", nil, 503, models.ErrKindBlocked},
		{"status 404", nil, 404, models.ErrKindNavigation},
		{"status 500", nil, 500, models.ErrKindNavigation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyFetchErr(context.Background(), tc.err, tc.status)
			assert.Equal(t, tc.want, models.ErrKind(err))
		})
	}
}

func TestSessionDamagedKinds(t *testing.T) {
	damaged := []string{models.ErrKindRenderCrash, models.ErrKindFetchTimeout}
	for _, kind := range damaged {
		assert.True(t, sessionDamaged(models.NewExtractError(kind, "boom", nil)), kind)
	}

	intact := []string{models.ErrKindNavigation, models.ErrKindBlocked, models.ErrKindCancelled}
	for _, kind := range intact {
		assert.False(t, sessionDamaged(models.NewExtractError(kind, "boom", nil)), kind)
	}
}

func TestClassifyFetchErrPrefersContextState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := classifyFetchErr(ctx, errors.New("wrapped transport failure"), 0)
	assert.Equal(t, models.ErrKindCancelled, models.ErrKind(err))
}

func TestNeedsBrowser(t *testing.T) {
	longText := make([]byte, 0, 2048)
	longText = append(longText, []byte("<html><body><p>")...)
	for i := 0; i < 100; i++ {
		longText = append(longText, []byte("plenty of rendered storefront content here ")...)
	}
	longText = append(longText, []byte("</p></body></html>")...)

	assert.False(t, needsBrowser(longText))
	assert.True(t, needsBrowser([]byte(`<html><body><div id="root"></div></body></html>`)))
	assert.True(t, needsBrowser([]byte(`<html><body>tiny</body></html>`)))
	assert.True(t, needsBrowser(append(append([]byte(`<html><body><noscript>Please enable JavaScript to continue`), longText[15:600]...), []byte(`</noscript></body></html>`)...)))
}

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "Shop", extractTitle([]byte(`<html><head><title> Shop </title></head></html>`)))
	assert.Empty(t, extractTitle([]byte(`<html><head></head></html>`)))
}

func TestHostMemory(t *testing.T) {
	hm := NewHostMemory(20 * time.Millisecond)
	defer hm.Stop()

	assert.Empty(t, hm.Get("a.example.com"))

	hm.Set("a.example.com", models.FetchMethodHTTP)
	assert.Equal(t, models.FetchMethodHTTP, hm.Get("a.example.com"))

	hm.Delete("a.example.com")
	assert.Empty(t, hm.Get("a.example.com"))

	hm.Set("b.example.com", models.FetchMethodBrowser)
	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, hm.Get("b.example.com"))
}
