package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/storesleuth/config"
	"github.com/use-agent/storesleuth/models"
	"github.com/use-agent/storesleuth/renderer"
)

type fakeSession struct {
	resets   atomic.Int32
	closed   atomic.Bool
	resetErr error
}

func (s *fakeSession) Navigate(ctx context.Context, url string, opts renderer.NavigateOptions) (*renderer.NavigateResult, error) {
	return &renderer.NavigateResult{HTML: "<html></html>", FinalURL: url, StatusCode: 200}, nil
}

func (s *fakeSession) Reset() error {
	s.resets.Add(1)
	return s.resetErr
}

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeBackend struct {
	mu       sync.Mutex
	sessions []*fakeSession
	openErr  error
	opens    atomic.Int32
}

func (b *fakeBackend) OpenSession(ctx context.Context) (renderer.Session, error) {
	b.opens.Add(1)
	if b.openErr != nil {
		return nil, b.openErr
	}
	s := &fakeSession{}
	b.mu.Lock()
	b.sessions = append(b.sessions, s)
	b.mu.Unlock()
	return s, nil
}

func (b *fakeBackend) Close() error { return nil }

func testConfig(maxSessions int) config.SessionConfig {
	return config.SessionConfig{MaxSessions: maxSessions, MaxUses: 50, MaxAge: time.Hour}
}

func TestPoolNeverExceedsCapacity(t *testing.T) {
	backend := &fakeBackend{}
	pool := New(backend, testConfig(3))
	defer pool.Close()

	var wg sync.WaitGroup
	var peak atomic.Int32
	var current atomic.Int32

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := pool.Acquire(context.Background())
			if err != nil {
				return
			}
			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
			lease.Release(true)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.LessOrEqual(t, backend.opens.Load(), int32(3))
}

func TestPoolAcquireBlocksUntilRelease(t *testing.T) {
	pool := New(&fakeBackend{}, testConfig(1))
	defer pool.Close()

	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	acquired := make(chan *Lease)
	go func() {
		l, err := pool.Acquire(context.Background())
		require.NoError(t, err)
		acquired <- l
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block while the only session is leased")
	case <-time.After(30 * time.Millisecond):
	}

	lease.Release(true)

	select {
	case l := <-acquired:
		l.Release(true)
	case <-time.After(time.Second):
		t.Fatal("second acquire never unblocked")
	}
}

func TestPoolAcquireTimesOut(t *testing.T) {
	pool := New(&fakeBackend{}, testConfig(1))
	defer pool.Close()

	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer lease.Release(true)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = pool.Acquire(ctx)
	require.Error(t, err)
	assert.Equal(t, models.ErrKindPoolExhausted, models.ErrKind(err))
}

func TestPoolResetOnHealthyRelease(t *testing.T) {
	backend := &fakeBackend{}
	pool := New(backend, testConfig(1))
	defer pool.Close()

	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	lease.Release(true)

	assert.Equal(t, int32(1), backend.sessions[0].resets.Load())
	assert.False(t, backend.sessions[0].closed.Load())
}

func TestPoolRetiresAfterRepeatedFailures(t *testing.T) {
	backend := &fakeBackend{}
	pool := New(backend, testConfig(1))
	defer pool.Close()

	// Three unhealthy releases push the error score to the retire threshold.
	for i := 0; i < 3; i++ {
		lease, err := pool.Acquire(context.Background())
		require.NoError(t, err)
		lease.Release(false)
	}

	assert.True(t, backend.sessions[0].closed.Load())

	// Capacity slot was freed: a fresh session can be created.
	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	lease.Release(true)
	assert.Equal(t, int32(2), backend.opens.Load())
}

func TestPoolRetiresAfterMaxUses(t *testing.T) {
	backend := &fakeBackend{}
	cfg := testConfig(1)
	cfg.MaxUses = 2
	pool := New(backend, cfg)
	defer pool.Close()

	for i := 0; i < 2; i++ {
		lease, err := pool.Acquire(context.Background())
		require.NoError(t, err)
		lease.Release(true)
	}

	assert.True(t, backend.sessions[0].closed.Load())
}

func TestPoolDestroysOnResetFailure(t *testing.T) {
	backend := &fakeBackend{}
	pool := New(backend, testConfig(1))
	defer pool.Close()

	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	backend.sessions[0].resetErr = errors.New("page crashed")
	lease.Release(true)

	assert.True(t, backend.sessions[0].closed.Load())
}

func TestPoolReleaseIsIdempotent(t *testing.T) {
	backend := &fakeBackend{}
	pool := New(backend, testConfig(1))
	defer pool.Close()

	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	lease.Release(true)
	lease.Release(true)
	lease.Release(false)

	assert.Equal(t, int32(1), backend.sessions[0].resets.Load())
	stats := pool.Stats()
	assert.Equal(t, 0, stats.ActiveSessions)
	assert.Equal(t, 1, stats.OpenSessions)
}

func TestPoolCloseFailsPendingAcquires(t *testing.T) {
	pool := New(&fakeBackend{}, testConfig(1))

	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := pool.Acquire(context.Background())
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)

	pool.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("pending acquire never failed after close")
	}

	// Leased sessions are destroyed on release after shutdown.
	lease.Release(true)
	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPoolCloseRacingReleaseDestroysSession(t *testing.T) {
	// A healthy release racing Close must not park the session back into the
	// idle queue after Close has drained it; whichever side wins, the
	// underlying browser session has to end up closed.
	for i := 0; i < 200; i++ {
		backend := &fakeBackend{}
		pool := New(backend, testConfig(1))

		lease, err := pool.Acquire(context.Background())
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			lease.Release(true)
		}()
		go func() {
			defer wg.Done()
			pool.Close()
		}()
		wg.Wait()

		require.True(t, backend.sessions[0].closed.Load(),
			"iteration %d left a live session behind", i)
	}
}

func TestPoolOpenSessionErrorPropagates(t *testing.T) {
	backend := &fakeBackend{openErr: errors.New("browser gone")}
	pool := New(backend, testConfig(2))
	defer pool.Close()

	_, err := pool.Acquire(context.Background())
	require.Error(t, err)

	// The slot token must be returned so capacity is not leaked.
	backend.openErr = nil
	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	lease.Release(true)
}
