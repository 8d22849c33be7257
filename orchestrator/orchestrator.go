// Package orchestrator schedules extraction jobs: cache lookups, the
// fetch-extract pipeline, bounded retries with exponential backoff, per-host
// rate limiting, and webhook delivery for async jobs.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/storesleuth/cache"
	"github.com/use-agent/storesleuth/config"
	"github.com/use-agent/storesleuth/extractor"
	"github.com/use-agent/storesleuth/fetcher"
	"github.com/use-agent/storesleuth/models"
	"github.com/use-agent/storesleuth/webhook"
)

// ErrUnknownJob is returned for job IDs that were never submitted.
var ErrUnknownJob = errors.New("unknown job id")

// ErrShuttingDown is returned by Submit and Run after Close.
var ErrShuttingDown = errors.New("orchestrator is shutting down")

// Orchestrator owns the job table and drives the extraction pipeline.
type Orchestrator struct {
	fetcher *fetcher.Fetcher
	engine  *extractor.Engine
	cache   *cache.Cache
	cfg     config.OrchestratorConfig
	fetch   config.FetchConfig

	sem   chan struct{} // job concurrency tokens
	hosts *hostLimiter

	mu     sync.RWMutex
	jobs   map[string]*job
	closed bool

	baseCtx   context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup
}

// New wires an Orchestrator together.
func New(f *fetcher.Fetcher, e *extractor.Engine, c *cache.Cache,
	cfg config.OrchestratorConfig, fetchCfg config.FetchConfig) *Orchestrator {

	if cfg.JobRetention <= 0 {
		cfg.JobRetention = time.Hour
	}

	baseCtx, cancelAll := context.WithCancel(context.Background())
	o := &Orchestrator{
		fetcher:   f,
		engine:    e,
		cache:     c,
		cfg:       cfg,
		fetch:     fetchCfg,
		sem:       make(chan struct{}, cfg.MaxConcurrentJobs),
		hosts:     newHostLimiter(cfg.HostRPS, cfg.HostBurst),
		jobs:      make(map[string]*job),
		baseCtx:   baseCtx,
		cancelAll: cancelAll,
	}
	o.wg.Add(1)
	go o.janitor()
	return o
}

// Run executes one extraction synchronously and returns the response. The
// caller's ctx cancels the whole pipeline.
func (o *Orchestrator) Run(ctx context.Context, req models.ExtractRequest) (*models.ExtractResponse, error) {
	req.Defaults()
	o.clampTimeout(&req)

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	j := newJob(uuid.NewString(), req, o.cfg.MaxAttempts, cancel)
	if err := o.register(j); err != nil {
		return nil, err
	}
	// The caller gets the response directly; nothing will ever poll this job,
	// so its table entry goes as soon as the run is over.
	defer o.unregister(j.id)

	o.execute(jobCtx, j)
	return j.response(), nil
}

// Submit queues an extraction for background execution and returns the job ID.
func (o *Orchestrator) Submit(req models.ExtractRequest) (string, error) {
	req.Defaults()
	o.clampTimeout(&req)

	jobCtx, cancel := context.WithCancel(o.baseCtx)
	j := newJob(uuid.NewString(), req, o.cfg.MaxAttempts, cancel)
	if err := o.register(j); err != nil {
		cancel()
		return "", err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		o.execute(jobCtx, j)
		o.notify(j)
	}()

	return j.id, nil
}

// Status returns the current snapshot of a job.
func (o *Orchestrator) Status(id string) (models.JobSnapshot, error) {
	j, err := o.lookup(id)
	if err != nil {
		return models.JobSnapshot{}, err
	}
	return j.snapshot(), nil
}

// Result returns the response of a finished job, or nil while it runs.
func (o *Orchestrator) Result(id string) (*models.ExtractResponse, error) {
	j, err := o.lookup(id)
	if err != nil {
		return nil, err
	}
	return j.response(), nil
}

// Await blocks until the job reaches a terminal phase or ctx is done.
func (o *Orchestrator) Await(ctx context.Context, id string) (*models.ExtractResponse, error) {
	j, err := o.lookup(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-j.done:
		return j.response(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel aborts a running job. Finished jobs are unaffected.
func (o *Orchestrator) Cancel(id string) error {
	j, err := o.lookup(id)
	if err != nil {
		return err
	}
	j.cancel()
	return nil
}

// Close stops accepting work, cancels running jobs, and waits for them to
// record their terminal state.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.cancelAll()
	o.wg.Wait()
}

func (o *Orchestrator) register(j *job) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrShuttingDown
	}
	o.jobs[j.id] = j
	return nil
}

func (o *Orchestrator) unregister(id string) {
	o.mu.Lock()
	delete(o.jobs, id)
	o.mu.Unlock()
}

// janitor drops finished async jobs once they age past the retention window,
// keeping the job table bounded on long-running instances.
func (o *Orchestrator) janitor() {
	defer o.wg.Done()
	interval := o.cfg.JobRetention / 4
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-o.baseCtx.Done():
			return
		case <-ticker.C:
			o.expireJobs(time.Now().Add(-o.cfg.JobRetention))
		}
	}
}

func (o *Orchestrator) expireJobs(cutoff time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, j := range o.jobs {
		if t := j.finished(); t != nil && t.Before(cutoff) {
			delete(o.jobs, id)
		}
	}
}

func (o *Orchestrator) lookup(id string) (*job, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	j, ok := o.jobs[id]
	if !ok {
		return nil, ErrUnknownJob
	}
	return j, nil
}

func (o *Orchestrator) clampTimeout(req *models.ExtractRequest) {
	maxSec := int(o.fetch.MaxTimeout / time.Second)
	if maxSec > 0 && req.Timeout > maxSec {
		req.Timeout = maxSec
	}
}

// execute drives one job from queued to a terminal phase. All failure paths
// go through j.finish so the job table never holds a stuck entry.
func (o *Orchestrator) execute(ctx context.Context, j *job) {
	start := time.Now()

	// Cache lookup. MaxAge -1 bypasses the cache entirely.
	if j.req.MaxAge >= 0 && o.cache != nil {
		maxAge := time.Duration(j.req.MaxAge) * time.Second
		if product, status := o.cache.Get(j.req.URL, maxAge, j.req.AllowStale); product != nil {
			j.finish(&models.ExtractResponse{
				Success:     true,
				Product:     product,
				CacheStatus: status,
				Timing:      models.TimingInfo{TotalMs: time.Since(start).Milliseconds()},
			})
			return
		}
	}

	// Job concurrency gate.
	select {
	case o.sem <- struct{}{}:
		defer func() { <-o.sem }()
	case <-ctx.Done():
		j.finish(o.failResponse(ctx, j, start, ctx.Err()))
		return
	}

	host := hostOf(j.req.URL)
	var lastErr error
	var prevDelay time.Duration

	for attempt := 1; attempt <= j.maxAttempts; attempt++ {
		j.setPhase(models.JobFetching, attempt)

		if err := o.hosts.wait(ctx, host); err != nil {
			lastErr = err
			break
		}

		resp, err := o.attempt(ctx, j, attempt, start)
		if err == nil {
			j.finish(resp)
			return
		}
		lastErr = err

		kind := models.ErrKind(err)
		if !models.IsRetryable(kind) || attempt == j.maxAttempts {
			break
		}

		delay := o.backoff(attempt, kind)
		if delay < prevDelay {
			delay = prevDelay
		}
		prevDelay = delay
		slog.Info("attempt failed, backing off",
			"job_id", j.id, "url", j.req.URL,
			"attempt", attempt, "kind", kind, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = j.maxAttempts
		}
		if ctx.Err() != nil {
			break
		}
	}

	j.finish(o.failResponse(ctx, j, start, lastErr))
}

// attempt runs one fetch-extract cycle under the per-attempt deadline.
func (o *Orchestrator) attempt(ctx context.Context, j *job, attempt int, jobStart time.Time) (*models.ExtractResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(j.req.Timeout)*time.Second)
	defer cancel()

	fetchStart := time.Now()
	page, err := o.fetcher.Fetch(attemptCtx, j.req.URL, fetcher.Options{
		Mode:    j.req.FetchMode,
		Stealth: j.req.Stealth,
	})
	if err != nil {
		return nil, err
	}
	fetchMs := time.Since(fetchStart).Milliseconds()

	j.setPhase(models.JobExtracting, attempt)

	extractStart := time.Now()
	res, err := o.engine.Extract(ctx, page, extractor.Options{
		CSSSelector: j.req.CSSSelector,
	})
	if err != nil {
		return nil, err
	}

	if o.cache != nil && j.req.MaxAge >= 0 {
		o.cache.Put(j.req.URL, res.Product)
	}

	return &models.ExtractResponse{
		Success:     true,
		Product:     res.Product,
		CacheStatus: cache.StatusMiss,
		FetchMethod: page.FetchMethod,
		Attempts:    attempt,
		LLMUsage:    res.Usage,
		Timing: models.TimingInfo{
			TotalMs:      time.Since(jobStart).Milliseconds(),
			FetchMs:      fetchMs,
			ExtractionMs: time.Since(extractStart).Milliseconds(),
		},
	}, nil
}

// backoff computes the delay after a failed attempt: base doubled per
// attempt, capped, with up to 25% additive jitter. Blocked responses wait at
// least the configured blocked backoff so the host cools down.
func (o *Orchestrator) backoff(attempt int, kind string) time.Duration {
	delay := o.cfg.BackoffBase << (attempt - 1)
	if delay > o.cfg.BackoffCap {
		delay = o.cfg.BackoffCap
	}
	delay += time.Duration(rand.Int63n(int64(delay)/4 + 1))
	if kind == models.ErrKindBlocked && delay < o.cfg.BlockedBackoff {
		delay = o.cfg.BlockedBackoff
	}
	return delay
}

func (o *Orchestrator) failResponse(ctx context.Context, j *job, start time.Time, err error) *models.ExtractResponse {
	if err == nil {
		err = ctx.Err()
	}
	var ee *models.ExtractError
	switch {
	case errors.As(err, &ee):
	case errors.Is(err, context.Canceled):
		ee = models.NewExtractError(models.ErrKindCancelled, "job cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		ee = models.NewExtractError(models.ErrKindFetchTimeout, "job deadline exceeded", err)
	default:
		ee = models.AsExtractError(err)
	}

	detail := ee.ToDetail()
	snap := j.snapshot()
	detail.Attempts = snap.Attempt

	return &models.ExtractResponse{
		Success:  false,
		Attempts: snap.Attempt,
		Error:    detail,
		Timing:   models.TimingInfo{TotalMs: time.Since(start).Milliseconds()},
	}
}

// notify delivers the webhook for an async job, when one is registered.
func (o *Orchestrator) notify(j *job) {
	if j.req.WebhookURL == "" {
		return
	}
	resp := j.response()
	eventType := webhook.EventJobFailed
	if resp != nil && resp.Success {
		eventType = webhook.EventJobCompleted
	}
	webhook.DeliverAsync(j.req.WebhookURL, o.cfg.WebhookSecret, &webhook.Event{
		Type:      eventType,
		JobID:     j.id,
		Timestamp: time.Now().Unix(),
		Data:      resp,
	})
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
