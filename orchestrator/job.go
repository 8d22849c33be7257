package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/use-agent/storesleuth/models"
)

// job is one tracked extraction. All mutable state is guarded by mu; reads
// from the API go through snapshot().
type job struct {
	id  string
	req models.ExtractRequest

	mu          sync.Mutex
	phase       models.JobPhase
	attempt     int
	maxAttempts int
	errDetail   *models.ErrorDetail
	cacheStatus string
	createdAt   time.Time
	finishedAt  *time.Time
	result      *models.ExtractResponse

	cancel context.CancelFunc
	done   chan struct{}
}

func newJob(id string, req models.ExtractRequest, maxAttempts int, cancel context.CancelFunc) *job {
	return &job{
		id:          id,
		req:         req,
		phase:       models.JobQueued,
		maxAttempts: maxAttempts,
		createdAt:   time.Now().UTC(),
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

func (j *job) setPhase(phase models.JobPhase, attempt int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.phase.Terminal() {
		return
	}
	j.phase = phase
	if attempt > 0 {
		j.attempt = attempt
	}
}

// finish moves the job to its terminal phase exactly once.
func (j *job) finish(result *models.ExtractResponse) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.phase.Terminal() {
		return
	}
	now := time.Now().UTC()
	j.finishedAt = &now
	j.result = result
	j.cacheStatus = result.CacheStatus
	if result.Success {
		j.phase = models.JobSucceeded
	} else {
		j.phase = models.JobFailed
		j.errDetail = result.Error
	}
	close(j.done)
}

// finished returns when the job reached its terminal phase, or nil while it
// still runs.
func (j *job) finished() *time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.finishedAt
}

func (j *job) snapshot() models.JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return models.JobSnapshot{
		ID:          j.id,
		URL:         j.req.URL,
		Phase:       j.phase,
		Attempt:     j.attempt,
		MaxAttempts: j.maxAttempts,
		Error:       j.errDetail,
		CacheStatus: j.cacheStatus,
		CreatedAt:   j.createdAt,
		FinishedAt:  j.finishedAt,
	}
}

func (j *job) response() *models.ExtractResponse {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}
