// Package engine sequences the download queue: one background goroutine
// drains jobs in FIFO order, one at a time, retrying each in place per the
// retry policy and reporting lifecycle events to registered observers.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"ytqueue/internal/domain"
	"ytqueue/internal/retry"
	"ytqueue/internal/store"
)

// State is the engine lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCancelling
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCancelling:
		return "cancelling"
	default:
		return "idle"
	}
}

// Engine owns the queue and runs the sequential drain loop. Exactly one
// job is in flight at any instant; callers only enqueue, remove, clear,
// start, and cancel.
type Engine struct {
	queue     *store.Queue
	fetcher   domain.Fetcher
	validator domain.ToolValidator
	archiver  domain.Archiver
	policy    retry.Policy
	sleep     sleepFunc
	stats     *StatsTracker

	observers observerSet

	mu        sync.Mutex
	state     State
	token     *Token
	current   *domain.Job
	drainDone chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy overrides the default retry policy.
func WithPolicy(p retry.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithToolValidator enables admission-time validation of the conversion
// tool path.
func WithToolValidator(v domain.ToolValidator) Option {
	return func(e *Engine) { e.validator = v }
}

// WithArchiver records terminal outcomes and engine events to an archive.
func WithArchiver(a domain.Archiver) Option {
	return func(e *Engine) { e.archiver = a }
}

// New creates an idle engine owning queue.
func New(queue *store.Queue, fetcher domain.Fetcher, opts ...Option) *Engine {
	e := &Engine{
		queue:   queue,
		fetcher: fetcher,
		policy:  retry.Default(),
		sleep:   sleepInterruptible,
		stats:   &StatsTracker{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds an observer for lifecycle events.
func (e *Engine) Register(o Observer) { e.observers.register(o) }

// Deregister removes a previously registered observer.
func (e *Engine) Deregister(o Observer) { e.observers.deregister(o) }

// Stats returns the cumulative counter tracker.
func (e *Engine) Stats() *StatsTracker { return e.stats }

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Enqueue validates a job and appends it to the queue tail. Validation
// failures are rejected here and never enter the retry machinery.
func (e *Engine) Enqueue(job domain.Job) error {
	job.Status = domain.StatusQueued
	if err := job.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(job.DestDir, 0755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}
	if e.validator != nil && !e.validator.IsExecutableValid(job.ToolPath) {
		return domain.ErrInvalidTool
	}
	if err := e.queue.Enqueue(job); err != nil {
		return err
	}
	e.stats.jobEnqueued()
	e.notifyStatus("Added to queue: "+job.URL, SeverityInfo)
	return nil
}

// RemoveAt deletes the queued job at index.
func (e *Engine) RemoveAt(index int) error { return e.queue.RemoveAt(index) }

// ClearQueue empties the queue. The in-flight job, if any, is unaffected.
func (e *Engine) ClearQueue() error { return e.queue.Clear() }

// Jobs returns the queued jobs in order.
func (e *Engine) Jobs() []domain.Job { return e.queue.Jobs() }

// Current returns the in-flight job, if any.
func (e *Engine) Current() (domain.Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return domain.Job{}, false
	}
	return *e.current, true
}

// Start begins draining the queue on a background goroutine. It is a
// no-op when the queue is empty or the engine is not idle.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.state != StateIdle || e.queue.Len() == 0 {
		e.mu.Unlock()
		return
	}
	e.state = StateRunning
	e.token = NewToken()
	token := e.token
	done := make(chan struct{})
	e.drainDone = done
	e.mu.Unlock()

	e.notifyStateChange(true, false)
	go func() {
		defer close(done)
		e.drain(token)
	}()
}

// AwaitIdle blocks until the current drain, if any, has fully unwound —
// including the requeue of an interrupted in-flight job — or d elapses.
// It reports whether the engine reached idle.
func (e *Engine) AwaitIdle(d time.Duration) bool {
	e.mu.Lock()
	done := e.drainDone
	e.mu.Unlock()
	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

// Cancel requests cooperative cancellation of the running drain. It does
// not block waiting for the in-flight attempt to unwind; the loop observes
// the token within one poll cycle. A no-op when idle.
func (e *Engine) Cancel() {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return
	}
	e.state = StateCancelling
	token := e.token
	e.mu.Unlock()

	token.Cancel()
	e.notifyStateChange(true, true)
	// The fetcher aborts the active transfer and cleans up partial
	// artifacts best-effort; failures there are logged, not surfaced.
	e.fetcher.Abort()
}

func (e *Engine) drain(token *Token) {
	cancelled := false
	for {
		if token.Cancelled() {
			cancelled = true
			break
		}
		job, ok := e.queue.DequeueFront()
		if !ok {
			break
		}
		job.Status = domain.StatusDownloading
		e.setCurrent(job)

		s := &session{
			fetcher:  e.fetcher,
			policy:   e.policy,
			sleep:    e.sleep,
			status:   e.notifyStatus,
			progress: e.notifyProgress,
		}
		retriesBefore := job.RetryCount
		result, reason := s.run(context.Background(), &job, token)
		// The terminal attempt of a permanent failure is not followed by
		// a retry and must not count as one.
		retries := job.RetryCount - retriesBefore
		if result == ResultFailed && retries > 0 {
			retries--
		}
		e.stats.addRetries(retries)

		switch result {
		case ResultSucceeded:
			job.Status = domain.StatusComplete
			e.stats.jobCompleted()
			e.notifyStatus("Download complete: "+job.URL, SeverityInfo)
			e.archive(job, "complete", "")
		case ResultFailed:
			job.Status = domain.StatusFailed
			e.stats.jobFailed()
			e.notifyStatus("Permanent failure: "+reason, SeverityError)
			e.archive(job, "failed", reason)
		case ResultCancelled:
			// Not terminal: the job stays a member of the queue, at the
			// head, so it runs first on the next drain.
			cancelled = true
			job.Status = domain.StatusQueued
			if err := e.queue.RequeueFront(job); err != nil {
				log.Printf("engine: requeue cancelled job: %v", err)
			}
		}
		e.clearCurrent()
		if cancelled {
			break
		}
	}

	e.mu.Lock()
	e.state = StateIdle
	e.token = nil
	e.mu.Unlock()

	e.stats.drainFinished(!cancelled)
	e.notifyStateChange(false, false)
	e.notifyComplete(!cancelled)
}

func (e *Engine) setCurrent(job domain.Job) {
	e.mu.Lock()
	e.current = &job
	e.mu.Unlock()
}

func (e *Engine) clearCurrent() {
	e.mu.Lock()
	e.current = nil
	e.mu.Unlock()
}

func (e *Engine) archive(job domain.Job, outcome, reason string) {
	if e.archiver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.archiver.RecordOutcome(ctx, job, outcome, reason); err != nil {
		log.Printf("engine: archive outcome: %v", err)
	}
}

func (e *Engine) notifyStatus(message string, severity Severity) {
	for _, o := range e.observers.snapshot() {
		o.OnStatus(message, severity)
	}
	if e.archiver != nil {
		level := "info"
		switch severity {
		case SeverityWarn:
			level = "warn"
		case SeverityError:
			level = "error"
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.archiver.AddEvent(ctx, level, message); err != nil {
			log.Printf("engine: archive event: %v", err)
		}
	}
}

func (e *Engine) notifyProgress(p Progress) {
	for _, o := range e.observers.snapshot() {
		o.OnProgress(p)
	}
}

func (e *Engine) notifyComplete(finished bool) {
	for _, o := range e.observers.snapshot() {
		o.OnComplete(finished)
	}
}

func (e *Engine) notifyStateChange(running, cancelling bool) {
	for _, o := range e.observers.snapshot() {
		o.OnStateChange(running, cancelling)
	}
}
