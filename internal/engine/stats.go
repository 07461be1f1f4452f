package engine

import "sync"

// Stats is a point-in-time copy of the cumulative counters.
type Stats struct {
	JobsEnqueued    int64 `json:"jobs_enqueued"`
	JobsCompleted   int64 `json:"jobs_completed"`
	JobsFailed      int64 `json:"jobs_failed"`
	Retries         int64 `json:"retries"`
	Drains          int64 `json:"drains"`
	DrainsCancelled int64 `json:"drains_cancelled"`
}

// StatsTracker accumulates counters from engine events.
type StatsTracker struct {
	mu sync.Mutex
	s  Stats
}

// Seed pre-loads the completed/failed totals, typically from the outcome
// archive, so counters survive restarts.
func (t *StatsTracker) Seed(completed, failed int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.JobsCompleted = completed
	t.s.JobsFailed = failed
}

// Snapshot returns a copy of the current counters.
func (t *StatsTracker) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s
}

func (t *StatsTracker) jobEnqueued() {
	t.mu.Lock()
	t.s.JobsEnqueued++
	t.mu.Unlock()
}

func (t *StatsTracker) jobCompleted() {
	t.mu.Lock()
	t.s.JobsCompleted++
	t.mu.Unlock()
}

func (t *StatsTracker) jobFailed() {
	t.mu.Lock()
	t.s.JobsFailed++
	t.mu.Unlock()
}

func (t *StatsTracker) addRetries(n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	t.s.Retries += int64(n)
	t.mu.Unlock()
}

func (t *StatsTracker) drainFinished(finished bool) {
	t.mu.Lock()
	t.s.Drains++
	if !finished {
		t.s.DrainsCancelled++
	}
	t.mu.Unlock()
}
