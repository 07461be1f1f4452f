// Package store holds the ordered download queue and keeps a durable
// snapshot of it across restarts.
package store

import (
	"log"
	"sync"

	"ytqueue/internal/domain"
)

// Queue is an ordered FIFO collection of jobs. Every mutation persists a
// full snapshot before returning. All access goes through one mutex; it is
// never held across fetch work.
type Queue struct {
	mu   sync.Mutex
	jobs []domain.Job
	snap domain.Snapshotter
}

// New creates an empty queue persisting through snap.
func New(snap domain.Snapshotter) *Queue {
	return &Queue{snap: snap}
}

// Load replaces the in-memory queue with the persisted snapshot. Entries
// already complete are dropped; everything else is reloaded as queued —
// membership is trusted across restarts, status is not.
func (q *Queue) Load() (int, error) {
	jobs, err := q.snap.Load()
	if err != nil {
		return 0, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = q.jobs[:0]
	for _, j := range jobs {
		if j.Status == domain.StatusComplete {
			continue
		}
		j.Status = domain.StatusQueued
		q.jobs = append(q.jobs, j)
	}
	return len(q.jobs), nil
}

// Enqueue appends a job at the tail.
func (q *Queue) Enqueue(j domain.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, j)
	return q.persistLocked()
}

// DequeueFront removes and returns the head. ok is false when the queue
// is empty.
func (q *Queue) DequeueFront() (domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return domain.Job{}, false
	}
	j := q.jobs[0]
	q.jobs = append(q.jobs[:0], q.jobs[1:]...)
	if err := q.persistLocked(); err != nil {
		log.Printf("queue: persist after dequeue failed: %v", err)
	}
	return j, true
}

// RequeueFront re-inserts a job at the head so it runs before unrelated
// queued work. Used when an in-flight, non-terminal job must return to
// the queue.
func (q *Queue) RequeueFront(j domain.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append([]domain.Job{j}, q.jobs...)
	return q.persistLocked()
}

// RemoveAt deletes the job at index.
func (q *Queue) RemoveAt(index int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if index < 0 || index >= len(q.jobs) {
		return domain.ErrIndexOutOfRange
	}
	q.jobs = append(q.jobs[:index], q.jobs[index+1:]...)
	return q.persistLocked()
}

// Clear empties the queue.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = q.jobs[:0]
	return q.persistLocked()
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Jobs returns a copy of the queued jobs in order.
func (q *Queue) Jobs() []domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.Job, len(q.jobs))
	copy(out, q.jobs)
	return out
}

func (q *Queue) persistLocked() error {
	return q.snap.Save(q.jobs)
}
