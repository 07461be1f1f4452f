package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"ytqueue/internal/domain"
	"ytqueue/internal/retry"
	"ytqueue/internal/store"
)

// fakeFetcher scripts per-URL transfer outcomes and can block a transfer
// until aborted.
type fakeFetcher struct {
	mu          sync.Mutex
	outcomes    map[string][]error // consumed front to back; nil means success
	resolveErr  error
	transfers   []string
	aborts      int
	blockURL    string
	started     chan string
	unblock     chan struct{}
	progressSeq []domain.TransferProgress
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		outcomes: make(map[string][]error),
		started:  make(chan string, 16),
		unblock:  make(chan struct{}),
	}
}

func (f *fakeFetcher) script(url string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[url] = append(f.outcomes[url], errs...)
}

func (f *fakeFetcher) Resolve(ctx context.Context, url string) (*domain.Metadata, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return &domain.Metadata{Title: "title of " + url}, nil
}

func (f *fakeFetcher) Transfer(ctx context.Context, url string, opts domain.TransferOptions, progress func(domain.TransferProgress)) error {
	f.mu.Lock()
	f.transfers = append(f.transfers, url)
	var err error
	if q := f.outcomes[url]; len(q) > 0 {
		err = q[0]
		f.outcomes[url] = q[1:]
	}
	seq := f.progressSeq
	block := f.blockURL == url
	f.mu.Unlock()

	for _, tp := range seq {
		progress(tp)
	}
	select {
	case f.started <- url:
	default:
	}
	if block {
		<-f.unblock
		return errors.New("transfer aborted: signal: killed")
	}
	return err
}

func (f *fakeFetcher) Abort() {
	f.mu.Lock()
	f.aborts++
	f.mu.Unlock()
	select {
	case <-f.unblock:
	default:
		close(f.unblock)
	}
}

func (f *fakeFetcher) transferCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transfers)
}

func (f *fakeFetcher) abortCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aborts
}

// recorder collects observer notifications in arrival order.
type recorder struct {
	mu        sync.Mutex
	events    []string
	progress  []Progress
	completes []bool
	done      chan bool
}

func newRecorder() *recorder {
	return &recorder{done: make(chan bool, 8)}
}

func (r *recorder) OnProgress(p Progress) {
	r.mu.Lock()
	r.progress = append(r.progress, p)
	r.mu.Unlock()
}

func (r *recorder) OnStatus(message string, severity Severity) {
	r.mu.Lock()
	r.events = append(r.events, "status: "+message)
	r.mu.Unlock()
}

func (r *recorder) OnComplete(finished bool) {
	r.mu.Lock()
	r.events = append(r.events, fmt.Sprintf("complete: %v", finished))
	r.completes = append(r.completes, finished)
	r.mu.Unlock()
	r.done <- finished
}

func (r *recorder) OnStateChange(running, cancelling bool) {
	r.mu.Lock()
	r.events = append(r.events, fmt.Sprintf("state: running=%v cancelling=%v", running, cancelling))
	r.mu.Unlock()
}

func (r *recorder) statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if strings.HasPrefix(e, "status: ") {
			out = append(out, strings.TrimPrefix(e, "status: "))
		}
	}
	return out
}

func (r *recorder) waitComplete(t *testing.T) bool {
	t.Helper()
	select {
	case finished := <-r.done:
		return finished
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion event")
		return false
	}
}

// fakeSleep records requested backoff delays without waiting them out.
type fakeSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *fakeSleep) sleep(d time.Duration, done <-chan struct{}) bool {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	select {
	case <-done:
		return false
	default:
		return true
	}
}

func testEngine(t *testing.T, fetcher domain.Fetcher, opts ...Option) (*Engine, *recorder, *fakeSleep) {
	t.Helper()
	snap := store.NewFileSnapshot(filepath.Join(t.TempDir(), "queue.json"))
	e := New(store.New(snap), fetcher, opts...)
	sleep := &fakeSleep{}
	e.sleep = sleep.sleep
	rec := newRecorder()
	e.Register(rec)
	return e, rec, sleep
}

func queuedJob(url string, dir string) domain.Job {
	return domain.Job{
		URL:       url,
		DestDir:   dir,
		ToolPath:  "/usr/bin/ffmpeg",
		MediaKind: domain.KindVideo,
		Quality:   "Best",
	}
}

const (
	urlA = "https://www.youtube.com/watch?v=aaaa"
	urlB = "https://www.youtube.com/watch?v=bbbb"
	urlC = "https://www.youtube.com/watch?v=cccc"
)

func TestEngine_DrainScenario_RetriesThenSuccess(t *testing.T) {
	fetcher := newFakeFetcher()
	netErr := errors.New("connection reset by peer")
	fetcher.script(urlA, netErr, netErr, nil)
	fetcher.script(urlB, nil)

	e, rec, sleep := testEngine(t, fetcher)
	dir := t.TempDir()
	if err := e.Enqueue(queuedJob(urlA, dir)); err != nil {
		t.Fatalf("enqueue A: %v", err)
	}
	if err := e.Enqueue(queuedJob(urlB, dir)); err != nil {
		t.Fatalf("enqueue B: %v", err)
	}

	e.Start()
	if !rec.waitComplete(t) {
		t.Fatal("drain reported cancellation")
	}

	want := []string{
		"Added to queue: " + urlA,
		"Added to queue: " + urlB,
		"Downloading: title of " + urlA,
		"Retry 1/3 in 5s: Network error",
		"Downloading: title of " + urlA,
		"Retry 2/3 in 10s: Network error",
		"Downloading: title of " + urlA,
		"Download complete: " + urlA,
		"Downloading: title of " + urlB,
		"Download complete: " + urlB,
	}
	got := rec.statuses()
	if len(got) != len(want) {
		t.Fatalf("status sequence:\ngot  %q\nwant %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("status[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if delays := sleep.delays; len(delays) != 2 || delays[0] != 5*time.Second || delays[1] != 10*time.Second {
		t.Errorf("backoff delays = %v, want [5s 10s]", delays)
	}
	if n := e.queue.Len(); n != 0 {
		t.Errorf("queue length after drain = %d, want 0", n)
	}
	stats := e.Stats().Snapshot()
	if stats.JobsEnqueued != 2 || stats.JobsCompleted != 2 || stats.JobsFailed != 0 || stats.Retries != 2 || stats.Drains != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestEngine_DrainScenario_PermanentFailure(t *testing.T) {
	fetcher := newFakeFetcher()
	unavailable := errors.New("ERROR: Video unavailable")
	fetcher.script(urlC, unavailable, unavailable, unavailable)

	e, rec, _ := testEngine(t, fetcher)
	if err := e.Enqueue(queuedJob(urlC, t.TempDir())); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	e.Start()
	if !rec.waitComplete(t) {
		t.Fatal("drain reported cancellation")
	}

	var permanent int
	for _, s := range rec.statuses() {
		if strings.HasPrefix(s, "Permanent failure: Content unavailable") {
			permanent++
		}
	}
	if permanent != 1 {
		t.Errorf("permanent-failure notifications = %d, want exactly 1", permanent)
	}
	if n := e.queue.Len(); n != 0 {
		t.Errorf("queue length = %d, want 0", n)
	}
	if fetcher.transferCount() != 3 {
		t.Errorf("attempts = %d, want 3", fetcher.transferCount())
	}
	stats := e.Stats().Snapshot()
	if stats.JobsFailed != 1 {
		t.Errorf("stats = %+v", stats)
	}
	// Three attempts, but only the first two were followed by a retry.
	if stats.Retries != 2 {
		t.Errorf("retries = %d, want 2", stats.Retries)
	}
}

func TestEngine_RateLimitedNeverPermanent(t *testing.T) {
	fetcher := newFakeFetcher()
	rl := errors.New("HTTP Error 429: Too Many Requests")
	fetcher.script(urlA, rl, rl, rl, rl, rl, nil)

	e, rec, sleep := testEngine(t, fetcher)
	if err := e.Enqueue(queuedJob(urlA, t.TempDir())); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	e.Start()
	if !rec.waitComplete(t) {
		t.Fatal("drain reported cancellation")
	}

	wantDelays := []time.Duration{60, 120, 180, 240, 300}
	if len(sleep.delays) != len(wantDelays) {
		t.Fatalf("delays = %v, want 5 growing capped delays", sleep.delays)
	}
	for i, w := range wantDelays {
		if sleep.delays[i] != w*time.Second {
			t.Errorf("delay[%d] = %v, want %v", i, sleep.delays[i], w*time.Second)
		}
	}
	stats := e.Stats().Snapshot()
	if stats.JobsCompleted != 1 || stats.JobsFailed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	// Rate-limited attempts do not consume the retry budget.
	if stats.Retries != 0 {
		t.Errorf("retries = %d, want 0", stats.Retries)
	}
}

func TestEngine_StartOnEmptyQueueIsNoop(t *testing.T) {
	fetcher := newFakeFetcher()
	e, rec, _ := testEngine(t, fetcher)

	e.Start()

	if e.State() != StateIdle {
		t.Errorf("state = %v, want idle", e.State())
	}
	rec.mu.Lock()
	n := len(rec.events)
	rec.mu.Unlock()
	if n != 0 {
		t.Errorf("events fired on empty start: %v", rec.events)
	}
}

func TestEngine_CancelMidAttempt(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.blockURL = urlA
	fetcher.script(urlB, nil)

	e, rec, _ := testEngine(t, fetcher)
	dir := t.TempDir()
	e.Enqueue(queuedJob(urlA, dir))
	e.Enqueue(queuedJob(urlB, dir))

	e.Start()
	select {
	case <-fetcher.started:
	case <-time.After(5 * time.Second):
		t.Fatal("transfer never started")
	}

	e.Cancel()
	if rec.waitComplete(t) {
		t.Error("completion reported finished=true after cancel")
	}

	rec.mu.Lock()
	completes := len(rec.completes)
	rec.mu.Unlock()
	if completes != 1 {
		t.Fatalf("completion events = %d, want exactly 1", completes)
	}
	if n := fetcher.abortCount(); n != 1 {
		t.Errorf("aborts = %d, want 1", n)
	}

	// The interrupted job returns to the head; B was never dequeued.
	jobs := e.Jobs()
	if len(jobs) != 2 || jobs[0].URL != urlA || jobs[1].URL != urlB {
		t.Errorf("queue after cancel = %+v", jobs)
	}
	if jobs[0].Status != domain.StatusQueued {
		t.Errorf("requeued job status = %s, want queued", jobs[0].Status)
	}
	if e.State() != StateIdle {
		t.Errorf("state = %v, want idle", e.State())
	}
	stats := e.Stats().Snapshot()
	if stats.Drains != 1 || stats.DrainsCancelled != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestEngine_CancelDuringBackoff(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.script(urlA, errors.New("connection reset"))

	snap := store.NewFileSnapshot(filepath.Join(t.TempDir(), "queue.json"))
	policy := retry.Default()
	policy.BaseDelay = time.Hour // only an interrupt can end the sleep
	e := New(store.New(snap), fetcher, WithPolicy(policy))
	rec := newRecorder()
	e.Register(rec)

	e.Enqueue(queuedJob(urlA, t.TempDir()))
	e.Start()

	// Wait for the attempt to fail and the backoff sleep to begin.
	select {
	case <-fetcher.started:
	case <-time.After(5 * time.Second):
		t.Fatal("transfer never started")
	}
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		e.Cancel()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Cancel blocked")
	}

	if rec.waitComplete(t) {
		t.Error("completion reported finished=true after cancel")
	}
	jobs := e.Jobs()
	if len(jobs) != 1 || jobs[0].RetryCount != 1 {
		t.Errorf("queue after cancelled backoff = %+v, want one job with RetryCount 1", jobs)
	}
}

func TestEngine_Reentrancy(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.blockURL = urlA

	e, rec, _ := testEngine(t, fetcher)
	e.Enqueue(queuedJob(urlA, t.TempDir()))

	e.Start()
	select {
	case <-fetcher.started:
	case <-time.After(5 * time.Second):
		t.Fatal("transfer never started")
	}
	e.Start() // no-op while running
	e.Cancel()
	rec.waitComplete(t)
	e.Cancel() // no-op while idle

	rec.mu.Lock()
	var startEvents int
	for _, ev := range rec.events {
		if ev == "state: running=true cancelling=false" {
			startEvents++
		}
	}
	completes := len(rec.completes)
	rec.mu.Unlock()

	if startEvents != 1 {
		t.Errorf("running-state events = %d, want 1", startEvents)
	}
	if completes != 1 {
		t.Errorf("completion events = %d, want 1", completes)
	}
}

func TestEngine_AwaitIdle(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.blockURL = urlA

	e, _, _ := testEngine(t, fetcher)
	if !e.AwaitIdle(time.Millisecond) {
		t.Error("AwaitIdle before any drain = false, want true")
	}

	e.Enqueue(queuedJob(urlA, t.TempDir()))
	e.Start()
	select {
	case <-fetcher.started:
	case <-time.After(5 * time.Second):
		t.Fatal("transfer never started")
	}
	if e.AwaitIdle(10 * time.Millisecond) {
		t.Error("AwaitIdle returned true while a transfer is in flight")
	}

	e.Cancel()
	if !e.AwaitIdle(5 * time.Second) {
		t.Fatal("AwaitIdle after cancel timed out")
	}

	// Once AwaitIdle returns the drain has fully unwound: the interrupted
	// job is requeued at the head and the state is idle.
	jobs := e.Jobs()
	if len(jobs) != 1 || jobs[0].URL != urlA || jobs[0].Status != domain.StatusQueued {
		t.Errorf("queue after AwaitIdle = %+v, want the interrupted job requeued", jobs)
	}
	if e.State() != StateIdle {
		t.Errorf("state = %v, want idle", e.State())
	}
}

func TestEngine_EnqueueValidation(t *testing.T) {
	fetcher := newFakeFetcher()
	e, _, _ := testEngine(t, fetcher, WithToolValidator(rejectAllValidator{}))

	job := queuedJob(urlA, t.TempDir())
	if err := e.Enqueue(job); !errors.Is(err, domain.ErrInvalidTool) {
		t.Errorf("Enqueue with bad tool = %v, want ErrInvalidTool", err)
	}

	job.URL = "https://example.com/nope"
	if err := e.Enqueue(job); !errors.Is(err, domain.ErrInvalidURL) {
		t.Errorf("Enqueue with bad URL = %v, want ErrInvalidURL", err)
	}
	if e.queue.Len() != 0 {
		t.Errorf("rejected jobs entered the queue: %d", e.queue.Len())
	}
}

type rejectAllValidator struct{}

func (rejectAllValidator) IsExecutableValid(string) bool { return false }
