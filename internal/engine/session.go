package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"ytqueue/internal/domain"
	"ytqueue/internal/retry"
)

// Result is the terminal outcome of one session.
type Result int

const (
	ResultSucceeded Result = iota
	ResultFailed
	ResultCancelled
)

var ansiRegexp = regexp.MustCompile(`\x1b\[[0-?]*[ -/]*[@-~]`)

func stripANSI(s string) string {
	return strings.TrimSpace(ansiRegexp.ReplaceAllString(s, ""))
}

// sleepFunc blocks for d or until done closes; it returns false when
// interrupted. Injectable so tests do not wait out real backoffs.
type sleepFunc func(d time.Duration, done <-chan struct{}) bool

func sleepInterruptible(d time.Duration, done <-chan struct{}) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-done:
		return false
	}
}

// session executes one job to completion, exhaustion, or cancellation,
// calling the fetcher once per attempt. Retries happen in place, inside
// this loop, with the classified backoff; the job never returns to the
// queue tail between attempts.
type session struct {
	fetcher  domain.Fetcher
	policy   retry.Policy
	sleep    sleepFunc
	status   func(message string, severity Severity)
	progress func(p Progress)
}

// run drives the attempt loop. On failure it increments job.RetryCount for
// every attempt that counts against the budget; rate-limited attempts loop
// indefinitely without consuming it. reason is set only for ResultFailed.
func (s *session) run(ctx context.Context, job *domain.Job, token *Token) (Result, string) {
	opts := domain.TransferOptionsFor(*job)
	rateLimited := 0
	for {
		if token.Cancelled() {
			return ResultCancelled, ""
		}

		err := s.attempt(ctx, job, opts)
		if err == nil {
			return ResultSucceeded, ""
		}
		// An abort kills the transfer mid-flight; report cancellation,
		// not a fetch failure.
		if token.Cancelled() {
			return ResultCancelled, ""
		}

		kind := retry.Classify(err)
		var dec retry.Decision
		if kind == retry.KindRateLimited {
			rateLimited++
			dec = s.policy.Decide(err, rateLimited)
		} else {
			job.RetryCount++
			dec = s.policy.Decide(err, job.RetryCount)
		}
		if !dec.Retry {
			return ResultFailed, fmt.Sprintf("%s: %s", dec.Kind.Message(), stripANSI(err.Error()))
		}

		if kind == retry.KindRateLimited {
			s.status(fmt.Sprintf("%s, retrying in %s", dec.Kind.Message(), dec.Delay), SeverityWarn)
		} else {
			s.status(fmt.Sprintf("Retry %d/%d in %s: %s", job.RetryCount, s.policy.MaxRetries, dec.Delay, dec.Kind.Message()), SeverityWarn)
		}
		if !s.sleep(dec.Delay, token.Done()) {
			return ResultCancelled, ""
		}
	}
}

func (s *session) attempt(ctx context.Context, job *domain.Job, opts domain.TransferOptions) error {
	meta, err := s.fetcher.Resolve(ctx, job.URL)
	if err != nil {
		return err
	}
	s.status(fmt.Sprintf("Downloading: %s", meta.Title), SeverityInfo)
	return s.fetcher.Transfer(ctx, job.URL, opts, s.forwardProgress)
}

// forwardProgress normalizes raw fetcher counters. An unknown total yields
// zero percent rather than a division fault; speed and ETA strings may
// carry terminal control sequences and are stripped here.
func (s *session) forwardProgress(tp domain.TransferProgress) {
	var percent float64
	if tp.TotalBytes > 0 {
		percent = float64(tp.BytesDone) / float64(tp.TotalBytes) * 100
		if percent > 100 {
			percent = 100
		}
	}
	size := ""
	if tp.TotalBytes > 0 {
		size = humanize.IBytes(uint64(tp.TotalBytes))
	}
	s.progress(Progress{
		Percent: percent,
		Speed:   stripANSI(tp.Speed),
		ETA:     stripANSI(tp.ETA),
		Size:    size,
	})
}
