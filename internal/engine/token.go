package engine

import "sync"

// Token signals cooperative cancellation to a running drain. It is checked
// at the top of the queue loop, before each attempt, and during backoff
// sleeps; there is no forced termination.
type Token struct {
	once sync.Once
	done chan struct{}
}

// NewToken returns an uncancelled token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel marks the token. Safe to call more than once.
func (t *Token) Cancel() {
	t.once.Do(func() { close(t.done) })
}

// Done returns a channel closed on cancellation, for use in selects.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
