package engine

import "sync"

// Severity hints at how a status message should be presented.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
)

// Progress is a normalized progress report for the current transfer.
type Progress struct {
	Percent float64 `json:"percent"`
	Speed   string  `json:"speed"`
	ETA     string  `json:"eta"`
	Size    string  `json:"size"`
}

// Observer receives engine lifecycle events. All notifications are
// fire-and-forget and are invoked from the engine goroutine; UI-bound
// observers must marshal onto their own thread.
type Observer interface {
	OnProgress(p Progress)
	OnStatus(message string, severity Severity)
	OnComplete(finished bool)
	OnStateChange(running, cancelling bool)
}

// observerSet is a registry of observers. Registration and notification
// may happen from different goroutines.
type observerSet struct {
	mu  sync.Mutex
	obs []Observer
}

func (s *observerSet) register(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obs = append(s.obs, o)
}

func (s *observerSet) deregister(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.obs {
		if cur == o {
			s.obs = append(s.obs[:i], s.obs[i+1:]...)
			return
		}
	}
}

func (s *observerSet) snapshot() []Observer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Observer, len(s.obs))
	copy(out, s.obs)
	return out
}
