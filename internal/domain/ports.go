package domain

import "context"

// Metadata is the result of a metadata-only probe, no download.
type Metadata struct {
	Title string
}

// TransferProgress carries raw counters as reported by the fetcher. Speed
// and ETA are display strings and may embed terminal control sequences.
type TransferProgress struct {
	BytesDone  int64
	TotalBytes int64 // 0 when the total size is unknown
	Speed      string
	ETA        string
}

// Fetcher is the driven port for media resolution and byte transfer.
type Fetcher interface {
	Resolve(ctx context.Context, url string) (*Metadata, error)
	Transfer(ctx context.Context, url string, opts TransferOptions, progress func(TransferProgress)) error
	// Abort asks the fetcher to stop the active transfer. It is requested
	// at most once per transfer and must be safe to call when idle.
	Abort()
}

// ToolValidator is the driven port for checking an external conversion
// tool is invocable.
type ToolValidator interface {
	IsExecutableValid(path string) bool
}

// Snapshotter is the driven port for durable queue-state persistence.
// Save rewrites the whole ordered collection.
type Snapshotter interface {
	Save(jobs []Job) error
	Load() ([]Job, error)
}

// Archiver is the driven port for the outcome history. Implementations
// must tolerate being called from the engine goroutine.
type Archiver interface {
	RecordOutcome(ctx context.Context, job Job, outcome, reason string) error
	AddEvent(ctx context.Context, level, message string) error
}
