package domain

import (
	"errors"
	"fmt"
	"regexp"
)

// JobStatus represents the reported state of a job. It is informational
// only; engine behavior is driven by queue membership and RetryCount.
type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusDownloading JobStatus = "downloading"
	StatusComplete    JobStatus = "complete"
	StatusFailed      JobStatus = "failed"
)

// MediaKind selects the download mode for a job.
type MediaKind string

const (
	KindVideo MediaKind = "video"
	KindAudio MediaKind = "audio"
)

// Closed value sets for job options. Quality is kind-specific.
var (
	VideoQualities = []string{"Best", "1080p", "720p", "480p", "360p"}
	AudioQualities = []string{"128k", "192k", "256k", "320k"}
	AudioFormats   = []string{"mp3", "aac", "wav", "m4a"}
)

var (
	ErrInvalidURL      = errors.New("invalid URL")
	ErrInvalidJob      = errors.New("invalid job")
	ErrInvalidTool     = errors.New("conversion tool is not usable")
	ErrIndexOutOfRange = errors.New("queue index out of range")
)

// Job describes one requested download.
type Job struct {
	URL         string    `json:"url"`
	DestDir     string    `json:"dest_dir"`
	ToolPath    string    `json:"tool_path"`
	MediaKind   MediaKind `json:"media_kind"`
	Quality     string    `json:"quality"`
	AudioFormat string    `json:"audio_format,omitempty"`
	RetryCount  int       `json:"retry_count"`
	Status      JobStatus `json:"status"`
}

var urlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(https?://)?(www\.)?youtube\.com/watch\?v=`),
	regexp.MustCompile(`^(https?://)?(www\.)?youtu\.be/`),
	regexp.MustCompile(`^(https?://)?(www\.)?youtube\.com/playlist\?list=`),
}

// ValidURL reports whether url has an accepted shape.
func ValidURL(url string) bool {
	for _, p := range urlPatterns {
		if p.MatchString(url) {
			return true
		}
	}
	return false
}

// Validate checks the job's shape against the closed option sets. It does
// not touch the filesystem; path and tool validation happen at admission.
func (j *Job) Validate() error {
	if !ValidURL(j.URL) {
		return ErrInvalidURL
	}
	if j.DestDir == "" {
		return fmt.Errorf("%w: destination directory is required", ErrInvalidJob)
	}
	switch j.MediaKind {
	case KindVideo:
		if !contains(VideoQualities, j.Quality) {
			return fmt.Errorf("%w: unknown video quality %q", ErrInvalidJob, j.Quality)
		}
	case KindAudio:
		if !contains(AudioQualities, j.Quality) {
			return fmt.Errorf("%w: unknown audio quality %q", ErrInvalidJob, j.Quality)
		}
		if !contains(AudioFormats, j.AudioFormat) {
			return fmt.Errorf("%w: unknown audio format %q", ErrInvalidJob, j.AudioFormat)
		}
	default:
		return fmt.Errorf("%w: unknown media kind %q", ErrInvalidJob, j.MediaKind)
	}
	if j.RetryCount < 0 {
		return fmt.Errorf("%w: negative retry count", ErrInvalidJob)
	}
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
