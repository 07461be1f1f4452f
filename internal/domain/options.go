package domain

import (
	"path/filepath"
	"strings"
)

// Fixed per-transfer resilience knobs handed to the fetcher. These are
// not user-tunable.
const (
	TransferRetries         = 10
	TransferFragmentRetries = 10
)

// TransferOptions is the deterministic option set handed to the Fetcher
// for one attempt.
type TransferOptions struct {
	OutputTemplate  string
	Format          string
	Retries         int
	FragmentRetries int
	SkipUnavailable bool
	ToolPath        string

	// Audio post-processing, meaningful only when ExtractAudio is set.
	ExtractAudio bool
	AudioCodec   string
	AudioQuality string
}

// TransferOptionsFor derives the fetcher options for a job. The mapping is
// pure: same job, same options.
func TransferOptionsFor(j Job) TransferOptions {
	opts := TransferOptions{
		OutputTemplate:  filepath.Join(j.DestDir, "%(title)s.%(ext)s"),
		Retries:         TransferRetries,
		FragmentRetries: TransferFragmentRetries,
		SkipUnavailable: true,
		ToolPath:        j.ToolPath,
	}
	if j.MediaKind == KindAudio {
		opts.Format = "bestaudio/best"
		opts.ExtractAudio = true
		opts.AudioCodec = j.AudioFormat
		opts.AudioQuality = strings.TrimSuffix(j.Quality, "k")
		return opts
	}
	opts.Format = videoFormat(j.Quality)
	return opts
}

func videoFormat(quality string) string {
	if quality == "Best" || quality == "" {
		return "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
	}
	height := strings.TrimSuffix(quality, "p")
	return "bestvideo[height<=" + height + "][ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
}
