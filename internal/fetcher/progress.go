package fetcher

import (
	"regexp"
	"strconv"

	"github.com/dustin/go-humanize"

	"ytqueue/internal/domain"
)

// yt-dlp with --newline emits one progress line per update:
//   [download]  45.3% of 10.55MiB at 2.34MiB/s ETA 00:05
// The total may be estimated ("of ~10.55MiB") and speed/ETA may read
// "Unknown". Lines may carry color escapes when a tty is attached.
var (
	ansiRe     = regexp.MustCompile(`\x1b\[[0-?]*[ -/]*[@-~]`)
	progressRe = regexp.MustCompile(`^\[download\]\s+([0-9.]+)%\s+of\s+~?\s*(\S+)(?:\s+at\s+(\S+))?(?:\s+ETA\s+(\S+))?`)
)

// parseProgressLine extracts raw transfer counters from one yt-dlp output
// line. ok is false for non-progress lines.
func parseProgressLine(line string) (domain.TransferProgress, bool) {
	clean := ansiRe.ReplaceAllString(line, "")
	m := progressRe.FindStringSubmatch(clean)
	if m == nil {
		return domain.TransferProgress{}, false
	}
	percent, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return domain.TransferProgress{}, false
	}
	var total int64
	if bytes, err := humanize.ParseBytes(m[2]); err == nil {
		total = int64(bytes)
	}
	return domain.TransferProgress{
		BytesDone:  int64(percent / 100 * float64(total)),
		TotalBytes: total,
		Speed:      m[3],
		ETA:        m[4],
	}, true
}
