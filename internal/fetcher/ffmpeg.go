package fetcher

import (
	"os/exec"
	"strings"
)

// FFmpegValidator checks a conversion tool path by invoking it with a
// version query and looking for the ffmpeg signature in the output.
type FFmpegValidator struct{}

// IsExecutableValid reports whether path responds like an ffmpeg binary.
func (FFmpegValidator) IsExecutableValid(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	out, err := exec.Command(path, "-version").CombinedOutput()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), "ffmpeg version")
}
