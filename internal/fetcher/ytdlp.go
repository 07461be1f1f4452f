// Package fetcher adapts yt-dlp as the engine's fetch capability: metadata
// probes, byte transfer with progress reporting, and cooperative abort.
package fetcher

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"ytqueue/internal/domain"
)

// Client runs yt-dlp as a subprocess. At most one transfer is active at a
// time; Abort kills it and sweeps partial output files.
type Client struct {
	bin string

	mu        sync.Mutex
	active    *exec.Cmd
	activeDir string
	aborted   bool
}

// NewClient creates a client invoking bin (default "yt-dlp").
func NewClient(bin string) *Client {
	if bin == "" {
		bin = "yt-dlp"
	}
	return &Client{bin: bin}
}

// Resolve probes metadata without downloading.
func (c *Client) Resolve(ctx context.Context, url string) (*domain.Metadata, error) {
	cmd := exec.CommandContext(ctx, c.bin, "--skip-download", "--no-warnings", "--print", "title", url)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp resolve failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	title, _, _ := strings.Cut(strings.TrimSpace(stdout.String()), "\n")
	if title == "" {
		return nil, fmt.Errorf("yt-dlp resolve returned no title for %s", url)
	}
	return &domain.Metadata{Title: title}, nil
}

// Transfer downloads url with the given options, forwarding parsed
// progress lines to the callback as they arrive.
func (c *Client) Transfer(ctx context.Context, url string, opts domain.TransferOptions, progress func(domain.TransferProgress)) error {
	args := append(transferArgs(opts), url)
	cmd := exec.CommandContext(ctx, c.bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("yt-dlp stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start yt-dlp: %w", err)
	}
	c.setActive(cmd, filepath.Dir(opts.OutputTemplate))
	defer c.clearActive()

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if tp, ok := parseProgressLine(scanner.Text()); ok && progress != nil {
			progress(tp)
		}
	}
	scanErr := scanner.Err()

	if err := cmd.Wait(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "transfer aborted"
		}
		return fmt.Errorf("yt-dlp failed: %w: %s", err, msg)
	}
	if scanErr != nil {
		return fmt.Errorf("yt-dlp output read: %w", scanErr)
	}
	return nil
}

// Abort kills the active transfer, if any, and removes partial artifacts
// best-effort. Requested at most once per transfer; safe when idle.
func (c *Client) Abort() {
	c.mu.Lock()
	cmd, dir := c.active, c.activeDir
	if cmd == nil || c.aborted {
		c.mu.Unlock()
		return
	}
	c.aborted = true
	c.mu.Unlock()

	if cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil {
			log.Printf("fetcher: kill transfer: %v", err)
		}
	}
	cleanupPartials(dir)
}

func (c *Client) setActive(cmd *exec.Cmd, dir string) {
	c.mu.Lock()
	c.active = cmd
	c.activeDir = dir
	c.aborted = false
	c.mu.Unlock()
}

func (c *Client) clearActive() {
	c.mu.Lock()
	c.active = nil
	c.activeDir = ""
	c.mu.Unlock()
}

// cleanupPartials removes yt-dlp working files left by an interrupted
// transfer. Failures are logged, not surfaced.
func cleanupPartials(dir string) {
	if dir == "" || dir == "." {
		return
	}
	for _, pattern := range []string{"*.part", "*.part-*", "*.ytdl"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		for _, m := range matches {
			if err := os.Remove(m); err != nil {
				log.Printf("fetcher: remove partial %s: %v", m, err)
			}
		}
	}
}

// transferArgs maps the deterministic option set onto a yt-dlp argv.
func transferArgs(opts domain.TransferOptions) []string {
	args := []string{
		"--newline",
		"--no-warnings",
		"-o", opts.OutputTemplate,
		"--retries", strconv.Itoa(opts.Retries),
		"--fragment-retries", strconv.Itoa(opts.FragmentRetries),
	}
	if opts.SkipUnavailable {
		args = append(args, "--skip-unavailable-fragments")
	}
	if opts.ToolPath != "" {
		args = append(args, "--ffmpeg-location", opts.ToolPath)
	}
	args = append(args, "-f", opts.Format)
	if opts.ExtractAudio {
		args = append(args, "-x", "--audio-format", opts.AudioCodec, "--audio-quality", opts.AudioQuality+"K")
	}
	return args
}
