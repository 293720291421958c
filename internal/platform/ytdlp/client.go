package ytdlp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pullq/pullq/internal/task"
)

// DefaultBinary is the yt-dlp executable resolved from PATH.
const DefaultBinary = "yt-dlp"

// Client invokes yt-dlp. It implements task.Fetcher and task.TitleProber.
type Client struct {
	binary string
	logger *slog.Logger
}

// NewClient creates a Client using the given executable, or DefaultBinary
// when empty.
func NewClient(binary string, logger *slog.Logger) *Client {
	if binary == "" {
		binary = DefaultBinary
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		binary: binary,
		logger: logger,
	}
}

// Probe resolves the media title for a URL via `yt-dlp --print %(title)s`.
func (c *Client) Probe(ctx context.Context, url string) (string, error) {
	cmd := exec.CommandContext(ctx, c.binary, "--print", "%(title)s", url)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to probe title: %s", diagnostic(err, &stderr))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Fetch downloads and transcodes one URL into the requested format via
// `yt-dlp -x`. The request's rate limit, when set, is forwarded as
// --limit-rate; throttling itself is the tool's business.
func (c *Client) Fetch(ctx context.Context, req task.FetchRequest) error {
	if err := os.MkdirAll(req.DestDir, 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	outputTemplate := filepath.Join(req.DestDir, req.TitleHint+" [%(id)s].%(ext)s")

	args := []string{
		"-x",
		"--audio-format", string(req.Format),
		"-o", outputTemplate,
	}
	args = append(args, rateLimitArgs(req.RateLimit)...)
	args = append(args, req.URL)

	c.logger.Debug("invoking fetch tool",
		"binary", c.binary,
		"format", string(req.Format),
		"url", req.URL)

	cmd := exec.CommandContext(ctx, c.binary, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("fetch failed for format %s: %s", req.Format, diagnostic(err, &stderr))
	}
	return nil
}

// rateLimitArgs renders a MiB/s cap as yt-dlp's --limit-rate argument.
func rateLimitArgs(limit *float64) []string {
	if limit == nil {
		return nil
	}
	return []string{"--limit-rate", fmt.Sprintf("%.1fM", *limit)}
}

// diagnostic prefers the tool's stderr over the bare exec error.
func diagnostic(err error, stderr *bytes.Buffer) string {
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		return msg
	}
	return err.Error()
}
