package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"linkrelay/internal/domain"
)

const (
	DefaultYouTubeFormat = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/mp4"
	DefaultMaxFileBytes  = 50 * 1024 * 1024

	// outputTemplate names files after the upstream video id, which keeps
	// concurrent downloads in the shared temp dir apart.
	outputTemplate = "%(id)s.%(ext)s"
)

// YouTube downloads a single video with yt-dlp into a temp directory.
type YouTube struct {
	binary      string
	tempDir     string
	format      string
	maxFileSize int64
	logger      *slog.Logger
}

type YouTubeConfig struct {
	BinaryPath  string
	TempDir     string
	Format      string
	MaxFileSize int64
	Logger      *slog.Logger
}

func NewYouTube(cfg YouTubeConfig) *YouTube {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = "yt-dlp"
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.Format == "" {
		cfg.Format = DefaultYouTubeFormat
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &YouTube{
		binary:      cfg.BinaryPath,
		tempDir:     cfg.TempDir,
		format:      cfg.Format,
		maxFileSize: cfg.MaxFileSize,
		logger:      cfg.Logger,
	}
}

// command builds the yt-dlp invocation shared by every download.
func (y *YouTube) command() *ytdlp.Command {
	return ytdlp.New().
		SetExecutable(y.binary).
		Output(filepath.Join(y.tempDir, outputTemplate)).
		Format(y.format).
		NoPlaylist().
		Quiet().
		NoWarnings().
		NoProgress().
		MaxFileSize(strconv.FormatInt(y.maxFileSize, 10)).
		// Print the final path once the file is in place; also disables simulate.
		Print("after_move:filepath")
}

// Fetch downloads link and returns the local path of the produced file.
// Any failure is a *domain.DownloadError. The caller owns the returned file.
func (y *YouTube) Fetch(ctx context.Context, link string) (string, error) {
	if err := os.MkdirAll(y.tempDir, 0o755); err != nil {
		return "", &domain.DownloadError{URL: link, Reason: "create temp dir", Err: err}
	}

	start := time.Now()
	res, err := y.command().Run(ctx, link)
	if err != nil {
		return "", &domain.DownloadError{URL: link, Reason: failureReason(res), Err: err}
	}

	path := lastLine(res.Stdout)
	if path == "" {
		// yt-dlp skips oversized or unavailable formats without failing.
		return "", &domain.DownloadError{URL: link, Reason: "no file produced (size cap exceeded or no matching format)"}
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", &domain.DownloadError{URL: link, Reason: "output file missing", Err: err}
	}
	if info.Size() > y.maxFileSize {
		if rmErr := os.Remove(path); rmErr != nil {
			y.logger.Error("remove oversized file", "path", path, "err", rmErr)
		}
		return "", &domain.DownloadError{URL: link, Reason: fmt.Sprintf("file is %d bytes, cap is %d", info.Size(), y.maxFileSize)}
	}

	y.logger.Info("youtube download finished",
		"url", link,
		"path", path,
		"bytes", info.Size(),
		"duration", time.Since(start),
	)
	return path, nil
}

// failureReason prefers what yt-dlp wrote to stderr over the exit status.
// The result is nil when the binary could not be started at all.
func failureReason(res *ytdlp.Result) string {
	if res != nil {
		if reason := strings.TrimSpace(res.Stderr); reason != "" {
			return reason
		}
	}
	return "extractor failed"
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
