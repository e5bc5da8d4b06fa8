package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Downloader fetches remote images into a local directory
type Downloader struct {
	client   *http.Client
	dir      string
	maxBytes int64
	logger   *slog.Logger
}

// NewDownloader creates a Downloader with a per-request timeout
func NewDownloader(dir string, timeout time.Duration, maxBytes int64, logger *slog.Logger) *Downloader {
	return &Downloader{
		client:   &http.Client{Timeout: timeout},
		dir:      dir,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Fetch downloads rawURL to "<dir>/<name>.<subtype>" and returns the path.
// The content type is checked before anything is written.
func (d *Downloader) Fetch(ctx context.Context, rawURL, name string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &ImageError{URL: rawURL, Err: fmt.Errorf("%w: %v", ErrInvalidURL, err)}
	}
	req.Header.Set("Accept", "image/*")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("Image download failed",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return "", &ImageError{URL: rawURL, Err: fmt.Errorf("%w: %v", ErrDownloadFailed, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.logger.Warn("Image download returned non-success status",
			slog.String("url", rawURL),
			slog.Int("status", resp.StatusCode),
		)
		return "", &ImageError{URL: rawURL, Err: fmt.Errorf("%w: status %d", ErrDownloadFailed, resp.StatusCode)}
	}

	contentType := resp.Header.Get("Content-Type")
	ext, ok := imageExtension(contentType)
	if !ok {
		d.logger.Warn("Downloaded resource is not an image",
			slog.String("url", rawURL),
			slog.String("content_type", contentType),
		)
		return "", &ImageError{URL: rawURL, Err: fmt.Errorf("%w: content type %q", ErrNotAnImage, contentType)}
	}

	path := filepath.Join(d.dir, name+"."+ext)
	written, err := d.save(path, resp.Body)
	if err != nil {
		os.Remove(path)
		return "", &ImageError{URL: rawURL, Err: fmt.Errorf("%w: %v", ErrDownloadFailed, err)}
	}

	d.logger.Debug("Image downloaded",
		slog.String("url", rawURL),
		slog.String("path", path),
		slog.Int64("bytes", written),
	)

	return path, nil
}

func (d *Downloader) save(path string, body io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}

	src := body
	if d.maxBytes > 0 {
		src = io.LimitReader(body, d.maxBytes+1)
	}

	written, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return written, err
	}
	if d.maxBytes > 0 && written > d.maxBytes {
		return written, fmt.Errorf("image exceeds %d bytes", d.maxBytes)
	}
	return written, nil
}

// imageExtension turns "image/jpeg; charset=binary" into "jpeg".
func imageExtension(contentType string) (string, bool) {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if !strings.HasPrefix(mediaType, "image/") {
		return "", false
	}

	subtype := strings.TrimPrefix(mediaType, "image/")
	if i := strings.IndexByte(subtype, ';'); i >= 0 {
		subtype = subtype[:i]
	}
	subtype = strings.TrimSpace(subtype)

	ext := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '+', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, subtype)
	ext = strings.Trim(ext, ".")
	if ext == "" {
		ext = "img"
	}
	return ext, true
}
