package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"

	"github.com/hashicorp/go-retryablehttp"
)

// DefaultCacheMaxBytes bounds the size of a cached media file.
const DefaultCacheMaxBytes = 512 << 20

// cache downloads media into local files so that they can be opened by
// players that fail to stream them directly.
type cache struct {
	dir      string
	maxBytes int64
	client   *retryablehttp.Client
}

func newCache(dir string, maxBytes int64) *cache {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil

	if maxBytes <= 0 {
		maxBytes = DefaultCacheMaxBytes
	}

	return &cache{dir: dir, maxBytes: maxBytes, client: client}
}

// fetch downloads media and returns the path of the local copy. The
// caller owns the file.
func (c *cache) fetch(ctx context.Context, media *url.URL) (string, error) {
	if media.Scheme != "http" && media.Scheme != "https" {
		return "", fmt.Errorf("cache: unsupported scheme %q", media.Scheme)
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("cache: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, media.String(), nil)
	if err != nil {
		return "", fmt.Errorf("cache: create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("cache: download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("cache: download failed: %s", resp.Status)
	}

	f, err := os.CreateTemp(c.dir, "media-*"+path.Ext(media.Path))
	if err != nil {
		return "", fmt.Errorf("cache: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(resp.Body, c.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > c.maxBytes {
		err = fmt.Errorf("media exceeds %d bytes", c.maxBytes)
	}
	if err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("cache: %w", err)
	}

	return f.Name(), nil
}
