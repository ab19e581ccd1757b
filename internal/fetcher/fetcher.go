// Package fetcher downloads reference data over HTTPS with per-host rate
// limits and transient-failure retries. The harmonizer uses it for the
// country members list; raw indicator files are expected on disk.
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body. The caller
	// closes it.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL into path and returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
