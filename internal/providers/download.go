package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"video-pipeline/internal/types"
)

const userAgent = "Mozilla/5.0 (compatible; VideoPipeline/1.0)"

// Downloader fetches remote files with a size floor and ceiling.
type Downloader struct {
	Client   *http.Client
	MinBytes int64
	MaxBytes int64
}

// Download writes url to dst and returns the number of bytes written. A partial
// file is removed on failure.
func (d *Downloader) Download(ctx context.Context, url, dst string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.Client.Do(req)
	if err != nil {
		return 0, &types.ProviderError{Provider: "download", Op: "get", Err: err, Retryable: Retryable(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &types.ProviderError{
			Provider:  "download",
			Op:        "get",
			Err:       fmt.Errorf("HTTP %d", resp.StatusCode),
			Retryable: RetryableStatus(resp.StatusCode),
		}
	}

	f, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	limit := d.MaxBytes
	if limit <= 0 {
		limit = 50 * 1024 * 1024
	}
	n, err := io.Copy(f, io.LimitReader(resp.Body, limit+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > limit {
		err = &types.ValidationError{Subject: "download", Reason: fmt.Sprintf("larger than %d bytes", limit)}
	}
	if err == nil && n < d.MinBytes {
		err = &types.ValidationError{Subject: "download", Reason: fmt.Sprintf("file too small (%d bytes)", n)}
	}
	if err != nil {
		_ = os.Remove(dst)
		var ve *types.ValidationError
		if errors.As(err, &ve) {
			return n, err
		}
		return n, &types.ProviderError{Provider: "download", Op: "read", Err: err, Retryable: true}
	}
	return n, nil
}
