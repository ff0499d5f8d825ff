package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"subtitle-pipeline-go/internal/remote"
)

// Downloader streams source assets to local storage with a bounded timeout.
type Downloader struct {
	httpc   *http.Client
	timeout time.Duration
}

func NewDownloader(timeout time.Duration) *Downloader {
	return &Downloader{
		httpc:   &http.Client{},
		timeout: timeout,
	}
}

// Fetch streams assetURL to destPath. A usable local copy short-circuits the
// call, which is what makes re-runs idempotent. The write goes through a
// temp file so a half-finished download never passes the usability check.
func (d *Downloader) Fetch(ctx context.Context, assetURL, destPath string) error {
	if fileUsable(destPath) {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return remote.Fatal("download", err)
	}
	resp, err := d.httpc.Do(req)
	if err != nil {
		return remote.RateLimited("download", err)
	}
	defer resp.Body.Close()
	if err := remote.FromStatus("download", resp.StatusCode, resp.Status); err != nil {
		return err
	}

	tmp := destPath + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return remote.RateLimited("download", fmt.Errorf("stream %s: %w", assetURL, err))
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, destPath); err != nil {
		return fmt.Errorf("finalize %s: %w", destPath, err)
	}
	return nil
}

// fileUsable reports whether path exists with any content.
func fileUsable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
