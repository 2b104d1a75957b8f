// Package fetch retrieves remote bundles.
package fetch

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"

	"github.com/MosesMendoza/packaging-cli/pkg"
	"github.com/MosesMendoza/packaging-cli/pkg/logging"
)

// DefaultTimeout bounds a whole download
const DefaultTimeout = 30 * time.Minute

// Downloader writes HTTP responses to local files
type Downloader struct {
	Client *http.Client
	Quiet  bool
}

// NewDownloader returns a Downloader with the given timeout (DefaultTimeout if zero)
func NewDownloader(timeout time.Duration, quiet bool) *Downloader {
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Downloader{
		Client: &http.Client{Timeout: timeout},
		Quiet:  quiet,
	}
}

// Download stores the body of url in dest. dest is created or truncated.
func (d *Downloader) Download(ctx context.Context, url, dest string) error {
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrapf(err, "Failed to build request for %s", url)
	}

	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrapf(err, "Failed to start download for %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return eris.Errorf("Download of %s failed with status %s", url, resp.Status)
	}

	handle, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "Failed to create %s", dest)
	}
	defer handle.Close()

	bar := pkg.GetProgressBar(resp.ContentLength, "     download", d.Quiet)
	written, err := io.Copy(io.MultiWriter(handle, bar), resp.Body)
	bar.Finish()
	if err != nil {
		return eris.Wrapf(err, "Failed during download of %s", url)
	}

	if err = handle.Close(); err != nil {
		return eris.Wrapf(err, "Failed to write download to file %s", dest)
	}

	logging.Log(ctx).Debug().
		Str("url", url).
		Str("path", dest).
		Int64("bytes", written).
		Msg("download finished")

	return nil
}
