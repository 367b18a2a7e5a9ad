// Package fetch retrieves the raw survey files from the archive and
// caches them on disk, one directory per cycle.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/brookluers/chdtrend/internal/nhanes"
)

// Some CDC mirrors reject the default Go agent.
const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

// A cached file smaller than this is assumed to be a truncated or
// error-page download and is fetched again.
const minCachedSize = 1024

// Fetcher downloads cycle files into the raw data cache.
type Fetcher struct {
	base   string
	rawDir string
	client *http.Client
	log    *zap.Logger
}

// New returns a Fetcher rooted at rawDir, downloading from the
// archive at base.
func New(base, rawDir string, client *http.Client, log *zap.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{base: base, rawDir: rawDir, client: client, log: log}
}

// Run fetches every file for every cycle.  Individual failures are
// logged and skipped; the returned error reports only a cache that
// could not be created at all.
func (f *Fetcher) Run(ctx context.Context) error {

	if err := os.MkdirAll(f.rawDir, 0o755); err != nil {
		return fmt.Errorf("fetch: create cache dir: %w", err)
	}

	var fetched, skipped, failed int

	for _, cycle := range nhanes.ContinuousCycles() {
		dir := filepath.Join(f.rawDir, cycle)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("fetch: create cycle dir: %w", err)
		}
		f.log.Info("fetching cycle", zap.String("cycle", cycle))
		for _, comp := range nhanes.Components {
			url, err := nhanes.FileURL(f.base, cycle, comp)
			if err != nil {
				f.log.Warn("no url for component", zap.String("cycle", cycle),
					zap.String("component", comp), zap.Error(err))
				failed++
				continue
			}
			name, _ := nhanes.FileName(cycle, comp)
			switch err := f.fetchOne(ctx, url, filepath.Join(dir, name+".xpt")); {
			case err == errCached:
				skipped++
			case err != nil:
				// Non-fatal gap; the cycle surfaces downstream
				// with missing variables.
				f.log.Warn("download failed", zap.String("url", url), zap.Error(err))
				failed++
			default:
				f.log.Info("downloaded", zap.String("file", name+".xpt"))
				fetched++
			}
		}
	}

	// NHANES III ships as one fixed-width interview file.
	dir := filepath.Join(f.rawDir, nhanes.CycleIII)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fetch: create cycle dir: %w", err)
	}
	switch err := f.fetchOne(ctx, nhanes.AdultDatURL(f.base), filepath.Join(dir, nhanes.AdultDat)); {
	case err == errCached:
		skipped++
	case err != nil:
		f.log.Warn("download failed", zap.String("file", nhanes.AdultDat), zap.Error(err))
		failed++
	default:
		fetched++
	}

	f.log.Info("fetch complete", zap.Int("downloaded", fetched),
		zap.Int("cached", skipped), zap.Int("failed", failed))
	return nil
}

var errCached = fmt.Errorf("already cached")

// fetchOne downloads url to dest unless a plausible cached copy
// already exists.  Partial downloads are written to a temp file and
// renamed so an interrupted run never leaves a short file behind.
func (f *Fetcher) fetchOne(ctx context.Context, url, dest string) error {

	if fi, err := os.Stat(dest); err == nil && fi.Size() >= minCachedSize {
		return errCached
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil && n < minCachedSize {
		err = fmt.Errorf("got %d bytes", n)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
