// Package processor contains the ItemProcessor implementations plugged into
// the batch engine: report download and artifact upload.
package processor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fleetops/reportsync/internal/batch"
)

// Download fetches a candidate's report file over HTTP and persists it into
// the entity's namespace. Files are named "<key>_<source basename>" so the
// period is recoverable from the name alone.
type Download struct {
	client *http.Client
	store  batch.ArtifactStore
	logger *zap.Logger
}

// NewDownload constructs a Download processor. A nil client gets a default
// with a 30s timeout.
func NewDownload(client *http.Client, store batch.ArtifactStore, logger *zap.Logger) (*Download, error) {
	if store == nil {
		return nil, fmt.Errorf("artifact store is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Download{client: client, store: store, logger: logger}, nil
}

// Process implements batch.ItemProcessor. Re-downloading an existing artifact
// overwrites it in place, so retrying across runs cannot corrupt state.
func (d *Download) Process(ctx context.Context, entity batch.Entity, cand batch.Candidate) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cand.Locator, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", cand.Locator, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", cand.Locator, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("download %s: unexpected status %d", cand.Locator, resp.StatusCode)
	}

	name := fmt.Sprintf("%s_%s", cand.Key, sourceBasename(cand.Locator))
	uri, err := d.store.Put(ctx, entity.Namespace, name, resp.Header.Get("Content-Type"), resp.Body)
	if err != nil {
		return fmt.Errorf("persist %s: %w", name, err)
	}
	d.logger.Info("report downloaded",
		zap.String("entity_id", entity.ID),
		zap.String("key", string(cand.Key)),
		zap.String("format", cand.Format),
		zap.String("uri", uri),
	)
	return nil
}

// sourceBasename extracts a safe filename from the locator URL, dropping the
// query string.
func sourceBasename(locator string) string {
	if u, err := url.Parse(locator); err == nil && u.Path != "" {
		if base := path.Base(u.Path); base != "." && base != "/" {
			return base
		}
	}
	base := locator
	if i := strings.IndexByte(base, '?'); i >= 0 {
		base = base[:i]
	}
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if base == "" {
		return "report.csv"
	}
	return base
}
