// Package media keeps a local copy of each run's image and prunes old copies.
package media

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-blog-pipeline/internal/logger"
)

// Archive stores images under dir and deletes them after retention.
// An empty dir disables it.
type Archive struct {
	dir       string
	retention time.Duration
	log       logger.Logger
	now       func() time.Time
}

// NewArchive builds an Archive. retention <= 0 keeps files forever.
func NewArchive(dir string, retention time.Duration, log logger.Logger) *Archive {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Archive{dir: dir, retention: retention, log: log, now: time.Now}
}

// Enabled reports whether a directory is configured.
func (a *Archive) Enabled() bool { return a != nil && a.dir != "" }

// Save writes asset to the archive and returns its path.
func (a *Archive) Save(asset domain.ImageAsset, topic string) (string, error) {
	if !a.Enabled() {
		return "", nil
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s_%s%s",
		a.now().UTC().Format("20060102_1504"),
		domain.Slugify(topic, 48),
		asset.Source,
		asset.Extension(),
	)
	path := filepath.Join(a.dir, name)
	if err := os.WriteFile(path, asset.Data, 0o644); err != nil {
		return "", fmt.Errorf("write archived image: %w", err)
	}
	return path, nil
}

// Sweep deletes regular files older than the retention window and returns
// how many were removed. Individual delete failures are logged and skipped.
func (a *Archive) Sweep() (int, error) {
	if !a.Enabled() || a.retention <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read media dir: %w", err)
	}

	cutoff := a.now().Add(-a.retention)
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(a.dir, e.Name())
		if err := os.Remove(path); err != nil {
			a.log.WarnObj("failed to delete archived media", "media_error", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		removed++
	}
	if removed > 0 {
		a.log.InfoObj("old media deleted", "media_sweep", map[string]any{
			"dir":     a.dir,
			"removed": removed,
		})
	}
	return removed, nil
}
