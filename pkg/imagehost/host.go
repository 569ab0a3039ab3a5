// Package imagehost uploads post images to public storage and returns a
// stable URL for each.
package imagehost

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-blog-pipeline/pkg/retry"
)

const (
	// Supported backends.
	TypeS3     = "s3"
	TypeGDrive = "gdrive"

	defaultAttempts = 3
)

// Logger defines the logging surface the host relies on.
type Logger interface {
	InfoObj(msg, key string, obj interface{})
	DebugObj(msg, key string, obj interface{})
	WarnObj(msg, key string, obj interface{})
	ErrorObj(msg, key string, obj interface{})
}

type noopLogger struct{}

func (noopLogger) InfoObj(string, string, interface{})  {}
func (noopLogger) DebugObj(string, string, interface{}) {}
func (noopLogger) WarnObj(string, string, interface{})  {}
func (noopLogger) ErrorObj(string, string, interface{}) {}

// backend stores one object under name and returns its public URL. Errors
// are already classified.
type backend interface {
	kind() string
	put(ctx context.Context, name string, asset domain.ImageAsset) (string, error)
}

// Host uploads assets through a backend with bounded retries on transient
// failures. Auth and rejection errors surface immediately.
type Host struct {
	backend  backend
	attempts int
	backoff  time.Duration
	now      func() time.Time
	log      Logger
}

// Config selects and configures a backend.
type Config struct {
	Type     string
	Attempts int
	S3       S3Config
	GDrive   GDriveConfig
}

// New builds the configured Host.
func New(ctx context.Context, cfg Config, log Logger) (*Host, error) {
	var (
		b   backend
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case TypeS3, "":
		b, err = newS3Backend(ctx, cfg.S3)
	case TypeGDrive:
		b, err = newGDriveBackend(ctx, cfg.GDrive)
	default:
		return nil, fmt.Errorf("unsupported image host type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return newHost(b, cfg.Attempts, log), nil
}

func newHost(b backend, attempts int, log Logger) *Host {
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	if log == nil {
		log = noopLogger{}
	}
	return &Host{backend: b, attempts: attempts, backoff: time.Second, now: time.Now, log: log}
}

// Upload stores asset and returns its public URL.
func (h *Host) Upload(ctx context.Context, asset domain.ImageAsset) (string, error) {
	if asset.Size() == 0 {
		return "", domain.Rejected("upload image", fmt.Errorf("asset is empty"))
	}
	name := ObjectName(h.now(), asset.Name, asset.Extension())

	url, err := retry.Do(ctx, retry.Config{Attempts: h.attempts, BaseDelay: h.backoff}, func(ctx context.Context) (string, error) {
		url, err := h.backend.put(ctx, name, asset)
		if err != nil && domain.IsTransient(err) {
			h.log.WarnObj("image upload attempt failed", "image_host_retry", map[string]any{
				"backend": h.backend.kind(),
				"object":  name,
				"error":   err.Error(),
			})
		}
		return url, err
	})
	if err != nil {
		return "", fmt.Errorf("upload %s to %s: %w", name, h.backend.kind(), err)
	}

	h.log.InfoObj("image uploaded", "image_host", map[string]any{
		"backend": h.backend.kind(),
		"object":  name,
		"url":     url,
		"bytes":   asset.Size(),
	})
	return url, nil
}

// ObjectName is <yyyymmdd_hhmm>_<slug>_<uuid8><ext>, where slug comes from
// the asset name without its extension.
func ObjectName(now time.Time, name, ext string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%s%s", now.UTC().Format("20060102_1504"), domain.Slugify(stem, 60), id, ext)
}
