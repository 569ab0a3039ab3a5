// Package retry runs calls through a bounded failsafe-go retry policy that only
// retries transient failures.
package retry

import (
	"context"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
)

// Config bounds a retried call.
type Config struct {
	// Attempts is the total number of tries, including the first.
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Timeout bounds each attempt individually. Zero means no per-attempt limit.
	Timeout time.Duration
}

const (
	defaultBaseDelay = 500 * time.Millisecond
	defaultMaxDelay  = 8 * time.Second
)

func normalize(cfg Config) Config {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	return cfg
}

// NewPolicy builds a retry policy that retries only domain.IsTransient errors
// and returns the last failure unwrapped once attempts run out.
func NewPolicy[T any](cfg Config) retrypolicy.RetryPolicy[T] {
	cfg = normalize(cfg)
	return retrypolicy.NewBuilder[T]().
		WithMaxAttempts(cfg.Attempts).
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithJitterFactor(0.1).
		HandleIf(func(_ T, err error) bool {
			return domain.IsTransient(err)
		}).
		ReturnLastFailure().
		Build()
}

// Do runs fn until it succeeds, fails permanently, or attempts run out.
func Do[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = normalize(cfg)
	policy := NewPolicy[T](cfg)
	return failsafe.With[T](policy).WithContext(ctx).Get(func() (T, error) {
		if cfg.Timeout <= 0 {
			return fn(ctx)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		return fn(attemptCtx)
	})
}
