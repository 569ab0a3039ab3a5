package publishers

import (
	"context"
	"time"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
)

// Publisher promotes a published post on one platform or sink.
type Publisher interface {
	ID() string
	Type() string
	Spec() TargetSpec
	// Publish delivers msg and returns a platform reference (post URI,
	// message id). Errors carry a domain.ErrorKind.
	Publish(ctx context.Context, msg Message) (string, error)
}

// TargetSpec is the per-target behaviour the fanout needs to build a message.
type TargetSpec struct {
	Limits  domain.Limits
	Style   string
	Media   bool
	Timeout time.Duration
}
