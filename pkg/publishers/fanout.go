package publishers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
)

// Normalizer fits an image into a target's constraints.
type Normalizer interface {
	Normalize(asset domain.ImageAsset, c domain.Constraints) (domain.ImageAsset, error)
}

// Fanout dispatches a promotion to all configured publishers.
type Fanout struct {
	publishers []Publisher
	normalizer Normalizer
	log        Logger
}

// NewFanout builds a dispatcher that fans out promotions across publishers.
// normalizer may be nil, in which case images are passed through only when
// they already fit.
func NewFanout(pubs []Publisher, normalizer Normalizer, log Logger) *Fanout {
	cp := make([]Publisher, 0, len(pubs))
	for _, p := range pubs {
		if p == nil {
			continue
		}
		cp = append(cp, p)
	}
	return &Fanout{publishers: cp, normalizer: normalizer, log: orDiscard(log)}
}

// Promote delivers p to every publisher concurrently and returns one outcome
// per target id. A failing target never stops the others and Promote never
// returns an error.
func (f *Fanout) Promote(ctx context.Context, p Promotion) map[string]domain.Outcome {
	if f == nil || len(f.publishers) == 0 {
		return map[string]domain.Outcome{}
	}

	results := make([]domain.Outcome, len(f.publishers))
	g := new(errgroup.Group)
	g.SetLimit(len(f.publishers))
	for i, pub := range f.publishers {
		g.Go(func() error {
			results[i] = f.deliver(ctx, pub, p)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]domain.Outcome, len(results))
	for i, pub := range f.publishers {
		out[pub.ID()] = results[i]
	}
	return out
}

func (f *Fanout) deliver(ctx context.Context, pub Publisher, p Promotion) (outcome domain.Outcome) {
	spec := pub.Spec()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			outcome = domain.Failed(fmt.Errorf("panic: %v", r))
		}
		fields := map[string]any{
			"target_id":   pub.ID(),
			"target_type": pub.Type(),
			"status":      outcome.Status,
			"took_ms":     time.Since(start).Milliseconds(),
		}
		if outcome.Status == domain.OutcomeFailed {
			fields["reason"] = outcome.Reason
			f.log.WarnObj("target promotion failed", "fanout_target_failed", fields)
			return
		}
		fields["ref"] = outcome.Ref
		f.log.InfoObj("target promotion delivered", "fanout_target", fields)
	}()

	if err := ctx.Err(); err != nil {
		return domain.Failed(fmt.Errorf("skipped: %w", err))
	}

	msg := Message{
		Text:        BuildMessage(p, spec.Style, spec.Limits),
		Link:        p.URL,
		Title:       p.Title,
		Description: describe(p),
		Image:       f.imageFor(pub, spec, p.Image),
		Promotion:   p,
	}

	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	ref, err := pub.Publish(ctx, msg)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = domain.Transient("promote "+pub.ID(), err)
		}
		return domain.Failed(err)
	}
	return domain.Published(ref)
}

// imageFor fits the shared asset to one target. Infeasible images degrade the
// post to text-only.
func (f *Fanout) imageFor(pub Publisher, spec TargetSpec, asset *domain.ImageAsset) *domain.ImageAsset {
	if !spec.Media || asset == nil || asset.Size() == 0 {
		return nil
	}
	c := spec.Limits.Constraints
	if c.Satisfied(*asset) {
		return asset
	}
	if f.normalizer == nil {
		f.log.WarnObj("image exceeds target limits, posting text only", "fanout_media_skipped", map[string]any{
			"target_id": pub.ID(),
			"bytes":     asset.Size(),
		})
		return nil
	}
	fitted, err := f.normalizer.Normalize(*asset, c)
	if err != nil {
		f.log.WarnObj("image normalization infeasible, posting text only", "fanout_media_skipped", map[string]any{
			"target_id": pub.ID(),
			"error":     err.Error(),
		})
		return nil
	}
	return &fitted
}

// Size returns the number of active publishers.
func (f *Fanout) Size() int {
	if f == nil {
		return 0
	}
	return len(f.publishers)
}

// Close releases publishers that hold connections.
func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, p := range f.publishers {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s publisher[%s]: %w", p.Type(), p.ID(), err))
			}
		}
	}
	return errors.Join(errs...)
}
