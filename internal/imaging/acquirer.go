package imaging

import (
	"context"
	"fmt"
	"time"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-blog-pipeline/internal/logger"
	"github.com/samvad-hq/samvad-blog-pipeline/pkg/retry"
)

// ImageGenerator produces raw image bytes for a prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// AcquirerOptions bounds image generation.
type AcquirerOptions struct {
	Attempts int
	Timeout  time.Duration
	Backoff  time.Duration
	// PromptFormat is a fmt template receiving the topic.
	PromptFormat string
}

const defaultPromptFormat = "A detailed, photorealistic blog header illustration about %s. No text, no watermarks."

// Acquirer obtains the post image: generated first, fallback pool otherwise.
type Acquirer struct {
	gen  ImageGenerator
	pool *FallbackPool
	opts AcquirerOptions
	log  logger.Logger
}

// NewAcquirer wires an Acquirer. gen may be nil, in which case every
// acquisition uses the fallback pool.
func NewAcquirer(gen ImageGenerator, pool *FallbackPool, opts AcquirerOptions, log logger.Logger) *Acquirer {
	if log == nil {
		log = logger.NopLogger{}
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 2
	}
	if opts.PromptFormat == "" {
		opts.PromptFormat = defaultPromptFormat
	}
	return &Acquirer{gen: gen, pool: pool, opts: opts, log: log}
}

// Acquire returns a validated generated image, or a fallback image when
// generation fails for any reason. Only an empty fallback pool is fatal.
func (a *Acquirer) Acquire(ctx context.Context, topic string) (domain.ImageAsset, error) {
	if a.gen != nil {
		asset, err := a.generate(ctx, topic)
		if err == nil {
			return asset, nil
		}
		if ctx.Err() != nil {
			return domain.ImageAsset{}, ctx.Err()
		}
		a.log.WarnObj("image generation failed, using fallback", "image_error", map[string]any{
			"topic": topic,
			"kind":  domain.KindOf(err).String(),
			"error": err.Error(),
		})
	}
	return a.Fallback(topic)
}

// Fallback picks an image from the fallback pool.
func (a *Acquirer) Fallback(topic string) (domain.ImageAsset, error) {
	asset, err := a.pool.Pick(topic)
	if err != nil {
		return domain.ImageAsset{}, err
	}
	a.log.InfoObj("fallback image selected", "image", map[string]any{
		"topic": topic,
		"file":  asset.Name,
	})
	return asset, nil
}

func (a *Acquirer) generate(ctx context.Context, topic string) (domain.ImageAsset, error) {
	prompt := fmt.Sprintf(a.opts.PromptFormat, topic)
	cfg := retry.Config{
		Attempts:  a.opts.Attempts,
		BaseDelay: a.opts.Backoff,
		Timeout:   a.opts.Timeout,
	}
	return retry.Do(ctx, cfg, func(ctx context.Context) (domain.ImageAsset, error) {
		data, err := a.gen.GenerateImage(ctx, prompt)
		if err != nil {
			return domain.ImageAsset{}, err
		}
		w, h, mime, err := Inspect(data)
		if err != nil {
			return domain.ImageAsset{}, domain.Generation("validate image", err)
		}
		return domain.ImageAsset{
			Data:     data,
			Width:    w,
			Height:   h,
			MimeType: mime,
			Name:     "generated" + extFor(mime),
			Source:   domain.SourceGenerated,
		}, nil
	})
}

func extFor(mime string) string {
	return domain.ImageAsset{MimeType: mime}.Extension()
}
