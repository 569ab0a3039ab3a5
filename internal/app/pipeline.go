package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-blog-pipeline/internal/logger"
	"github.com/samvad-hq/samvad-blog-pipeline/pkg/publishers"
	"github.com/samvad-hq/samvad-blog-pipeline/pkg/retry"
)

const slugRunes = 48

// ContentGenerator produces a draft post, steering away from avoid topics.
type ContentGenerator interface {
	Generate(ctx context.Context, avoid []string) (domain.Draft, error)
}

// TopicLedger is the durable set of topics already published.
type TopicLedger interface {
	Collides(topic string) bool
	Record(topic string) error
	Recent(n int) []string
}

// ImageSource obtains the post image.
type ImageSource interface {
	Acquire(ctx context.Context, topic string) (domain.ImageAsset, error)
	Fallback(topic string) (domain.ImageAsset, error)
}

// ImageNormalizer fits an image into size and dimension ceilings.
type ImageNormalizer interface {
	Normalize(asset domain.ImageAsset, c domain.Constraints) (domain.ImageAsset, error)
}

// ImageHost stages an image at a public URL.
type ImageHost interface {
	Upload(ctx context.Context, asset domain.ImageAsset) (string, error)
}

// ContentPublisher creates the post on the CMS.
type ContentPublisher interface {
	Publish(ctx context.Context, post domain.Post) (domain.PostHandle, error)
}

// Promoter fans the published post out to social targets.
type Promoter interface {
	Promote(ctx context.Context, p publishers.Promotion) map[string]domain.Outcome
}

// MediaArchive keeps a local copy of every acquired image.
type MediaArchive interface {
	Save(asset domain.ImageAsset, topic string) (string, error)
	Sweep() (int, error)
}

// PipelineOptions bounds a run.
type PipelineOptions struct {
	// TopicRetries is how many times a colliding topic is regenerated before
	// it is accepted anyway.
	TopicRetries     int
	GenerateAttempts int
	GenerateTimeout  time.Duration
	// AvoidRecent is how many recent topics are passed to the generator.
	AvoidRecent int
	Constraints domain.Constraints
}

// Pipeline runs Start → TopicSelected → ImageReady → ImageHosted → Published
// → Promoted → Done once per call. Any failure before Published aborts the run
// and leaves the ledger untouched.
type Pipeline struct {
	generator  ContentGenerator
	ledger     TopicLedger
	images     ImageSource
	normalizer ImageNormalizer
	host       ImageHost
	cms        ContentPublisher
	promoter   Promoter
	archive    MediaArchive
	opts       PipelineOptions
	log        logger.Logger
	now        func() time.Time
}

// Deps groups the collaborators of a Pipeline. Archive and Promoter may be nil.
type Deps struct {
	Generator  ContentGenerator
	Ledger     TopicLedger
	Images     ImageSource
	Normalizer ImageNormalizer
	Host       ImageHost
	CMS        ContentPublisher
	Promoter   Promoter
	Archive    MediaArchive
}

// NewPipeline validates deps and builds a Pipeline.
func NewPipeline(deps Deps, opts PipelineOptions, log logger.Logger) (*Pipeline, error) {
	switch {
	case deps.Generator == nil:
		return nil, errors.New("pipeline requires a content generator")
	case deps.Ledger == nil:
		return nil, errors.New("pipeline requires a topic ledger")
	case deps.Images == nil:
		return nil, errors.New("pipeline requires an image source")
	case deps.Normalizer == nil:
		return nil, errors.New("pipeline requires an image normalizer")
	case deps.Host == nil:
		return nil, errors.New("pipeline requires an image host")
	case deps.CMS == nil:
		return nil, errors.New("pipeline requires a content publisher")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if opts.GenerateAttempts <= 0 {
		opts.GenerateAttempts = 1
	}
	if opts.TopicRetries < 0 {
		opts.TopicRetries = 0
	}
	return &Pipeline{
		generator:  deps.Generator,
		ledger:     deps.Ledger,
		images:     deps.Images,
		normalizer: deps.Normalizer,
		host:       deps.Host,
		cms:        deps.CMS,
		promoter:   deps.Promoter,
		archive:    deps.Archive,
		opts:       opts,
		log:        log,
		now:        time.Now,
	}, nil
}

// Run executes one pipeline pass and returns its result. It never panics on
// collaborator errors; the outcome is carried in the result.
func (p *Pipeline) Run(ctx context.Context) (res domain.RunResult) {
	res = domain.RunResult{State: domain.StateStart, StartedAt: p.now()}
	defer func() {
		res.FinishedAt = p.now()
		summary := res.Summary()
		if res.Status() == domain.RunAborted {
			p.log.ErrorObj("run finished", "run", summary)
			return
		}
		p.log.InfoObj("run finished", "run", summary)
	}()

	p.sweepArchive()

	if err := ctx.Err(); err != nil {
		return p.abort(res, "select topic", err)
	}
	draft, err := p.selectTopic(ctx)
	if err != nil {
		return p.abort(res, "select topic", err)
	}
	res.Topic = draft.Topic
	res.State = domain.StateTopicSelected
	p.transition(res)

	if err := ctx.Err(); err != nil {
		return p.abort(res, "prepare image", err)
	}
	asset, err := p.prepareImage(ctx, draft.Topic)
	if err != nil {
		return p.abort(res, "prepare image", err)
	}
	res.ImageSource = asset.Source
	res.State = domain.StateImageReady
	p.transition(res)

	if err := ctx.Err(); err != nil {
		return p.abort(res, "host image", err)
	}
	asset.Name = domain.Slugify(draft.Topic, slugRunes) + asset.Extension()
	imageURL, err := p.host.Upload(ctx, asset)
	if err != nil {
		return p.abort(res, "host image", err)
	}
	res.State = domain.StateImageHosted
	p.transition(res)

	if err := ctx.Err(); err != nil {
		return p.abort(res, "publish post", err)
	}
	post := domain.NewPost(draft, imageURL)
	handle, err := p.cms.Publish(ctx, post)
	if err != nil {
		return p.abort(res, "publish post", err)
	}
	res.PostURL = handle.URL
	res.State = domain.StatePublished
	p.transition(res)

	// The post is live from here on: nothing below can abort the run.
	if err := ctx.Err(); err != nil {
		p.log.WarnObj("run cancelled after publish, skipping promotion", "run_cancelled", map[string]any{
			"topic":    draft.Topic,
			"post_url": handle.URL,
			"error":    err.Error(),
		})
		p.record(draft.Topic)
		return res
	}

	if p.promoter != nil {
		res.Outcomes = p.promoter.Promote(ctx, publishers.NewPromotion(post, handle, &asset))
	}
	res.State = domain.StatePromoted
	p.transition(res)

	p.record(draft.Topic)
	res.State = domain.StateDone
	return res
}

// selectTopic generates drafts until one clears the ledger or the retry
// budget is spent, in which case the last colliding draft is accepted.
func (p *Pipeline) selectTopic(ctx context.Context) (domain.Draft, error) {
	avoid := p.ledger.Recent(p.opts.AvoidRecent)
	cfg := retry.Config{Attempts: p.opts.GenerateAttempts, Timeout: p.opts.GenerateTimeout}

	for attempt := 0; ; attempt++ {
		draft, err := retry.Do(ctx, cfg, func(ctx context.Context) (domain.Draft, error) {
			return p.generator.Generate(ctx, avoid)
		})
		if err != nil {
			return domain.Draft{}, err
		}
		if !p.ledger.Collides(draft.Topic) {
			return draft, nil
		}
		if attempt >= p.opts.TopicRetries {
			p.log.WarnObj("topic collision budget spent, accepting duplicate", "topic_collision", map[string]any{
				"topic":    draft.Topic,
				"attempts": attempt + 1,
			})
			return draft, nil
		}
		p.log.InfoObj("topic already covered, regenerating", "topic_collision", map[string]any{
			"topic":   draft.Topic,
			"attempt": attempt + 1,
		})
		avoid = append(avoid, draft.Topic)
		if err := ctx.Err(); err != nil {
			return domain.Draft{}, err
		}
	}
}

// prepareImage acquires, archives and normalizes the image. An infeasible
// generated image is swapped for one fallback; an infeasible fallback is fatal.
func (p *Pipeline) prepareImage(ctx context.Context, topic string) (domain.ImageAsset, error) {
	asset, err := p.images.Acquire(ctx, topic)
	if err != nil {
		return domain.ImageAsset{}, err
	}
	p.archiveAsset(asset, topic)

	fitted, err := p.normalizer.Normalize(asset, p.opts.Constraints)
	if err == nil {
		return fitted, nil
	}
	if !errors.Is(err, domain.ErrNormalizationInfeasible) || asset.Source == domain.SourceFallback {
		return domain.ImageAsset{}, err
	}

	p.log.WarnObj("generated image cannot be normalized, using fallback", "image_normalize", map[string]any{
		"topic": topic,
		"bytes": asset.Size(),
		"error": err.Error(),
	})
	fallback, ferr := p.images.Fallback(topic)
	if ferr != nil {
		return domain.ImageAsset{}, fmt.Errorf("fallback after infeasible normalization: %w", ferr)
	}
	p.archiveAsset(fallback, topic)
	return p.normalizer.Normalize(fallback, p.opts.Constraints)
}

func (p *Pipeline) archiveAsset(asset domain.ImageAsset, topic string) {
	if p.archive == nil {
		return
	}
	if _, err := p.archive.Save(asset, topic); err != nil {
		p.log.WarnObj("media archive save failed", "media_archive", map[string]any{
			"topic": topic,
			"error": err.Error(),
		})
	}
}

func (p *Pipeline) sweepArchive() {
	if p.archive == nil {
		return
	}
	if _, err := p.archive.Sweep(); err != nil {
		p.log.WarnObj("media archive sweep failed", "media_archive", err.Error())
	}
}

// record appends the topic; a failure only costs dedup quality.
func (p *Pipeline) record(topic string) {
	if err := p.ledger.Record(topic); err != nil {
		p.log.ErrorObj("topic ledger write failed", "ledger_error", map[string]any{
			"topic": topic,
			"error": err.Error(),
		})
	}
}

func (p *Pipeline) abort(res domain.RunResult, stage string, err error) domain.RunResult {
	res.Err = fmt.Errorf("%s: %w", stage, err)
	p.log.ErrorObj("run aborted", "run_aborted", map[string]any{
		"stage": stage,
		"from":  res.State.String(),
		"kind":  domain.KindOf(err).String(),
		"error": err.Error(),
	})
	res.State = domain.StateAborted
	return res
}

func (p *Pipeline) transition(res domain.RunResult) {
	p.log.DebugObj("pipeline state", "run_state", map[string]any{
		"state": res.State.String(),
		"topic": res.Topic,
	})
}
