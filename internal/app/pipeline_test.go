package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-blog-pipeline/internal/ledger"
	"github.com/samvad-hq/samvad-blog-pipeline/internal/storage"
	"github.com/samvad-hq/samvad-blog-pipeline/pkg/publishers"
)

type fakeGenerator struct {
	drafts []domain.Draft
	errs   []error
	calls  int
	avoids [][]string
}

func (g *fakeGenerator) Generate(_ context.Context, avoid []string) (domain.Draft, error) {
	i := g.calls
	g.calls++
	g.avoids = append(g.avoids, append([]string(nil), avoid...))
	if i < len(g.errs) && g.errs[i] != nil {
		return domain.Draft{}, g.errs[i]
	}
	if i >= len(g.drafts) {
		i = len(g.drafts) - 1
	}
	return g.drafts[i], nil
}

type fakeImages struct {
	generated   domain.ImageAsset
	acquireErr  error
	fallbackErr error
	fallbacks   int
}

func (f *fakeImages) Acquire(context.Context, string) (domain.ImageAsset, error) {
	if f.acquireErr != nil {
		return domain.ImageAsset{}, f.acquireErr
	}
	return f.generated, nil
}

func (f *fakeImages) Fallback(string) (domain.ImageAsset, error) {
	f.fallbacks++
	if f.fallbackErr != nil {
		return domain.ImageAsset{}, f.fallbackErr
	}
	return domain.ImageAsset{Data: []byte("fallback"), MimeType: "image/png", Name: "ai.png", Source: domain.SourceFallback}, nil
}

// fakeNormalizer fails for the listed sources and passes everything else through.
type fakeNormalizer struct {
	infeasible map[domain.SourceKind]bool
	calls      int
}

func (n *fakeNormalizer) Normalize(a domain.ImageAsset, _ domain.Constraints) (domain.ImageAsset, error) {
	n.calls++
	if n.infeasible[a.Source] {
		return domain.ImageAsset{}, domain.ErrNormalizationInfeasible
	}
	a.MimeType = "image/jpeg"
	return a, nil
}

type fakeHost struct {
	err   error
	names []string
}

func (h *fakeHost) Upload(_ context.Context, a domain.ImageAsset) (string, error) {
	h.names = append(h.names, a.Name)
	if h.err != nil {
		return "", h.err
	}
	return "https://cdn.example.com/" + a.Name, nil
}

type fakeCMS struct {
	err   error
	posts []domain.Post
	after func()
}

func (c *fakeCMS) Publish(_ context.Context, p domain.Post) (domain.PostHandle, error) {
	c.posts = append(c.posts, p)
	if c.after != nil {
		c.after()
	}
	if c.err != nil {
		return domain.PostHandle{}, c.err
	}
	return domain.PostHandle{ID: "1", URL: "https://blog.example.com/p/1"}, nil
}

type fakePromoter struct {
	calls int
	last  publishers.Promotion
	out   map[string]domain.Outcome
}

func (p *fakePromoter) Promote(_ context.Context, promo publishers.Promotion) map[string]domain.Outcome {
	p.calls++
	p.last = promo
	return p.out
}

type fakeArchive struct {
	saved []domain.SourceKind
	swept int
	err   error
}

func (a *fakeArchive) Save(asset domain.ImageAsset, _ string) (string, error) {
	a.saved = append(a.saved, asset.Source)
	return "", a.err
}

func (a *fakeArchive) Sweep() (int, error) {
	a.swept++
	return 0, nil
}

type brokenLedger struct {
	TopicLedger
}

func (brokenLedger) Record(string) error { return errors.New("disk full") }

type harness struct {
	gen      *fakeGenerator
	ledger   *ledger.Ledger
	images   *fakeImages
	norm     *fakeNormalizer
	host     *fakeHost
	cms      *fakeCMS
	promoter *fakePromoter
	archive  *fakeArchive
	opts     PipelineOptions
}

func newHarness() *harness {
	return &harness{
		gen: &fakeGenerator{drafts: []domain.Draft{{
			Title:  "Zero Trust for Small Teams",
			Topic:  "Zero Trust for Small Teams",
			Body:   "<p>Start with identity.</p>",
			Labels: []string{"Zero Trust", "AI"},
		}}},
		ledger:   ledger.New(storage.NewMemoryStore(), nil, ledger.Options{}),
		images:   &fakeImages{generated: domain.ImageAsset{Data: []byte("generated"), MimeType: "image/png", Name: "generated.png", Source: domain.SourceGenerated}},
		norm:     &fakeNormalizer{},
		host:     &fakeHost{},
		cms:      &fakeCMS{},
		promoter: &fakePromoter{out: map[string]domain.Outcome{"bluesky": domain.Published("at://1")}},
		archive:  &fakeArchive{},
		opts:     PipelineOptions{TopicRetries: 2, GenerateAttempts: 1, AvoidRecent: 10},
	}
}

func (h *harness) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	return h.pipelineWithLedger(t, h.ledger)
}

func (h *harness) pipelineWithLedger(t *testing.T, l TopicLedger) *Pipeline {
	t.Helper()
	p, err := NewPipeline(Deps{
		Generator:  h.gen,
		Ledger:     l,
		Images:     h.images,
		Normalizer: h.norm,
		Host:       h.host,
		CMS:        h.cms,
		Promoter:   h.promoter,
		Archive:    h.archive,
	}, h.opts, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

func TestPipelineHappyPath(t *testing.T) {
	h := newHarness()
	res := h.pipeline(t).Run(context.Background())

	if res.State != domain.StateDone || res.Status() != domain.RunSucceeded {
		t.Fatalf("state = %v status = %v err = %v", res.State, res.Status(), res.Err)
	}
	if res.ImageSource != domain.SourceGenerated || res.PostURL != "https://blog.example.com/p/1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if !h.ledger.Contains("zero trust for small teams") {
		t.Fatalf("topic not recorded")
	}
	if len(h.host.names) != 1 || h.host.names[0] != "zero-trust-for-small-teams.jpg" {
		t.Fatalf("uploaded names = %v", h.host.names)
	}
	if got := h.cms.posts[0].ImageURL; got != "https://cdn.example.com/zero-trust-for-small-teams.jpg" {
		t.Fatalf("post image url = %q", got)
	}
	if h.promoter.calls != 1 || h.promoter.last.URL != "https://blog.example.com/p/1" || h.promoter.last.Image == nil {
		t.Fatalf("unexpected promotion %+v", h.promoter.last)
	}
	if h.archive.swept != 1 || len(h.archive.saved) != 1 {
		t.Fatalf("archive swept=%d saved=%v", h.archive.swept, h.archive.saved)
	}
	if res.Outcomes["bluesky"].Status != domain.OutcomePublished {
		t.Fatalf("outcomes = %v", res.Outcomes)
	}
}

func TestPipelineRegeneratesCollidingTopic(t *testing.T) {
	h := newHarness()
	if err := h.ledger.Record("Zero Trust for Small Teams"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	h.gen.drafts = append(h.gen.drafts, domain.Draft{Title: "Edge AI", Topic: "Edge AI", Body: "<p>x</p>"})

	res := h.pipeline(t).Run(context.Background())
	if res.State != domain.StateDone || res.Topic != "Edge AI" {
		t.Fatalf("state = %v topic = %q", res.State, res.Topic)
	}
	if h.gen.calls != 2 {
		t.Fatalf("generator called %d times", h.gen.calls)
	}
	if last := h.gen.avoids[1]; len(last) != 2 || last[1] != "Zero Trust for Small Teams" {
		t.Fatalf("second call should avoid the colliding topic, got %v", last)
	}
}

func TestPipelineAcceptsCollisionWhenBudgetSpent(t *testing.T) {
	h := newHarness()
	_ = h.ledger.Record("Zero Trust for Small Teams")

	res := h.pipeline(t).Run(context.Background())
	if res.State != domain.StateDone || res.Topic != "Zero Trust for Small Teams" {
		t.Fatalf("state = %v topic = %q", res.State, res.Topic)
	}
	if h.gen.calls != h.opts.TopicRetries+1 {
		t.Fatalf("generator called %d times, want %d", h.gen.calls, h.opts.TopicRetries+1)
	}
}

func TestPipelineRetriesTransientGeneration(t *testing.T) {
	h := newHarness()
	h.opts.GenerateAttempts = 2
	h.gen.errs = []error{domain.Transient("generate content", errors.New("503"))}

	res := h.pipeline(t).Run(context.Background())
	if res.State != domain.StateDone || h.gen.calls != 2 {
		t.Fatalf("state = %v calls = %d err = %v", res.State, h.gen.calls, res.Err)
	}
}

func TestPipelineAbortsOnGenerationFailure(t *testing.T) {
	h := newHarness()
	h.opts.GenerateAttempts = 3
	h.gen.errs = []error{domain.Auth("generate content", errors.New("401"))}

	res := h.pipeline(t).Run(context.Background())
	if res.State != domain.StateAborted || domain.KindOf(res.Err) != domain.KindAuth {
		t.Fatalf("state = %v err = %v", res.State, res.Err)
	}
	if h.gen.calls != 1 {
		t.Fatalf("auth failures must not be retried, calls = %d", h.gen.calls)
	}
}

func TestPipelineFallsBackWhenGeneratedImageInfeasible(t *testing.T) {
	h := newHarness()
	h.norm.infeasible = map[domain.SourceKind]bool{domain.SourceGenerated: true}

	res := h.pipeline(t).Run(context.Background())
	if res.State != domain.StateDone || res.ImageSource != domain.SourceFallback {
		t.Fatalf("state = %v source = %v err = %v", res.State, res.ImageSource, res.Err)
	}
	if h.images.fallbacks != 1 || h.norm.calls != 2 {
		t.Fatalf("fallbacks = %d normalize calls = %d", h.images.fallbacks, h.norm.calls)
	}
	if len(h.archive.saved) != 2 {
		t.Fatalf("both images should be archived, got %v", h.archive.saved)
	}
}

func TestPipelineAbortsWhenFallbackInfeasible(t *testing.T) {
	h := newHarness()
	h.images.generated.Source = domain.SourceFallback
	h.norm.infeasible = map[domain.SourceKind]bool{domain.SourceFallback: true}

	res := h.pipeline(t).Run(context.Background())
	if res.State != domain.StateAborted || !errors.Is(res.Err, domain.ErrNormalizationInfeasible) {
		t.Fatalf("state = %v err = %v", res.State, res.Err)
	}
	if h.images.fallbacks != 0 || len(h.host.names) != 0 {
		t.Fatalf("fallback must not recurse and nothing may be uploaded")
	}
}

func TestPipelineAbortsWithoutImage(t *testing.T) {
	h := newHarness()
	h.images.acquireErr = domain.ErrNoImageAvailable

	res := h.pipeline(t).Run(context.Background())
	if res.State != domain.StateAborted || !errors.Is(res.Err, domain.ErrNoImageAvailable) {
		t.Fatalf("state = %v err = %v", res.State, res.Err)
	}
}

func TestPipelineAbortsOnUploadFailure(t *testing.T) {
	h := newHarness()
	h.host.err = domain.Auth("put s3 object", errors.New("access denied"))

	res := h.pipeline(t).Run(context.Background())
	if res.State != domain.StateAborted || res.Status() != domain.RunAborted {
		t.Fatalf("state = %v", res.State)
	}
	if len(h.cms.posts) != 0 || h.promoter.calls != 0 {
		t.Fatalf("nothing may be published after a failed upload")
	}
	if h.ledger.Contains("zero trust for small teams") {
		t.Fatalf("aborted run recorded its topic")
	}
}

func TestPipelineAbortsOnPublishFailure(t *testing.T) {
	h := newHarness()
	h.cms.err = domain.Rejected("insert blogger post", errors.New("content policy"))

	res := h.pipeline(t).Run(context.Background())
	if res.State != domain.StateAborted || !strings.Contains(res.Err.Error(), "publish post") {
		t.Fatalf("state = %v err = %v", res.State, res.Err)
	}
	if h.promoter.calls != 0 {
		t.Fatalf("promotion ran for an unpublished post")
	}
	if h.ledger.Contains("zero trust for small teams") {
		t.Fatalf("aborted run recorded its topic")
	}
}

type stubTarget struct {
	id  string
	err error
	mu  sync.Mutex
	n   int
}

func (s *stubTarget) ID() string                  { return s.id }
func (s *stubTarget) Type() string                { return "stub" }
func (s *stubTarget) Spec() publishers.TargetSpec { return publishers.TargetSpec{} }
func (s *stubTarget) Publish(context.Context, publishers.Message) (string, error) {
	s.mu.Lock()
	s.n++
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return "ref-" + s.id, nil
}

func TestPipelinePartialSocialFailureStillDone(t *testing.T) {
	h := newHarness()
	fanout := publishers.NewFanout([]publishers.Publisher{
		&stubTarget{id: "bluesky"},
		&stubTarget{id: "x", err: domain.Auth("x create post", errors.New("401"))},
		&stubTarget{id: "webhook"},
	}, nil, nil)

	p, err := NewPipeline(Deps{
		Generator: h.gen, Ledger: h.ledger, Images: h.images, Normalizer: h.norm,
		Host: h.host, CMS: h.cms, Promoter: fanout,
	}, h.opts, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	res := p.Run(context.Background())

	if res.State != domain.StateDone || res.Status() != domain.RunPartial {
		t.Fatalf("state = %v status = %v", res.State, res.Status())
	}
	if res.Outcomes["bluesky"].Status != domain.OutcomePublished || res.Outcomes["webhook"].Status != domain.OutcomePublished {
		t.Fatalf("outcomes = %+v", res.Outcomes)
	}
	if res.Outcomes["x"].Status != domain.OutcomeFailed || res.Outcomes["x"].Reason == "" {
		t.Fatalf("x outcome = %+v", res.Outcomes["x"])
	}
	if !h.ledger.Contains("zero trust for small teams") {
		t.Fatalf("topic must be recorded after a partial fanout")
	}
}

func TestPipelineCancelledAfterPublishSkipsPromotion(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.cms.after = cancel

	res := h.pipeline(t).Run(ctx)
	if res.State != domain.StatePublished || res.PostURL == "" {
		t.Fatalf("state = %v post = %q", res.State, res.PostURL)
	}
	if h.promoter.calls != 0 {
		t.Fatalf("promotion should be skipped after cancellation")
	}
	if !h.ledger.Contains("zero trust for small teams") {
		t.Fatalf("published topic must still be recorded")
	}
	if res.Status() != domain.RunPartial {
		t.Fatalf("status = %v", res.Status())
	}
}

func TestPipelineCancelledBeforeStartAborts(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.pipeline(t).Run(ctx)
	if res.State != domain.StateAborted || !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("state = %v err = %v", res.State, res.Err)
	}
	if len(h.cms.posts) != 0 {
		t.Fatalf("nothing may be published after cancellation")
	}
}

func TestPipelineLedgerWriteFailureKeepsDone(t *testing.T) {
	h := newHarness()
	res := h.pipelineWithLedger(t, brokenLedger{TopicLedger: h.ledger}).Run(context.Background())
	if res.State != domain.StateDone {
		t.Fatalf("state = %v err = %v", res.State, res.Err)
	}
}

func TestPipelineArchiveFailureIsBestEffort(t *testing.T) {
	h := newHarness()
	h.archive.err = errors.New("read-only fs")
	if res := h.pipeline(t).Run(context.Background()); res.State != domain.StateDone {
		t.Fatalf("state = %v err = %v", res.State, res.Err)
	}
}

func TestNewPipelineRequiresCollaborators(t *testing.T) {
	if _, err := NewPipeline(Deps{}, PipelineOptions{}, nil); err == nil {
		t.Fatalf("expected error for missing collaborators")
	}
}
