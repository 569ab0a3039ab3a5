// Package domain contains the core models shared by the pipeline stages.
package domain

import (
	"strings"
	"time"
	"unicode"
)

// NormalizeTopic lower-cases the topic and collapses whitespace so that
// near-identical phrasings map to the same ledger key.
func NormalizeTopic(topic string) string {
	return strings.Join(strings.Fields(strings.ToLower(topic)), " ")
}

// Draft is what the content generator hands back before a topic is accepted.
type Draft struct {
	Title  string   `json:"title"`
	Topic  string   `json:"topic"`
	Body   string   `json:"body"`
	Labels []string `json:"labels"`
}

// Post is the blog entry sent to the CMS. Build it with NewPost.
type Post struct {
	Title    string
	Body     string
	Labels   []string
	ImageURL string
	Topic    string
}

// NewPost copies labels so the caller cannot mutate the post afterwards.
func NewPost(d Draft, imageURL string) Post {
	labels := make([]string, 0, len(d.Labels))
	for _, l := range d.Labels {
		if l = strings.TrimSpace(l); l != "" {
			labels = append(labels, l)
		}
	}
	title := strings.TrimSpace(d.Title)
	if title == "" {
		title = strings.TrimSpace(d.Topic)
	}
	return Post{
		Title:    title,
		Body:     d.Body,
		Labels:   labels,
		ImageURL: imageURL,
		Topic:    strings.TrimSpace(d.Topic),
	}
}

// PostHandle identifies a post accepted by the CMS.
type PostHandle struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// SourceKind records where an image came from.
type SourceKind int

const (
	SourceGenerated SourceKind = iota
	SourceFallback
)

func (k SourceKind) String() string {
	switch k {
	case SourceGenerated:
		return "generated"
	case SourceFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// ImageAsset is a decoded-size-aware image payload.
type ImageAsset struct {
	Data     []byte
	Width    int
	Height   int
	MimeType string
	Name     string
	Source   SourceKind
}

// Size returns the encoded byte size.
func (a ImageAsset) Size() int { return len(a.Data) }

// Extension returns the file extension matching MimeType.
func (a ImageAsset) Extension() string {
	switch a.MimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// Constraints are the ceilings an image must satisfy for a platform.
// Zero values mean "no limit" for that dimension.
type Constraints struct {
	MaxBytes  int `json:"max_image_bytes" yaml:"max_image_bytes"`
	MaxWidth  int `json:"max_image_width" yaml:"max_image_width"`
	MaxHeight int `json:"max_image_height" yaml:"max_image_height"`
}

// Satisfied reports whether an asset already fits every ceiling.
func (c Constraints) Satisfied(a ImageAsset) bool {
	if c.MaxBytes > 0 && a.Size() > c.MaxBytes {
		return false
	}
	if c.MaxWidth > 0 && a.Width > c.MaxWidth {
		return false
	}
	if c.MaxHeight > 0 && a.Height > c.MaxHeight {
		return false
	}
	return true
}

// IsZero reports whether no ceiling is configured.
func (c Constraints) IsZero() bool {
	return c.MaxBytes <= 0 && c.MaxWidth <= 0 && c.MaxHeight <= 0
}

// Limits is the per-target message and media configuration.
type Limits struct {
	MaxMessageLength int `json:"max_message_length" yaml:"max_message_length"`
	HashtagLimit     int `json:"hashtag_limit" yaml:"hashtag_limit"`
	Constraints      `yaml:",inline"`
}

// OutcomeStatus is the per-target result of a promotion.
type OutcomeStatus string

const (
	OutcomePublished OutcomeStatus = "published"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Outcome is recorded for every social target in a run.
type Outcome struct {
	Status OutcomeStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
	Ref    string        `json:"ref,omitempty"`
}

// Published builds a successful outcome.
func Published(ref string) Outcome {
	return Outcome{Status: OutcomePublished, Ref: ref}
}

// Failed builds a failed outcome from err.
func Failed(err error) Outcome {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	return Outcome{Status: OutcomeFailed, Reason: reason}
}

// RunState is a pipeline state machine node.
type RunState int

const (
	StateStart RunState = iota
	StateTopicSelected
	StateImageReady
	StateImageHosted
	StatePublished
	StatePromoted
	StateDone
	StateAborted
)

func (s RunState) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateTopicSelected:
		return "topic_selected"
	case StateImageReady:
		return "image_ready"
	case StateImageHosted:
		return "image_hosted"
	case StatePublished:
		return "published"
	case StatePromoted:
		return "promoted"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// RunStatus summarizes a RunResult for exit codes and logs.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunPartial   RunStatus = "partial"
	RunAborted   RunStatus = "aborted"
)

// RunResult is produced once per invocation and only logged.
type RunResult struct {
	State       RunState
	Topic       string
	ImageSource SourceKind
	PostURL     string
	Outcomes    map[string]Outcome
	Err         error
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Status derives the overall status from the terminal state and outcomes.
func (r RunResult) Status() RunStatus {
	if r.State == StateAborted || r.State < StatePublished {
		return RunAborted
	}
	if r.State != StateDone {
		return RunPartial
	}
	for _, o := range r.Outcomes {
		if o.Status != OutcomePublished {
			return RunPartial
		}
	}
	return RunSucceeded
}

// Summary renders the fields logged on the terminal line.
func (r RunResult) Summary() map[string]any {
	outcomes := make(map[string]any, len(r.Outcomes))
	for id, o := range r.Outcomes {
		outcomes[id] = o
	}
	out := map[string]any{
		"state":        r.State.String(),
		"status":       string(r.Status()),
		"topic":        r.Topic,
		"image_source": r.ImageSource.String(),
		"post_url":     r.PostURL,
		"targets":      outcomes,
	}
	if !r.StartedAt.IsZero() && !r.FinishedAt.IsZero() {
		out["elapsed_ms"] = r.FinishedAt.Sub(r.StartedAt).Milliseconds()
	}
	if r.Err != nil {
		out["error"] = r.Err.Error()
	}
	return out
}

// Slugify turns text into a lower-case, dash-separated token of at most max
// runes. Anything that is not a letter, digit or combining mark becomes a
// separator.
func Slugify(text string, max int) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || (unicode.IsMark(r) && b.Len() > 0 && !dash) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	slug := b.String()
	if max > 0 {
		if runes := []rune(slug); len(runes) > max {
			slug = strings.TrimRight(string(runes[:max]), "-")
		}
	}
	if slug == "" {
		slug = "post"
	}
	return slug
}
