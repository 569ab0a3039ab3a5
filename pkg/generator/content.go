package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-blog-pipeline/pkg/httpclient"
)

// ContentConfig configures ContentGenerator.
type ContentConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	// Niche steers topic choice, e.g. "AI, cybersecurity and IT leadership".
	Niche        string
	LabelPool    []string
	AvoidPhrases []string
	Signature    string
	MaxLabels    int
	Temperature  float64
}

const (
	defaultChatModel = "gpt-4o-mini"
	defaultNiche     = "AI, cybersecurity, IT leadership, mentoring and collaboration"
	defaultMaxLabels = 4
)

// ContentGenerator drafts a blog post with a chat completion.
type ContentGenerator struct {
	api    api
	cfg    ContentConfig
	phrase *regexp.Regexp
}

// NewContentGenerator validates cfg and returns a generator.
func NewContentGenerator(cfg ContentConfig, client httpclient.Client) (*ContentGenerator, error) {
	a, err := newAPI(cfg.BaseURL, cfg.APIKey, client)
	if err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = defaultChatModel
	}
	if strings.TrimSpace(cfg.Niche) == "" {
		cfg.Niche = defaultNiche
	}
	if cfg.MaxLabels <= 0 {
		cfg.MaxLabels = defaultMaxLabels
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.7
	}
	return &ContentGenerator{api: a, cfg: cfg, phrase: phrasePattern(cfg.AvoidPhrases)}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate asks for a fresh post, steering away from avoid. The draft comes
// back cleaned: no <h1>, avoided phrases removed, labels constrained to the
// pool when one is configured, and the signature appended.
func (g *ContentGenerator) Generate(ctx context.Context, avoid []string) (domain.Draft, error) {
	req := chatRequest{
		Model: g.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: g.systemPrompt()},
			{Role: "user", Content: g.userPrompt(avoid)},
		},
		Temperature:    g.cfg.Temperature,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	var resp chatResponse
	if err := g.api.postJSON(ctx, "generate content", "/chat/completions", req, &resp); err != nil {
		return domain.Draft{}, err
	}
	if len(resp.Choices) == 0 {
		return domain.Draft{}, domain.Generation("generate content", fmt.Errorf("no choices returned"))
	}

	var draft domain.Draft
	content := stripCodeFence(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &draft); err != nil {
		return domain.Draft{}, domain.Generation("generate content", fmt.Errorf("decode draft: %w", err))
	}
	draft = g.clean(draft)
	if draft.Topic == "" || strings.TrimSpace(draft.Body) == "" {
		return domain.Draft{}, domain.Generation("generate content", fmt.Errorf("draft is missing topic or body"))
	}
	return draft, nil
}

func (g *ContentGenerator) systemPrompt() string {
	return "You write blog posts for a professional audience. " +
		"Reply with a JSON object with keys: title, topic, body, labels. " +
		"topic is a short phrase naming the subject. " +
		"body is HTML with each paragraph wrapped in <p> tags and no <h1>. " +
		"labels is a list of short category names. " +
		"Do not include the title in the body and avoid phrasing that sounds machine-written."
}

func (g *ContentGenerator) userPrompt(avoid []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write an original, engaging blog post about %s with actionable insights.", g.cfg.Niche)
	if len(g.cfg.LabelPool) > 0 {
		fmt.Fprintf(&b, " Pick two labels from this list: %s, and add up to two of your own.", strings.Join(g.cfg.LabelPool, ", "))
	}
	if len(avoid) > 0 {
		fmt.Fprintf(&b, " Do NOT choose a topic similar to any of these: %s.", strings.Join(avoid, "; "))
	}
	return b.String()
}

func (g *ContentGenerator) clean(d domain.Draft) domain.Draft {
	d.Title = trimQuotes(g.scrub(d.Title))
	d.Topic = trimQuotes(strings.TrimSpace(d.Topic))
	if d.Topic == "" {
		d.Topic = d.Title
	}
	if d.Title == "" {
		d.Title = d.Topic
	}
	body := StripH1(d.Body)
	body = g.scrub(body)
	if sig := strings.TrimSpace(g.cfg.Signature); sig != "" && body != "" {
		body += "\n" + sig
	}
	d.Body = body
	d.Labels = SelectLabels(d.Labels, g.cfg.LabelPool, g.cfg.MaxLabels)
	return d
}

func (g *ContentGenerator) scrub(s string) string {
	if g.phrase == nil {
		return strings.TrimSpace(s)
	}
	s = g.phrase.ReplaceAllString(s, "")
	return strings.TrimSpace(multiSpace.ReplaceAllString(s, " "))
}

var (
	h1Pattern  = regexp.MustCompile(`(?is)<h1[^>]*>.*?</h1>`)
	multiSpace = regexp.MustCompile(`[ \t]{2,}`)
	codeFence  = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")
)

// StripH1 removes any <h1> elements from html.
func StripH1(html string) string {
	return strings.TrimSpace(h1Pattern.ReplaceAllString(html, ""))
}

// phrasePattern builds one case-insensitive, word-bounded alternation.
// Longer phrases come first so they win over their own prefixes.
func phrasePattern(phrases []string) *regexp.Regexp {
	var quoted []string
	for _, p := range phrases {
		if p = strings.TrimSpace(p); p != "" {
			quoted = append(quoted, regexp.QuoteMeta(p))
		}
	}
	if len(quoted) == 0 {
		return nil
	}
	sort.SliceStable(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// SelectLabels canonicalizes labels against pool. Up to two pool labels are
// kept (the first pool entry stands in when none matched), followed by free
// labels, capped at max and deduplicated case-insensitively.
func SelectLabels(labels, pool []string, max int) []string {
	canonical := make(map[string]string, len(pool))
	for _, p := range pool {
		canonical[strings.ToLower(strings.TrimSpace(p))] = strings.TrimSpace(p)
	}

	seen := make(map[string]bool)
	var fixed, free []string
	for _, l := range labels {
		l = strings.TrimSpace(l)
		key := strings.ToLower(l)
		if l == "" || seen[key] {
			continue
		}
		seen[key] = true
		if c, ok := canonical[key]; ok {
			fixed = append(fixed, c)
		} else {
			free = append(free, l)
		}
	}

	if len(pool) == 0 {
		return capLabels(free, max)
	}
	if len(fixed) == 0 {
		fixed = []string{strings.TrimSpace(pool[0])}
	}
	if len(fixed) > 2 {
		fixed = fixed[:2]
	}
	if len(free) > 2 {
		free = free[:2]
	}
	return capLabels(append(fixed, free...), max)
}

func capLabels(labels []string, max int) []string {
	if max > 0 && len(labels) > max {
		return labels[:max]
	}
	return labels
}

func trimQuotes(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"'“”`))
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFence.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}
