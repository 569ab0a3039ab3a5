package publishers

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
)

const (
	// Message styles.
	StyleHeadline = "headline"
	StyleTeaser   = "teaser"

	headlinePrefix = "Check out my latest blog post: "
	ellipsis       = "..."
	// minLead is the shortest lead worth keeping before hashtags are dropped.
	minLead = 10
	// maxTeaser bounds the teaser before any platform limit applies.
	maxTeaser = 5000
)

// Promotion is the payload handed to every target once the post is live.
type Promotion struct {
	Topic       string             `json:"topic"`
	Title       string             `json:"title"`
	URL         string             `json:"url"`
	Labels      []string           `json:"labels"`
	ImageURL    string             `json:"image_url,omitempty"`
	Body        string             `json:"-"`
	Image       *domain.ImageAsset `json:"-"`
	PublishedAt time.Time          `json:"published_at"`
}

// NewPromotion builds the promotion for a published post. image may be nil.
func NewPromotion(post domain.Post, handle domain.PostHandle, image *domain.ImageAsset) Promotion {
	labels := make([]string, len(post.Labels))
	copy(labels, post.Labels)
	return Promotion{
		Topic:       post.Topic,
		Title:       strings.TrimSpace(strings.NewReplacer(`"`, "", "“", "", "”", "").Replace(post.Title)),
		URL:         EnsureScheme(handle.URL),
		Labels:      labels,
		ImageURL:    post.ImageURL,
		Body:        post.Body,
		Image:       image,
		PublishedAt: time.Now().UTC(),
	}
}

// Message is what a single target receives.
type Message struct {
	Text string
	Link string
	// Title and Description feed link cards.
	Title       string
	Description string
	// Image is already fitted to the target's constraints; nil means text-only.
	Image     *domain.ImageAsset
	Promotion Promotion
}

// BuildMessage renders p in the given style and fits it into the limits.
// The link is never cut: the lead is shortened first, then hashtags are
// dropped, and as a last resort only the link is sent. An ellipsis marks a
// lead that was actually shortened.
func BuildMessage(p Promotion, style string, limits domain.Limits) string {
	tags := Hashtags(p.Labels, limits.HashtagLimit)
	lead := leadFor(p, style)
	msg := compose(style, lead, p.URL, tags)

	max := limits.MaxMessageLength
	if max <= 0 || utf8.RuneCountInString(msg) <= max {
		return msg
	}

	candidates := []string{tags}
	if tags != "" {
		candidates = append(candidates, "")
	}
	for _, t := range candidates {
		if full := compose(style, lead, p.URL, t); utf8.RuneCountInString(full) <= max {
			return full
		}
		room := max - utf8.RuneCountInString(compose(style, "", p.URL, t)) - len(ellipsis)
		if room < minLead {
			continue
		}
		base := strings.TrimSuffix(lead, ellipsis)
		short := cutRunes(base, room)
		if short != base || base != lead {
			short += ellipsis
		}
		return compose(style, short, p.URL, t)
	}
	return p.URL
}

func compose(style, lead, url, tags string) string {
	var b strings.Builder
	switch style {
	case StyleTeaser:
		b.WriteString(lead)
		b.WriteString("\n\nRead more: ")
	default:
		b.WriteString(headlinePrefix)
		b.WriteString(lead)
		b.WriteString("!\n\n")
	}
	b.WriteString(url)
	if tags != "" {
		b.WriteString("\n\n")
		b.WriteString(tags)
	}
	return b.String()
}

func leadFor(p Promotion, style string) string {
	if style != StyleTeaser {
		return p.Title
	}
	text := PlainText(p.Body)
	n := utf8.RuneCountInString(text) / 4
	if n > maxTeaser {
		n = maxTeaser
	}
	if n == 0 {
		return p.Title
	}
	teaser := cutRunes(text, n)
	if utf8.RuneCountInString(teaser) < utf8.RuneCountInString(text) {
		teaser += ellipsis
	}
	return teaser
}

// Hashtags turns labels into "#NoSpaces" tags, at most limit of them.
func Hashtags(labels []string, limit int) string {
	if limit <= 0 {
		return ""
	}
	tags := make([]string, 0, limit)
	seen := make(map[string]bool)
	for _, l := range labels {
		tag := strings.Map(func(r rune) rune {
			if r == ' ' || r == '\t' || r == '#' || r == '-' {
				return -1
			}
			return r
		}, strings.TrimSpace(l))
		if utf8.RuneCountInString(tag) < 2 || seen[strings.ToLower(tag)] {
			continue
		}
		seen[strings.ToLower(tag)] = true
		tags = append(tags, "#"+tag)
		if len(tags) == limit {
			break
		}
	}
	return strings.Join(tags, " ")
}

var blankLines = regexp.MustCompile(`\n{2,}`)

// PlainText strips markup from an HTML fragment, one line per block.
func PlainText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}
	var parts []string
	blocks := doc.Find("p, li, h2, h3, h4, blockquote")
	if blocks.Length() == 0 {
		parts = append(parts, doc.Text())
	} else {
		blocks.Each(func(_ int, s *goquery.Selection) {
			if t := strings.Join(strings.Fields(s.Text()), " "); t != "" {
				parts = append(parts, t)
			}
		})
	}
	text := strings.Join(parts, "\n")
	return strings.TrimSpace(blankLines.ReplaceAllString(text, "\n"))
}

var sentenceEnd = regexp.MustCompile(`[.!?](\s|$)`)

// FirstSentence returns the first sentence of text, capped at max runes.
func FirstSentence(text string, max int) string {
	text = strings.TrimSpace(text)
	if loc := sentenceEnd.FindStringIndex(text); loc != nil {
		text = strings.TrimSpace(text[:loc[0]+1])
	}
	if max > 0 && utf8.RuneCountInString(text) > max {
		text = cutRunes(text, max-len(ellipsis)) + ellipsis
	}
	return text
}

// EnsureScheme prefixes https:// when url has no scheme.
func EnsureScheme(url string) string {
	url = strings.TrimSpace(url)
	if url == "" || strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	return "https://" + url
}

func cutRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:n]), " \t\n,;:")
}

func describe(p Promotion) string {
	if d := FirstSentence(PlainText(p.Body), 300); d != "" {
		return d
	}
	return fmt.Sprintf("New post: %s", p.Title)
}
