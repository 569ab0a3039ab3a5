package publishers

import (
	"time"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
)

func samplePromotion() Promotion {
	return Promotion{
		Topic:       "zero trust",
		Title:       "Zero Trust for Small Teams",
		URL:         "https://example.blogspot.com/2024/07/zero-trust.html",
		Labels:      []string{"Zero Trust", "Cyber Security", "AI"},
		Body:        "<p>Start with identity. Then segment the network.</p><p>Finally, log everything.</p>",
		PublishedAt: time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC),
	}
}

func sampleMessage() Message {
	p := samplePromotion()
	return Message{
		Text:        BuildMessage(p, StyleHeadline, domain.Limits{MaxMessageLength: 300, HashtagLimit: 4}),
		Link:        p.URL,
		Title:       p.Title,
		Description: describe(p),
		Promotion:   p,
	}
}
