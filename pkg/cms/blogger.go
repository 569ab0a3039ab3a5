package cms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/blogger/v3"
	"google.golang.org/api/option"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-blog-pipeline/pkg/googleauth"
)

// BloggerConfig configures the Blogger backend. The token file holds an
// installed-app OAuth token produced by cmd/blogger-auth.
type BloggerConfig struct {
	BlogID          string
	CredentialsFile string
	TokenFile       string
}

// Blogger publishes through the Blogger v3 API.
type Blogger struct {
	blogID  string
	svc     *blogger.Service
	timeout time.Duration
	log     Logger
}

// NewBlogger authenticates with the stored user token and builds the client.
func NewBlogger(ctx context.Context, cfg BloggerConfig, timeout time.Duration, log Logger) (*Blogger, error) {
	if strings.TrimSpace(cfg.BlogID) == "" {
		return nil, errors.New("blogger cms requires a blog id")
	}
	client, err := googleauth.TokenFileClient(ctx, cfg.CredentialsFile, cfg.TokenFile, blogger.BloggerScope)
	if err != nil {
		return nil, fmt.Errorf("blogger auth: %w", err)
	}
	return newBloggerWithOptions(ctx, cfg.BlogID, timeout, log, option.WithHTTPClient(client))
}

func newBloggerWithOptions(ctx context.Context, blogID string, timeout time.Duration, log Logger, opts ...option.ClientOption) (*Blogger, error) {
	svc, err := blogger.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create blogger service: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Blogger{blogID: blogID, svc: svc, timeout: timeout, log: ensureLogger(log)}, nil
}

// Publish inserts a live (non-draft) post.
func (b *Blogger) Publish(ctx context.Context, post domain.Post) (domain.PostHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	body := &blogger.Post{
		Title:   SanitizeTitle(post.Title),
		Content: ComposeBody(post),
		Labels:  post.Labels,
	}
	created, err := b.svc.Posts.Insert(b.blogID, body).IsDraft(false).Context(ctx).Do()
	if err != nil {
		b.log.ErrorObj("blogger publish failed", "cms_blogger_error", map[string]any{
			"blog_id": b.blogID,
			"error":   err.Error(),
		})
		return domain.PostHandle{}, googleauth.Classify("insert blogger post", err)
	}

	handle, err := checkHandle("insert blogger post", domain.PostHandle{ID: created.Id, URL: created.Url})
	if err != nil {
		return domain.PostHandle{}, err
	}
	b.log.InfoObj("blogger post published", "cms_blogger", map[string]any{
		"blog_id": b.blogID,
		"post_id": handle.ID,
		"url":     handle.URL,
	})
	return handle, nil
}
