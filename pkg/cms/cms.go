// Package cms publishes finished posts to a blogging platform.
package cms

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
)

const (
	// Supported CMS backends.
	TypeBlogger = "blogger"
	TypeHTTP    = "http"

	defaultTimeout = 30 * time.Second
)

// Publisher creates one post per call and returns its permalink.
type Publisher interface {
	Publish(ctx context.Context, post domain.Post) (domain.PostHandle, error)
}

// Logger defines the logging surface the CMS backends rely on.
type Logger interface {
	InfoObj(msg, key string, obj interface{})
	DebugObj(msg, key string, obj interface{})
	WarnObj(msg, key string, obj interface{})
	ErrorObj(msg, key string, obj interface{})
}

type noopLogger struct{}

func (noopLogger) InfoObj(string, string, interface{})  {}
func (noopLogger) DebugObj(string, string, interface{}) {}
func (noopLogger) WarnObj(string, string, interface{})  {}
func (noopLogger) ErrorObj(string, string, interface{}) {}

func ensureLogger(log Logger) Logger {
	if log == nil {
		return noopLogger{}
	}
	return log
}

// Config selects and configures a backend.
type Config struct {
	Type    string
	Timeout time.Duration
	Blogger BloggerConfig
	HTTP    HTTPConfig
}

// New builds the configured Publisher.
func New(ctx context.Context, cfg Config, log Logger) (Publisher, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case TypeBlogger, "":
		return NewBlogger(ctx, cfg.Blogger, cfg.Timeout, log)
	case TypeHTTP:
		return NewHTTP(cfg.HTTP, cfg.Timeout, log)
	default:
		return nil, fmt.Errorf("unsupported cms type %q", cfg.Type)
	}
}

// ComposeBody puts a centered header image above the post body.
func ComposeBody(post domain.Post) string {
	if strings.TrimSpace(post.ImageURL) == "" {
		return post.Body
	}
	alt := html.EscapeString(SanitizeTitle(post.Title))
	return fmt.Sprintf(`<div style="text-align:center;">
  <img src="%s" alt="%s" style="max-width:750px; width:100%%; height:auto; margin-bottom:20px; border-radius:8px;">
</div>

%s`, html.EscapeString(post.ImageURL), alt, post.Body)
}

// SanitizeTitle strips quote characters models like to wrap titles in.
func SanitizeTitle(title string) string {
	title = strings.NewReplacer(`"`, "", "“", "", "”", "").Replace(title)
	return strings.Join(strings.Fields(title), " ")
}

func checkHandle(op string, h domain.PostHandle) (domain.PostHandle, error) {
	h.URL = strings.TrimSpace(h.URL)
	if h.URL == "" {
		return domain.PostHandle{}, domain.Rejected(op, fmt.Errorf("response has no post url"))
	}
	return h, nil
}
