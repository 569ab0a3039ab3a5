package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-blog-pipeline/pkg/httpclient"
)

// HTTPConfig configures a generic JSON CMS endpoint.
type HTTPConfig struct {
	URL     string
	Token   string
	Headers map[string]string
}

// HTTP posts {title, content, labels, image_url} and expects {id, url}.
type HTTP struct {
	url     string
	headers map[string]string
	client  *resty.Client
	log     Logger
}

type httpPostRequest struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Labels   []string `json:"labels"`
	ImageURL string   `json:"image_url,omitempty"`
}

// NewHTTP validates cfg and builds the client.
func NewHTTP(cfg HTTPConfig, timeout time.Duration, log Logger) (*HTTP, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("http cms requires a url")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	headers := make(map[string]string, len(cfg.Headers)+1)
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if cfg.Token != "" {
		headers["Authorization"] = "Bearer " + cfg.Token
	}
	return &HTTP{
		url:     cfg.URL,
		headers: headers,
		client:  httpclient.NewRestyHTTPClient(timeout),
		log:     ensureLogger(log),
	}, nil
}

// Publish sends the post once; it is never retried.
func (h *HTTP) Publish(ctx context.Context, post domain.Post) (domain.PostHandle, error) {
	payload := httpPostRequest{
		Title:    SanitizeTitle(post.Title),
		Content:  ComposeBody(post),
		Labels:   post.Labels,
		ImageURL: post.ImageURL,
	}

	resp, err := h.client.R().
		SetContext(ctx).
		SetHeaders(h.headers).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(h.url)
	if err != nil {
		if ctx.Err() != nil {
			return domain.PostHandle{}, ctx.Err()
		}
		return domain.PostHandle{}, domain.Transient("publish http post", err)
	}
	if resp.IsError() {
		h.log.ErrorObj("http cms publish failed", "cms_http_error", map[string]any{
			"url":    h.url,
			"status": resp.StatusCode(),
			"body":   domain.Snippet(resp.Body()),
		})
		return domain.PostHandle{}, domain.ClassifyStatus("publish http post", resp.StatusCode(), resp.Body())
	}

	var handle domain.PostHandle
	if err := json.Unmarshal(resp.Body(), &handle); err != nil {
		return domain.PostHandle{}, domain.Rejected("publish http post", fmt.Errorf("decode response: %w", err))
	}
	handle, err = checkHandle("publish http post", handle)
	if err != nil {
		return domain.PostHandle{}, err
	}
	h.log.InfoObj("http cms post published", "cms_http", map[string]any{
		"post_id": handle.ID,
		"url":     handle.URL,
	})
	return handle, nil
}
