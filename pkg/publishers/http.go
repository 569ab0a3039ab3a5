package publishers

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-blog-pipeline/pkg/httpclient"
)

type httpPublisher struct {
	id      string
	spec    TargetSpec
	method  string
	url     string
	headers map[string]string
	client  *resty.Client
	log     Logger
}

func newHTTPPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("target %q missing http configuration", cfg.ID)
	}
	spec := cfg.Spec()

	return &httpPublisher{
		id:      cfg.ID,
		spec:    spec,
		method:  cfg.HTTP.Method,
		url:     cfg.HTTP.URL,
		headers: cfg.HTTP.Headers,
		client:  httpclient.NewRestyHTTPClient(spec.Timeout),
		log:     forTarget(log, cfg.ID, TypeHTTP),
	}, nil
}

func (h *httpPublisher) ID() string       { return h.id }
func (h *httpPublisher) Type() string     { return TypeHTTP }
func (h *httpPublisher) Spec() TargetSpec { return h.spec }

// Publish sends the promotion envelope as JSON and returns the response status.
func (h *httpPublisher) Publish(ctx context.Context, msg Message) (string, error) {
	payload, err := marshalEnvelope(h.id, msg)
	if err != nil {
		return "", domain.Rejected("http webhook", err)
	}

	req := h.client.R().
		SetContext(ctx).
		SetBody(payload)

	if len(h.headers) > 0 {
		req.SetHeaders(h.headers)
	}

	req.SetHeader("Content-Type", "application/json")

	resp, err := req.Execute(h.method, h.url)
	if err != nil {
		return "", domain.Transient("http webhook", err)
	}
	if resp.IsError() {
		h.log.ErrorObj("http target delivery failed", "publisher_http_error", map[string]any{
			"status":    resp.StatusCode(),
			"body":      domain.Snippet(resp.Body()),
		})
		return "", domain.ClassifyStatus("http webhook", resp.StatusCode(), resp.Body())
	}
	return fmt.Sprintf("http %d", resp.StatusCode()), nil
}
