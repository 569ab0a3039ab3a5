// Package generator talks to an OpenAI-compatible API to draft posts and
// render header images.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-blog-pipeline/pkg/httpclient"
)

// DefaultBaseURL is the public OpenAI endpoint.
const DefaultBaseURL = "https://api.openai.com/v1"

// api is the shared transport for both generators.
type api struct {
	baseURL string
	apiKey  string
	http    httpclient.Client
}

func newAPI(baseURL, apiKey string, client httpclient.Client) (api, error) {
	if strings.TrimSpace(apiKey) == "" {
		return api{}, fmt.Errorf("generator api key is required")
	}
	if client == nil {
		return api{}, fmt.Errorf("generator http client is required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return api{baseURL: baseURL, apiKey: apiKey, http: client}, nil
}

// postJSON sends body to path and decodes a 2xx response into out. Transport
// errors are transient; non-2xx statuses are classified by code.
func (a api) postJSON(ctx context.Context, op, path string, body, out any) error {
	headers := map[string]string{"Authorization": "Bearer " + a.apiKey}
	resp, err := a.http.PostJSON(ctx, a.baseURL+path, headers, body)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return domain.Transient(op, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return domain.ClassifyStatus(op, resp.StatusCode(), resp.Body())
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return domain.Generation(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
