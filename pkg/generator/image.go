package generator

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-blog-pipeline/pkg/httpclient"
)

// ImageConfig configures ImageGenerator.
type ImageConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Size    string
}

// ImageGenerator renders an image for a prompt.
type ImageGenerator struct {
	api api
	cfg ImageConfig
}

// NewImageGenerator validates cfg and returns a generator.
func NewImageGenerator(cfg ImageConfig, client httpclient.Client) (*ImageGenerator, error) {
	a, err := newAPI(cfg.BaseURL, cfg.APIKey, client)
	if err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = "dall-e-3"
	}
	if cfg.Size == "" {
		cfg.Size = "1024x1024"
	}
	return &ImageGenerator{api: a, cfg: cfg}, nil
}

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

// GenerateImage returns the encoded image bytes. Inline base64 results are
// decoded; URL results are downloaded.
func (g *ImageGenerator) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	req := imageRequest{
		Model:          g.cfg.Model,
		Prompt:         prompt,
		N:              1,
		Size:           g.cfg.Size,
		ResponseFormat: "b64_json",
	}

	var resp imageResponse
	if err := g.api.postJSON(ctx, "generate image", "/images/generations", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, domain.Generation("generate image", fmt.Errorf("no image returned"))
	}

	item := resp.Data[0]
	switch {
	case item.B64JSON != "":
		data, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, domain.Generation("generate image", fmt.Errorf("decode b64_json: %w", err))
		}
		return data, nil
	case item.URL != "":
		return g.download(ctx, item.URL)
	default:
		return nil, domain.Generation("generate image", fmt.Errorf("image result has neither data nor url"))
	}
}

func (g *ImageGenerator) download(ctx context.Context, url string) ([]byte, error) {
	resp, err := g.api.http.Get(ctx, url, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.Transient("download image", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, domain.ClassifyStatus("download image", resp.StatusCode(), resp.Body())
	}
	return resp.Body(), nil
}
