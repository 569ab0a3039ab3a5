package publishers

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-blog-pipeline/pkg/httpclient"
)

// xPublisher posts through the X API v2.
type xPublisher struct {
	id      string
	spec    TargetSpec
	baseURL string
	token   string
	client  *resty.Client
	log     Logger
}

func newXPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.X == nil {
		return nil, fmt.Errorf("target %q missing x configuration", cfg.ID)
	}
	spec := cfg.Spec()
	return &xPublisher{
		id:      cfg.ID,
		spec:    spec,
		baseURL: cfg.X.BaseURL,
		token:   cfg.X.BearerToken,
		client:  httpclient.NewRestyHTTPClient(spec.Timeout),
		log:     forTarget(log, cfg.ID, TypeX),
	}, nil
}

func (x *xPublisher) ID() string       { return x.id }
func (x *xPublisher) Type() string     { return TypeX }
func (x *xPublisher) Spec() TargetSpec { return x.spec }

type xTweetRequest struct {
	Text  string       `json:"text"`
	Media *xTweetMedia `json:"media,omitempty"`
}

type xTweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type xDataResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Publish uploads the image when present and creates the post. A failed
// media upload degrades to a text-only post.
func (x *xPublisher) Publish(ctx context.Context, msg Message) (string, error) {
	req := xTweetRequest{Text: msg.Text}
	if msg.Image != nil {
		mediaID, err := x.uploadMedia(ctx, msg.Image)
		if err != nil {
			x.log.WarnObj("x media upload failed", "publisher_x_media", map[string]any{
				"error":     err.Error(),
			})
		} else {
			req.Media = &xTweetMedia{MediaIDs: []string{mediaID}}
		}
	}

	var out xDataResponse
	resp, err := x.client.R().
		SetContext(ctx).
		SetAuthToken(x.token).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&out).
		Post(x.baseURL + "/2/tweets")
	if err != nil {
		return "", domain.Transient("x create post", err)
	}
	if resp.IsError() {
		return "", domain.ClassifyStatus("x create post", resp.StatusCode(), resp.Body())
	}
	if out.Data.ID == "" {
		return "", domain.Rejected("x create post", errors.New("response has no post id"))
	}
	return "https://x.com/i/web/status/" + out.Data.ID, nil
}

func (x *xPublisher) uploadMedia(ctx context.Context, img *domain.ImageAsset) (string, error) {
	name := img.Name
	if name == "" {
		name = "image" + img.Extension()
	}
	var out xDataResponse
	resp, err := x.client.R().
		SetContext(ctx).
		SetAuthToken(x.token).
		SetMultipartField("media", name, img.MimeType, bytes.NewReader(img.Data)).
		SetMultipartFormData(map[string]string{"media_category": "tweet_image"}).
		SetResult(&out).
		Post(x.baseURL + "/2/media/upload")
	if err != nil {
		return "", domain.Transient("x upload media", err)
	}
	if resp.IsError() {
		return "", domain.ClassifyStatus("x upload media", resp.StatusCode(), resp.Body())
	}
	if out.Data.ID == "" {
		return "", domain.Rejected("x upload media", errors.New("response has no media id"))
	}
	return out.Data.ID, nil
}
