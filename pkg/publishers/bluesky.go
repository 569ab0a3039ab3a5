package publishers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-blog-pipeline/pkg/httpclient"
)

const (
	blueskyPostCollection = "app.bsky.feed.post"
	blueskyLinkFacet      = "app.bsky.richtext.facet#link"
	blueskyExternalEmbed  = "app.bsky.embed.external"
)

// blueskyPublisher posts through the AT Protocol XRPC endpoints of a PDS.
type blueskyPublisher struct {
	id       string
	spec     TargetSpec
	pds      string
	handle   string
	password string
	client   *resty.Client
	log      Logger
}

func newBlueskyPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.Bluesky == nil {
		return nil, fmt.Errorf("target %q missing bluesky configuration", cfg.ID)
	}
	spec := cfg.Spec()
	return &blueskyPublisher{
		id:       cfg.ID,
		spec:     spec,
		pds:      cfg.Bluesky.PDS,
		handle:   cfg.Bluesky.Handle,
		password: cfg.Bluesky.AppPassword,
		client:   httpclient.NewRestyHTTPClient(spec.Timeout),
		log:      forTarget(log, cfg.ID, TypeBluesky),
	}, nil
}

func (b *blueskyPublisher) ID() string       { return b.id }
func (b *blueskyPublisher) Type() string     { return TypeBluesky }
func (b *blueskyPublisher) Spec() TargetSpec { return b.spec }

type blueskySession struct {
	AccessJwt string `json:"accessJwt"`
	DID       string `json:"did"`
}

// blobRef is an AT Protocol reference to uploaded content.
type blobRef struct {
	Type string `json:"$type"`
	Ref  struct {
		Link string `json:"$link"`
	} `json:"ref"`
	MimeType string `json:"mimeType"`
	Size     int    `json:"size"`
}

type uploadBlobResponse struct {
	Blob blobRef `json:"blob"`
}

type facetIndex struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}

type facetFeature struct {
	Type string `json:"$type"`
	URI  string `json:"uri"`
}

type facet struct {
	Index    facetIndex     `json:"index"`
	Features []facetFeature `json:"features"`
}

type externalEmbed struct {
	Type     string   `json:"$type"`
	External external `json:"external"`
}

type external struct {
	URI         string   `json:"uri"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Thumb       *blobRef `json:"thumb,omitempty"`
}

type postRecord struct {
	Type      string         `json:"$type"`
	Text      string         `json:"text"`
	CreatedAt string         `json:"createdAt"`
	Facets    []facet        `json:"facets,omitempty"`
	Embed     *externalEmbed `json:"embed,omitempty"`
}

type createRecordRequest struct {
	Repo       string     `json:"repo"`
	Collection string     `json:"collection"`
	Record     postRecord `json:"record"`
}

type createRecordResponse struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// Publish logs in, uploads the thumbnail when present and creates the post.
// A failed thumbnail upload degrades to a card without an image.
func (b *blueskyPublisher) Publish(ctx context.Context, msg Message) (string, error) {
	var session blueskySession
	if err := b.call(ctx, "com.atproto.server.createSession", "", map[string]string{
		"identifier": b.handle,
		"password":   b.password,
	}, &session); err != nil {
		return "", err
	}
	if session.AccessJwt == "" || session.DID == "" {
		return "", domain.Auth("bluesky create session", errors.New("session has no token"))
	}

	var thumb *blobRef
	if msg.Image != nil {
		ref, err := b.uploadBlob(ctx, session.AccessJwt, msg.Image)
		if err != nil {
			b.log.WarnObj("bluesky thumbnail upload failed", "publisher_bluesky_blob", map[string]any{
				"error":     err.Error(),
			})
		} else {
			thumb = ref
		}
	}

	record := postRecord{
		Type:      blueskyPostCollection,
		Text:      msg.Text,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Facets:    linkFacets(msg.Text),
	}
	if msg.Link != "" {
		record.Embed = &externalEmbed{
			Type: blueskyExternalEmbed,
			External: external{
				URI:         msg.Link,
				Title:       msg.Title,
				Description: msg.Description,
				Thumb:       thumb,
			},
		}
	}

	var created createRecordResponse
	if err := b.call(ctx, "com.atproto.repo.createRecord", session.AccessJwt, createRecordRequest{
		Repo:       session.DID,
		Collection: blueskyPostCollection,
		Record:     record,
	}, &created); err != nil {
		return "", err
	}
	b.log.DebugObj("bluesky post created", "publisher_bluesky_delivery", map[string]any{
		"uri":       created.URI,
	})
	return created.URI, nil
}

func (b *blueskyPublisher) uploadBlob(ctx context.Context, token string, img *domain.ImageAsset) (*blobRef, error) {
	var out uploadBlobResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", img.MimeType).
		SetBody(img.Data).
		SetResult(&out).
		Post(b.pds + "/xrpc/com.atproto.repo.uploadBlob")
	if err != nil {
		return nil, domain.Transient("bluesky upload blob", err)
	}
	if resp.IsError() {
		return nil, domain.ClassifyStatus("bluesky upload blob", resp.StatusCode(), resp.Body())
	}
	if out.Blob.Ref.Link == "" {
		return nil, domain.Rejected("bluesky upload blob", errors.New("response has no blob ref"))
	}
	return &out.Blob, nil
}

func (b *blueskyPublisher) call(ctx context.Context, method, token string, body, out any) error {
	op := "bluesky " + method
	req := b.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(out)
	if token != "" {
		req.SetAuthToken(token)
	}
	resp, err := req.Post(b.pds + "/xrpc/" + method)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Transient(op, ctx.Err())
		}
		return domain.Transient(op, err)
	}
	if resp.IsError() {
		// createSession answers 401 for bad app passwords, 400 for malformed ones.
		if method == "com.atproto.server.createSession" && resp.StatusCode() == 400 {
			return domain.Auth(op, fmt.Errorf("status 400: %s", domain.Snippet(resp.Body())))
		}
		return domain.ClassifyStatus(op, resp.StatusCode(), resp.Body())
	}
	return nil
}

var linkPattern = regexp.MustCompile(`https?://[^\s]+`)

// linkFacets marks every URL in text as a link facet. Offsets are UTF-8 byte
// positions, as the AT Protocol requires.
func linkFacets(text string) []facet {
	matches := linkPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}
	facets := make([]facet, 0, len(matches))
	for _, m := range matches {
		facets = append(facets, facet{
			Index:    facetIndex{ByteStart: m[0], ByteEnd: m[1]},
			Features: []facetFeature{{Type: blueskyLinkFacet, URI: text[m[0]:m[1]]}},
		})
	}
	return facets
}
