package publishers

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
)

// pubsubPublisher delivers promotions to a GCP Pub/Sub topic.
type pubsubPublisher struct {
	id     string
	spec   TargetSpec
	client *pubsub.Client
	topic  *pubsub.Topic
	log    Logger
}

func newPubSubPublisher(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.PubSub == nil {
		return nil, fmt.Errorf("target %q missing pubsub configuration", cfg.ID)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	return &pubsubPublisher{
		id:     cfg.ID,
		spec:   cfg.Spec(),
		client: client,
		topic:  client.Topic(cfg.PubSub.Topic),
		log:    forTarget(log, cfg.ID, TypePubSub),
	}, nil
}

func (p *pubsubPublisher) ID() string       { return p.id }
func (p *pubsubPublisher) Type() string     { return TypePubSub }
func (p *pubsubPublisher) Spec() TargetSpec { return p.spec }

// Publish sends the promotion envelope and waits for the server id.
func (p *pubsubPublisher) Publish(ctx context.Context, msg Message) (string, error) {
	payload, err := marshalEnvelope(p.id, msg)
	if err != nil {
		return "", domain.Rejected("pubsub publish", err)
	}

	res := p.topic.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: map[string]string{"topic": msg.Promotion.Topic},
	})
	serverID, err := res.Get(ctx)
	if err != nil {
		p.log.ErrorObj("pubsub target publish failed", "publisher_pubsub_error", map[string]any{
			"error":     err.Error(),
		})
		return "", classifyGRPC("pubsub publish", err)
	}
	return serverID, nil
}

// Close flushes pending messages and releases the client.
func (p *pubsubPublisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}

func classifyGRPC(op string, err error) error {
	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		return domain.Auth(op, err)
	case codes.InvalidArgument, codes.NotFound, codes.FailedPrecondition:
		return domain.Rejected(op, err)
	default:
		return domain.Transient(op, err)
	}
}
