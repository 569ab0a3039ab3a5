package publishers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
)

// sqsClient defines the minimal subset of the SQS client used by sqsPublisher.
type sqsClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// sqsPublisher implements the Publisher interface for AWS SQS.
type sqsPublisher struct {
	id       string
	spec     TargetSpec
	queueURL string
	client   sqsClient
	log      Logger
}

// newSQSPublisher creates a new SQS publisher with the given configuration.
func newSQSPublisher(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.SQS == nil {
		return nil, fmt.Errorf("target %q missing sqs configuration", cfg.ID)
	}

	if ctx == nil {
		ctx = context.Background()
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.SQS.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &sqsPublisher{
		id:       cfg.ID,
		spec:     cfg.Spec(),
		queueURL: cfg.SQS.QueueURL,
		client:   sqs.NewFromConfig(awsCfg),
		log:      forTarget(log, cfg.ID, TypeSQS),
	}, nil
}

func (s *sqsPublisher) ID() string       { return s.id }
func (s *sqsPublisher) Type() string     { return TypeSQS }
func (s *sqsPublisher) Spec() TargetSpec { return s.spec }

// Publish sends the promotion envelope to the configured SQS queue.
func (s *sqsPublisher) Publish(ctx context.Context, msg Message) (string, error) {
	payload, err := marshalEnvelope(s.id, msg)
	if err != nil {
		return "", domain.Rejected("sqs send", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"topic": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.Promotion.Topic),
			},
		},
	}

	out, err := s.client.SendMessage(ctx, input)
	if err != nil {
		s.log.ErrorObj("sqs target send failed", "publisher_sqs_error", map[string]any{
			"error":     err.Error(),
		})
		return "", classifyAWS("sqs send", err)
	}
	s.log.DebugObj("sqs target delivered promotion", "publisher_sqs_delivery", map[string]any{
		"message_id": aws.ToString(out.MessageId),
	})
	return aws.ToString(out.MessageId), nil
}
