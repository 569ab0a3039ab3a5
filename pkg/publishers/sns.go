package publishers

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	awshttp "github.com/aws/smithy-go/transport/http"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
)

// snsClient defines the minimal subset of the SNS client used by snsPublisher.
type snsClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type snsPublisher struct {
	id       string
	spec     TargetSpec
	topicARN string
	client   snsClient
	log      Logger
}

func newSNSPublisher(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.SNS == nil {
		return nil, fmt.Errorf("target %q missing sns configuration", cfg.ID)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.SNS.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &snsPublisher{
		id:       cfg.ID,
		spec:     cfg.Spec(),
		topicARN: cfg.SNS.TopicARN,
		client:   sns.NewFromConfig(awsCfg),
		log:      forTarget(log, cfg.ID, TypeSNS),
	}, nil
}

func (s *snsPublisher) ID() string       { return s.id }
func (s *snsPublisher) Type() string     { return TypeSNS }
func (s *snsPublisher) Spec() TargetSpec { return s.spec }

// Publish sends the promotion envelope to the configured SNS topic.
func (s *snsPublisher) Publish(ctx context.Context, msg Message) (string, error) {
	payload, err := marshalEnvelope(s.id, msg)
	if err != nil {
		return "", domain.Rejected("sns publish", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Message:  aws.String(string(payload)),
		Subject:  aws.String(subjectLine(msg.Title)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"topic": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.Promotion.Topic),
			},
		},
	}

	out, err := s.client.Publish(ctx, input)
	if err != nil {
		s.log.ErrorObj("sns target publish failed", "publisher_sns_error", map[string]any{
			"error":     err.Error(),
		})
		return "", classifyAWS("sns publish", err)
	}
	s.log.DebugObj("sns target delivered promotion", "publisher_sns_delivery", map[string]any{
		"message_id": aws.ToString(out.MessageId),
	})
	return aws.ToString(out.MessageId), nil
}

// subjectLine fits an SNS subject: at most 100 ASCII-printable characters.
func subjectLine(title string) string {
	out := make([]rune, 0, 100)
	for _, r := range title {
		if r < 0x20 || r > 0x7e {
			continue
		}
		out = append(out, r)
		if len(out) == 100 {
			break
		}
	}
	if len(out) == 0 {
		return "New blog post"
	}
	return string(out)
}

func classifyAWS(op string, err error) error {
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		return domain.ClassifyStatus(op, re.HTTPStatusCode(), []byte(re.Error()))
	}
	return domain.Transient(op, err)
}
