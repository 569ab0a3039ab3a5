package imagehost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/samvad-hq/samvad-blog-pipeline/internal/domain"
)

// S3Config configures the S3 backend. Endpoint and PathStyle cover
// S3-compatible stores such as MinIO or R2.
type S3Config struct {
	Bucket        string
	Region        string
	Prefix        string
	Endpoint      string
	PathStyle     bool
	PublicBaseURL string
}

// s3Client defines the minimal subset of the S3 client used by s3Backend.
type s3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type s3Backend struct {
	cfg    S3Config
	client s3Client
}

func newS3Backend(ctx context.Context, cfg S3Config) (backend, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3 image host requires a bucket")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var opts []func(*awscfg.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awscfg.WithRegion(cfg.Region))
	}
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = awsCfg.Region
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.PathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &s3Backend{cfg: cfg, client: s3.NewFromConfig(awsCfg, s3Opts...)}, nil
}

func (b *s3Backend) kind() string { return TypeS3 }

func (b *s3Backend) put(ctx context.Context, name string, asset domain.ImageAsset) (string, error) {
	key := b.key(name)
	input := &s3.PutObjectInput{
		Bucket:        aws.String(b.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(asset.Data),
		ContentLength: aws.Int64(int64(asset.Size())),
		ContentType:   aws.String(asset.MimeType),
		CacheControl:  aws.String("public, max-age=31536000"),
		ACL:           types.ObjectCannedACLPublicRead,
	}
	if _, err := b.client.PutObject(ctx, input); err != nil {
		return "", classifyAWS("put s3 object", err)
	}
	return b.publicURL(key), nil
}

func (b *s3Backend) key(name string) string {
	prefix := strings.Trim(b.cfg.Prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func (b *s3Backend) publicURL(key string) string {
	if base := strings.TrimRight(b.cfg.PublicBaseURL, "/"); base != "" {
		return base + "/" + key
	}
	if b.cfg.Endpoint != "" {
		return strings.TrimRight(b.cfg.Endpoint, "/") + "/" + b.cfg.Bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.cfg.Bucket, b.cfg.Region, key)
}

// classifyAWS maps SDK errors onto the failure taxonomy. Errors without an
// HTTP response are network failures.
func classifyAWS(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		return domain.ClassifyStatus(op, re.HTTPStatusCode(), []byte(re.Error()))
	}
	return domain.Transient(op, err)
}
