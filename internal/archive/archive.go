// Package archive uploads settlement audit documents to object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver stores the audit record of a committed settlement.
type Archiver interface {
	Archive(ctx context.Context, t *domain.Tournament, summary *domain.DistributionSummary) error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Archive(context.Context, *domain.Tournament, *domain.DistributionSummary) error {
	return nil
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options configures the S3 archiver.
type S3Options struct {
	Bucket          string
	Region          string
	Endpoint        string // non-empty for MinIO or localstack
	AccessKeyID     string
	SecretAccessKey string
}

// S3Archiver writes one JSON document per settlement.
type S3Archiver struct {
	client objectPutter
	bucket string
}

// NewS3Archiver builds an S3 client from the default credential chain, or
// from static keys when both are set.
func NewS3Archiver(ctx context.Context, opts S3Options) (*S3Archiver, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Archiver{client: client, bucket: opts.Bucket}, nil
}

// Document is the archived JSON body.
type Document struct {
	Tournament *domain.Tournament          `json:"tournament"`
	Summary    *domain.DistributionSummary `json:"summary"`
}

// Key returns the object key of a tournament's settlement document.
func Key(summary *domain.DistributionSummary) string {
	return fmt.Sprintf("settlements/%s/%s.json",
		summary.DistributedAt.UTC().Format("2006/01/02"), summary.TournamentID)
}

func (a *S3Archiver) Archive(ctx context.Context, t *domain.Tournament, summary *domain.DistributionSummary) error {
	body, err := json.Marshal(Document{Tournament: t, Summary: summary})
	if err != nil {
		return fmt.Errorf("marshal settlement document: %w", err)
	}
	key := Key(summary)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"tournament-id": summary.TournamentID.String(),
		},
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", a.bucket, key, err)
	}
	return nil
}
