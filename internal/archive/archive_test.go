package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.in = in
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func TestS3ArchiverPutsDocument(t *testing.T) {
	fake := &fakeS3{}
	a := &S3Archiver{client: fake, bucket: "audit"}
	id := uuid.MustParse("6f1c2a9e-0000-4000-8000-000000000001")
	summary := &domain.DistributionSummary{
		TournamentID:     id,
		TotalDistributed: 990,
		DistributedAt:    time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC),
	}

	require.NoError(t, a.Archive(context.Background(), &domain.Tournament{ID: id, Name: "Cup"}, summary))

	assert.Equal(t, "audit", aws.ToString(fake.in.Bucket))
	assert.Equal(t, "settlements/2026/04/02/"+id.String()+".json", aws.ToString(fake.in.Key))
	assert.Equal(t, "application/json", aws.ToString(fake.in.ContentType))

	var doc Document
	require.NoError(t, json.Unmarshal(fake.body, &doc))
	assert.Equal(t, int64(990), doc.Summary.TotalDistributed)
	assert.Equal(t, "Cup", doc.Tournament.Name)
}

func TestS3ArchiverWrapsError(t *testing.T) {
	a := &S3Archiver{client: &fakeS3{err: errors.New("access denied")}, bucket: "audit"}
	err := a.Archive(context.Background(), &domain.Tournament{}, &domain.DistributionSummary{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://audit/")
}

func TestNewS3ArchiverStaticCredentials(t *testing.T) {
	a, err := NewS3Archiver(context.Background(), S3Options{
		Bucket:          "audit",
		Region:          "eu-west-1",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
	})
	require.NoError(t, err)
	assert.Equal(t, "audit", a.bucket)
}
