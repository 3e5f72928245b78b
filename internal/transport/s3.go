package transport

import (
	"context"
	"io"

	"artcache/internal/core/types"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Transfer reads artifact metadata and content from S3.
type S3Transfer struct {
	s3Client *s3.S3
	limiter  *types.RateLimiter
}

func NewS3Transfer(s3Client *s3.S3, limiter *types.RateLimiter) *S3Transfer {
	if limiter == nil {
		limiter = types.DefaultRateLimiter()
	}
	return &S3Transfer{
		s3Client: s3Client,
		limiter:  limiter,
	}
}

// Head returns object metadata.
func (t *S3Transfer) Head(ctx context.Context, bucket, key string) (*s3.HeadObjectOutput, error) {
	return t.s3Client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
}

// Open returns the object's rate-limited byte stream. The caller owns the
// returned reader.
func (t *S3Transfer) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := t.s3Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	return &limitedBody{
		Reader: t.limiter.Reader(ctx, out.Body),
		Closer: out.Body,
	}, nil
}

// limitedBody pairs a rate-limited reader with the underlying body's closer.
type limitedBody struct {
	io.Reader
	io.Closer
}

// LimitedBody wraps body with rate limiting and context cancellation while
// preserving its closer.
func LimitedBody(ctx context.Context, limiter *types.RateLimiter, body io.ReadCloser) io.ReadCloser {
	return &limitedBody{
		Reader: limiter.Reader(ctx, body),
		Closer: body,
	}
}
