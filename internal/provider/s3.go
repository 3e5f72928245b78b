package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	gopath "path"
	"path/filepath"
	"strings"

	"artcache/internal/artifact"
	"artcache/internal/config"
	"artcache/internal/core/types"
	"artcache/internal/transport"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Provider serves artifacts from an S3 bucket. The object's ETag is the
// change fingerprint.
type S3Provider struct {
	id       string
	bucket   string
	prefix   string
	transfer *transport.S3Transfer
	spool    string
}

func NewS3Provider(cfg config.ProviderConfig, transferCfg config.TransferConfig, spoolDir string) (Provider, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 provider %s: bucket is required", cfg.ID)
	}

	sessionConfig := aws.Config{}
	if cfg.Region != "" {
		sessionConfig.Region = aws.String(cfg.Region)
	}
	sess, err := session.NewSessionWithOptions(session.Options{
		Profile: cfg.Profile,
		Config:  sessionConfig,
	})
	if err != nil {
		return nil, err
	}

	limiter := types.NewRateLimiter(transferCfg.RateLimit, transferCfg.RateBurst, transferCfg.Concurrency)

	return &S3Provider{
		id:       cfg.ID,
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		transfer: transport.NewS3Transfer(s3.New(sess), limiter),
		spool:    filepath.Join(spoolDir, cfg.ID),
	}, nil
}

func (p *S3Provider) ID() string {
	return p.id
}

func (p *S3Provider) Resolve(path string) (artifact.Artifact, error) {
	return &s3Artifact{
		provider:  p,
		key:       p.id + "/" + path,
		objectKey: gopath.Join(p.prefix, path),
	}, nil
}

type s3Artifact struct {
	provider  *S3Provider
	key       string
	objectKey string
}

func (a *s3Artifact) Key() string {
	return a.key
}

func (a *s3Artifact) Fingerprint(ctx context.Context) (string, error) {
	out, err := a.provider.transfer.Head(ctx, a.provider.bucket, a.objectKey)
	if err != nil {
		if isS3NotFound(err) {
			return "", artifact.NewNotFoundError(a.key, err)
		}
		return "", err
	}
	if out.ETag == nil {
		return "", fmt.Errorf("no ETag for s3://%s/%s", a.provider.bucket, a.objectKey)
	}
	return strings.Trim(*out.ETag, `"`), nil
}

func (a *s3Artifact) Open(ctx context.Context) (io.ReadCloser, error) {
	if f, err := os.Open(a.spoolPath()); err == nil {
		return f, nil
	}
	return a.openRemote(ctx)
}

func (a *s3Artifact) openRemote(ctx context.Context) (io.ReadCloser, error) {
	body, err := a.provider.transfer.Open(ctx, a.provider.bucket, a.objectKey)
	if err != nil {
		if isS3NotFound(err) {
			return nil, artifact.NewNotFoundError(a.key, err)
		}
		return nil, err
	}
	return body, nil
}

// Fetch downloads the object into the provider's spool directory.
func (a *s3Artifact) Fetch(ctx context.Context) error {
	return fetchToFile(ctx, a.openRemote, a.spoolPath())
}

func (a *s3Artifact) spoolPath() string {
	return filepath.Join(a.provider.spool, artifact.FileNameFor(a.key))
}

func isS3NotFound(err error) bool {
	var aerr awserr.RequestFailure
	if errors.As(err, &aerr) {
		return aerr.StatusCode() == http.StatusNotFound ||
			aerr.Code() == s3.ErrCodeNoSuchKey
	}
	return false
}

func init() {
	RegisterFactory("s3", NewS3Provider)
}
