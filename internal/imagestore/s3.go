package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// s3API is the subset of *s3.Client the store uses.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3 stores images in a bucket. References are object keys under prefix.
type S3 struct {
	client s3API
	bucket string
	prefix string
	opts   Options
}

// NewS3 creates an S3-backed image store.
func NewS3(client s3API, bucket, prefix string, opts Options) *S3 {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3{client: client, bucket: bucket, prefix: prefix, opts: opts.withDefaults()}
}

func (s *S3) Save(ctx context.Context, _ string, r io.Reader) (string, error) {
	up, err := prepare(r, s.opts)
	if err != nil {
		return "", err
	}
	key := s.prefix + uuid.New().String() + up.ext
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(up.data),
		ContentType:  aws.String(up.contentType),
		CacheControl: aws.String("public, max-age=31536000"),
	})
	if err != nil {
		return "", fmt.Errorf("uploading image to S3: %w", err)
	}
	return key, nil
}

func (s *S3) Release(ctx context.Context, ref string) error {
	if !strings.HasPrefix(ref, s.prefix) || len(ref) == len(s.prefix) {
		return fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return fmt.Errorf("deleting S3 object %s: %w", ref, err)
	}
	return nil
}

// NewS3FromRegion builds the client from the default AWS credential chain.
func NewS3FromRegion(ctx context.Context, region, bucket, prefix string, opts Options) (*S3, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewS3(s3.NewFromConfig(cfg), bucket, prefix, opts), nil
}

// Ping checks the bucket is reachable for health probes.
func (s *S3) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}
