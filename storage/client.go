package storage

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/YuminosukeSato/spectra/pkg/errors"
)

// Client is the object store API used by Sync.
type Client interface {
	// List returns every key under prefix.
	List(ctx context.Context, bucket, prefix string) ([]string, error)

	// Get copies the object to w and returns the number of bytes written.
	Get(ctx context.Context, bucket, key string, w io.Writer) (int64, error)

	// Put stores size bytes read from r under key.
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64) error
}

// S3API is the subset of *s3.Client used by S3Client.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Client implements Client on Amazon S3.
type S3Client struct {
	api S3API
}

// NewS3Client creates a client from the default AWS configuration chain
// (environment, shared config files, instance role).
func NewS3Client(ctx context.Context) (*S3Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.NewConfigError("aws", "failed to load AWS configuration", err)
	}
	return NewS3ClientFromAPI(s3.NewFromConfig(cfg)), nil
}

// NewS3ClientFromAPI wraps an existing S3 API implementation.
func NewS3ClientFromAPI(api S3API) *S3Client {
	return &S3Client{api: api}
}

// List pages through ListObjectsV2 and returns all keys under prefix.
func (c *S3Client) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list s3://%s/%s", bucket, prefix)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// Get downloads one object into w.
func (c *S3Client) Get(ctx context.Context, bucket, key string, w io.Writer) (int64, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, errors.Wrapf(err, "failed to get s3://%s/%s", bucket, key)
	}
	defer out.Body.Close()

	n, err := io.Copy(w, out.Body)
	if err != nil {
		return n, errors.Wrapf(err, "failed to read s3://%s/%s", bucket, key)
	}
	return n, nil
}

// Put uploads one object.
func (c *S3Client) Put(ctx context.Context, bucket, key string, r io.Reader, size int64) error {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return errors.Wrapf(err, "failed to put s3://%s/%s", bucket, key)
	}
	return nil
}

var _ Client = (*S3Client)(nil)
