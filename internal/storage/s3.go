package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/timmy/imgfind/internal/config"
)

// Provider selects provider-specific behavior of an S3 API endpoint.
type Provider string

const (
	ProviderS3           Provider = "s3"
	ProviderR2           Provider = "r2"
	ProviderS3Compatible Provider = "s3compatible"
)

// Object is one upload.
type Object struct {
	Key          string
	Body         io.Reader
	Size         int64
	ContentType  string
	CacheControl string
}

// S3Bucket writes objects into a single bucket of an S3 API endpoint
// (AWS S3, Cloudflare R2, MinIO and similar).
type S3Bucket struct {
	client     *s3.Client
	name       string
	provider   Provider
	region     string
	publicBase string
}

// NewS3Bucket builds a client for cfg.Bucket. With no endpoint the client
// talks to AWS S3; any other endpoint is addressed path-style.
func NewS3Bucket(cfg *config.StorageConfig) (*S3Bucket, error) {
	provider := Provider(cfg.Type)
	if provider == "" {
		provider = DetectProvider(cfg.Endpoint)
	}

	host := endpointHost(cfg.Endpoint)
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
		if provider == ProviderR2 {
			region = "auto"
		}
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if host == "" {
			return
		}
		o.BaseEndpoint = aws.String(scheme + "://" + host)
		o.UsePathStyle = true
	})

	return &S3Bucket{
		client:     client,
		name:       cfg.Bucket,
		provider:   provider,
		region:     region,
		publicBase: publicBase(cfg.PublicURL, scheme, host, cfg.Bucket, region),
	}, nil
}

// DetectProvider guesses the provider from the endpoint host.
func DetectProvider(endpoint string) Provider {
	endpoint = strings.ToLower(endpoint)
	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return ProviderR2
	case endpoint == "" || strings.Contains(endpoint, "amazonaws.com"):
		return ProviderS3
	default:
		return ProviderS3Compatible
	}
}

// endpointHost strips the scheme and any path from endpoint.
func endpointHost(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	if idx := strings.Index(endpoint, "/"); idx != -1 {
		endpoint = endpoint[:idx]
	}
	return endpoint
}

// publicBase is the URL prefix objects are reachable under. A configured
// public URL (CDN, r2.dev) wins over the API endpoint.
func publicBase(publicURL, scheme, host, bucket, region string) string {
	if publicURL != "" {
		return strings.TrimSuffix(publicURL, "/")
	}
	if host == "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}
	return fmt.Sprintf("%s://%s/%s", scheme, host, bucket)
}

// EnsureBucket creates the bucket when it is missing. R2 buckets must be
// created in the dashboard.
func (b *S3Bucket) EnsureBucket(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.name)})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to check bucket %s: %w", b.name, err)
	}

	if b.provider == ProviderR2 {
		return fmt.Errorf("bucket %s does not exist, please create it in R2 dashboard", b.name)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(b.name)}
	if b.provider == ProviderS3 && b.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.region),
		}
	}
	if _, err := b.client.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", b.name, err)
	}
	return nil
}

// Put uploads obj, replacing any object under the same key.
func (b *S3Bucket) Put(ctx context.Context, obj Object) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(b.name),
		Key:           aws.String(obj.Key),
		Body:          obj.Body,
		ContentLength: aws.Int64(obj.Size),
		ContentType:   aws.String(obj.ContentType),
	}
	if obj.CacheControl != "" {
		input.CacheControl = aws.String(obj.CacheControl)
	}
	if _, err := b.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload %s: %w", obj.Key, err)
	}
	return nil
}

// URL returns the public URL of key.
func (b *S3Bucket) URL(key string) string {
	return b.publicBase + "/" + key
}
