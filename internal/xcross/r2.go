package xcross

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Fetcher reads archives from an S3-compatible bucket (AWS or
// Cloudflare R2).
type S3Fetcher struct {
	Client *s3.Client
	Bucket string
	Prefix string
}

// parseS3Mirror splits s3://bucket/prefix into its parts.
func parseS3Mirror(mirror string) (bucket, prefix string, err error) {
	rest := strings.TrimPrefix(mirror, "s3://")
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid S3 mirror %q: missing bucket", mirror)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}

// NewS3Fetcher initializes an S3 client. When R2 credentials are present
// in the configuration the client targets the account's R2 endpoint;
// otherwise the default AWS credential chain is used.
func NewS3Fetcher(ctx context.Context, mirror string, cfg *Config) (*S3Fetcher, error) {
	bucket, prefix, err := parseS3Mirror(mirror)
	if err != nil {
		return nil, err
	}

	accountID := cfg.Values["R2_ACCOUNT_ID"]
	accessKey := cfg.Values["R2_ACCESS_KEY_ID"]
	secretKey := cfg.Values["R2_SECRET_ACCESS_KEY"]

	var options []func(*config.LoadOptions) error
	if accessKey != "" && secretKey != "" {
		options = append(options, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	if accountID != "" {
		options = append(options, config.WithRegion("auto"))
	}
	if Debug {
		options = append(options, config.WithClientLogMode(aws.LogRetries|aws.LogRequest|aws.LogResponse))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if accountID != "" {
			o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID))
			o.UsePathStyle = true
		}
	})

	return &S3Fetcher{Client: client, Bucket: bucket, Prefix: prefix}, nil
}

func (f *S3Fetcher) key(remotePath string) string {
	return path.Join(f.Prefix, strings.TrimPrefix(remotePath, "/"))
}

func (f *S3Fetcher) Location(remotePath string) string {
	return fmt.Sprintf("s3://%s/%s", f.Bucket, f.key(remotePath))
}

func (f *S3Fetcher) Open(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	output, err := f.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.Bucket),
		Key:    aws.String(f.key(remotePath)),
	})
	if err != nil {
		return nil, err
	}
	return output.Body, nil
}
