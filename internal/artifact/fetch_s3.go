package artifact

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// S3Config locates an S3-compatible object store for s3://bucket/key sources.
type S3Config struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	Region    string `json:"region" yaml:"region" toml:"region"`
	AccessKey string `json:"access_key" yaml:"access_key" toml:"access_key"`
	SecretKey string `json:"secret_key" yaml:"secret_key" toml:"secret_key"`
	UseSSL    bool   `json:"use_ssl" yaml:"use_ssl" toml:"use_ssl"`
}

// Enabled reports whether an endpoint is configured.
func (c S3Config) Enabled() bool { return strings.TrimSpace(c.Endpoint) != "" }

// S3Fetcher streams objects from an S3-compatible store.
type S3Fetcher struct {
	client    *minio.Client
	ChunkSize int
	Log       zerolog.Logger
}

// NewS3Fetcher builds a fetcher. Empty keys use anonymous access, which is
// what public release buckets need.
func NewS3Fetcher(cfg S3Config, chunkSize int, log zerolog.Logger) (*S3Fetcher, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Fetcher{client: client, ChunkSize: chunkSize, Log: log}, nil
}

// parseS3Source splits s3://bucket/key/with/slashes.
func parseS3Source(source string) (bucket, key string, err error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", "", err
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 source %q must be s3://bucket/key", source)
	}
	return bucket, key, nil
}

func (s *S3Fetcher) Fetch(ctx context.Context, source string, dst io.Writer) (int64, error) {
	bucket, key, err := parseS3Source(source)
	if err != nil {
		return 0, err
	}
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("get object %s: %w", source, err)
	}
	defer obj.Close()
	info, err := obj.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat object %s: %w", source, err)
	}
	s.Log.Info().Str("source", source).Int64("size", info.Size).Msg("artifact download start")
	n, err := copyChunks(ctx, dst, obj, s.ChunkSize, progressLogger(s.Log, source, info.Size))
	if err != nil {
		return n, fmt.Errorf("download %s: %w", source, err)
	}
	return n, nil
}
