// Package publish mirrors finished export files to S3-compatible object storage.
package publish

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds object storage settings.
type Config struct {
	Endpoint  string `yaml:"endpoint"`   // host:port or http(s)://host:port
	Bucket    string `yaml:"bucket"`     //
	Prefix    string `yaml:"prefix"`     // key prefix, e.g. "retail/exports"
	AccessKey string `yaml:"access_key"` //
	SecretKey string `yaml:"secret_key"` //
	Region    string `yaml:"region"`     // default: us-east-1
	UseSSL    bool   `yaml:"use_ssl"`    // implied by an https:// endpoint
}

// Enabled reports whether uploads are configured.
func (c *Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// Publisher uploads one export file and returns its object URL.
type Publisher interface {
	Publish(ctx context.Context, runID, table, file string) (string, int64, error)
}

// S3Publisher implements Publisher with the minio-go SDK.
type S3Publisher struct {
	client *minio.Client
	cfg    Config
}

// New creates an S3Publisher. It does not contact the server.
func New(cfg Config) (*S3Publisher, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("publish: endpoint and bucket are required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("publish: credentials are required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("publish: invalid endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("publish: create client: %w", err)
	}
	return &S3Publisher{client: client, cfg: cfg}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (p *S3Publisher) EnsureBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("publish: checking bucket %s: %w", p.cfg.Bucket, err)
	}
	if exists {
		return nil
	}
	if err := p.client.MakeBucket(ctx, p.cfg.Bucket, minio.MakeBucketOptions{Region: p.cfg.Region}); err != nil {
		return fmt.Errorf("publish: creating bucket %s: %w", p.cfg.Bucket, err)
	}
	return nil
}

// Publish uploads file under <prefix>/run=<runID>/<file name>.
func (p *S3Publisher) Publish(ctx context.Context, runID, table, file string) (string, int64, error) {
	key := ObjectKey(p.cfg.Prefix, runID, filepath.Base(file))
	info, err := p.client.FPutObject(ctx, p.cfg.Bucket, key, file, minio.PutObjectOptions{
		ContentType:  contentType(file),
		UserMetadata: map[string]string{"table": table, "run-id": runID},
	})
	if err != nil {
		return "", 0, fmt.Errorf("publish: uploading %s: %w", file, err)
	}
	return fmt.Sprintf("s3://%s/%s", p.cfg.Bucket, key), info.Size, nil
}

// ObjectKey joins the key parts, ignoring empty ones.
func ObjectKey(prefix, runID, name string) string {
	parts := []string{}
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	if runID != "" {
		parts = append(parts, "run="+runID)
	}
	parts = append(parts, name)
	return path.Join(parts...)
}

func contentType(file string) string {
	if strings.EqualFold(filepath.Ext(file), ".parquet") {
		return "application/vnd.apache.parquet"
	}
	return "text/csv"
}
