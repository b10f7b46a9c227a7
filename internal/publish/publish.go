package publish

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"gitlab2dash/internal/config"
)

// Publisher uploads generated report artifacts to S3-compatible storage
type Publisher struct {
	client *minio.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// New creates a publisher from the publish config
func New(cfg config.Publish, logger *zap.Logger) (*Publisher, error) {
	endpoint, err := cleanEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, err
	}

	return &Publisher{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger,
	}, nil
}

// cleanEndpoint removes protocol and path from endpoint URL to get host:port format
func cleanEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("endpoint cannot be empty")
	}

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if strings.Contains(endpoint, "/") {
			return "", fmt.Errorf("endpoint contains path but no protocol")
		}
		return endpoint, nil
	}

	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint URL: %w", err)
	}

	if parsedURL.Path != "" && parsedURL.Path != "/" {
		return "", fmt.Errorf("endpoint URL cannot have paths, only host:port is allowed (got path: %s)", parsedURL.Path)
	}

	return parsedURL.Host, nil
}

// Upload pushes the dashboard and CSV files found in dir. Individual
// upload failures are logged and counted but do not abort the rest.
func (p *Publisher) Upload(ctx context.Context, dir, runKey string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read export directory: %w", err)
	}

	uploaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !publishable(entry.Name()) {
			continue
		}

		local := filepath.Join(dir, entry.Name())
		key := path(p.prefix, runKey, entry.Name())

		_, err := p.client.FPutObject(ctx, p.bucket, key, local, minio.PutObjectOptions{
			ContentType: contentType(entry.Name()),
		})
		if err != nil {
			p.logger.Warn("Failed to upload artifact",
				zap.String("file", entry.Name()),
				zap.String("bucket", p.bucket),
				zap.Error(err))
			continue
		}

		uploaded++
		p.logger.Debug("Uploaded artifact",
			zap.String("key", key),
			zap.String("bucket", p.bucket))
	}

	return uploaded, nil
}

func publishable(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".csv" || ext == ".html" || ext == ".json"
}

func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".csv":
		return "text/csv"
	case ".html":
		return "text/html"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

func path(parts ...string) string {
	var kept []string
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, "/")
}
