package photos

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Mirror copies a finished photo somewhere else.
type Mirror interface {
	Mirror(path string)
}

// S3Config configures an S3-compatible photo mirror.
type S3Config struct {
	Endpoint      string
	Bucket        string
	Prefix        string
	AccessKeyFile string
	SecretKeyFile string
	Region        string
}

// Enabled reports whether the mirror has been configured at all.
func (c S3Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != "" || strings.TrimSpace(c.Bucket) != ""
}

// S3Mirror uploads photos in the background. Failures are logged and
// reported to OnError; they never reach the HTTP response.
type S3Mirror struct {
	client *minio.Client
	bucket string
	prefix string

	Timeout time.Duration
	OnError func(err error)

	wg sync.WaitGroup
}

// NewS3Mirror builds a mirror from cfg, reading credentials from files.
func NewS3Mirror(cfg S3Config) (*S3Mirror, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	bucket := strings.TrimSpace(cfg.Bucket)
	prefix := strings.Trim(strings.TrimSpace(cfg.Prefix), "/")
	accessKeyFile := strings.TrimSpace(cfg.AccessKeyFile)
	secretKeyFile := strings.TrimSpace(cfg.SecretKeyFile)

	if endpoint == "" || bucket == "" || accessKeyFile == "" || secretKeyFile == "" {
		return nil, fmt.Errorf("missing photo mirror configuration")
	}

	accessKey, err := readSecretFile(accessKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read photo mirror access key: %w", err)
	}
	secretKey, err := readSecretFile(secretKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read photo mirror secret key: %w", err)
	}

	host, secure, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	if prefix == "" {
		prefix = "plant/photos"
	}

	return &S3Mirror{client: client, bucket: bucket, prefix: prefix, Timeout: time.Minute}, nil
}

// Upload copies the file at p to the bucket.
func (m *S3Mirror) Upload(ctx context.Context, p string) error {
	_, err := m.client.FPutObject(ctx, m.bucket, m.key(p), p, minio.PutObjectOptions{
		ContentType: "image/jpeg",
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", filepath.Base(p), err)
	}
	return nil
}

// Mirror uploads p in the background.
func (m *S3Mirror) Mirror(p string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.Timeout)
		defer cancel()
		if err := m.Upload(ctx, p); err != nil {
			log.Printf("photos: mirror: %v", err)
			if m.OnError != nil {
				m.OnError(err)
			}
		}
	}()
}

// Wait blocks until background uploads finish.
func (m *S3Mirror) Wait() {
	m.wg.Wait()
}

func (m *S3Mirror) key(p string) string {
	return path.Join(m.prefix, filepath.Base(p))
}

func parseEndpoint(raw string) (string, bool, error) {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, fmt.Errorf("parse endpoint: %w", err)
		}
		if u.Host == "" {
			return "", false, fmt.Errorf("invalid endpoint: %q", raw)
		}
		return u.Host, u.Scheme == "https", nil
	}
	return raw, true, nil
}

func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
