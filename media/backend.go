package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Backend persists named blobs. Names are bare file names; the Store owns
// the reference prefix.
type Backend interface {
	Put(ctx context.Context, name string, data []byte, contentType string) error
	Remove(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
	URL(name string) string
}

// LocalStorage keeps files in a directory served under URLPrefix.
type LocalStorage struct {
	Dir       string
	URLPrefix string
}

// NewLocalStorage creates the directory if needed.
func NewLocalStorage(dir, urlPrefix string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create storage dir %s: %w", dir, err)
	}
	return &LocalStorage{Dir: dir, URLPrefix: strings.TrimSuffix(urlPrefix, "/")}, nil
}

func (ls *LocalStorage) path(name string) string {
	return filepath.Join(ls.Dir, filepath.Base(name))
}

func (ls *LocalStorage) Put(_ context.Context, name string, data []byte, _ string) error {
	return os.WriteFile(ls.path(name), data, 0644)
}

func (ls *LocalStorage) Remove(_ context.Context, name string) error {
	err := os.Remove(ls.path(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (ls *LocalStorage) Exists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(ls.path(name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (ls *LocalStorage) URL(name string) string {
	return ls.URLPrefix + "/" + filepath.Base(name)
}

// S3Storage stores objects in an S3-compatible bucket under KeyPrefix.
type S3Storage struct {
	Client     *minio.Client
	BucketName string
	PublicURL  string
	KeyPrefix  string
}

// NewS3Storage connects to the bucket and verifies it exists.
func NewS3Storage(ctx context.Context, endpoint, accessKey, secretKey, bucket, region, publicURL string, useSSL bool) (*S3Storage, error) {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")

	var creds *credentials.Credentials
	if accessKey == "" || secretKey == "" {
		// IAM role credentials when keys are absent
		creds = credentials.NewIAM("")
	} else {
		creds = credentials.NewStaticV4(accessKey, secretKey, "")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", bucket)
	}

	if publicURL == "" {
		protocol := "http"
		if useSSL {
			protocol = "https"
		}
		publicURL = fmt.Sprintf("%s://%s.%s", protocol, bucket, endpoint)
	}

	return &S3Storage{
		Client:     client,
		BucketName: bucket,
		PublicURL:  strings.TrimSuffix(publicURL, "/"),
	}, nil
}

// WithPrefix returns a view of the same bucket rooted at prefix.
func (s *S3Storage) WithPrefix(prefix string) *S3Storage {
	cp := *s
	cp.KeyPrefix = strings.Trim(prefix, "/")
	return &cp
}

func (s *S3Storage) key(name string) string {
	if s.KeyPrefix == "" {
		return name
	}
	return s.KeyPrefix + "/" + name
}

func (s *S3Storage) Put(ctx context.Context, name string, data []byte, contentType string) error {
	_, err := s.Client.PutObject(ctx, s.BucketName, s.key(name), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (s *S3Storage) Remove(ctx context.Context, name string) error {
	return s.Client.RemoveObject(ctx, s.BucketName, s.key(name), minio.RemoveObjectOptions{})
}

func (s *S3Storage) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.Client.StatObject(ctx, s.BucketName, s.key(name), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, err
}

func (s *S3Storage) URL(name string) string {
	return s.PublicURL + "/" + s.key(name)
}
