package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/tencentyun/cos-go-sdk-v5"

	apperrors "github.com/fastmerger/pkg/errors"
)

// Defaults for COSConfig.
const (
	DefaultCOSDomain = "myqcloud.com"
	DefaultCOSScheme = "https"
)

// indexContentType is sent with every uploaded object.
const indexContentType = "application/octet-stream"

// COSConfig holds COS-specific configuration.
type COSConfig struct {
	Bucket    string
	Region    string
	SecretID  string
	SecretKey string
	Domain    string
	Scheme    string
}

// COSStore keeps objects in a Tencent Cloud COS bucket.
type COSStore struct {
	client *cos.Client
	bucket *url.URL
}

// NewCOSStore creates a store for the bucket in cfg.
func NewCOSStore(cfg *COSConfig) (*COSStore, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, apperrors.New(apperrors.CodeConfigError, "bucket and region are required for COS storage")
	}
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, apperrors.New(apperrors.CodeConfigError, "credentials are required for COS storage")
	}
	domain, scheme := cfg.Domain, cfg.Scheme
	if domain == "" {
		domain = DefaultCOSDomain
	}
	if scheme == "" {
		scheme = DefaultCOSScheme
	}

	bucket, err := url.Parse(fmt.Sprintf("%s://%s.cos.%s.%s", scheme, cfg.Bucket, cfg.Region, domain))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "parse bucket URL", err)
	}
	service, err := url.Parse(fmt.Sprintf("%s://cos.%s.%s", scheme, cfg.Region, domain))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "parse service URL", err)
	}
	return newCOSStore(bucket, service, cfg.SecretID, cfg.SecretKey), nil
}

func newCOSStore(bucket, service *url.URL, secretID, secretKey string) *COSStore {
	client := cos.NewClient(
		&cos.BaseURL{BucketURL: bucket, ServiceURL: service},
		&http.Client{Transport: &cos.AuthorizationTransport{SecretID: secretID, SecretKey: secretKey}},
	)
	return &COSStore{client: client, bucket: bucket}
}

func putOptions() *cos.ObjectPutOptions {
	return &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{ContentType: indexContentType},
	}
}

// cosError maps an SDK error onto the error codes callers check.
func cosError(op, key string, err error) error {
	if cos.IsNotFoundError(err) {
		return apperrors.Newf(apperrors.CodeNotFound, "object not found: %s", key)
	}
	return apperrors.Wrap(apperrors.CodeStorageError, op+" "+key, err)
}

// Put uploads the contents of r under key.
func (s *COSStore) Put(ctx context.Context, key string, r io.Reader) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	if _, err := s.client.Object.Put(ctx, k, r, putOptions()); err != nil {
		return cosError("upload", k, err)
	}
	return nil
}

// PutFile uploads the file at localPath under key.
func (s *COSStore) PutFile(ctx context.Context, key, localPath string) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	if _, err := s.client.Object.PutFromFile(ctx, k, localPath, putOptions()); err != nil {
		return cosError("upload file", k, err)
	}
	return nil
}

// Get streams the object at key.
func (s *COSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Object.Get(ctx, k, nil)
	if err != nil {
		return nil, cosError("download", k, err)
	}
	return resp.Body, nil
}

// GetFile downloads the object at key to localPath.
func (s *COSStore) GetFile(ctx context.Context, key, localPath string) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageError, "create directory", err)
	}
	if _, err := s.client.Object.GetToFile(ctx, k, localPath, nil); err != nil {
		return cosError("download file", k, err)
	}
	return nil
}

// Delete removes the object at key.
func (s *COSStore) Delete(ctx context.Context, key string) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	if _, err := s.client.Object.Delete(ctx, k, nil); err != nil {
		return cosError("delete", k, err)
	}
	return nil
}

// Exists reports whether an object is stored at key.
func (s *COSStore) Exists(ctx context.Context, key string) (bool, error) {
	k, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	ok, err := s.client.Object.IsExist(ctx, k)
	if err != nil {
		return false, cosError("stat", k, err)
	}
	return ok, nil
}

// URL returns the public URL of key.
func (s *COSStore) URL(key string) string {
	k, err := cleanKey(key)
	if err != nil {
		return ""
	}
	return s.bucket.JoinPath(k).String()
}
