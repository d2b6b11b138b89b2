// Package storage publishes index files to object storage and fetches them
// back. Two backends are supported: a local directory and Tencent COS.
package storage

import (
	"context"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/fastmerger/pkg/config"
	apperrors "github.com/fastmerger/pkg/errors"
)

// Store is a flat key/value object store. Keys are slash separated and
// must stay inside the store root.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) error
	PutFile(ctx context.Context, key, localPath string) error
	// Get returns NOT_FOUND when key is absent.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	GetFile(ctx context.Context, key, localPath string) error
	// Delete succeeds when key is already absent.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// URL is where key can be read from, or "" for an invalid key.
	URL(key string) string
}

// Backend names accepted in storage.type.
const (
	BackendLocal = "local"
	BackendCOS   = "cos"
)

// Open creates the Store described by cfg.
func Open(cfg *config.StorageConfig) (Store, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Type == BackendCOS {
		return NewCOSStore(&COSConfig{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
			Domain:    cfg.Domain,
			Scheme:    cfg.Scheme,
		})
	}
	return NewDirStore(cfg.LocalPath)
}

// ValidateConfig checks that cfg names a supported backend with the
// settings it needs.
func ValidateConfig(cfg *config.StorageConfig) error {
	if cfg == nil {
		return apperrors.New(apperrors.CodeConfigError, "storage config is nil")
	}

	var missing string
	switch cfg.Type {
	case BackendCOS:
		switch {
		case cfg.Bucket == "":
			missing = "COS bucket is"
		case cfg.Region == "":
			missing = "COS region is"
		case cfg.SecretID == "" || cfg.SecretKey == "":
			missing = "COS credentials are"
		}
	case BackendLocal, "":
		if cfg.LocalPath == "" {
			missing = "local storage path is"
		}
	default:
		return apperrors.Newf(apperrors.CodeConfigError, "unsupported storage type: %s", cfg.Type)
	}
	if missing != "" {
		return apperrors.Newf(apperrors.CodeConfigError, "%s required", missing)
	}
	return nil
}

// cleanKey normalizes key to a relative slash path. Keys with ".."
// segments are rejected rather than resolved.
func cleanKey(key string) (string, error) {
	slashed := strings.ReplaceAll(key, `\`, "/")
	if slices.Contains(strings.Split(slashed, "/"), "..") {
		return "", apperrors.Newf(apperrors.CodeInvalidInput, "object key %q escapes storage root", key)
	}
	k := strings.TrimPrefix(path.Clean("/"+slashed), "/")
	if k == "" {
		return "", apperrors.Newf(apperrors.CodeInvalidInput, "invalid object key %q", key)
	}
	return k, nil
}
