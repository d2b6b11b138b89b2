package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastmerger/pkg/config"
	apperrors "github.com/fastmerger/pkg/errors"
)

func TestNewCOSStore_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  COSConfig
		msg  string
	}{
		{"MissingBucket", COSConfig{Region: "ap-guangzhou", SecretID: "id", SecretKey: "key"}, "bucket and region are required"},
		{"MissingRegion", COSConfig{Bucket: "b", SecretID: "id", SecretKey: "key"}, "bucket and region are required"},
		{"MissingCredentials", COSConfig{Bucket: "b", Region: "ap-guangzhou"}, "credentials are required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewCOSStore(&tt.cfg)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.Contains(t, err.Error(), tt.msg)
			assert.Equal(t, apperrors.CodeConfigError, apperrors.GetErrorCode(err))
		})
	}
}

func TestCOSStore_URL(t *testing.T) {
	s, err := NewCOSStore(&COSConfig{
		Bucket:    "my-bucket",
		Region:    "ap-guangzhou",
		SecretID:  "test-id",
		SecretKey: "test-key",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://my-bucket.cos.ap-guangzhou.myqcloud.com/indexes/app.bindeps.zst",
		s.URL("/indexes/./app.bindeps.zst"))
	assert.Empty(t, s.URL("../escape"))
}

func TestOpen_COS(t *testing.T) {
	s, err := Open(&config.StorageConfig{
		Type:      "cos",
		Bucket:    "test-bucket",
		Region:    "ap-guangzhou",
		SecretID:  "test-id",
		SecretKey: "test-key",
	})
	require.NoError(t, err)
	assert.IsType(t, &COSStore{}, s)
}

// fakeBucket serves the subset of the COS object API the storage uses.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[key] = data
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		data, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method == http.MethodGet {
				io.WriteString(w, "<Error><Code>NoSuchKey</Code><Message>not found</Message></Error>")
			}
			return
		}
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			w.Write(data)
		}
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeBucket) get(key string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[key]
}

func newFakeCOS(t *testing.T) (*COSStore, *fakeBucket) {
	t.Helper()
	bucket := &fakeBucket{objects: make(map[string][]byte)}
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	s := newCOSStore(u, u, "test-id", "test-key")
	s.client.Conf.EnableCRC = false
	return s, bucket
}

func TestCOSStore_RoundTrip(t *testing.T) {
	s, bucket := newFakeCOS(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "idx/a.bindeps", bytes.NewReader([]byte("payload"))))
	assert.Equal(t, []byte("payload"), bucket.get("idx/a.bindeps"))

	ok, err := s.Exists(ctx, "idx/a.bindeps")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := s.Get(ctx, "idx/a.bindeps")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	src := filepath.Join(t.TempDir(), "src.bin")
	require.NoError(t, os.WriteFile(src, []byte("from file"), 0644))
	require.NoError(t, s.PutFile(ctx, "idx/b.bindeps", src))

	dst := filepath.Join(t.TempDir(), "nested", "dst.bin")
	require.NoError(t, s.GetFile(ctx, "idx/b.bindeps", dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "from file", string(got))

	require.NoError(t, s.Delete(ctx, "idx/a.bindeps"))
	ok, err = s.Exists(ctx, "idx/a.bindeps")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCOSStore_NotFound(t *testing.T) {
	s, _ := newFakeCOS(t)

	_, err := s.Get(context.Background(), "missing.bindeps")
	assert.True(t, apperrors.IsNotFound(err))

	err = s.Put(context.Background(), "../escape", bytes.NewReader(nil))
	assert.True(t, apperrors.IsInvalidInput(err))
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.StorageConfig
		msg  string
	}{
		{"NilConfig", nil, "storage config is nil"},
		{"InvalidStorageType", &config.StorageConfig{Type: "s3"}, "unsupported storage type"},
		{"COSMissingBucket", &config.StorageConfig{Type: "cos", Region: "r", SecretID: "i", SecretKey: "k"}, "COS bucket is required"},
		{"COSMissingRegion", &config.StorageConfig{Type: "cos", Bucket: "b", SecretID: "i", SecretKey: "k"}, "COS region is required"},
		{"COSMissingCredentials", &config.StorageConfig{Type: "cos", Bucket: "b", Region: "r"}, "COS credentials are required"},
		{"LocalMissingPath", &config.StorageConfig{Type: "local"}, "local storage path is required"},
		{"EmptyTypeMissingPath", &config.StorageConfig{}, "local storage path is required"},
		{"ValidCOSConfig", &config.StorageConfig{Type: "cos", Bucket: "b", Region: "r", SecretID: "i", SecretKey: "k"}, ""},
		{"ValidLocalConfig", &config.StorageConfig{Type: "local", LocalPath: "/tmp/storage"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.cfg)
			if tt.msg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
