package storage

import (
	"context"
	"encoding/hex"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/zeebo/xxh3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fastmerger/internal/bindeps"
	"github.com/fastmerger/pkg/compression"
	apperrors "github.com/fastmerger/pkg/errors"
	"github.com/fastmerger/pkg/telemetry"
	"github.com/fastmerger/pkg/utils"
)

// PublisherOptions configures a Publisher.
type PublisherOptions struct {
	// Prefix is prepended to every object key.
	Prefix      string
	// Compression selects the codec. The zero value is gzip.
	Compression compression.Type
	Level       compression.Level
	// NoClobber makes Publish fail when the object key is already taken.
	NoClobber   bool
	Logger      utils.Logger
}

// Published describes an uploaded index.
type Published struct {
	Key        string
	URL        string
	Size       int64 // uncompressed
	StoredSize int64
	Checksum   string
	Header     bindeps.Header
}

// Publisher uploads index files compressed and fetches them back.
type Publisher struct {
	store Store
	opts  PublisherOptions
}

// NewPublisher creates a publisher on top of store.
func NewPublisher(store Store, opts PublisherOptions) *Publisher {
	if opts.Logger == nil {
		opts.Logger = &utils.NullLogger{}
	}
	if opts.Level == 0 {
		opts.Level = compression.LevelDefault
	}
	return &Publisher{store: store, opts: opts}
}

// ObjectKey returns the key an index published under name is stored at.
func (p *Publisher) ObjectKey(name string) string {
	key := name + p.opts.Compression.Extension()
	if p.opts.Prefix != "" {
		key = path.Join(p.opts.Prefix, key)
	}
	return key
}

// Publish validates the index at localPath, compresses it and uploads it
// under ObjectKey(name).
func (p *Publisher) Publish(ctx context.Context, localPath, name string) (res *Published, err error) {
	ctx, span := telemetry.StartSpan(ctx, "bindeps.publish", attribute.String("bindeps.path", localPath))
	defer func() { telemetry.EndSpan(span, err) }()

	header, size, err := inspect(localPath)
	if err != nil {
		return nil, err
	}
	sum, err := Checksum(localPath)
	if err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "bindeps-publish-*")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIOError, "create temp dir", err)
	}
	defer os.RemoveAll(tmpDir)

	packed := filepath.Join(tmpDir, "index"+p.opts.Compression.Extension())
	stored, err := compression.CompressFile(localPath, packed, p.opts.Compression, p.opts.Level)
	if err != nil {
		return nil, err
	}

	key := p.ObjectKey(name)
	if p.opts.NoClobber {
		taken, err := p.store.Exists(ctx, key)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperrors.Newf(apperrors.CodeInvalidInput, "object %s already exists", key)
		}
	}
	if err := p.store.PutFile(ctx, key, packed); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("bindeps.key", key), attribute.Int64("bindeps.stored_size", stored))

	p.opts.Logger.WithFields(map[string]interface{}{
		"key":        key,
		"size":       size,
		"storedSize": stored,
	}).Info("published %s", localPath)

	return &Published{
		Key:        key,
		URL:        p.store.URL(key),
		Size:       size,
		StoredSize: stored,
		Checksum:   sum,
		Header:     header,
	}, nil
}

// Fetch downloads key, decompresses it into localPath and validates the
// result. On failure localPath is left untouched.
func (p *Publisher) Fetch(ctx context.Context, key, localPath string) (typ compression.Type, err error) {
	ctx, span := telemetry.StartSpan(ctx, "bindeps.fetch", attribute.String("bindeps.key", key))
	defer func() { telemetry.EndSpan(span, err) }()

	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return compression.TypeNone, apperrors.Wrap(apperrors.CodeIOError, "create directory", err)
	}
	tmpDir, err := os.MkdirTemp(dir, ".bindeps-fetch-*")
	if err != nil {
		return compression.TypeNone, apperrors.Wrap(apperrors.CodeIOError, "create temp dir", err)
	}
	defer os.RemoveAll(tmpDir)

	packed := filepath.Join(tmpDir, "download")
	if err := p.store.GetFile(ctx, key, packed); err != nil {
		return compression.TypeNone, err
	}
	unpacked := filepath.Join(tmpDir, "index")
	typ, err = compression.DecompressFile(packed, unpacked)
	if err != nil {
		return typ, err
	}
	if _, _, err := inspect(unpacked); err != nil {
		return typ, err
	}
	if err := os.Rename(unpacked, localPath); err != nil {
		return typ, apperrors.Wrap(apperrors.CodeIOError, "move fetched index", err)
	}

	p.opts.Logger.WithField("compression", typ.String()).Info("fetched %s to %s", key, localPath)
	return typ, nil
}

// Unpublish removes the object at key. It returns NOT_FOUND when nothing
// is stored there.
func (p *Publisher) Unpublish(ctx context.Context, key string) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "bindeps.unpublish", attribute.String("bindeps.key", key))
	defer func() { telemetry.EndSpan(span, err) }()

	ok, err := p.store.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Newf(apperrors.CodeNotFound, "object not found: %s", key)
	}
	if err := p.store.Delete(ctx, key); err != nil {
		return err
	}
	p.opts.Logger.Info("unpublished %s", key)
	return nil
}

// inspect opens path as an index to validate it and returns its header and
// file size.
func inspect(localPath string) (bindeps.Header, int64, error) {
	r, err := bindeps.Open(localPath, bindeps.WithoutMmap())
	if err != nil {
		return bindeps.Header{}, 0, err
	}
	defer r.Close()
	return r.Header(), r.Header().FileSize(), nil
}

// Checksum returns the xxh3-128 digest of the file at path as
// "xxh3:<hex>".
func Checksum(localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeIOError, "open "+localPath, err)
	}
	defer f.Close()

	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", apperrors.Wrap(apperrors.CodeIOError, "read "+localPath, err)
	}
	sum := h.Sum128().Bytes()
	return "xxh3:" + hex.EncodeToString(sum[:]), nil
}

// IndexName derives a publish name from an index file path.
func IndexName(localPath string) string {
	return strings.TrimSuffix(filepath.Base(localPath), filepath.Ext(localPath))
}
