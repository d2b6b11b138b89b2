package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastmerger/internal/bindeps"
	"github.com/fastmerger/internal/testutil"
	"github.com/fastmerger/pkg/compression"
	apperrors "github.com/fastmerger/pkg/errors"
)

func TestPublisher_RoundTrip(t *testing.T) {
	src := testutil.BuildIndex(t, testutil.SampleClasses())
	original, err := os.ReadFile(src)
	require.NoError(t, err)

	for _, typ := range []compression.Type{compression.TypeZstd, compression.TypeGzip, compression.TypeNone} {
		t.Run(typ.String(), func(t *testing.T) {
			store, _ := newLocal(t)
			p := NewPublisher(store, PublisherOptions{Prefix: "indexes", Compression: typ})

			pub, err := p.Publish(context.Background(), src, "app")
			require.NoError(t, err)
			assert.Equal(t, "indexes/app"+typ.Extension(), pub.Key)
			assert.Equal(t, int64(len(original)), pub.Size)
			assert.Equal(t, int32(6), pub.Header.ClassInfoSize)
			assert.Regexp(t, `^xxh3:[0-9a-f]{32}$`, pub.Checksum)
			assert.Equal(t, store.URL(pub.Key), pub.URL)

			dst := filepath.Join(t.TempDir(), "fetched.bindeps")
			got, err := p.Fetch(context.Background(), pub.Key, dst)
			require.NoError(t, err)
			assert.Equal(t, typ, got)

			fetched, err := os.ReadFile(dst)
			require.NoError(t, err)
			assert.Equal(t, original, fetched)

			sum, err := Checksum(dst)
			require.NoError(t, err)
			assert.Equal(t, pub.Checksum, sum)

			r, err := bindeps.Open(dst)
			require.NoError(t, err)
			defer r.Close()
			_, err = r.FindClass("com/app/Main")
			assert.NoError(t, err)
		})
	}
}

func TestPublisher_RejectsInvalidIndex(t *testing.T) {
	store, dir := newLocal(t)
	p := NewPublisher(store, PublisherOptions{Compression: compression.TypeZstd})

	bogus := testutil.WriteFile(t, t.TempDir(), "bogus.bindeps", "not an index at all, definitely")
	_, err := p.Publish(context.Background(), bogus, "bogus")
	assert.True(t, apperrors.IsFormatError(err))
	assert.NoFileExists(t, filepath.Join(dir, "bogus.zst"))
}

func TestPublisher_FetchLeavesTargetOnFailure(t *testing.T) {
	store, _ := newLocal(t)
	p := NewPublisher(store, PublisherOptions{Compression: compression.TypeNone})
	ctx := context.Background()

	dst := testutil.WriteFile(t, t.TempDir(), "keep.bindeps", "previous")

	_, err := p.Fetch(ctx, "missing", dst)
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, store.Put(ctx, "corrupt", strings.NewReader("BINDEPS but not really")))
	_, err = p.Fetch(ctx, "corrupt", dst)
	assert.True(t, apperrors.IsFormatError(err))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(dst), ".bindeps-fetch-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestPublisher_NoClobberAndUnpublish(t *testing.T) {
	src := testutil.BuildIndex(t, testutil.SampleClasses())
	store, dir := newLocal(t)
	ctx := context.Background()
	p := NewPublisher(store, PublisherOptions{Compression: compression.TypeZstd, NoClobber: true})

	pub, err := p.Publish(ctx, src, "app")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "app.zst"))

	_, err = p.Publish(ctx, src, "app")
	assert.True(t, apperrors.IsInvalidInput(err))

	require.NoError(t, p.Unpublish(ctx, pub.Key))
	assert.NoFileExists(t, filepath.Join(dir, "app.zst"))
	assert.True(t, apperrors.IsNotFound(p.Unpublish(ctx, pub.Key)))

	_, err = p.Publish(ctx, src, "app")
	assert.NoError(t, err)
}

func TestIndexName(t *testing.T) {
	assert.Equal(t, "app", IndexName("/tmp/out/app.bindeps"))
	assert.Equal(t, "deps", IndexName("deps"))
}
