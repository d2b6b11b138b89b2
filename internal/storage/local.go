package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	apperrors "github.com/fastmerger/pkg/errors"
)

// DefaultDir is used by NewDirStore when no directory is given.
const DefaultDir = "./storage"

// DirStore keeps objects as files under a directory. Writes land in a temp
// file and are renamed into place, so readers never see a partial object.
type DirStore struct {
	root string
}

// NewDirStore creates root if needed and returns a store on it.
func NewDirStore(root string) (*DirStore, error) {
	if root == "" {
		root = DefaultDir
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageError, "create storage directory", err)
	}
	return &DirStore{root: root}, nil
}

// Root returns the store directory.
func (s *DirStore) Root() string {
	return s.root
}

// file maps key to its path under root after checking ctx.
func (s *DirStore) file(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(k)), nil
}

// Put stores the contents of r under key.
func (s *DirStore) Put(ctx context.Context, key string, r io.Reader) error {
	p, err := s.file(ctx, key)
	if err != nil {
		return err
	}
	return replaceFile(p, r)
}

// PutFile stores the file at localPath under key.
func (s *DirStore) PutFile(ctx context.Context, key, localPath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIOError, "open source file", err)
	}
	defer src.Close()
	return s.Put(ctx, key, src)
}

// Get opens the object at key.
func (s *DirStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.file(ctx, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "object not found: %s", key)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageError, "open object", err)
	}
	return f, nil
}

// GetFile copies the object at key to localPath.
func (s *DirStore) GetFile(ctx context.Context, key, localPath string) error {
	rc, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()
	return replaceFile(localPath, rc)
}

// Delete removes the object at key.
func (s *DirStore) Delete(ctx context.Context, key string) error {
	p, err := s.file(ctx, key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperrors.Wrap(apperrors.CodeStorageError, "delete object", err)
	}
	return nil
}

// Exists reports whether an object is stored at key.
func (s *DirStore) Exists(ctx context.Context, key string) (bool, error) {
	p, err := s.file(ctx, key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, apperrors.Wrap(apperrors.CodeStorageError, "stat object", err)
	}
}

// URL returns the object's file path.
func (s *DirStore) URL(key string) string {
	p, err := s.file(context.Background(), key)
	if err != nil {
		return ""
	}
	return p
}

// replaceFile writes r to dst through a temp file in dst's directory.
func replaceFile(dst string, r io.Reader) (err error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageError, "create directory", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".part-*")
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageError, "create temp file", err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
			err = apperrors.Wrap(apperrors.CodeStorageError, "write "+dst, err)
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
