// Package compression provides streaming compression for published index
// files. Compressed streams are recognised by their magic bytes, so readers
// never need to be told which codec produced them.
package compression

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	apperrors "github.com/fastmerger/pkg/errors"
)

// Type represents the compression algorithm used.
type Type uint8

const (
	// TypeGzip uses gzip compression (slower but widely compatible)
	TypeGzip Type = 0
	// TypeZstd uses zstd compression (faster and better compression ratio)
	TypeZstd Type = 1
	// TypeNone represents no compression
	TypeNone Type = 255
)

// String returns the configuration name of the type.
func (t Type) String() string {
	switch t {
	case TypeGzip:
		return "gzip"
	case TypeZstd:
		return "zstd"
	case TypeNone:
		return "none"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Extension returns the file suffix conventionally used for the type.
func (t Type) Extension() string {
	switch t {
	case TypeGzip:
		return ".gz"
	case TypeZstd:
		return ".zst"
	default:
		return ""
	}
}

// ParseType parses a configuration name ("zstd", "gzip", "none").
func ParseType(name string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "zstd", "zst", "":
		return TypeZstd, nil
	case "gzip", "gz":
		return TypeGzip, nil
	case "none", "off":
		return TypeNone, nil
	default:
		return TypeNone, apperrors.Newf(apperrors.CodeInvalidInput, "unknown compression type: %s", name)
	}
}

// Level represents the compression level.
type Level int

const (
	// LevelFastest prioritizes speed over compression ratio
	LevelFastest Level = 1
	// LevelDefault balances speed and compression ratio
	LevelDefault Level = 3
	// LevelBest prioritizes compression ratio over speed
	LevelBest Level = 9
)

func zstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case LevelFastest:
		return zstd.SpeedFastest
	case LevelBest:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

func gzipLevel(level Level) int {
	switch level {
	case LevelFastest:
		return gzip.BestSpeed
	case LevelBest:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

// nopWriteCloser passes writes through; Close does not close the target.
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NewWriter wraps w in a compressing writer. Closing the returned writer
// flushes the stream but does not close w.
func NewWriter(w io.Writer, t Type, level Level) (io.WriteCloser, error) {
	switch t {
	case TypeZstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstdLevel(level)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		return enc, nil
	case TypeGzip:
		gz, err := gzip.NewWriterLevel(w, gzipLevel(level))
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		return gz, nil
	case TypeNone:
		return nopWriteCloser{w}, nil
	default:
		return nil, apperrors.Newf(apperrors.CodeInvalidInput, "unknown compression type: %d", t)
	}
}

// DetectType detects the compression type from magic bytes. Anything that
// is neither zstd (28 b5 2f fd) nor gzip (1f 8b) is treated as plain data.
func DetectType(data []byte) Type {
	if len(data) >= 4 && data[0] == 0x28 && data[1] == 0xb5 && data[2] == 0x2f && data[3] == 0xfd {
		return TypeZstd
	}
	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		return TypeGzip
	}
	return TypeNone
}

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// NewReader sniffs the stream and returns a decompressing reader together
// with the detected type. Closing the reader does not close r.
func NewReader(r io.Reader) (io.ReadCloser, Type, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil && err != io.EOF {
		return nil, TypeNone, apperrors.Wrap(apperrors.CodeIOError, "peek stream header", err)
	}

	t := DetectType(head)
	switch t {
	case TypeZstd:
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, t, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		return zstdReadCloser{dec}, t, nil
	case TypeGzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, t, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gz, t, nil
	default:
		return io.NopCloser(br), t, nil
	}
}

// CompressFile writes a compressed copy of src to dst and returns the
// number of bytes written to dst.
func CompressFile(src, dst string, t Type, level Level) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeIOError, "open source", err)
	}
	defer in.Close()

	return writeAtomically(dst, func(out io.Writer) error {
		zw, err := NewWriter(out, t, level)
		if err != nil {
			return err
		}
		if _, err := io.Copy(zw, in); err != nil {
			zw.Close()
			return apperrors.Wrap(apperrors.CodeIOError, "compress", err)
		}
		return zw.Close()
	})
}

// DecompressFile writes the decompressed content of src to dst. Plain
// input is copied unchanged. It returns the detected type.
func DecompressFile(src, dst string) (Type, error) {
	in, err := os.Open(src)
	if err != nil {
		return TypeNone, apperrors.Wrap(apperrors.CodeIOError, "open source", err)
	}
	defer in.Close()

	var detected Type
	_, err = writeAtomically(dst, func(out io.Writer) error {
		zr, t, err := NewReader(in)
		if err != nil {
			return err
		}
		defer zr.Close()
		detected = t
		if _, err := io.Copy(out, zr); err != nil {
			return apperrors.Wrap(apperrors.CodeIOError, "decompress", err)
		}
		return nil
	})
	return detected, err
}

// writeAtomically writes through a temp file in dst's directory and renames
// it over dst once fill succeeds.
func writeAtomically(dst string, fill func(io.Writer) error) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp-*")
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeIOError, "create temp file", err)
	}
	tmpName := tmp.Name()

	bw := bufio.NewWriter(tmp)
	err = fill(bw)
	if err == nil {
		err = bw.Flush()
	}
	var size int64
	if err == nil {
		size, err = tmp.Seek(0, io.SeekCurrent)
	}
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmpName, dst)
	}
	if err != nil {
		os.Remove(tmpName)
		if _, ok := err.(*apperrors.AppError); ok {
			return 0, err
		}
		return 0, apperrors.Wrap(apperrors.CodeIOError, "write "+dst, err)
	}
	return size, nil
}
