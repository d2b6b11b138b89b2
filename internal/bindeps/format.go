package bindeps

import (
	"bytes"
	"encoding/binary"
	"fmt"

	apperrors "github.com/fastmerger/pkg/errors"
)

// Magic identifies a bindeps file.
var Magic = [8]byte{0x42, 0x49, 0x4E, 0x44, 0x45, 0x50, 0x53, 0x03}

const (
	// FormatVersion is the only version this package reads and writes.
	FormatVersion int32 = 1

	// HeaderSize is the size of the fixed file header.
	HeaderSize = 24

	// StringPoolRecordSize is the size of one string pool record.
	StringPoolRecordSize = 24

	// ClassInfoRecordSize is the size of one class info record, including
	// 12 bytes of trailing padding.
	ClassInfoRecordSize = 48

	// DefaultBufferSize is the per-channel write buffer size.
	DefaultBufferSize = 256 * 1024

	// MaxNameLength is the longest name a string pool record can describe.
	MaxNameLength = 0xFFFF

	// NoIndex marks an absent parent, superclass or empty array.
	NoIndex int32 = -1
)

// Header field offsets within the file.
const (
	offMagic          = 0
	offVersion        = 8
	offStringPoolSize = 12
	offClassInfoSize  = 16
	offHeapSize       = 20
)

// Header is the decoded fixed header of a bindeps file.
type Header struct {
	Version        int32
	StringPoolSize int32
	ClassInfoSize  int32
	HeapSize       int32
}

// HeapStart returns the data-region offset where the heap begins.
func (h Header) HeapStart() int64 {
	return int64(h.StringPoolSize)*StringPoolRecordSize + int64(h.ClassInfoSize)*ClassInfoRecordSize
}

// FileSize returns the total file length the header describes.
func (h Header) FileSize() int64 {
	return HeaderSize + h.HeapStart() + int64(h.HeapSize)
}

// MarshalBinary encodes the header.
func (h Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	copy(buf[offMagic:], Magic[:])
	binary.BigEndian.PutUint32(buf[offVersion:], uint32(h.Version))
	binary.BigEndian.PutUint32(buf[offStringPoolSize:], uint32(h.StringPoolSize))
	binary.BigEndian.PutUint32(buf[offClassInfoSize:], uint32(h.ClassInfoSize))
	binary.BigEndian.PutUint32(buf[offHeapSize:], uint32(h.HeapSize))
	return buf, nil
}

// parseHeader decodes and validates a header against the actual file size.
func parseHeader(buf []byte, fileSize int64) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, apperrors.FormatErrorf(int64(len(buf)), "truncated header",
			fmt.Sprintf("%d bytes", HeaderSize), fmt.Sprintf("%d bytes", len(buf)))
	}
	if !bytes.Equal(buf[offMagic:offMagic+len(Magic)], Magic[:]) {
		return Header{}, apperrors.FormatErrorf(offMagic, "bad magic",
			fmt.Sprintf("% X", Magic[:]), fmt.Sprintf("% X", buf[offMagic:offMagic+len(Magic)]))
	}

	h := Header{
		Version:        int32(binary.BigEndian.Uint32(buf[offVersion:])),
		StringPoolSize: int32(binary.BigEndian.Uint32(buf[offStringPoolSize:])),
		ClassInfoSize:  int32(binary.BigEndian.Uint32(buf[offClassInfoSize:])),
		HeapSize:       int32(binary.BigEndian.Uint32(buf[offHeapSize:])),
	}

	if h.Version != FormatVersion {
		return Header{}, apperrors.FormatErrorf(offVersion, "unsupported format version", FormatVersion, h.Version)
	}
	if h.StringPoolSize < 0 {
		return Header{}, apperrors.FormatErrorf(offStringPoolSize, "negative string pool size", ">= 0", h.StringPoolSize)
	}
	if h.ClassInfoSize < 0 {
		return Header{}, apperrors.FormatErrorf(offClassInfoSize, "negative class info size", ">= 0", h.ClassInfoSize)
	}
	if h.HeapSize < 0 {
		return Header{}, apperrors.FormatErrorf(offHeapSize, "negative heap size", ">= 0", h.HeapSize)
	}
	if want := h.FileSize(); want != fileSize {
		return Header{}, apperrors.FormatErrorf(fileSize, "file length",
			fmt.Sprintf("%d bytes", want), fmt.Sprintf("%d bytes", fileSize))
	}
	return h, nil
}
