package bindeps

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	apperrors "github.com/fastmerger/pkg/errors"
	"github.com/fastmerger/pkg/utils"
)

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithBufferSize sets the per-channel buffer size.
func WithBufferSize(size int) WriterOption {
	return func(w *Writer) {
		if size > 0 {
			w.bufferSize = size
		}
	}
}

// WithWriterLogger sets the logger used for debug output.
func WithWriterLogger(logger utils.Logger) WriterOption {
	return func(w *Writer) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Writer streams a bindeps file. Records go to the target file in row
// order while names and index arrays are spilled to a sibling heap file,
// which Close appends after the last record. The row counts are fixed up
// front. A Writer is not safe for concurrent use.
type Writer struct {
	path       string
	bufferSize int
	logger     utils.Logger

	file     *os.File
	heapFile *os.File
	index    *bufio.Writer
	heap     *bufio.Writer

	poolSize, classSize       int32
	poolWritten, classWritten int32
	heapStart                 int64
	heapLen                   int64

	scratch [ClassInfoRecordSize]byte
	err     error
	closed  bool
}

// NewWriter creates path and writes its header. poolSize and classSize must
// match the number of records that will be written.
func NewWriter(path string, poolSize, classSize int32, opts ...WriterOption) (*Writer, error) {
	if poolSize < 0 || classSize < 0 {
		return nil, apperrors.Usagef("negative record count (pool=%d, classes=%d)", poolSize, classSize)
	}

	w := &Writer{
		path:       path,
		bufferSize: DefaultBufferSize,
		logger:     &utils.NullLogger{},
		poolSize:   poolSize,
		classSize:  classSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.heapStart = Header{StringPoolSize: poolSize, ClassInfoSize: classSize}.HeapStart()
	if w.heapStart > math.MaxInt32 {
		return nil, apperrors.Usagef("index region of %d bytes exceeds the format limit", w.heapStart)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIOError, "create index file", err)
	}
	heapFile, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".heap-*")
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, apperrors.Wrap(apperrors.CodeIOError, "create heap spill file", err)
	}

	w.file = file
	w.heapFile = heapFile
	w.index = bufio.NewWriterSize(file, w.bufferSize)
	w.heap = bufio.NewWriterSize(heapFile, w.bufferSize)

	header, _ := Header{
		Version:        FormatVersion,
		StringPoolSize: poolSize,
		ClassInfoSize:  classSize,
	}.MarshalBinary()
	if _, err := w.index.Write(header); err != nil {
		w.abort()
		return nil, apperrors.Wrap(apperrors.CodeIOError, "write header", err)
	}
	return w, nil
}

// Path returns the target file path.
func (w *Writer) Path() string { return w.path }

// HeapSize returns the number of heap bytes written so far.
func (w *Writer) HeapSize() int64 { return w.heapLen }

func (w *Writer) usable() error {
	if w.closed {
		return apperrors.Usagef("writer already closed")
	}
	return w.err
}

// WriteStringPoolEntry appends the next string pool record. name is stored
// in the heap immediately followed by fullName.
func (w *Writer) WriteStringPoolEntry(hash int64, parentIndex int32, name, fullName []byte) error {
	if err := w.usable(); err != nil {
		return err
	}
	if w.poolWritten >= w.poolSize {
		return apperrors.Usagef("string pool already holds the declared %d entries", w.poolSize)
	}
	if parentIndex < NoIndex || parentIndex >= w.poolSize {
		return apperrors.Usagef("parent index %d out of range [-1, %d)", parentIndex, w.poolSize)
	}
	if len(name) > MaxNameLength || len(fullName) > MaxNameLength {
		return apperrors.Usagef("name of %d bytes exceeds %d", max(len(name), len(fullName)), MaxNameLength)
	}

	offset, err := w.heapOffset(int64(len(name) + len(fullName)))
	if err != nil {
		return err
	}

	rec := w.scratch[:StringPoolRecordSize]
	binary.BigEndian.PutUint64(rec[0:], uint64(hash))
	binary.BigEndian.PutUint32(rec[8:], uint32(parentIndex))
	binary.BigEndian.PutUint32(rec[12:], uint32(offset))
	binary.BigEndian.PutUint16(rec[16:], uint16(len(name)))
	binary.BigEndian.PutUint16(rec[18:], uint16(len(fullName)))
	clear(rec[20:])

	if err := w.writeHeap(name); err != nil {
		return err
	}
	if err := w.writeHeap(fullName); err != nil {
		return err
	}
	if err := w.writeIndex(rec); err != nil {
		return err
	}
	w.poolWritten++
	return nil
}

// WriteClassInfoEntry appends the next class info record. All string pool
// records must be written first. Index arrays are stored in the heap; empty
// arrays are recorded as offset -1 without touching the heap.
func (w *Writer) WriteClassInfoEntry(nameIndex, superIndex, access int32, interfaces, annotations, dependencies []int32) error {
	if err := w.usable(); err != nil {
		return err
	}
	if w.poolWritten < w.poolSize {
		return apperrors.Usagef("class info written after %d of %d string pool entries", w.poolWritten, w.poolSize)
	}
	if w.classWritten >= w.classSize {
		return apperrors.Usagef("class info already holds the declared %d entries", w.classSize)
	}
	if nameIndex < 0 || nameIndex >= w.poolSize {
		return apperrors.Usagef("name index %d out of range [0, %d)", nameIndex, w.poolSize)
	}
	if superIndex < NoIndex || superIndex >= w.poolSize {
		return apperrors.Usagef("super index %d out of range [-1, %d)", superIndex, w.poolSize)
	}

	ifaceOff, err := w.writeIndexArray(interfaces)
	if err != nil {
		return err
	}
	annOff, err := w.writeIndexArray(annotations)
	if err != nil {
		return err
	}
	depOff, err := w.writeIndexArray(dependencies)
	if err != nil {
		return err
	}

	rec := w.scratch[:ClassInfoRecordSize]
	fields := [...]int32{
		nameIndex, superIndex, access,
		ifaceOff, int32(len(interfaces)),
		annOff, int32(len(annotations)),
		depOff, int32(len(dependencies)),
	}
	for i, v := range fields {
		binary.BigEndian.PutUint32(rec[i*4:], uint32(v))
	}
	clear(rec[len(fields)*4:])

	if err := w.writeIndex(rec); err != nil {
		return err
	}
	w.classWritten++
	return nil
}

func (w *Writer) writeIndexArray(values []int32) (int32, error) {
	if len(values) == 0 {
		return NoIndex, nil
	}
	for _, v := range values {
		if v < 0 || v >= w.poolSize {
			return 0, apperrors.Usagef("array index %d out of range [0, %d)", v, w.poolSize)
		}
	}
	offset, err := w.heapOffset(int64(len(values)) * 4)
	if err != nil {
		return 0, err
	}
	var b [4]byte
	for _, v := range values {
		binary.BigEndian.PutUint32(b[:], uint32(v))
		if err := w.writeHeap(b[:]); err != nil {
			return 0, err
		}
	}
	return int32(offset), nil
}

// heapOffset returns the data-region offset of the next n heap bytes.
func (w *Writer) heapOffset(n int64) (int64, error) {
	offset := w.heapStart + w.heapLen
	if offset+n > math.MaxInt32 {
		return 0, apperrors.Usagef("heap exceeds the format limit of %d bytes", math.MaxInt32)
	}
	return offset, nil
}

func (w *Writer) writeIndex(p []byte) error {
	if _, err := w.index.Write(p); err != nil {
		w.err = apperrors.Wrap(apperrors.CodeIOError, "write index record", err)
		return w.err
	}
	return nil
}

func (w *Writer) writeHeap(p []byte) error {
	n, err := w.heap.Write(p)
	w.heapLen += int64(n)
	if err != nil {
		w.err = apperrors.Wrap(apperrors.CodeIOError, "write heap", err)
		return w.err
	}
	return nil
}

// Close flushes both channels, patches the heap size into the header and
// appends the heap to the target. If fewer records than declared were
// written, or any write failed, the target is removed and an error
// returned. Close is idempotent.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if w.err != nil {
		w.abort()
		return w.err
	}
	if w.poolWritten != w.poolSize || w.classWritten != w.classSize {
		w.abort()
		return apperrors.Usagef("incomplete index: wrote %d/%d string pool and %d/%d class info entries",
			w.poolWritten, w.poolSize, w.classWritten, w.classSize)
	}

	if err := w.finish(); err != nil {
		w.abort()
		return err
	}
	w.logger.Debug("wrote index %s: pool=%d classes=%d heap=%d",
		w.path, w.poolSize, w.classSize, w.heapLen)
	return nil
}

func (w *Writer) finish() error {
	if err := w.index.Flush(); err != nil {
		return apperrors.Wrap(apperrors.CodeIOError, "flush index", err)
	}
	if err := w.heap.Flush(); err != nil {
		return apperrors.Wrap(apperrors.CodeIOError, "flush heap", err)
	}

	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(w.heapLen))
	if _, err := w.file.WriteAt(size[:], offHeapSize); err != nil {
		return apperrors.Wrap(apperrors.CodeIOError, "patch heap size", err)
	}

	if _, err := w.heapFile.Seek(0, io.SeekStart); err != nil {
		return apperrors.Wrap(apperrors.CodeIOError, "rewind heap", err)
	}
	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return apperrors.Wrap(apperrors.CodeIOError, "seek index end", err)
	}
	copied, err := io.Copy(w.file, w.heapFile)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIOError, "append heap", err)
	}
	if copied != w.heapLen {
		return apperrors.Newf(apperrors.CodeIOError, "appended %d heap bytes, expected %d", copied, w.heapLen)
	}

	heapName := w.heapFile.Name()
	w.heapFile.Close()
	os.Remove(heapName)
	w.heapFile = nil

	if err := w.file.Close(); err != nil {
		w.file = nil
		return apperrors.Wrap(apperrors.CodeIOError, fmt.Sprintf("close %s", w.path), err)
	}
	w.file = nil
	return nil
}

// abort releases both channels and removes everything written.
func (w *Writer) abort() {
	if w.heapFile != nil {
		name := w.heapFile.Name()
		w.heapFile.Close()
		os.Remove(name)
		w.heapFile = nil
	}
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
	os.Remove(w.path)
}
