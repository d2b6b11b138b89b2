package bindeps

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	apperrors "github.com/fastmerger/pkg/errors"
	"github.com/fastmerger/pkg/utils"
)

// ReaderOption configures a Reader.
type ReaderOption func(*readerOptions)

type readerOptions struct {
	useMmap bool
	logger  utils.Logger
	mmap    func(f *os.File, size int) ([]byte, error)
}

// WithoutMmap makes Open read the data region into memory instead of
// mapping it.
func WithoutMmap() ReaderOption {
	return func(o *readerOptions) { o.useMmap = false }
}

// WithMmap enables or disables memory mapping.
func WithMmap(enabled bool) ReaderOption {
	return func(o *readerOptions) { o.useMmap = enabled }
}

// WithReaderLogger sets the logger used for debug output.
func WithReaderLogger(logger utils.Logger) ReaderOption {
	return func(o *readerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// withMmapFunc replaces the function used to map the index file.
func withMmapFunc(fn func(f *os.File, size int) ([]byte, error)) ReaderOption {
	return func(o *readerOptions) { o.mmap = fn }
}

// Reader gives random access to the records of a bindeps file. Entries are
// decoded on demand from the mapped or buffered data region. A Reader is
// safe for concurrent use until Close.
type Reader struct {
	path    string
	header  Header
	data    []byte // data region: everything after the header
	mapping []byte // whole-file mapping, nil when buffered
	closed  atomic.Bool
	logger  utils.Logger

	nameIndex func() (*NameIndex, error)
}

// Open validates the header of path and maps its data region. When mapping
// fails or is disabled the region is read into memory instead.
func Open(path string, opts ...ReaderOption) (*Reader, error) {
	o := readerOptions{useMmap: mmapSupported, logger: &utils.NullLogger{}, mmap: mmapFile}
	for _, opt := range opts {
		opt(&o)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIOError, "open index", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIOError, "stat index", err)
	}
	size := st.Size()

	buf := make([]byte, HeaderSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, apperrors.Wrap(apperrors.CodeIOError, "read header", err)
	}
	header, err := parseHeader(buf[:n], size)
	if err != nil {
		return nil, err
	}

	r := &Reader{path: path, header: header, logger: o.logger}
	r.nameIndex = sync.OnceValues(r.buildNameIndex)

	dataLen := size - HeaderSize
	if dataLen == 0 {
		r.data = []byte{}
		return r, nil
	}
	if int64(int(size)) != size {
		return nil, apperrors.Newf(apperrors.CodeIOError, "index of %d bytes does not fit in memory", size)
	}

	if o.useMmap {
		mapping, err := o.mmap(f, int(size))
		if err == nil {
			r.mapping = mapping
			r.data = mapping[HeaderSize:]
			return r, nil
		}
		r.logger.Debug("mmap of %s failed, reading into memory: %v", path, err)
	}

	data := make([]byte, dataLen)
	if _, err := f.ReadAt(data, HeaderSize); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIOError, "read data region", err)
	}
	r.data = data
	return r, nil
}

// Close releases the mapped data region. Later reads fail with a usage
// error. Entries obtained from the reader must not be used afterwards, and
// on a mapped reader Close must not run concurrently with other methods.
// Close is idempotent.
func (r *Reader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	if r.mapping != nil {
		if err := munmapFile(r.mapping); err != nil {
			return apperrors.Wrap(apperrors.CodeIOError, "unmap index", err)
		}
	}
	return nil
}

// Path returns the file the reader was opened on.
func (r *Reader) Path() string { return r.path }

// Header returns the decoded file header.
func (r *Reader) Header() Header { return r.header }

// StringPoolSize returns the number of string pool records.
func (r *Reader) StringPoolSize() int32 { return r.header.StringPoolSize }

// ClassInfoSize returns the number of class info records.
func (r *Reader) ClassInfoSize() int32 { return r.header.ClassInfoSize }

// HeapSize returns the heap length in bytes.
func (r *Reader) HeapSize() int32 { return r.header.HeapSize }

// Mapped reports whether the data region is memory mapped.
func (r *Reader) Mapped() bool { return r.mapping != nil && !r.closed.Load() }

// slice returns n bytes of the data region at offset.
func (r *Reader) slice(offset, n int64) ([]byte, error) {
	if r.closed.Load() {
		return nil, apperrors.Usagef("reader for %s already closed", r.path)
	}
	data := r.data
	if offset < 0 || n < 0 || offset+n > int64(len(data)) {
		return nil, apperrors.FormatErrorf(HeaderSize+offset, "read past end of data",
			fmt.Sprintf("<= %d bytes", len(data)), offset+n)
	}
	return data[offset : offset+n : offset+n], nil
}

// heapRange checks that [offset, offset+n) lies inside the heap.
// fieldAt is the absolute file offset of the field holding offset.
func (r *Reader) heapRange(offset, n int64, fieldAt int64) error {
	start := r.header.HeapStart()
	end := start + int64(r.header.HeapSize)
	if offset < start || offset+n > end {
		return apperrors.FormatErrorf(fieldAt, "heap reference",
			fmt.Sprintf("range within [%d, %d)", start, end),
			fmt.Sprintf("[%d, %d)", offset, offset+n))
	}
	return nil
}

// StringPoolEntry decodes the string pool record at index.
func (r *Reader) StringPoolEntry(index int32) (*StringPoolEntry, error) {
	if index < 0 || index >= r.header.StringPoolSize {
		return nil, apperrors.Usagef("string pool index %d out of range [0, %d)", index, r.header.StringPoolSize)
	}
	recOff := int64(index) * StringPoolRecordSize
	rec, err := r.slice(recOff, StringPoolRecordSize)
	if err != nil {
		return nil, err
	}

	e := &StringPoolEntry{
		r:           r,
		index:       index,
		hash:        int64(binary.BigEndian.Uint64(rec[0:])),
		parentIndex: int32(binary.BigEndian.Uint32(rec[8:])),
		heapOffset:  int32(binary.BigEndian.Uint32(rec[12:])),
		nameLen:     binary.BigEndian.Uint16(rec[16:]),
		fullNameLen: binary.BigEndian.Uint16(rec[18:]),
	}

	at := HeaderSize + recOff
	if e.parentIndex < NoIndex || e.parentIndex >= r.header.StringPoolSize {
		return nil, apperrors.FormatErrorf(at+8, "parent index",
			fmt.Sprintf("[-1, %d)", r.header.StringPoolSize), e.parentIndex)
	}
	if err := r.heapRange(int64(e.heapOffset), int64(e.nameLen)+int64(e.fullNameLen), at+12); err != nil {
		return nil, err
	}
	e.init()
	return e, nil
}

// ClassInfoEntry decodes the class info record at index.
func (r *Reader) ClassInfoEntry(index int32) (*ClassInfoEntry, error) {
	if index < 0 || index >= r.header.ClassInfoSize {
		return nil, apperrors.Usagef("class info index %d out of range [0, %d)", index, r.header.ClassInfoSize)
	}
	recOff := int64(r.header.StringPoolSize)*StringPoolRecordSize + int64(index)*ClassInfoRecordSize
	rec, err := r.slice(recOff, ClassInfoRecordSize)
	if err != nil {
		return nil, err
	}

	field := func(i int) int32 { return int32(binary.BigEndian.Uint32(rec[i*4:])) }
	e := &ClassInfoEntry{
		r:           r,
		index:       index,
		nameIndex:   field(0),
		superIndex:  field(1),
		access:      field(2),
		interfaces:  indexArray{offset: field(3), count: field(4)},
		annotations: indexArray{offset: field(5), count: field(6)},
		deps:        indexArray{offset: field(7), count: field(8)},
	}

	at := HeaderSize + recOff
	poolSize := r.header.StringPoolSize
	if e.nameIndex < 0 || e.nameIndex >= poolSize {
		return nil, apperrors.FormatErrorf(at, "class name index", fmt.Sprintf("[0, %d)", poolSize), e.nameIndex)
	}
	if e.superIndex < NoIndex || e.superIndex >= poolSize {
		return nil, apperrors.FormatErrorf(at+4, "superclass index", fmt.Sprintf("[-1, %d)", poolSize), e.superIndex)
	}
	for i, arr := range []indexArray{e.interfaces, e.annotations, e.deps} {
		if err := r.checkArray(arr, at+12+int64(i)*8); err != nil {
			return nil, err
		}
	}
	e.init()
	return e, nil
}

func (r *Reader) checkArray(arr indexArray, fieldAt int64) error {
	if arr.count < 0 {
		return apperrors.FormatErrorf(fieldAt+4, "array count", ">= 0", arr.count)
	}
	if arr.count == 0 {
		if arr.offset != NoIndex {
			return apperrors.FormatErrorf(fieldAt, "empty array offset", NoIndex, arr.offset)
		}
		return nil
	}
	return r.heapRange(int64(arr.offset), int64(arr.count)*4, fieldAt)
}

// decodeIndices reads and validates a packed array of string pool indices.
func (r *Reader) decodeIndices(arr indexArray) ([]int32, error) {
	if arr.count == 0 {
		return []int32{}, nil
	}
	raw, err := r.slice(int64(arr.offset), int64(arr.count)*4)
	if err != nil {
		return nil, err
	}
	out := make([]int32, arr.count)
	for i := range out {
		v := int32(binary.BigEndian.Uint32(raw[i*4:]))
		if v < 0 || v >= r.header.StringPoolSize {
			return nil, apperrors.FormatErrorf(HeaderSize+int64(arr.offset)+int64(i)*4, "array element",
				fmt.Sprintf("[0, %d)", r.header.StringPoolSize), v)
		}
		out[i] = v
	}
	return out, nil
}

func (r *Reader) resolve(indices []int32) ([]*StringPoolEntry, error) {
	out := make([]*StringPoolEntry, len(indices))
	for i, idx := range indices {
		e, err := r.StringPoolEntry(idx)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// NameIndex returns the full name and class lookup maps, building them on
// first use.
func (r *Reader) NameIndex() (*NameIndex, error) {
	return r.nameIndex()
}

func (r *Reader) buildNameIndex() (*NameIndex, error) {
	ni := &NameIndex{
		pool:    make(map[string]int32, r.header.StringPoolSize),
		classes: make(map[int32]int32, r.header.ClassInfoSize),
	}
	for i := int32(0); i < r.header.StringPoolSize; i++ {
		e, err := r.StringPoolEntry(i)
		if err != nil {
			return nil, err
		}
		name, err := e.FullName()
		if err != nil {
			return nil, err
		}
		ni.pool[name] = i
	}
	for i := int32(0); i < r.header.ClassInfoSize; i++ {
		e, err := r.ClassInfoEntry(i)
		if err != nil {
			return nil, err
		}
		ni.classes[e.nameIndex] = i
	}
	return ni, nil
}

// FindStringPoolEntry returns the string pool entry with the given full name.
func (r *Reader) FindStringPoolEntry(fullName string) (*StringPoolEntry, error) {
	ni, err := r.NameIndex()
	if err != nil {
		return nil, err
	}
	idx, ok := ni.PoolIndex(fullName)
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "no entry named %s", fullName)
	}
	return r.StringPoolEntry(idx)
}

// FindClass returns the class info entry for the class with the given name.
func (r *Reader) FindClass(name string) (*ClassInfoEntry, error) {
	ni, err := r.NameIndex()
	if err != nil {
		return nil, err
	}
	idx, ok := ni.ClassByName(name)
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "no class named %s", name)
	}
	return r.ClassInfoEntry(idx)
}

// NameIndex maps full names to string pool rows and string pool rows to
// class info rows.
type NameIndex struct {
	pool    map[string]int32
	classes map[int32]int32
}

// PoolIndex returns the string pool row for fullName.
func (n *NameIndex) PoolIndex(fullName string) (int32, bool) {
	i, ok := n.pool[fullName]
	return i, ok
}

// ClassIndex returns the class info row whose name is the given pool row.
func (n *NameIndex) ClassIndex(poolIndex int32) (int32, bool) {
	i, ok := n.classes[poolIndex]
	return i, ok
}

// ClassByName returns the class info row of the named class.
func (n *NameIndex) ClassByName(fullName string) (int32, bool) {
	p, ok := n.pool[fullName]
	if !ok {
		return NoIndex, false
	}
	return n.ClassIndex(p)
}
