package bindeps

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/zeebo/xxh3"

	"github.com/fastmerger/pkg/collections"
	apperrors "github.com/fastmerger/pkg/errors"
)

// PathSeparator splits internal class names into segments.
const PathSeparator = "/"

// PathEntry is one interned segment of a slash-separated name. Entries are
// shared by every caller that interns the same prefix.
type PathEntry struct {
	parent   *PathEntry
	segment  string
	fullName string
	children sync.Map // string -> *PathEntry

	hash          func() int64
	nameBytes     func() []byte
	fullNameBytes func() []byte
}

func newPathEntry(parent *PathEntry, segment, fullName string) *PathEntry {
	e := &PathEntry{parent: parent, segment: segment, fullName: fullName}
	e.hash = sync.OnceValue(func() int64 {
		return int64(xxh3.HashString128(e.fullName).Hi)
	})
	e.nameBytes = sync.OnceValue(func() []byte { return []byte(e.segment) })
	e.fullNameBytes = sync.OnceValue(func() []byte { return []byte(e.fullName) })
	return e
}

// Parent returns the enclosing entry, or nil for a root.
func (e *PathEntry) Parent() *PathEntry { return e.parent }

// Segment returns the last path segment.
func (e *PathEntry) Segment() string { return e.segment }

// FullName returns the whole slash-separated name.
func (e *PathEntry) FullName() string { return e.fullName }

// Hash returns the high 64 bits of the XXH3-128 digest of the full name.
func (e *PathEntry) Hash() int64 { return e.hash() }

// NameBytes returns the UTF-8 segment. Callers must not modify it.
func (e *PathEntry) NameBytes() []byte { return e.nameBytes() }

// FullNameBytes returns the UTF-8 full name. Callers must not modify it.
func (e *PathEntry) FullNameBytes() []byte { return e.fullNameBytes() }

// Child returns the direct child with the given segment.
func (e *PathEntry) Child(segment string) (*PathEntry, bool) {
	v, ok := e.children.Load(segment)
	if !ok {
		return nil, false
	}
	return v.(*PathEntry), true
}

// Children returns the direct children sorted by segment.
func (e *PathEntry) Children() []*PathEntry {
	return sortedEntries(&e.children)
}

func (e *PathEntry) String() string { return e.fullName }

// PathTable interns slash-separated names into a forest of PathEntry values.
// GetOrCreate is safe for concurrent use. Finish must only be called once
// every producer has stopped.
type PathTable struct {
	roots    sync.Map // string -> *PathEntry
	count    atomic.Int64
	finished atomic.Bool
}

// NewPathTable creates an empty table.
func NewPathTable() *PathTable {
	return &PathTable{}
}

// GetOrCreate returns the entry for name, creating every missing prefix.
// Concurrent callers interning the same name receive the same entry.
func (t *PathTable) GetOrCreate(name string) (*PathEntry, error) {
	if t.finished.Load() {
		return nil, apperrors.Usagef("path table already finished")
	}
	if name == "" {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "empty path name")
	}
	if strings.HasPrefix(name, PathSeparator) || strings.HasSuffix(name, PathSeparator) ||
		strings.Contains(name, PathSeparator+PathSeparator) {
		return nil, apperrors.Newf(apperrors.CodeInvalidInput, "empty segment in path %q", name)
	}

	level := &t.roots
	var entry *PathEntry
	start := 0
	for start <= len(name) {
		end := strings.Index(name[start:], PathSeparator)
		if end < 0 {
			end = len(name)
		} else {
			end += start
		}
		segment := name[start:end]

		if v, ok := level.Load(segment); ok {
			entry = v.(*PathEntry)
		} else {
			v, loaded := level.LoadOrStore(segment, newPathEntry(entry, segment, name[:end]))
			if !loaded {
				t.count.Add(1)
			}
			entry = v.(*PathEntry)
		}

		level = &entry.children
		start = end + 1
	}
	return entry, nil
}

// Lookup returns the entry for name without creating it.
func (t *PathTable) Lookup(name string) (*PathEntry, bool) {
	level := &t.roots
	var entry *PathEntry
	for _, segment := range strings.Split(name, PathSeparator) {
		v, ok := level.Load(segment)
		if !ok {
			return nil, false
		}
		entry = v.(*PathEntry)
		level = &entry.children
	}
	return entry, entry != nil
}

// Count returns the number of distinct prefixes interned so far.
func (t *PathTable) Count() int {
	return int(t.count.Load())
}

// Finish freezes the table and returns an immutable snapshot of its roots.
// It may be called once.
func (t *PathTable) Finish() (*PathResult, error) {
	if !t.finished.CompareAndSwap(false, true) {
		return nil, apperrors.Usagef("path table already finished")
	}

	roots := sortedEntries(&t.roots)
	byName := make(map[string]*PathEntry, len(roots))
	for _, r := range roots {
		byName[r.segment] = r
	}
	return &PathResult{roots: roots, byName: byName, count: int(t.count.Load())}, nil
}

// PathResult is the frozen view of a finished PathTable.
type PathResult struct {
	roots  []*PathEntry
	byName map[string]*PathEntry
	count  int
}

// Roots returns the root entries sorted by segment.
func (r *PathResult) Roots() []*PathEntry {
	out := make([]*PathEntry, len(r.roots))
	copy(out, r.roots)
	return out
}

// Root returns the root entry with the given segment.
func (r *PathResult) Root(segment string) (*PathEntry, bool) {
	e, ok := r.byName[segment]
	return e, ok
}

// Count returns the total number of interned entries.
func (r *PathResult) Count() int {
	return r.count
}

// Flatten assigns dense row indices breadth-first, so every parent precedes
// its children. Siblings are ordered by segment bytes, which makes the
// numbering independent of insertion order.
func (r *PathResult) Flatten() *FlatTable {
	ft := &FlatTable{
		Entries: make([]*PathEntry, 0, r.count),
		index:   make(map[*PathEntry]int32, r.count),
		byName:  make(map[string]int32, r.count),
	}

	queue := collections.NewRing[*PathEntry](len(r.roots))
	for _, root := range r.roots {
		queue.Push(root)
	}
	for queue.Len() > 0 {
		e, _ := queue.Pop()
		row := int32(len(ft.Entries))
		ft.Entries = append(ft.Entries, e)
		ft.index[e] = row
		ft.byName[e.fullName] = row
		for _, child := range e.Children() {
			queue.Push(child)
		}
	}
	return ft
}

// FlatTable is the row-numbered form of a PathResult, plus the name to row
// map kept alongside the written file.
type FlatTable struct {
	Entries []*PathEntry
	index   map[*PathEntry]int32
	byName  map[string]int32
}

// Len returns the number of rows.
func (f *FlatTable) Len() int {
	return len(f.Entries)
}

// IndexOf returns the row of e.
func (f *FlatTable) IndexOf(e *PathEntry) (int32, bool) {
	if e == nil {
		return NoIndex, false
	}
	i, ok := f.index[e]
	return i, ok
}

// IndexOfName returns the row of the entry with the given full name.
func (f *FlatTable) IndexOfName(fullName string) (int32, bool) {
	i, ok := f.byName[fullName]
	return i, ok
}

// ParentIndex returns the row of e's parent, or NoIndex for roots.
func (f *FlatTable) ParentIndex(e *PathEntry) int32 {
	if e.parent == nil {
		return NoIndex
	}
	return f.index[e.parent]
}

func sortedEntries(m *sync.Map) []*PathEntry {
	var out []*PathEntry
	m.Range(func(_, v any) bool {
		out = append(out, v.(*PathEntry))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].segment < out[j].segment })
	return out
}
