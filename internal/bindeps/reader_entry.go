package bindeps

import (
	"sync"
)

// StringPoolEntry is one decoded string pool record. Names and the parent
// entry are decoded on first access and cached.
type StringPoolEntry struct {
	r           *Reader
	index       int32
	hash        int64
	parentIndex int32
	heapOffset  int32
	nameLen     uint16
	fullNameLen uint16

	name     func() (string, error)
	fullName func() (string, error)
	parent   func() (*StringPoolEntry, error)
}

func (e *StringPoolEntry) init() {
	e.name = sync.OnceValues(func() (string, error) {
		b, err := e.r.slice(int64(e.heapOffset), int64(e.nameLen))
		return string(b), err
	})
	e.fullName = sync.OnceValues(func() (string, error) {
		b, err := e.r.slice(int64(e.heapOffset)+int64(e.nameLen), int64(e.fullNameLen))
		return string(b), err
	})
	e.parent = sync.OnceValues(func() (*StringPoolEntry, error) {
		if e.parentIndex == NoIndex {
			return nil, nil
		}
		return e.r.StringPoolEntry(e.parentIndex)
	})
}

// Index returns the row of the entry.
func (e *StringPoolEntry) Index() int32 { return e.index }

// Hash returns the stored full-name hash.
func (e *StringPoolEntry) Hash() int64 { return e.hash }

// ParentIndex returns the parent row, or NoIndex for roots.
func (e *StringPoolEntry) ParentIndex() int32 { return e.parentIndex }

// Parent returns the parent entry, or nil for roots.
func (e *StringPoolEntry) Parent() (*StringPoolEntry, error) { return e.parent() }

// Name returns the last path segment.
func (e *StringPoolEntry) Name() (string, error) { return e.name() }

// FullName returns the whole slash-separated name.
func (e *StringPoolEntry) FullName() (string, error) { return e.fullName() }

type indexArray struct {
	offset int32
	count  int32
}

// ClassInfoEntry is one decoded class info record. Cross references are
// resolved on first access and cached.
type ClassInfoEntry struct {
	r           *Reader
	index       int32
	nameIndex   int32
	superIndex  int32
	access      int32
	interfaces  indexArray
	annotations indexArray
	deps        indexArray

	name              func() (*StringPoolEntry, error)
	super             func() (*StringPoolEntry, error)
	interfaceIndices  func() ([]int32, error)
	annotationIndices func() ([]int32, error)
	dependencyIndices func() ([]int32, error)
	interfaceEntries  func() ([]*StringPoolEntry, error)
	annotationEntries func() ([]*StringPoolEntry, error)
	dependencyEntries func() ([]*StringPoolEntry, error)
}

func (e *ClassInfoEntry) init() {
	e.name = sync.OnceValues(func() (*StringPoolEntry, error) {
		return e.r.StringPoolEntry(e.nameIndex)
	})
	e.super = sync.OnceValues(func() (*StringPoolEntry, error) {
		if e.superIndex == NoIndex {
			return nil, nil
		}
		return e.r.StringPoolEntry(e.superIndex)
	})

	e.interfaceIndices = sync.OnceValues(func() ([]int32, error) { return e.r.decodeIndices(e.interfaces) })
	e.annotationIndices = sync.OnceValues(func() ([]int32, error) { return e.r.decodeIndices(e.annotations) })
	e.dependencyIndices = sync.OnceValues(func() ([]int32, error) { return e.r.decodeIndices(e.deps) })

	e.interfaceEntries = sync.OnceValues(e.resolver(e.interfaceIndices))
	e.annotationEntries = sync.OnceValues(e.resolver(e.annotationIndices))
	e.dependencyEntries = sync.OnceValues(e.resolver(e.dependencyIndices))
}

func (e *ClassInfoEntry) resolver(indices func() ([]int32, error)) func() ([]*StringPoolEntry, error) {
	return func() ([]*StringPoolEntry, error) {
		idx, err := indices()
		if err != nil {
			return nil, err
		}
		return e.r.resolve(idx)
	}
}

// Index returns the row of the entry.
func (e *ClassInfoEntry) Index() int32 { return e.index }

// Access returns the class access flags.
func (e *ClassInfoEntry) Access() int32 { return e.access }

// NameIndex returns the string pool row of the class name.
func (e *ClassInfoEntry) NameIndex() int32 { return e.nameIndex }

// SuperIndex returns the string pool row of the superclass, or NoIndex.
func (e *ClassInfoEntry) SuperIndex() int32 { return e.superIndex }

// Name returns the string pool entry of the class name.
func (e *ClassInfoEntry) Name() (*StringPoolEntry, error) { return e.name() }

// SuperClass returns the superclass entry, or nil when there is none.
func (e *ClassInfoEntry) SuperClass() (*StringPoolEntry, error) { return e.super() }

// InterfaceCount returns the number of declared interfaces.
func (e *ClassInfoEntry) InterfaceCount() int32 { return e.interfaces.count }

// AnnotationCount returns the number of annotations.
func (e *ClassInfoEntry) AnnotationCount() int32 { return e.annotations.count }

// DependencyCount returns the number of dependencies.
func (e *ClassInfoEntry) DependencyCount() int32 { return e.deps.count }

// InterfaceIndices returns the string pool rows of the interfaces.
func (e *ClassInfoEntry) InterfaceIndices() ([]int32, error) { return e.interfaceIndices() }

// AnnotationIndices returns the string pool rows of the annotations.
func (e *ClassInfoEntry) AnnotationIndices() ([]int32, error) { return e.annotationIndices() }

// DependencyIndices returns the string pool rows of the dependencies.
func (e *ClassInfoEntry) DependencyIndices() ([]int32, error) { return e.dependencyIndices() }

// Interfaces returns the interface entries in written order.
func (e *ClassInfoEntry) Interfaces() ([]*StringPoolEntry, error) { return e.interfaceEntries() }

// Annotations returns the annotation entries in written order.
func (e *ClassInfoEntry) Annotations() ([]*StringPoolEntry, error) { return e.annotationEntries() }

// Dependencies returns the dependency entries in written order.
func (e *ClassInfoEntry) Dependencies() ([]*StringPoolEntry, error) { return e.dependencyEntries() }
