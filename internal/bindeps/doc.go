// Package bindeps builds and reads bindeps files: a binary index of the
// dependency graph between compiled Java classes.
//
// # Package Organization
//
// The package is organized into logical groups using file name prefixes:
//
// ## Format (format.go)
//   - format.go: Magic, version, record sizes and header encoding
//
// ## Interning (table_*.go)
//   - table_path.go: Concurrent interned path table and its flattened form
//   - table_symbol.go: Transient symbol to id interner
//
// ## Collection (collect_*.go)
//   - collect_deps.go: Per-class dependency set
//   - collect_class.go: ClassVisitor producer interface and ClassInfo
//
// ## Writing (writer.go, builder.go)
//   - writer.go: Two-channel streaming writer (index records + heap spill)
//   - builder.go: Orchestrates one build from collected classes to a file
//
// ## Reading (reader*.go)
//   - reader.go: Header validation, mmap or buffered data region
//   - reader_entry.go: Lazily decoded string pool and class info entries
//   - reader_mmap_unix.go, reader_mmap_other.go: Platform mapping
//
// # File Layout
//
// All integers are big-endian.
//
//	header      24 bytes   magic[8] version:i32 poolCount:i32 classCount:i32 heapSize:i32
//	string pool 24 * poolCount
//	            hash:i64 parentIndex:i32 heapOffset:i32 nameLen:u16 fullNameLen:u16 pad[4]
//	class info  48 * classCount
//	            nameIndex superIndex access ifaceOff ifaceCount annOff annCount depOff depCount (i32) pad[12]
//	heap        heapSize bytes of names and packed i32 index arrays
//
// Heap offsets are relative to the end of the header. An empty index array
// is stored as offset -1 and count 0. Parent and super indices of -1 mean
// none.
//
// # Usage Example
//
//	b := bindeps.NewBuilder(bindeps.BuilderOptions{})
//	c := b.NewClassCollector()
//	_ = c.AcceptClassInfo("com/Foo", 0x21, "java/lang/Object")
//	_ = c.AcceptClassDependency("com/Foo", "com/Bar")
//	info, _ := c.Release()
//	_ = b.Add(info)
//	res, err := b.Build(ctx, "deps.bindeps")
//
//	r, err := bindeps.Open(res.Path)
//	defer r.Close()
//	cls, _ := r.ClassInfoEntry(0)
//	deps, _ := cls.Dependencies()
package bindeps
