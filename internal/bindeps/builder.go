package bindeps

import (
	"context"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/fastmerger/pkg/errors"
	"github.com/fastmerger/pkg/utils"
)

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	// BufferSize is the writer buffer size per channel. Zero means
	// DefaultBufferSize.
	BufferSize int
	Logger     utils.Logger
	// Timer receives one phase per build step when set.
	Timer *utils.Timer
}

// BuildResult describes a written index.
type BuildResult struct {
	Path           string
	StringPoolSize int32
	ClassInfoSize  int32
	HeapSize       int64
	// Names is the row-numbered path table the file was written from.
	Names    *FlatTable
	Duration time.Duration
}

// Builder owns the PathTable and SymbolMap of one build. Collectors and Add
// may be used from many goroutines; Build runs once after they finish.
type Builder struct {
	opts    BuilderOptions
	table   *PathTable
	symbols *SymbolMap

	mu      sync.Mutex
	classes []*ClassInfo
	seen    map[*PathEntry]struct{}
	built   atomic.Bool
}

// NewBuilder creates a builder with a fresh table and symbol map.
func NewBuilder(opts BuilderOptions) *Builder {
	if opts.Logger == nil {
		opts.Logger = &utils.NullLogger{}
	}
	if opts.Timer == nil {
		opts.Timer = utils.NewTimer("build", utils.WithEnabled(false))
	}
	return &Builder{
		opts:    opts,
		table:   NewPathTable(),
		symbols: NewSymbolMap(),
		seen:    make(map[*PathEntry]struct{}),
	}
}

// Table returns the shared path table.
func (b *Builder) Table() *PathTable { return b.table }

// Symbols returns the shared symbol map.
func (b *Builder) Symbols() *SymbolMap { return b.symbols }

// NewClassCollector returns a collector bound to the builder's tables.
func (b *Builder) NewClassCollector() *ClassCollector {
	return NewClassCollector(b.table, b.symbols)
}

// Add queues a released ClassInfo for writing. Each class may be added once.
func (b *Builder) Add(info *ClassInfo) error {
	if info == nil || info.Name == nil {
		return apperrors.New(apperrors.CodeInvalidInput, "class info without a name")
	}
	if b.built.Load() {
		return apperrors.Usagef("builder already built")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, dup := b.seen[info.Name]; dup {
		return apperrors.Newf(apperrors.CodeInvalidInput, "class %s added twice", info.Name)
	}
	b.seen[info.Name] = struct{}{}
	b.classes = append(b.classes, info)
	return nil
}

// Len returns the number of classes added.
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.classes)
}

// Build releases the symbol map, resolves dependencies, flattens the path
// table and writes path. Classes are written ordered by the row of their
// name and dependencies by row, so the output depends only on what was
// collected, not on the order producers ran in.
func (b *Builder) Build(ctx context.Context, path string) (*BuildResult, error) {
	if !b.built.CompareAndSwap(false, true) {
		return nil, apperrors.Usagef("builder already built")
	}
	start := time.Now()
	timer := b.opts.Timer

	b.mu.Lock()
	classes := b.classes
	b.mu.Unlock()

	var symbols *SymbolResult
	if _, err := timer.Time("release", func() error {
		var err error
		symbols, err = b.symbols.Release()
		return err
	}); err != nil {
		return nil, err
	}

	if _, err := timer.Time("resolve", func() error {
		for i, ci := range classes {
			if i%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			if err := ci.ResolveDependencies(b.table, symbols); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	var flat *FlatTable
	if _, err := timer.Time("flatten", func() error {
		result, err := b.table.Finish()
		if err != nil {
			return err
		}
		flat = result.Flatten()
		return nil
	}); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows := make([]classRow, len(classes))
	for i, ci := range classes {
		row, err := encodeClass(flat, ci)
		if err != nil {
			return nil, err
		}
		rows[i] = row
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })

	var heapSize int64
	if _, err := timer.Time("write", func() error {
		var err error
		heapSize, err = b.write(ctx, path, flat, rows)
		return err
	}); err != nil {
		return nil, err
	}

	res := &BuildResult{
		Path:           path,
		StringPoolSize: int32(flat.Len()),
		ClassInfoSize:  int32(len(rows)),
		HeapSize:       heapSize,
		Names:          flat,
		Duration:       time.Since(start),
	}
	b.opts.Logger.WithFields(map[string]interface{}{
		"pool":    res.StringPoolSize,
		"classes": res.ClassInfoSize,
		"heap":    res.HeapSize,
	}).Info("built %s in %v", path, res.Duration)
	return res, nil
}

type classRow struct {
	name, super  int32
	access       int32
	interfaces   []int32
	annotations  []int32
	dependencies []int32
}

func encodeClass(flat *FlatTable, ci *ClassInfo) (classRow, error) {
	rowOf := func(e *PathEntry) (int32, error) {
		i, ok := flat.IndexOf(e)
		if !ok {
			return 0, apperrors.Usagef("entry %s of class %s is not in the flattened table", e, ci.Name)
		}
		return i, nil
	}
	rowsOf := func(entries []*PathEntry) ([]int32, error) {
		out := make([]int32, 0, len(entries))
		for _, e := range entries {
			i, err := rowOf(e)
			if err != nil {
				return nil, err
			}
			out = append(out, i)
		}
		return out, nil
	}

	if ci.DependencySymbols != nil && ci.DependencySymbols.Len() > 0 {
		return classRow{}, apperrors.Usagef("class %s has unresolved dependencies", ci.Name)
	}

	var row classRow
	var err error
	if row.name, err = rowOf(ci.Name); err != nil {
		return row, err
	}
	row.super = NoIndex
	if ci.Super != nil {
		if row.super, err = rowOf(ci.Super); err != nil {
			return row, err
		}
	}
	row.access = ci.Access
	if row.interfaces, err = rowsOf(ci.Interfaces); err != nil {
		return row, err
	}
	if row.annotations, err = rowsOf(ci.Annotations); err != nil {
		return row, err
	}
	if row.dependencies, err = rowsOf(ci.Dependencies); err != nil {
		return row, err
	}
	slices.Sort(row.dependencies)
	return row, nil
}

func (b *Builder) write(ctx context.Context, path string, flat *FlatTable, rows []classRow) (int64, error) {
	w, err := NewWriter(path, int32(flat.Len()), int32(len(rows)),
		WithBufferSize(b.opts.BufferSize), WithWriterLogger(b.opts.Logger))
	if err != nil {
		return 0, err
	}
	// Close removes the file when the counts are short, so every early
	// return below leaves nothing behind.
	defer w.Close()

	for i, e := range flat.Entries {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		if err := w.WriteStringPoolEntry(e.Hash(), flat.ParentIndex(e), e.NameBytes(), e.FullNameBytes()); err != nil {
			return 0, err
		}
	}
	for i, row := range rows {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		if err := w.WriteClassInfoEntry(row.name, row.super, row.access,
			row.interfaces, row.annotations, row.dependencies); err != nil {
			return 0, err
		}
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return w.HeapSize(), nil
}
