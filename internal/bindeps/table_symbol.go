package bindeps

import (
	"sync"
	"sync/atomic"

	apperrors "github.com/fastmerger/pkg/errors"
)

// symbolSlot defers id allocation to the first reader of the slot that won
// the insert, so slots that lose a LoadOrStore race never consume an id.
type symbolSlot struct {
	id func() int32
}

// SymbolMap assigns dense ids, starting at 1, to distinct strings. Get is
// safe for concurrent use until Release.
type SymbolMap struct {
	symbols  atomic.Pointer[sync.Map] // string -> *symbolSlot
	next     atomic.Int32
	released atomic.Bool
}

// NewSymbolMap creates an empty map.
func NewSymbolMap() *SymbolMap {
	m := &SymbolMap{}
	m.symbols.Store(&sync.Map{})
	return m
}

// Get returns the id of symbol, assigning the next id on first sight.
func (m *SymbolMap) Get(symbol string) (int32, error) {
	symbols := m.symbols.Load()
	if symbols == nil || m.released.Load() {
		return 0, apperrors.Usagef("symbol map already released")
	}

	if v, ok := symbols.Load(symbol); ok {
		return v.(*symbolSlot).id(), nil
	}
	slot := &symbolSlot{}
	slot.id = sync.OnceValue(func() int32 { return m.next.Add(1) })
	v, _ := symbols.LoadOrStore(symbol, slot)
	return v.(*symbolSlot).id(), nil
}

// Len returns the number of ids assigned so far.
func (m *SymbolMap) Len() int {
	return int(m.next.Load())
}

// Release freezes the map and returns both directions of the mapping.
// It may be called once; the map rejects further use afterwards.
func (m *SymbolMap) Release() (*SymbolResult, error) {
	if !m.released.CompareAndSwap(false, true) {
		return nil, apperrors.Usagef("symbol map already released")
	}
	symbols := m.symbols.Swap(nil)

	forward := make(map[string]int32)
	symbols.Range(func(k, v any) bool {
		forward[k.(string)] = v.(*symbolSlot).id()
		return true
	})

	reverse := make([]string, m.next.Load()+1)
	for s, id := range forward {
		reverse[id] = s
	}
	return &SymbolResult{Forward: forward, Reverse: reverse}, nil
}

// SymbolResult is the frozen content of a released SymbolMap.
// Reverse[0] is unused.
type SymbolResult struct {
	Forward map[string]int32
	Reverse []string
}

// Symbol returns the string for id.
func (r *SymbolResult) Symbol(id int32) (string, bool) {
	if id <= 0 || int(id) >= len(r.Reverse) {
		return "", false
	}
	return r.Reverse[id], true
}

// ID returns the id of symbol.
func (r *SymbolResult) ID(symbol string) (int32, bool) {
	id, ok := r.Forward[symbol]
	return id, ok
}

// Len returns the number of symbols.
func (r *SymbolResult) Len() int {
	return len(r.Forward)
}
