package bindeps

import (
	"github.com/fastmerger/pkg/collections"
	apperrors "github.com/fastmerger/pkg/errors"
)

// ClassVisitor receives the facts an external bytecode scanner reports for
// one class. Every call names the class it concerns.
type ClassVisitor interface {
	AcceptClassInfo(name string, access int32, superName string) error
	AcceptInterface(name, iface string) error
	AcceptAnnotation(name, annotation string) error
	AcceptClassDependency(name, dependency string) error
}

// ClassInfo is one class ready for resolution and writing.
type ClassInfo struct {
	Name        *PathEntry
	Access      int32
	Super       *PathEntry // nil when the class has no superclass
	Interfaces  []*PathEntry
	Annotations []*PathEntry

	// DependencySymbols holds SymbolMap ids until ResolveDependencies runs.
	DependencySymbols *collections.IDSet
	Dependencies      []*PathEntry
}

// ResolveDependencies replaces the collected symbol ids with path entries.
// It must run after the SymbolMap is released and before the PathTable is
// finished.
func (ci *ClassInfo) ResolveDependencies(table *PathTable, symbols *SymbolResult) error {
	if ci.DependencySymbols == nil {
		return nil
	}
	deps := make([]*PathEntry, 0, ci.DependencySymbols.Len())
	for id := range ci.DependencySymbols.All() {
		name, ok := symbols.Symbol(id)
		if !ok {
			return apperrors.Usagef("class %s references unknown symbol id %d", ci.Name, id)
		}
		entry, err := table.GetOrCreate(name)
		if err != nil {
			return err
		}
		deps = append(deps, entry)
	}
	ci.Dependencies = deps
	ci.DependencySymbols = nil
	return nil
}

// ClassCollector implements ClassVisitor for a single class on top of a
// shared PathTable and SymbolMap. It is not safe for concurrent use.
type ClassCollector struct {
	table    *PathTable
	deps     *DependencyCollector
	info     ClassInfo
	owner    string
	hasInfo  bool
	seen     map[*PathEntry]uint8
	released bool
}

const (
	seenInterface uint8 = 1 << iota
	seenAnnotation
)

// NewClassCollector creates a collector for one class.
func NewClassCollector(table *PathTable, symbols *SymbolMap) *ClassCollector {
	return &ClassCollector{
		table: table,
		deps:  NewDependencyCollector(symbols),
		seen:  make(map[*PathEntry]uint8),
	}
}

func (c *ClassCollector) claim(name string) error {
	if c.released {
		return apperrors.Usagef("class collector already released")
	}
	if name == "" {
		return apperrors.New(apperrors.CodeInvalidInput, "empty class name")
	}
	if c.owner == "" {
		c.owner = name
		return nil
	}
	if c.owner != name {
		return apperrors.Usagef("class collector owned by %s received class %s", c.owner, name)
	}
	return nil
}

// AcceptClassInfo records the class name, access flags and superclass.
// An empty superName means the class has no superclass.
func (c *ClassCollector) AcceptClassInfo(name string, access int32, superName string) error {
	if err := c.claim(name); err != nil {
		return err
	}
	if c.hasInfo {
		return apperrors.Usagef("class info for %s reported twice", name)
	}

	entry, err := c.table.GetOrCreate(name)
	if err != nil {
		return err
	}
	var super *PathEntry
	if superName != "" {
		if super, err = c.table.GetOrCreate(superName); err != nil {
			return err
		}
	}

	c.info.Name = entry
	c.info.Access = access
	c.info.Super = super
	c.hasInfo = true
	return nil
}

// AcceptInterface records a declared interface. Duplicates are ignored.
func (c *ClassCollector) AcceptInterface(name, iface string) error {
	entry, err := c.intern(name, iface, seenInterface)
	if err != nil || entry == nil {
		return err
	}
	c.info.Interfaces = append(c.info.Interfaces, entry)
	return nil
}

// AcceptAnnotation records an annotation type. Duplicates are ignored.
func (c *ClassCollector) AcceptAnnotation(name, annotation string) error {
	entry, err := c.intern(name, annotation, seenAnnotation)
	if err != nil || entry == nil {
		return err
	}
	c.info.Annotations = append(c.info.Annotations, entry)
	return nil
}

// intern returns nil without error when value was already seen for kind.
func (c *ClassCollector) intern(name, value string, kind uint8) (*PathEntry, error) {
	if err := c.claim(name); err != nil {
		return nil, err
	}
	entry, err := c.table.GetOrCreate(value)
	if err != nil {
		return nil, err
	}
	if c.seen[entry]&kind != 0 {
		return nil, nil
	}
	c.seen[entry] |= kind
	return entry, nil
}

// AcceptClassDependency records a referenced type.
func (c *ClassCollector) AcceptClassDependency(name, dependency string) error {
	if err := c.claim(name); err != nil {
		return err
	}
	return c.deps.AcceptClassDependency(name, dependency)
}

// Release returns the collected ClassInfo and disables the collector.
func (c *ClassCollector) Release() (*ClassInfo, error) {
	if c.released {
		return nil, apperrors.Usagef("class collector already released")
	}
	if !c.hasInfo {
		return nil, apperrors.Usagef("class %q released without class info", c.owner)
	}
	deps, err := c.deps.Release()
	if err != nil {
		return nil, err
	}
	c.released = true

	info := c.info
	info.DependencySymbols = deps
	c.seen = nil
	return &info, nil
}

var _ ClassVisitor = (*ClassCollector)(nil)
