package bindeps

import (
	"github.com/fastmerger/pkg/collections"
	apperrors "github.com/fastmerger/pkg/errors"
)

// DependencyCollector accumulates the distinct dependency symbols of one
// class. It is not safe for concurrent use and may be released once.
type DependencyCollector struct {
	symbols  *SymbolMap
	owner    string
	deps     *collections.IDSet
	released bool
}

// NewDependencyCollector creates a collector that interns through symbols.
func NewDependencyCollector(symbols *SymbolMap) *DependencyCollector {
	return &DependencyCollector{
		symbols: symbols,
		deps:    collections.NewIDSet(64),
	}
}

// AcceptClassDependency records that className references dependencyName.
// The first call fixes the owning class; later calls must name the same
// class. Self references are dropped.
func (c *DependencyCollector) AcceptClassDependency(className, dependencyName string) error {
	if c.released {
		return apperrors.Usagef("dependency collector already released")
	}
	if className == "" || dependencyName == "" {
		return apperrors.Newf(apperrors.CodeInvalidInput,
			"empty class or dependency name (%q -> %q)", className, dependencyName)
	}
	if c.owner == "" {
		c.owner = className
	} else if c.owner != className {
		return apperrors.Usagef("dependency collector owned by %s received class %s", c.owner, className)
	}
	if className == dependencyName {
		return nil
	}

	id, err := c.symbols.Get(dependencyName)
	if err != nil {
		return err
	}
	c.deps.Add(id)
	return nil
}

// Owner returns the class name fixed by the first accepted dependency.
func (c *DependencyCollector) Owner() string {
	return c.owner
}

// Release returns the collected symbol ids and disables the collector.
func (c *DependencyCollector) Release() (*collections.IDSet, error) {
	if c.released {
		return nil, apperrors.Usagef("dependency collector already released")
	}
	c.released = true
	deps := c.deps
	c.deps = nil
	c.symbols = nil
	return deps, nil
}
