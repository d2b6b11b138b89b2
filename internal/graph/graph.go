// Package graph answers dependency questions over an open bindeps index:
// which classes reference a name, and what must be rebuilt when it changes.
//
// Edges are the per-class dependency lists stored in the index. Superclass
// and interface references count only when the producer also reported them
// as dependencies.
package graph

import (
	"context"
	"slices"

	"github.com/fastmerger/internal/bindeps"
	"github.com/fastmerger/pkg/collections"
	apperrors "github.com/fastmerger/pkg/errors"
	"github.com/fastmerger/pkg/parallel"
)

// checkEvery bounds how many nodes a traversal visits between context checks.
const checkEvery = 1024

func validPool(r *bindeps.Reader, poolIndex int32) error {
	if poolIndex < 0 || poolIndex >= r.StringPoolSize() {
		return apperrors.Usagef("string pool index %d out of range [0, %d)", poolIndex, r.StringPoolSize())
	}
	return nil
}

// Dependents returns, in ascending order, the class rows whose dependency
// list contains poolIndex. Class rows are scanned in parallel spans.
func Dependents(ctx context.Context, r *bindeps.Reader, poolIndex int32, cfg parallel.PoolConfig) ([]int32, error) {
	if err := validPool(r, poolIndex); err != nil {
		return nil, err
	}

	parts, err := parallel.MapSpans(ctx, r.ClassInfoSize(), cfg, func(ctx context.Context, s parallel.Span) ([]int32, error) {
		var rows []int32
		for ci := s.Lo; ci < s.Hi; ci++ {
			cls, err := r.ClassInfoEntry(ci)
			if err != nil {
				return nil, err
			}
			deps, err := cls.DependencyIndices()
			if err != nil {
				return nil, err
			}
			if slices.Contains(deps, poolIndex) {
				rows = append(rows, ci)
			}
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Concat(parts...), nil
}

// reverseEdges maps each dependency pool row to the class rows that list it.
func reverseEdges(ctx context.Context, r *bindeps.Reader) (map[int32][]int32, error) {
	rev := make(map[int32][]int32)
	for ci := int32(0); ci < r.ClassInfoSize(); ci++ {
		if ci%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		cls, err := r.ClassInfoEntry(ci)
		if err != nil {
			return nil, err
		}
		deps, err := cls.DependencyIndices()
		if err != nil {
			return nil, err
		}
		for _, d := range deps {
			rev[d] = append(rev[d], ci)
		}
	}
	return rev, nil
}

// TransitiveDependents returns, in ascending order, every class row that
// reaches poolIndex through one or more dependency edges. When poolIndex
// names a class itself, that class is included only if it is on a cycle.
func TransitiveDependents(ctx context.Context, r *bindeps.Reader, poolIndex int32) ([]int32, error) {
	if err := validPool(r, poolIndex); err != nil {
		return nil, err
	}
	rev, err := reverseEdges(ctx, r)
	if err != nil {
		return nil, err
	}

	visited := collections.NewIDSet(int(r.ClassInfoSize()))
	queue := collections.NewRing[int32](64)
	queue.Push(poolIndex)
	steps := 0
	for queue.Len() > 0 {
		target, _ := queue.Pop()
		for _, ci := range rev[target] {
			if !visited.Add(ci) {
				continue
			}
			cls, err := r.ClassInfoEntry(ci)
			if err != nil {
				return nil, err
			}
			queue.Push(cls.NameIndex())
		}
		if steps++; steps%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}
	return visited.Sorted(), nil
}

// TransitiveDependencies returns, in ascending order, every string pool row
// reachable from classIndex. Rows that are not classes in this index end
// the walk on that branch.
func TransitiveDependencies(ctx context.Context, r *bindeps.Reader, classIndex int32) ([]int32, error) {
	if classIndex < 0 || classIndex >= r.ClassInfoSize() {
		return nil, apperrors.Usagef("class index %d out of range [0, %d)", classIndex, r.ClassInfoSize())
	}
	ni, err := r.NameIndex()
	if err != nil {
		return nil, err
	}

	reached := collections.NewIDSet(int(r.StringPoolSize()))
	expanded := collections.NewIDSet(int(r.ClassInfoSize()))
	queue := collections.NewRing[int32](64)
	queue.Push(classIndex)
	expanded.Add(classIndex)
	steps := 0
	for queue.Len() > 0 {
		ci, _ := queue.Pop()
		cls, err := r.ClassInfoEntry(ci)
		if err != nil {
			return nil, err
		}
		deps, err := cls.DependencyIndices()
		if err != nil {
			return nil, err
		}
		for _, d := range deps {
			if !reached.Add(d) {
				continue
			}
			if next, ok := ni.ClassIndex(d); ok && expanded.Add(next) {
				queue.Push(next)
			}
		}
		if steps++; steps%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}
	return reached.Sorted(), nil
}
