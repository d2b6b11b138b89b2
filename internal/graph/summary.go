package graph

import (
	"cmp"
	"context"
	"slices"

	"github.com/fastmerger/internal/bindeps"
	"github.com/fastmerger/pkg/filter"
	"github.com/fastmerger/pkg/parallel"
)

// CategoryCount aggregates the classes of one category.
type CategoryCount struct {
	Classes      int
	Dependencies int64
}

// Summary describes the shape of an index.
type Summary struct {
	Classes         int
	Names           int
	Dependencies    int64
	MaxDependencies int32
	// MaxClass is the class row with MaxDependencies edges, or -1.
	MaxClass   int32
	ByCategory map[filter.ClassCategory]CategoryCount
}

// AverageDependencies returns the mean dependency count per class.
func (s *Summary) AverageDependencies() float64 {
	if s.Classes == 0 {
		return 0
	}
	return float64(s.Dependencies) / float64(s.Classes)
}

type classStat struct {
	deps int64
	max  int32
	row  int32
	n    int
}

// Summarize counts classes and dependency edges per category of class name.
// A nil filter uses filter.DefaultFilter.
func Summarize(ctx context.Context, r *bindeps.Reader, f *filter.ClassFilter, cfg parallel.PoolConfig) (*Summary, error) {
	if f == nil {
		f = filter.DefaultFilter
	}

	byCat, err := parallel.Aggregate(ctx, r.ClassInfoSize(), cfg,
		func(ci int32) (filter.ClassCategory, classStat, error) {
			cls, err := r.ClassInfoEntry(ci)
			if err != nil {
				return filter.CategoryUnknown, classStat{}, err
			}
			name, err := cls.Name()
			if err != nil {
				return filter.CategoryUnknown, classStat{}, err
			}
			full, err := name.FullName()
			if err != nil {
				return filter.CategoryUnknown, classStat{}, err
			}
			count := cls.DependencyCount()
			return f.Classify(full), classStat{deps: int64(count), max: count, row: ci, n: 1}, nil
		},
		func(a, b classStat) classStat {
			merged := classStat{deps: a.deps + b.deps, n: a.n + b.n, max: a.max, row: a.row}
			if b.max > a.max || (b.max == a.max && b.row < a.row) {
				merged.max, merged.row = b.max, b.row
			}
			return merged
		},
	)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Names:      int(r.StringPoolSize()),
		MaxClass:   -1,
		ByCategory: make(map[filter.ClassCategory]CategoryCount, len(byCat)),
	}
	for cat, st := range byCat {
		s.ByCategory[cat] = CategoryCount{Classes: st.n, Dependencies: st.deps}
		s.Classes += st.n
		s.Dependencies += st.deps
		if st.max > s.MaxDependencies || (st.max == s.MaxDependencies && (s.MaxClass < 0 || st.row < s.MaxClass)) {
			s.MaxDependencies, s.MaxClass = st.max, st.row
		}
	}
	return s, nil
}

// Ranked is a string pool row with the number of classes depending on it.
type Ranked struct {
	PoolIndex  int32
	Dependents int
}

// TopDependedOn returns up to n string pool rows with the most dependents,
// ties broken by row.
func TopDependedOn(ctx context.Context, r *bindeps.Reader, n int, cfg parallel.PoolConfig) ([]Ranked, error) {
	parts, err := parallel.MapSpans(ctx, r.ClassInfoSize(), cfg, func(ctx context.Context, s parallel.Span) (map[int32]int, error) {
		counts := make(map[int32]int)
		for ci := s.Lo; ci < s.Hi; ci++ {
			cls, err := r.ClassInfoEntry(ci)
			if err != nil {
				return nil, err
			}
			deps, err := cls.DependencyIndices()
			if err != nil {
				return nil, err
			}
			for _, d := range deps {
				counts[d]++
			}
		}
		return counts, nil
	})
	if err != nil {
		return nil, err
	}

	counts := make(map[int32]int)
	for _, part := range parts {
		for row, c := range part {
			counts[row] += c
		}
	}

	ranked := make([]Ranked, 0, len(counts))
	for row, c := range counts {
		ranked = append(ranked, Ranked{PoolIndex: row, Dependents: c})
	}
	slices.SortFunc(ranked, func(a, b Ranked) int {
		if c := cmp.Compare(b.Dependents, a.Dependents); c != 0 {
			return c
		}
		return cmp.Compare(a.PoolIndex, b.PoolIndex)
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked, nil
}
