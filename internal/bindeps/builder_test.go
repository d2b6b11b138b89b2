package bindeps

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/fastmerger/pkg/errors"
	"github.com/fastmerger/pkg/utils"
)

// classFacts is what a scanner reports for one class in these tests.
type classFacts struct {
	name        string
	access      int32
	super       string
	interfaces  []string
	annotations []string
	deps        []string
}

func collect(t *testing.T, b *Builder, facts classFacts) {
	t.Helper()
	require.NoError(t, collectFacts(b, facts))
}

// collectFacts replays facts through a new collector and adds the result to
// b. It does not touch t, so producers may run on their own goroutines.
func collectFacts(b *Builder, facts classFacts) error {
	c := b.NewClassCollector()
	if err := c.AcceptClassInfo(facts.name, facts.access, facts.super); err != nil {
		return err
	}
	for _, i := range facts.interfaces {
		if err := c.AcceptInterface(facts.name, i); err != nil {
			return err
		}
	}
	for _, a := range facts.annotations {
		if err := c.AcceptAnnotation(facts.name, a); err != nil {
			return err
		}
	}
	for _, d := range facts.deps {
		if err := c.AcceptClassDependency(facts.name, d); err != nil {
			return err
		}
	}
	info, err := c.Release()
	if err != nil {
		return err
	}
	return b.Add(info)
}

var fooFacts = classFacts{
	name:       "com/Foo",
	access:     0x21,
	super:      "java/lang/Object",
	interfaces: []string{"java/io/Closeable"},
	deps:       []string{"com/Baz", "com/Bar"},
}

func sampleFacts() []classFacts {
	return []classFacts{
		fooFacts,
		{name: "com/Bar", access: 0x21, super: "java/lang/Object", deps: []string{"com/Baz", "java/util/List"}},
		{name: "com/Baz", access: 0x601, annotations: []string{"java/lang/FunctionalInterface"}},
		{
			name:        "com/impl/BarImpl",
			access:      0x11,
			super:       "com/Bar",
			interfaces:  []string{"com/Baz", "java/io/Serializable"},
			annotations: []string{"com/Marker"},
			deps:        []string{"com/Bar", "com/Baz", "com/impl/BarImpl"},
		},
	}
}

func buildIndex(t *testing.T, path string, facts []classFacts) *BuildResult {
	t.Helper()
	b := NewBuilder(BuilderOptions{})
	for _, f := range facts {
		collect(t, b, f)
	}
	res, err := b.Build(context.Background(), path)
	require.NoError(t, err)
	return res
}

func TestBuilder_Build(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foo.bindeps")
	res := buildIndex(t, path, []classFacts{fooFacts})

	// com, java, com/Bar, com/Baz, com/Foo, java/io, java/lang,
	// java/io/Closeable, java/lang/Object
	assert.Equal(t, int32(9), res.StringPoolSize)
	assert.Equal(t, int32(1), res.ClassInfoSize)
	assert.Equal(t, path, res.Path)
	assert.Equal(t, 9, res.Names.Len())

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, Header{
		Version:        FormatVersion,
		StringPoolSize: res.StringPoolSize,
		ClassInfoSize:  res.ClassInfoSize,
		HeapSize:       int32(res.HeapSize),
	}.FileSize(), st.Size())

	matches, err := filepath.Glob(path + ".heap-*")
	require.NoError(t, err)
	assert.Empty(t, matches, "heap spill file must be removed")
}

func TestBuilder_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foo.bindeps")
	buildIndex(t, path, []classFacts{fooFacts})

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	cls, err := r.FindClass("com/Foo")
	require.NoError(t, err)
	assert.Equal(t, int32(0x21), cls.Access())

	super, err := cls.SuperClass()
	require.NoError(t, err)
	require.NotNil(t, super)
	superName, err := super.FullName()
	require.NoError(t, err)
	assert.Equal(t, "java/lang/Object", superName)

	ifaces, err := cls.Interfaces()
	require.NoError(t, err)
	require.Len(t, ifaces, 1)
	name, err := ifaces[0].FullName()
	require.NoError(t, err)
	assert.Equal(t, "java/io/Closeable", name)

	assert.Equal(t, int32(0), cls.AnnotationCount())
	anns, err := cls.Annotations()
	require.NoError(t, err)
	assert.Empty(t, anns)

	deps, err := cls.Dependencies()
	require.NoError(t, err)
	require.Len(t, deps, 2)
	var depNames []string
	for _, d := range deps {
		n, err := d.FullName()
		require.NoError(t, err)
		depNames = append(depNames, n)
	}
	assert.Equal(t, []string{"com/Bar", "com/Baz"}, depNames)
	assert.Less(t, deps[0].Index(), deps[1].Index())
}

func TestBuilder_Deterministic(t *testing.T) {
	dir := t.TempDir()
	facts := sampleFacts()

	first := filepath.Join(dir, "first.bindeps")
	buildIndex(t, first, facts)

	reversed := make([]classFacts, len(facts))
	for i, f := range facts {
		reversed[len(facts)-1-i] = f
	}
	second := filepath.Join(dir, "second.bindeps")
	buildIndex(t, second, reversed)

	// Concurrent producers.
	third := filepath.Join(dir, "third.bindeps")
	b := NewBuilder(BuilderOptions{BufferSize: 64})
	var wg sync.WaitGroup
	errs := make(chan error, len(facts))
	for _, f := range facts {
		wg.Add(1)
		go func(f classFacts) {
			defer wg.Done()
			errs <- collectFacts(b, f)
		}(f)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	_, err := b.Build(context.Background(), third)
	require.NoError(t, err)

	want, err := os.ReadFile(first)
	require.NoError(t, err)
	for _, p := range []string{second, third} {
		got, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(want, got), "%s differs from %s", p, first)
	}
}

func TestBuilder_SelfDependencyDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "impl.bindeps")
	buildIndex(t, path, sampleFacts())

	r, err := Open(path, WithoutMmap())
	require.NoError(t, err)
	defer r.Close()

	cls, err := r.FindClass("com/impl/BarImpl")
	require.NoError(t, err)
	assert.Equal(t, int32(2), cls.DependencyCount())
	assert.Equal(t, int32(2), cls.InterfaceCount())
	assert.Equal(t, int32(1), cls.AnnotationCount())

	baz, err := r.FindClass("com/Baz")
	require.NoError(t, err)
	super, err := baz.SuperClass()
	require.NoError(t, err)
	assert.Nil(t, super)
	assert.Equal(t, NoIndex, baz.SuperIndex())
}

func TestBuilder_Errors(t *testing.T) {
	t.Run("duplicate class", func(t *testing.T) {
		b := NewBuilder(BuilderOptions{})
		collect(t, b, fooFacts)

		c := b.NewClassCollector()
		require.NoError(t, c.AcceptClassInfo("com/Foo", 0, ""))
		info, err := c.Release()
		require.NoError(t, err)
		err = b.Add(info)
		assert.True(t, apperrors.IsInvalidInput(err))
		assert.Equal(t, 1, b.Len())
	})

	t.Run("nil class", func(t *testing.T) {
		b := NewBuilder(BuilderOptions{})
		assert.True(t, apperrors.IsInvalidInput(b.Add(nil)))
	})

	t.Run("build twice", func(t *testing.T) {
		dir := t.TempDir()
		b := NewBuilder(BuilderOptions{})
		collect(t, b, fooFacts)
		_, err := b.Build(context.Background(), filepath.Join(dir, "a.bindeps"))
		require.NoError(t, err)

		_, err = b.Build(context.Background(), filepath.Join(dir, "b.bindeps"))
		assert.True(t, apperrors.IsUsageError(err))
		assert.True(t, apperrors.IsUsageError(b.Add(&ClassInfo{Name: &PathEntry{}})))
	})

	t.Run("cancelled", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cancelled.bindeps")
		b := NewBuilder(BuilderOptions{})
		collect(t, b, fooFacts)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := b.Build(ctx, path)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NoFileExists(t, path)
	})
}

func TestBuilder_TimerPhases(t *testing.T) {
	clock := utils.NewManualClock(time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC))
	timer := utils.NewTimer("build", utils.WithClock(clock))
	b := NewBuilder(BuilderOptions{Timer: timer})
	collect(t, b, fooFacts)

	_, err := b.Build(context.Background(), filepath.Join(t.TempDir(), "timed.bindeps"))
	require.NoError(t, err)

	var names []string
	for _, p := range timer.Phases() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"release", "resolve", "flatten", "write"}, names)
}

func TestBuilder_ManyClasses(t *testing.T) {
	b := NewBuilder(BuilderOptions{BufferSize: 128})
	const n = 300
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < n; i += 4 {
				err := collectFacts(b, classFacts{
					name:  fmt.Sprintf("pkg%d/C%d", i%7, i),
					super: "java/lang/Object",
					deps:  []string{fmt.Sprintf("pkg%d/C%d", (i+1)%7, (i+1)%n)},
				})
				if err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	path := filepath.Join(t.TempDir(), "many.bindeps")
	res, err := b.Build(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, int32(n), res.ClassInfoSize)

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	var prev int32 = -1
	for i := int32(0); i < r.ClassInfoSize(); i++ {
		cls, err := r.ClassInfoEntry(i)
		require.NoError(t, err)
		assert.Greater(t, cls.NameIndex(), prev, "classes must be ordered by name row")
		prev = cls.NameIndex()
		assert.Equal(t, int32(1), cls.DependencyCount())
	}
}
