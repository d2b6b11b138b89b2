package bindeps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/fastmerger/pkg/errors"
)

func TestDependencyCollector(t *testing.T) {
	symbols := NewSymbolMap()
	c := NewDependencyCollector(symbols)

	require.NoError(t, c.AcceptClassDependency("com/Foo", "com/Bar"))
	require.NoError(t, c.AcceptClassDependency("com/Foo", "com/Baz"))
	require.NoError(t, c.AcceptClassDependency("com/Foo", "com/Bar"))
	require.NoError(t, c.AcceptClassDependency("com/Foo", "com/Foo"))
	assert.Equal(t, "com/Foo", c.Owner())

	t.Run("owner mismatch", func(t *testing.T) {
		err := c.AcceptClassDependency("com/Other", "com/Bar")
		assert.True(t, apperrors.IsUsageError(err))
	})

	t.Run("empty names", func(t *testing.T) {
		assert.True(t, apperrors.IsInvalidInput(c.AcceptClassDependency("", "com/Bar")))
		assert.True(t, apperrors.IsInvalidInput(c.AcceptClassDependency("com/Foo", "")))
	})

	deps, err := c.Release()
	require.NoError(t, err)
	assert.Equal(t, 2, deps.Len(), "self reference must be dropped")
	assert.Equal(t, 2, symbols.Len())

	_, err = c.Release()
	assert.True(t, apperrors.IsUsageError(err))
	assert.True(t, apperrors.IsUsageError(c.AcceptClassDependency("com/Foo", "com/Qux")))
}

func TestClassCollector(t *testing.T) {
	table := NewPathTable()
	symbols := NewSymbolMap()
	c := NewClassCollector(table, symbols)

	require.NoError(t, c.AcceptClassInfo("com/Foo", 0x21, "java/lang/Object"))
	require.NoError(t, c.AcceptInterface("com/Foo", "java/io/Closeable"))
	require.NoError(t, c.AcceptInterface("com/Foo", "java/lang/Runnable"))
	require.NoError(t, c.AcceptInterface("com/Foo", "java/io/Closeable"))
	require.NoError(t, c.AcceptAnnotation("com/Foo", "java/io/Closeable"))
	require.NoError(t, c.AcceptClassDependency("com/Foo", "com/Bar"))

	t.Run("class info twice", func(t *testing.T) {
		err := c.AcceptClassInfo("com/Foo", 0, "")
		assert.True(t, apperrors.IsUsageError(err))
	})
	t.Run("owner mismatch", func(t *testing.T) {
		assert.True(t, apperrors.IsUsageError(c.AcceptInterface("com/Other", "java/io/Serializable")))
	})

	info, err := c.Release()
	require.NoError(t, err)
	assert.Equal(t, "com/Foo", info.Name.FullName())
	assert.Equal(t, int32(0x21), info.Access)
	assert.Equal(t, "java/lang/Object", info.Super.FullName())
	require.Len(t, info.Interfaces, 2)
	assert.Equal(t, "java/io/Closeable", info.Interfaces[0].FullName())
	assert.Equal(t, "java/lang/Runnable", info.Interfaces[1].FullName())
	require.Len(t, info.Annotations, 1)
	assert.Same(t, info.Interfaces[0], info.Annotations[0])
	assert.Equal(t, 1, info.DependencySymbols.Len())

	_, err = c.Release()
	assert.True(t, apperrors.IsUsageError(err))

	result, err := symbols.Release()
	require.NoError(t, err)
	require.NoError(t, info.ResolveDependencies(table, result))
	assert.Nil(t, info.DependencySymbols)
	require.Len(t, info.Dependencies, 1)
	assert.Equal(t, "com/Bar", info.Dependencies[0].FullName())
}

func TestClassCollector_ReleaseWithoutInfo(t *testing.T) {
	c := NewClassCollector(NewPathTable(), NewSymbolMap())
	require.NoError(t, c.AcceptClassDependency("com/Foo", "com/Bar"))

	_, err := c.Release()
	assert.True(t, apperrors.IsUsageError(err))
}

func TestClassCollector_NoSuperclass(t *testing.T) {
	c := NewClassCollector(NewPathTable(), NewSymbolMap())
	require.NoError(t, c.AcceptClassInfo("java/lang/Object", 0x21, ""))

	info, err := c.Release()
	require.NoError(t, err)
	assert.Nil(t, info.Super)
	assert.Equal(t, 0, info.DependencySymbols.Len())
}
