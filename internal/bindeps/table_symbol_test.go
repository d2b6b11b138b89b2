package bindeps

import (
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/fastmerger/pkg/errors"
)

func TestSymbolMap_Get(t *testing.T) {
	m := NewSymbolMap()

	foo, err := m.Get("com/Foo")
	require.NoError(t, err)
	bar, err := m.Get("com/Bar")
	require.NoError(t, err)
	again, err := m.Get("com/Foo")
	require.NoError(t, err)

	assert.Equal(t, int32(1), foo)
	assert.Equal(t, int32(2), bar)
	assert.Equal(t, foo, again)
	assert.Equal(t, 2, m.Len())
}

func TestSymbolMap_Release(t *testing.T) {
	m := NewSymbolMap()
	for _, s := range []string{"a", "b", "c"} {
		_, err := m.Get(s)
		require.NoError(t, err)
	}

	result, err := m.Release()
	require.NoError(t, err)
	assert.Equal(t, 3, result.Len())

	id, ok := result.ID("b")
	require.True(t, ok)
	s, ok := result.Symbol(id)
	require.True(t, ok)
	assert.Equal(t, "b", s)

	_, ok = result.Symbol(0)
	assert.False(t, ok)
	_, ok = result.Symbol(4)
	assert.False(t, ok)

	t.Run("second release fails", func(t *testing.T) {
		_, err := m.Release()
		require.Error(t, err)
		assert.True(t, apperrors.IsUsageError(err))
	})

	t.Run("get after release fails", func(t *testing.T) {
		_, err := m.Get("d")
		assert.True(t, apperrors.IsUsageError(err))
	})
}

func TestSymbolMap_ConcurrentIDsAreDense(t *testing.T) {
	m := NewSymbolMap()
	const symbols = 500

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < symbols; i++ {
				// Each worker walks the symbols in a different order.
				n := (i*7 + w*31) % symbols
				if _, err := m.Get(fmt.Sprintf("pkg/C%d", n)); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	result, err := m.Release()
	require.NoError(t, err)
	require.Equal(t, symbols, result.Len())

	ids := make([]int, 0, symbols)
	for _, id := range result.Forward {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	for i, id := range ids {
		assert.Equal(t, i+1, id)
	}
}
