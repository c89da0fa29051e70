package index_test

import (
	"testing"

	"GoldLedger/internal/index"

	"github.com/stretchr/testify/assert"
)

func TestSet_SwapAndPop(t *testing.T) {
	s := index.NewSet[uint64]()
	for _, id := range []uint64{1, 2, 3, 4} {
		assert.True(t, s.Add(id))
	}
	assert.False(t, s.Add(2), "duplicate add is a no-op")
	assert.Equal(t, 4, s.Len())

	assert.True(t, s.Remove(2))
	assert.False(t, s.Remove(2))
	assert.Equal(t, []uint64{1, 4, 3}, s.Items(), "last item fills the hole")

	assert.True(t, s.Remove(3))
	assert.True(t, s.Contains(4))
	assert.Equal(t, []uint64{1, 4}, s.Items())

	assert.True(t, s.Remove(1))
	assert.True(t, s.Remove(4))
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Items())
}
