package set

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBits(t *testing.T) {
	s := MakeBits[int](10)

	assert.False(t, s.IsSet(3))
	assert.False(t, s.IsSet(-1))
	assert.False(t, s.IsSet(1000))

	s.Set(3)
	s.Set(64)
	s.Set(200)

	assert.True(t, s.IsSet(3))
	assert.True(t, s.IsSet(64))
	assert.True(t, s.IsSet(200))
	assert.False(t, s.IsSet(65))
	assert.Equal(t, 3, s.Len())

	var keys []int

	s.Range(func(k int) bool {
		keys = append(keys, k)
		return true
	})

	assert.Equal(t, []int{3, 64, 200}, keys)

	keys = keys[:0]

	s.Range(func(k int) bool {
		keys = append(keys, k)
		return len(keys) < 2
	})

	assert.Equal(t, []int{3, 64}, keys)

	s.Clear(64)
	s.Clear(-5)
	s.Clear(5000)
	assert.False(t, s.IsSet(64))
	assert.Equal(t, 2, s.Len())

	s.Reset()
	assert.Equal(t, 0, s.Len())

	assert.Panics(t, func() { s.Set(-1) })
}
