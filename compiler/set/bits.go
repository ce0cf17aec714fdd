package set

import (
	"math/bits"

	"tlog.app/go/tlog/tlwire"
)

type (
	Key interface {
		~int | ~int32 | ~int64
	}

	// Bits is a dense set of non-negative keys.
	// Keys beyond the preallocated size grow the set.
	Bits[K Key] struct {
		w []uint64
	}
)

// MakeBits preallocates room for keys in [0, n).
func MakeBits[K Key](n int) Bits[K] {
	return Bits[K]{w: make([]uint64, (n+63)/64)}
}

func (s *Bits[K]) Set(k K) {
	i, m := word(k)

	for i >= len(s.w) {
		s.w = append(s.w, 0)
	}

	s.w[i] |= m
}

// IsSet is false for negative keys.
func (s Bits[K]) IsSet(k K) bool {
	if k < 0 {
		return false
	}

	i, m := word(k)

	return i < len(s.w) && s.w[i]&m != 0
}

func (s Bits[K]) Clear(k K) {
	if k < 0 {
		return
	}

	i, m := word(k)

	if i < len(s.w) {
		s.w[i] &^= m
	}
}

func (s Bits[K]) Len() (n int) {
	for _, x := range s.w {
		n += bits.OnesCount64(x)
	}

	return n
}

// Range calls f for keys in ascending order until it returns false.
func (s Bits[K]) Range(f func(k K) bool) {
	for i, x := range s.w {
		for x != 0 {
			j := bits.TrailingZeros64(x)
			x &^= 1 << j

			if !f(K(i*64 + j)) {
				return
			}
		}
	}
}

func (s *Bits[K]) Reset() {
	clear(s.w)
}

func (s Bits[K]) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	b = e.AppendTag(b, tlwire.Array, -1)

	s.Range(func(k K) bool {
		b = e.AppendInt(b, int(k))
		return true
	})

	return e.AppendBreak(b)
}

func word[K Key](k K) (int, uint64) {
	if k < 0 {
		panic("negative key")
	}

	return int(k / 64), 1 << (k % 64)
}
