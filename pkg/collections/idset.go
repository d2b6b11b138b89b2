// Package collections holds the containers behind dependency collection
// and graph traversal: a dense set of int32 ids and a FIFO ring.
package collections

import (
	"iter"
	"math/bits"
)

// IDSet is a set of non-negative int32 ids stored one bit per id. It grows
// on demand and is not safe for concurrent use.
type IDSet struct {
	words []uint64
	n     int
}

// NewIDSet creates a set with room for ids in [0, capacity).
func NewIDSet(capacity int) *IDSet {
	return &IDSet{words: make([]uint64, (max(capacity, 1)+63)>>6)}
}

// Add inserts id and reports whether it was new. Negative ids are never
// members.
func (s *IDSet) Add(id int32) bool {
	if id < 0 {
		return false
	}
	w := int(id >> 6)
	if w >= len(s.words) {
		s.words = append(s.words, make([]uint64, max(w+1, 2*len(s.words))-len(s.words))...)
	}
	bit := uint64(1) << (id & 63)
	if s.words[w]&bit != 0 {
		return false
	}
	s.words[w] |= bit
	s.n++
	return true
}

// Has reports whether id is a member.
func (s *IDSet) Has(id int32) bool {
	w := int(id >> 6)
	return id >= 0 && w < len(s.words) && s.words[w]&(1<<(id&63)) != 0
}

// Len returns the number of members.
func (s *IDSet) Len() int {
	return s.n
}

// All yields the members in ascending order.
func (s *IDSet) All() iter.Seq[int32] {
	return func(yield func(int32) bool) {
		for w, word := range s.words {
			for word != 0 {
				if !yield(int32(w<<6 + bits.TrailingZeros64(word))) {
					return
				}
				word &= word - 1
			}
		}
	}
}

// Sorted returns the members in ascending order.
func (s *IDSet) Sorted() []int32 {
	out := make([]int32, 0, s.n)
	for id := range s.All() {
		out = append(out, id)
	}
	return out
}
