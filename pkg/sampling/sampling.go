// Package sampling draws uniform random samples without replacement.
//
// All functions take an explicit *rand.Rand so that callers control seeding;
// nothing in this package touches the global random source.
package sampling

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// ErrSampleTooLarge is returned when more items are requested than are available
var ErrSampleTooLarge = errors.New("sample larger than population")

// NewRand returns a deterministic PCG-backed source for the given seed
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Reservoir keeps a uniform sample of at most Cap items from a stream of
// unknown length (Algorithm R). Memory is bounded by Cap.
type Reservoir[T any] struct {
	rand  *rand.Rand
	cap   int
	seen  int64
	items []T
}

// NewReservoir creates a reservoir holding at most capacity items
func NewReservoir[T any](r *rand.Rand, capacity int) *Reservoir[T] {
	if capacity < 0 {
		capacity = 0
	}
	// Cap the initial allocation; large capacities grow on demand.
	initial := capacity
	if initial > 4096 {
		initial = 4096
	}
	return &Reservoir[T]{
		rand:  r,
		cap:   capacity,
		items: make([]T, 0, initial),
	}
}

// Offer presents the next stream item to the reservoir
func (s *Reservoir[T]) Offer(item T) {
	if slot, keep := s.Next(); keep {
		s.Put(slot, item)
	}
}

// Next advances the stream by one item and reports whether that item is
// kept and in which slot. Callers that build items lazily use Next and Put
// so that only retained items are materialized.
func (s *Reservoir[T]) Next() (slot int, keep bool) {
	s.seen++
	if len(s.items) < s.cap {
		return len(s.items), true
	}
	if s.cap == 0 {
		return 0, false
	}
	if j := s.rand.Int64N(s.seen); j < int64(s.cap) {
		return int(j), true
	}
	return 0, false
}

// Put stores item in a slot returned by Next
func (s *Reservoir[T]) Put(slot int, item T) {
	if slot == len(s.items) {
		s.items = append(s.items, item)
		return
	}
	s.items[slot] = item
}

// Seen returns the number of items offered so far
func (s *Reservoir[T]) Seen() int64 {
	return s.seen
}

// Len returns the current sample size, min(Cap, Seen)
func (s *Reservoir[T]) Len() int {
	return len(s.items)
}

// Items returns the sample in slot order. The slice is owned by the reservoir.
func (s *Reservoir[T]) Items() []T {
	return s.items
}

// Choose returns k distinct elements of items, chosen uniformly at random.
// It runs a partial Fisher-Yates shuffle over a virtual index permutation,
// so work and extra memory are proportional to k rather than len(items).
// items is not modified.
func Choose[T any](r *rand.Rand, items []T, k int) ([]T, error) {
	n := len(items)
	if k < 0 {
		return nil, fmt.Errorf("invalid sample size %d", k)
	}
	if k > n {
		return nil, fmt.Errorf("%w: requested %d, available %d", ErrSampleTooLarge, k, n)
	}

	// swapped[i] holds the index currently at virtual position i, when it
	// differs from i.
	swapped := make(map[int]int, k)
	at := func(i int) int {
		if v, ok := swapped[i]; ok {
			return v
		}
		return i
	}

	out := make([]T, k)
	for i := 0; i < k; i++ {
		j := i + r.IntN(n-i)
		vi, vj := at(i), at(j)
		swapped[i], swapped[j] = vj, vi
		out[i] = items[vj]
	}
	return out, nil
}
