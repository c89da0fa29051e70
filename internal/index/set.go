// Package index provides an insertion-indexed set with O(1) membership and
// swap-and-pop removal. Removal does not preserve order.
package index

// Set is not safe for concurrent use.
type Set[K comparable] struct {
	items []K
	slot  map[K]int
}

func NewSet[K comparable]() *Set[K] {
	return &Set[K]{slot: make(map[K]int)}
}

// Add inserts k and reports whether it was absent.
func (s *Set[K]) Add(k K) bool {
	if _, ok := s.slot[k]; ok {
		return false
	}
	s.slot[k] = len(s.items)
	s.items = append(s.items, k)
	return true
}

// Remove deletes k by moving the last item into its slot.
func (s *Set[K]) Remove(k K) bool {
	i, ok := s.slot[k]
	if !ok {
		return false
	}
	last := len(s.items) - 1
	if i != last {
		moved := s.items[last]
		s.items[i] = moved
		s.slot[moved] = i
	}
	s.items = s.items[:last]
	delete(s.slot, k)
	return true
}

func (s *Set[K]) Contains(k K) bool {
	_, ok := s.slot[k]
	return ok
}

func (s *Set[K]) Len() int { return len(s.items) }

// Items returns a copy of the members in slot order.
func (s *Set[K]) Items() []K {
	out := make([]K, len(s.items))
	copy(out, s.items)
	return out
}
