// Package properties defines the structural guarantees a conversation view must satisfy
// before it is sent to a model, and the cut points that keep those guarantees intact.
package properties

import (
	"sort"
	"strconv"
	"strings"
)

// ManipulationIndices is a set of positions in a view, 0..len inclusive, at which the
// view may be split without violating a property. Index i splits before view[i].
type ManipulationIndices struct {
	set map[int]struct{}
}

// All returns every index 0..n.
func All(n int) ManipulationIndices {
	set := make(map[int]struct{}, n+1)
	for i := 0; i <= n; i++ {
		set[i] = struct{}{}
	}
	return ManipulationIndices{set: set}
}

// Of returns a set with exactly the given indices.
func Of(indices ...int) ManipulationIndices {
	set := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		set[i] = struct{}{}
	}
	return ManipulationIndices{set: set}
}

// Except returns 0..n minus the blocked indices.
func Except(n int, blocked map[int]struct{}) ManipulationIndices {
	out := All(n)
	for i := range blocked {
		delete(out.set, i)
	}
	return out
}

// Contains reports whether i is a safe cut.
func (m ManipulationIndices) Contains(i int) bool {
	_, ok := m.set[i]
	return ok
}

// Len returns the number of safe cuts.
func (m ManipulationIndices) Len() int {
	return len(m.set)
}

// Intersect returns the indices present in both sets.
func (m ManipulationIndices) Intersect(other ManipulationIndices) ManipulationIndices {
	small, large := m.set, other.set
	if len(large) < len(small) {
		small, large = large, small
	}
	out := make(map[int]struct{}, len(small))
	for i := range small {
		if _, ok := large[i]; ok {
			out[i] = struct{}{}
		}
	}
	return ManipulationIndices{set: out}
}

// Sorted returns the indices in ascending order.
func (m ManipulationIndices) Sorted() []int {
	out := make([]int, 0, len(m.set))
	for i := range m.set {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Equal reports whether both sets hold the same indices.
func (m ManipulationIndices) Equal(other ManipulationIndices) bool {
	if len(m.set) != len(other.set) {
		return false
	}
	for i := range m.set {
		if _, ok := other.set[i]; !ok {
			return false
		}
	}
	return true
}

func (m ManipulationIndices) String() string {
	sorted := m.Sorted()
	parts := make([]string, len(sorted))
	for i, v := range sorted {
		parts[i] = strconv.Itoa(v)
	}
	return "{" + strings.Join(parts, ",") + "}"
}
