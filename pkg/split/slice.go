package split

import "fmt"

// Slice identifies sub-partition ID of Max within a single shard.
// The type carries the pair only; 0 <= ID < Max is up to the caller.
type Slice struct {
	ID  int32
	Max int32
}

// NewSlice returns the slice (id, max).
func NewSlice(id, max int32) Slice {
	return Slice{ID: id, Max: max}
}

// Compare orders slices by ID, then Max.
// Returns -1 if s < o, 0 if s == o, 1 if s > o.
func (s Slice) Compare(o Slice) int {
	if c := compareInt32(s.ID, o.ID); c != 0 {
		return c
	}
	return compareInt32(s.Max, o.Max)
}

// Equal reports whether both slices have the same ID and Max.
func (s Slice) Equal(o Slice) bool {
	return s.ID == o.ID && s.Max == o.Max
}

// Hash returns 31*ID + Max with int32 wraparound.
func (s Slice) Hash() int32 {
	return 31*s.ID + s.Max
}

// String returns "<id>_of_<max>".
func (s Slice) String() string {
	return fmt.Sprintf("%d_of_%d", s.ID, s.Max)
}

func compareInt32(a, b int32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
