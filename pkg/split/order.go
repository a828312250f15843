package split

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf16"
)

// Compare orders definitions by index, then shard, then slice. A definition
// without a slice sorts before any sliced definition of the same shard.
// Returns -1, 0 or 1; payloads are ignored. A nil definition sorts before
// every non-nil one, matching Equal's treatment of nil.
func (d *PartitionDefinition) Compare(o *PartitionDefinition) int {
	switch {
	case d == nil && o == nil:
		return 0
	case d == nil:
		return -1
	case o == nil:
		return 1
	}
	if c := strings.Compare(d.index, o.index); c != 0 {
		return c
	}
	if c := compareInt32(d.shardID, o.shardID); c != 0 {
		return c
	}
	switch {
	case d.slice == nil && o.slice == nil:
		return 0
	case d.slice == nil:
		return -1
	case o.slice == nil:
		return 1
	default:
		return d.slice.Compare(*o.slice)
	}
}

// Equal reports whether d and o share index, shard and slice.
// Settings and mapping payloads are not compared.
func (d *PartitionDefinition) Equal(o *PartitionDefinition) bool {
	if d == o {
		return true
	}
	if d == nil || o == nil {
		return false
	}
	if d.shardID != o.shardID || d.index != o.index {
		return false
	}
	if d.slice == nil || o.slice == nil {
		return d.slice == nil && o.slice == nil
	}
	return d.slice.Equal(*o.slice)
}

// Hash is consistent with Equal and matches the value historical producers
// compute: 31*(31*hash(index) + shard) + hash(slice), with int32 wraparound.
func (d *PartitionDefinition) Hash() int32 {
	if d == nil {
		return 0
	}
	h := javaStringHash(d.index)
	h = 31*h + d.shardID
	var sh int32
	if d.slice != nil {
		sh = d.slice.Hash()
	}
	return 31*h + sh
}

// Key returns the identity key as text: "<index>/<shard>" or
// "<index>/<shard>/<id>_of_<max>". Equal definitions have equal keys.
func (d *PartitionDefinition) Key() string {
	if d.slice == nil {
		return fmt.Sprintf("%s/%d", d.index, d.shardID)
	}
	return fmt.Sprintf("%s/%d/%s", d.index, d.shardID, d.slice)
}

// String returns the display form. Slice fields are printed only when the
// definition has a slice.
func (d *PartitionDefinition) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "SlicePartition [index=%s,shardId=%d", d.index, d.shardID)
	if d.slice != nil {
		fmt.Fprintf(&b, ",id=%d,max=%d", d.slice.ID, d.slice.Max)
	}
	b.WriteByte(']')
	return b.String()
}

// Sort orders defs in place by Compare.
func Sort(defs []*PartitionDefinition) {
	sort.SliceStable(defs, func(i, j int) bool {
		return defs[i].Compare(defs[j]) < 0
	})
}

// Dedupe returns defs sorted with duplicate identities removed. The first
// occurrence of each identity wins, payloads included. The input slice is
// not modified.
func Dedupe(defs []*PartitionDefinition) []*PartitionDefinition {
	out := make([]*PartitionDefinition, len(defs))
	copy(out, defs)
	Sort(out)

	n := 0
	for i, d := range out {
		if i > 0 && d.Equal(out[n-1]) {
			continue
		}
		out[n] = d
		n++
	}
	return out[:n]
}

// javaStringHash hashes the UTF-16 code units of s as s[0]*31^(n-1) + ... + s[n-1].
func javaStringHash(s string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = 31*h + int32(u)
	}
	return h
}
