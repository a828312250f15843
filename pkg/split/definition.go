// Package split defines PartitionDefinition, the unit of work handed to a
// worker: one shard of one index, optionally narrowed to a slice of that
// shard, together with the settings and mapping payloads the worker needs to
// run it on its own.
//
// Definitions are immutable. Their identity is (index, shard, slice); the
// settings and mapping payloads ride along but never take part in equality,
// hashing or ordering.
package split

import (
	"fmt"

	"github.com/shardsplit/shardsplit/pkg/mapping"
	"github.com/shardsplit/shardsplit/pkg/settings"
)

// PartitionDefinition describes one logical split of a query.
type PartitionDefinition struct {
	index              string
	shardID            int32
	slice              *Slice
	serializedSettings *string
	serializedMapping  *string
}

// New builds a definition from live settings and mapping objects. Settings
// are saved to properties text and the mapping is serialized to base64.
// A nil settings or mapping leaves the corresponding payload absent.
func New(index string, shardID int32, slice *Slice, s *settings.Settings, m *mapping.Field) (*PartitionDefinition, error) {
	var serializedSettings, serializedMapping *string
	if s != nil {
		saved := s.Save()
		serializedSettings = &saved
	}
	if m != nil {
		encoded, err := m.SerializeToBase64()
		if err != nil {
			return nil, fmt.Errorf("split: failed to serialize mapping: %w", err)
		}
		serializedMapping = &encoded
	}
	return NewFromPayloads(index, shardID, slice, serializedSettings, serializedMapping), nil
}

// NewFromPayloads builds a definition from already-serialized payloads.
// The slice and both payloads are copied; nil means absent.
func NewFromPayloads(index string, shardID int32, slice *Slice, serializedSettings, serializedMapping *string) *PartitionDefinition {
	return &PartitionDefinition{
		index:              index,
		shardID:            shardID,
		slice:              copySlice(slice),
		serializedSettings: copyString(serializedSettings),
		serializedMapping:  copyString(serializedMapping),
	}
}

// Index returns the target index name.
func (d *PartitionDefinition) Index() string {
	return d.index
}

// ShardID returns the shard within the index.
func (d *PartitionDefinition) ShardID() int32 {
	return d.shardID
}

// HasSlice reports whether the shard is subdivided.
func (d *PartitionDefinition) HasSlice() bool {
	return d.slice != nil
}

// Slice returns the slice and true, or the zero Slice and false when the
// whole shard is covered.
func (d *PartitionDefinition) Slice() (Slice, bool) {
	if d.slice == nil {
		return Slice{}, false
	}
	return *d.slice, true
}

// SerializedSettings returns the opaque settings payload, if any.
func (d *PartitionDefinition) SerializedSettings() (string, bool) {
	if d.serializedSettings == nil {
		return "", false
	}
	return *d.serializedSettings, true
}

// SerializedMapping returns the opaque mapping payload, if any.
func (d *PartitionDefinition) SerializedMapping() (string, bool) {
	if d.serializedMapping == nil {
		return "", false
	}
	return *d.serializedMapping, true
}

// Settings reconstructs live settings from the settings payload. Without a
// payload it returns fresh default settings, never nil.
func (d *PartitionDefinition) Settings() (*settings.Settings, error) {
	if d.serializedSettings == nil {
		return settings.New(), nil
	}
	s, err := settings.Load(*d.serializedSettings)
	if err != nil {
		return nil, fmt.Errorf("split: failed to load settings for %s: %w", d.Key(), err)
	}
	return s, nil
}

func copySlice(s *Slice) *Slice {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
