// Package settings provides the property-bag configuration that travels with
// every partition definition. A Settings value is saved to Java-style
// .properties text on the producer side and loaded back on the worker side.
package settings

import (
	"fmt"
	"sort"
	"strconv"
)

// Well-known property keys.
const (
	KeyResource            = "es.resource"
	KeyNodes               = "es.nodes"
	KeyPort                = "es.port"
	KeyScrollSize          = "es.scroll.size"
	KeyScrollKeepAlive     = "es.scroll.keepalive"
	KeyMaxDocsPerPartition = "es.input.max.docs.per.partition"
	KeyQuery               = "es.query"
)

// Defaults applied by the typed getters when a key is unset.
const (
	DefaultNodes           = "localhost"
	DefaultPort            = 9200
	DefaultScrollSize      = 1000
	DefaultScrollKeepAlive = "5m"
)

// Settings is a string-to-string property bag.
// It is not safe for concurrent mutation.
type Settings struct {
	props map[string]string
}

// New returns empty settings; typed getters fall back to defaults.
func New() *Settings {
	return &Settings{props: make(map[string]string)}
}

// FromMap creates settings holding a copy of m.
func FromMap(m map[string]string) *Settings {
	s := New()
	for k, v := range m {
		s.props[k] = v
	}
	return s
}

// Get returns the raw value for key.
func (s *Settings) Get(key string) (string, bool) {
	v, ok := s.props[key]
	return v, ok
}

// GetOrDefault returns the value for key, or def when unset.
func (s *Settings) GetOrDefault(key, def string) string {
	if v, ok := s.props[key]; ok {
		return v
	}
	return def
}

// Set assigns a property and returns s for chaining.
func (s *Settings) Set(key, value string) *Settings {
	s.props[key] = value
	return s
}

// Keys returns all property keys in sorted order.
func (s *Settings) Keys() []string {
	keys := make([]string, 0, len(s.props))
	for k := range s.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of properties.
func (s *Settings) Len() int {
	return len(s.props)
}

// Copy returns an independent copy.
func (s *Settings) Copy() *Settings {
	return FromMap(s.props)
}

// AsMap returns a copy of the underlying properties.
func (s *Settings) AsMap() map[string]string {
	m := make(map[string]string, len(s.props))
	for k, v := range s.props {
		m[k] = v
	}
	return m
}

// Resource returns the target index (es.resource).
func (s *Settings) Resource() string {
	return s.GetOrDefault(KeyResource, "")
}

// Nodes returns the comma-separated node list (es.nodes).
func (s *Settings) Nodes() string {
	return s.GetOrDefault(KeyNodes, DefaultNodes)
}

// Port returns es.port, or DefaultPort when unset or unparsable.
func (s *Settings) Port() int {
	return s.intOrDefault(KeyPort, DefaultPort)
}

// ScrollSize returns es.scroll.size.
func (s *Settings) ScrollSize() int {
	return s.intOrDefault(KeyScrollSize, DefaultScrollSize)
}

// ScrollKeepAlive returns es.scroll.keepalive.
func (s *Settings) ScrollKeepAlive() string {
	return s.GetOrDefault(KeyScrollKeepAlive, DefaultScrollKeepAlive)
}

// MaxDocsPerPartition returns es.input.max.docs.per.partition. The boolean
// is false when the key is unset, in which case shards are not sliced.
func (s *Settings) MaxDocsPerPartition() (int64, bool, error) {
	v, ok := s.props[KeyMaxDocsPerPartition]
	if !ok || v == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("settings: invalid %s %q: %w", KeyMaxDocsPerPartition, v, err)
	}
	return n, true, nil
}

func (s *Settings) intOrDefault(key string, def int) int {
	v, ok := s.props[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
