// Package planner turns the shard layout of an index into partition
// definitions and spreads them across workers.
package planner

import (
	"context"
	"fmt"
	"log"
	"sort"

	serrors "github.com/shardsplit/shardsplit/internal/errors"
	"github.com/shardsplit/shardsplit/pkg/mapping"
	"github.com/shardsplit/shardsplit/pkg/settings"
	"github.com/shardsplit/shardsplit/pkg/split"
)

// ShardInfo describes one shard of an index and how many documents it holds.
type ShardInfo struct {
	Index   string `json:"index" yaml:"index"`
	ShardID int32  `json:"shard" yaml:"shard"`
	Docs    int64  `json:"docs" yaml:"docs"`
}

// ShardSource reports the shards that make up an index.
type ShardSource interface {
	Shards(ctx context.Context, index string) ([]ShardInfo, error)
}

// StaticShardSource serves a fixed shard table, typically loaded from config.
type StaticShardSource struct {
	shards []ShardInfo
}

// NewStaticShardSource creates a source over a copy of shards.
func NewStaticShardSource(shards []ShardInfo) *StaticShardSource {
	cp := make([]ShardInfo, len(shards))
	copy(cp, shards)
	return &StaticShardSource{shards: cp}
}

// Shards returns the shards belonging to index, ordered by shard id.
func (s *StaticShardSource) Shards(ctx context.Context, index string) ([]ShardInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []ShardInfo
	for _, sh := range s.shards {
		if sh.Index == index {
			out = append(out, sh)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShardID < out[j].ShardID })
	return out, nil
}

// Stats summarizes one planning run.
type Stats struct {
	Index          string
	Shards         int
	SlicedShards   int
	Definitions    int
	TotalDocs      int64
	MaxDocsPerPart int64
}

// Planner builds partition definitions for an index. Every definition
// carries the planner's settings and mapping so a worker can run it alone.
type Planner struct {
	source   ShardSource
	settings *settings.Settings
	mapping  *mapping.Field

	lastStats Stats
}

// New creates a planner. A nil settings is treated as default settings;
// a nil mapping leaves the mapping payload absent.
func New(source ShardSource, s *settings.Settings, m *mapping.Field) *Planner {
	if s == nil {
		s = settings.New()
	}
	return &Planner{source: source, settings: s.Copy(), mapping: m}
}

// Plan returns the sorted, deduplicated definitions for index. A shard with
// more documents than the configured per-partition maximum is split into
// docs/max slices; otherwise it becomes a single unsliced definition.
func (p *Planner) Plan(ctx context.Context, index string) ([]*split.PartitionDefinition, error) {
	if index == "" {
		return nil, serrors.NewValidationError(serrors.CodeInvalidIndex, "index must not be empty")
	}

	maxDocs, hasMax, err := p.settings.MaxDocsPerPartition()
	if err != nil {
		return nil, serrors.Wrap(serrors.ErrCategoryValidation, serrors.CodeInvalidConfig,
			"invalid "+settings.KeyMaxDocsPerPartition, err)
	}
	if !hasMax || maxDocs <= 0 {
		maxDocs = 0
	}

	shards, err := p.source.Shards(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("planner: failed to list shards for %s: %w", index, err)
	}
	if len(shards) == 0 {
		return nil, serrors.NewValidationError(serrors.CodeNoShards,
			fmt.Sprintf("index %s has no shards", index))
	}

	stats := Stats{Index: index, Shards: len(shards), MaxDocsPerPart: maxDocs}
	var defs []*split.PartitionDefinition
	for _, sh := range shards {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stats.TotalDocs += sh.Docs

		n := sliceCount(sh.Docs, maxDocs)
		if n <= 1 {
			d, err := split.New(index, sh.ShardID, nil, p.settings, p.mapping)
			if err != nil {
				return nil, err
			}
			defs = append(defs, d)
			continue
		}

		stats.SlicedShards++
		for i := int32(0); i < n; i++ {
			sl := split.NewSlice(i, n)
			d, err := split.New(index, sh.ShardID, &sl, p.settings, p.mapping)
			if err != nil {
				return nil, err
			}
			defs = append(defs, d)
		}
	}

	defs = split.Dedupe(defs)
	stats.Definitions = len(defs)
	p.lastStats = stats

	log.Printf("Planned %d definitions for index %s (%d shards, %d sliced, %d docs)",
		stats.Definitions, index, stats.Shards, stats.SlicedShards, stats.TotalDocs)
	return defs, nil
}

// LastStats returns the summary of the most recent successful Plan call.
func (p *Planner) LastStats() Stats {
	return p.lastStats
}

// sliceCount is max(1, docs/maxDocs), clamped to the int32 slice range.
// maxDocs <= 0 disables slicing.
func sliceCount(docs, maxDocs int64) int32 {
	if maxDocs <= 0 || docs <= maxDocs {
		return 1
	}
	n := docs / maxDocs
	if n > 1<<31-1 {
		n = 1<<31 - 1
	}
	return int32(n)
}
