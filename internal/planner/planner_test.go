package planner

import (
	"context"
	"errors"
	"testing"

	serrors "github.com/shardsplit/shardsplit/internal/errors"
	"github.com/shardsplit/shardsplit/pkg/mapping"
	"github.com/shardsplit/shardsplit/pkg/settings"
	"github.com/shardsplit/shardsplit/pkg/split"
)

func testShards() []ShardInfo {
	return []ShardInfo{
		{Index: "logs", ShardID: 1, Docs: 2500},
		{Index: "logs", ShardID: 0, Docs: 400},
		{Index: "other", ShardID: 0, Docs: 10},
	}
}

func keys(defs []*split.PartitionDefinition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Key()
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPlan_SlicesLargeShards(t *testing.T) {
	s := settings.New().Set(settings.KeyMaxDocsPerPartition, "1000")
	p := New(NewStaticShardSource(testShards()), s, nil)

	defs, err := p.Plan(context.Background(), "logs")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	want := []string{"logs/0", "logs/1/0_of_2", "logs/1/1_of_2"}
	if got := keys(defs); !equalStrings(got, want) {
		t.Errorf("Plan keys = %v, want %v", got, want)
	}

	stats := p.LastStats()
	if stats.Shards != 2 || stats.SlicedShards != 1 || stats.Definitions != 3 || stats.TotalDocs != 2900 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestPlan_NoMaxDocsMeansWholeShards(t *testing.T) {
	p := New(NewStaticShardSource(testShards()), nil, nil)

	defs, err := p.Plan(context.Background(), "logs")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	want := []string{"logs/0", "logs/1"}
	if got := keys(defs); !equalStrings(got, want) {
		t.Errorf("Plan keys = %v, want %v", got, want)
	}
	for _, d := range defs {
		if d.HasSlice() {
			t.Errorf("%s should not be sliced", d)
		}
	}
}

func TestPlan_CarriesPayloads(t *testing.T) {
	s := settings.New().Set(settings.KeyResource, "logs")
	m := mapping.NewObject("logs", mapping.NewField("msg", mapping.TypeText))
	p := New(NewStaticShardSource(testShards()), s, &m)

	defs, err := p.Plan(context.Background(), "logs")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	for _, d := range defs {
		loaded, err := d.Settings()
		if err != nil {
			t.Fatalf("Settings failed: %v", err)
		}
		if loaded.Resource() != "logs" {
			t.Errorf("%s: resource = %q, want logs", d, loaded.Resource())
		}
		if _, ok := d.SerializedMapping(); !ok {
			t.Errorf("%s: mapping payload missing", d)
		}
	}
}

func TestPlan_Errors(t *testing.T) {
	ctx := context.Background()
	p := New(NewStaticShardSource(testShards()), nil, nil)

	if _, err := p.Plan(ctx, ""); serrors.GetCode(err) != serrors.CodeInvalidIndex {
		t.Errorf("empty index: expected INVALID_INDEX, got %v", err)
	}
	if _, err := p.Plan(ctx, "missing"); serrors.GetCode(err) != serrors.CodeNoShards {
		t.Errorf("unknown index: expected NO_SHARDS, got %v", err)
	}

	bad := New(NewStaticShardSource(testShards()),
		settings.New().Set(settings.KeyMaxDocsPerPartition, "lots"), nil)
	if _, err := bad.Plan(ctx, "logs"); serrors.GetCode(err) != serrors.CodeInvalidConfig {
		t.Errorf("bad max docs: expected INVALID_CONFIG, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := p.Plan(cancelled, "logs"); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled context: expected context.Canceled, got %v", err)
	}
}

func TestSliceCount(t *testing.T) {
	tests := []struct {
		docs, max int64
		want      int32
	}{
		{0, 100, 1},
		{100, 100, 1},
		{199, 100, 1},
		{200, 100, 2},
		{1050, 100, 10},
		{1 << 40, 0, 1},
		{1 << 62, 1, 1<<31 - 1},
	}
	for _, tt := range tests {
		if got := sliceCount(tt.docs, tt.max); got != tt.want {
			t.Errorf("sliceCount(%d, %d) = %d, want %d", tt.docs, tt.max, got, tt.want)
		}
	}
}
