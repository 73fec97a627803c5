package mock

import (
	"context"

	"github.com/fwojciec/autoprobe"
)

var _ autoprobe.SnapshotStore = (*SnapshotStore)(nil)

// SnapshotStore is a mock implementation of autoprobe.SnapshotStore.
type SnapshotStore struct {
	SaveFn func(ctx context.Context, taskID string, n int, content string) (string, error)
	LoadFn func(ctx context.Context, ref string) (string, error)
}

func (s *SnapshotStore) Save(ctx context.Context, taskID string, n int, content string) (string, error) {
	return s.SaveFn(ctx, taskID, n, content)
}

func (s *SnapshotStore) Load(ctx context.Context, ref string) (string, error) {
	return s.LoadFn(ctx, ref)
}

var _ autoprobe.GeometryCollector = (*GeometryCollector)(nil)

// GeometryCollector is a mock implementation of autoprobe.GeometryCollector.
type GeometryCollector struct {
	CollectFn func(ctx context.Context, tree *autoprobe.PatternTree, url string) (autoprobe.GeometryHints, error)
}

func (g *GeometryCollector) Collect(ctx context.Context, tree *autoprobe.PatternTree, url string) (autoprobe.GeometryHints, error) {
	return g.CollectFn(ctx, tree, url)
}
