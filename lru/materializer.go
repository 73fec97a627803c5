// Package lru memoizes materialization results in an in-memory LRU cache.
package lru

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/fwojciec/autoprobe"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSize is the number of results kept when no size is given.
const DefaultSize = 128

var _ autoprobe.Materializer = (*Materializer)(nil)

// Materializer caches the output of another Materializer keyed by a hash
// of the tree and records. Materialization is pure, so equal inputs share
// one result. Returned data is shared between callers and must not be
// modified.
type Materializer struct {
	next  autoprobe.Materializer
	cache *lru.Cache[uint64, result]
}

type result struct {
	data     autoprobe.PageData
	warnings []autoprobe.RecordWarning
}

// NewMaterializer wraps next with a cache of size entries. A nil next
// uses autoprobe.DefaultMaterializer.
func NewMaterializer(next autoprobe.Materializer, size int) (*Materializer, error) {
	if next == nil {
		next = autoprobe.DefaultMaterializer
	}
	if size <= 0 {
		size = DefaultSize
	}
	cache, err := lru.New[uint64, result](size)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}
	return &Materializer{next: next, cache: cache}, nil
}

// Materialize returns the cached result for tree and records, computing it
// on a miss. Inputs that cannot be hashed bypass the cache.
func (m *Materializer) Materialize(tree *autoprobe.PatternTree, records []*autoprobe.ExtractionRecord) (autoprobe.PageData, []autoprobe.RecordWarning) {
	key, err := Key(tree, records)
	if err != nil {
		return m.next.Materialize(tree, records)
	}
	if r, ok := m.cache.Get(key); ok {
		return r.data, r.warnings
	}
	data, warnings := m.next.Materialize(tree, records)
	m.cache.Add(key, result{data: data, warnings: warnings})
	return data, warnings
}

// Len returns the number of cached results.
func (m *Materializer) Len() int {
	return m.cache.Len()
}

// Key hashes everything materialization depends on: the tree's root and
// nodes, and each record's sequence, node, path and value.
func Key(tree *autoprobe.PatternTree, records []*autoprobe.ExtractionRecord) (uint64, error) {
	h := xxhash.New()
	enc := json.NewEncoder(h)

	if tree == nil {
		tree = &autoprobe.PatternTree{}
	}
	if err := enc.Encode(struct {
		RootID string                   `json:"root_id"`
		Nodes  []*autoprobe.PatternNode `json:"nodes"`
	}{tree.RootID, tree.Nodes}); err != nil {
		return 0, err
	}

	for _, r := range records {
		if r == nil {
			_, _ = h.WriteString("null\n")
			continue
		}
		if err := enc.Encode(struct {
			Seq   int64  `json:"seq"`
			Node  string `json:"node"`
			Path  []int  `json:"path"`
			Value any    `json:"value"`
		}{r.Seq, r.NodeID, r.InstancePath, r.Value}); err != nil {
			return 0, err
		}
	}
	return h.Sum64(), nil
}
