package autoprobe

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// PageData is a materialized object. Field, content and action nodes map
// to scalars; list nodes map to []PageData.
type PageData map[string]any

type absentValue struct{}

func (absentValue) MarshalJSON() ([]byte, error) { return []byte("null"), nil }
func (absentValue) MarshalYAML() (any, error)    { return nil, nil }
func (absentValue) String() string               { return "<absent>" }

// Absent marks a scalar node for which no record matched and no default is
// defined. It encodes as null.
var Absent any = absentValue{}

// IsAbsent reports whether v is the Absent marker.
func IsAbsent(v any) bool {
	_, ok := v.(absentValue)
	return ok
}

// Record warning kinds.
const (
	WarnOrphanRecord    = "orphan_record"
	WarnPathLength      = "path_length_mismatch"
	WarnDuplicateRecord = "duplicate_record"
	WarnContainerRecord = "container_record"
	WarnInvalidRecord   = "invalid_record"
)

// RecordWarning reports a record the materializer ignored or had to
// arbitrate. Warnings never stop materialization.
type RecordWarning struct {
	Kind         string `json:"kind"`
	NodeID       string `json:"node_id"`
	InstancePath []int  `json:"instance_path"`
	Message      string `json:"message"`
}

// Materializer turns a tree and its records into nested data.
type Materializer interface {
	Materialize(tree *PatternTree, records []*ExtractionRecord) (PageData, []RecordWarning)
}

// MaterializerFunc adapts a function to the Materializer interface.
type MaterializerFunc func(tree *PatternTree, records []*ExtractionRecord) (PageData, []RecordWarning)

// Materialize calls f(tree, records).
func (f MaterializerFunc) Materialize(tree *PatternTree, records []*ExtractionRecord) (PageData, []RecordWarning) {
	return f(tree, records)
}

// DefaultMaterializer is the uncached materializer.
var DefaultMaterializer Materializer = MaterializerFunc(Materialize)

// Materialize rebuilds records into data shaped like tree. It is pure and
// total: missing values become defaults or Absent, lists with no instances
// become empty slices, and list elements are ordered by instance index
// regardless of record order.
//
// When several records share a node and instance path, the lowest Seq
// wins, then the smallest value, so the result does not depend on the
// order of records.
func Materialize(tree *PatternTree, records []*ExtractionRecord) (PageData, []RecordWarning) {
	m := newMaterializer(tree)
	for _, r := range records {
		m.add(r)
	}
	m.warnDuplicates()

	var out PageData
	if root := m.nodes[tree.RootID]; root != nil {
		out = m.object(root, nil, 0)
	} else {
		out = PageData{}
	}

	slices.SortFunc(m.warnings, func(a, b RecordWarning) int {
		return cmp.Or(
			cmp.Compare(a.NodeID, b.NodeID),
			slices.Compare(a.InstancePath, b.InstancePath),
			cmp.Compare(a.Kind, b.Kind),
			cmp.Compare(a.Message, b.Message),
		)
	})
	return out, m.warnings
}

type materializer struct {
	nodes map[string]*PatternNode

	// lists holds the list ancestors of each reachable node, root first.
	lists map[string][]string

	// values maps node id, then encoded instance path, to the winning record.
	values map[string]map[string]*slot

	// instances maps list id, then the encoded path of the list itself, to
	// the indices seen at that list's depth.
	instances map[string]map[string]map[int]struct{}

	warnings []RecordWarning
}

// slot holds the winning record for one node instance and how many
// records competed for it.
type slot struct {
	record *ExtractionRecord
	count  int
}

func newMaterializer(tree *PatternTree) *materializer {
	m := &materializer{
		nodes:     tree.index(),
		lists:     make(map[string][]string, len(tree.Nodes)),
		values:    make(map[string]map[string]*slot),
		instances: make(map[string]map[string]map[int]struct{}),
	}

	// Breadth-first from the root; each node is visited once.
	if _, ok := m.nodes[tree.RootID]; ok {
		m.lists[tree.RootID] = nil
		queue := []string{tree.RootID}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			n := m.nodes[id]
			above := m.lists[id]
			if n.Type == NodeList {
				above = append(slices.Clip(above), id)
			}
			for _, childID := range n.Children {
				if _, ok := m.nodes[childID]; !ok {
					continue
				}
				if _, seen := m.lists[childID]; seen {
					continue
				}
				m.lists[childID] = above
				queue = append(queue, childID)
			}
		}
	}
	return m
}

func (m *materializer) warn(kind string, r *ExtractionRecord, format string, args ...any) {
	m.warnings = append(m.warnings, RecordWarning{
		Kind:         kind,
		NodeID:       r.NodeID,
		InstancePath: slices.Clone(r.InstancePath),
		Message:      fmt.Sprintf(format, args...),
	})
}

func (m *materializer) add(r *ExtractionRecord) {
	if r == nil {
		return
	}
	n, ok := m.nodes[r.NodeID]
	lists, reachable := m.lists[r.NodeID]
	if !ok || !reachable {
		m.warn(WarnOrphanRecord, r, "pattern node %q is not part of the tree", r.NodeID)
		return
	}
	if len(r.InstancePath) != len(lists) {
		m.warn(WarnPathLength, r, "instance path has %d indices, node is inside %d lists", len(r.InstancePath), len(lists))
		return
	}
	for _, i := range r.InstancePath {
		if i < 0 {
			m.warn(WarnInvalidRecord, r, "negative instance index %d", i)
			return
		}
	}

	var value Value
	switch n.Type {
	case NodeField, NodeContent, NodeAction:
		v, err := NormalizeValue(r.Value)
		if err != nil {
			m.warn(WarnInvalidRecord, r, "%s", ErrorMessage(err))
			return
		}
		value = v
	case NodeList:
		m.warn(WarnContainerRecord, r, "records for list nodes are ignored")
		return
	}

	for depth, listID := range lists {
		byParent, ok := m.instances[listID]
		if !ok {
			byParent = make(map[string]map[int]struct{})
			m.instances[listID] = byParent
		}
		key := pathKey(r.InstancePath[:depth])
		set, ok := byParent[key]
		if !ok {
			set = make(map[int]struct{})
			byParent[key] = set
		}
		set[r.InstancePath[depth]] = struct{}{}
	}

	// list-item records only establish instances.
	if n.Type == NodeListItem {
		return
	}

	byPath, ok := m.values[r.NodeID]
	if !ok {
		byPath = make(map[string]*slot)
		m.values[r.NodeID] = byPath
	}
	key := pathKey(r.InstancePath)
	candidate := &ExtractionRecord{Seq: r.Seq, TaskID: r.TaskID, NodeID: r.NodeID, InstancePath: r.InstancePath, Value: value}
	s, ok := byPath[key]
	if !ok {
		byPath[key] = &slot{record: candidate, count: 1}
		return
	}
	s.count++
	if recordLess(candidate, s.record) {
		s.record = candidate
	}
}

// warnDuplicates reports every node instance that received more than one
// record. The message depends only on the winner and the count.
func (m *materializer) warnDuplicates() {
	for _, byPath := range m.values {
		for _, s := range byPath {
			if s.count > 1 {
				m.warn(WarnDuplicateRecord, s.record, "%d records for one instance, kept %s", s.count, canonicalValue(s.record.Value))
			}
		}
	}
}

func recordLess(a, b *ExtractionRecord) bool {
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return canonicalValue(a.Value) < canonicalValue(b.Value)
}

func (m *materializer) object(item *PatternNode, path []int, depth int) PageData {
	obj := make(PageData, len(item.Children))
	if depth > len(m.nodes) {
		return obj
	}
	for _, childID := range item.Children {
		child, ok := m.nodes[childID]
		if !ok {
			continue
		}
		obj[child.Name] = m.value(child, path, depth+1)
	}
	return obj
}

func (m *materializer) value(n *PatternNode, path []int, depth int) any {
	switch n.Type {
	case NodeField, NodeContent, NodeAction:
		if s, ok := m.values[n.ID][pathKey(path)]; ok {
			return s.record.Value
		}
		if v, ok := n.Default(); ok {
			return v
		}
		return Absent
	case NodeList:
		out := []PageData{}
		item := m.itemOf(n)
		if item == nil {
			return out
		}
		set := m.instances[n.ID][pathKey(path)]
		indices := make([]int, 0, len(set))
		for i := range set {
			indices = append(indices, i)
		}
		slices.Sort(indices)
		for _, i := range indices {
			childPath := append(slices.Clip(path), i)
			out = append(out, m.object(item, childPath, depth+1))
		}
		return out
	case NodeListItem:
		return m.object(n, path, depth)
	default:
		return Absent
	}
}

func (m *materializer) itemOf(list *PatternNode) *PatternNode {
	for _, childID := range list.Children {
		if child, ok := m.nodes[childID]; ok && child.Type == NodeListItem {
			return child
		}
	}
	return nil
}

func pathKey(path []int) string {
	if len(path) == 0 {
		return ""
	}
	var b strings.Builder
	for i, v := range path {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(v))
	}
	return b.String()
}
