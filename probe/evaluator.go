package probe

import (
	"context"
	"sort"
	"strings"

	"github.com/fwojciec/autoprobe"
)

var _ autoprobe.Evaluator = MultiEvaluator(nil)

// MultiEvaluator dispatches a tree to the first evaluator that supports
// every selector type the tree uses.
type MultiEvaluator []autoprobe.Evaluator

// Evaluate evaluates tree with the first capable evaluator.
// Returns EINVALID if no single evaluator supports all selector types.
func (m MultiEvaluator) Evaluate(ctx context.Context, tree *autoprobe.PatternTree, doc *autoprobe.Document) (*autoprobe.Evaluation, error) {
	types := SelectorTypes(tree)
	for _, e := range m {
		if supportsAll(e, types) {
			return e.Evaluate(ctx, tree, doc)
		}
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return nil, autoprobe.Errorf(autoprobe.EINVALID, "no evaluator supports selector types %s", strings.Join(names, ", "))
}

// Supports reports whether any evaluator handles t.
func (m MultiEvaluator) Supports(t autoprobe.SelectorType) bool {
	for _, e := range m {
		if e.Supports(t) {
			return true
		}
	}
	return false
}

// SelectorTypes returns the distinct selector types used in tree, sorted.
func SelectorTypes(tree *autoprobe.PatternTree) []autoprobe.SelectorType {
	seen := make(map[autoprobe.SelectorType]bool)
	for _, n := range tree.Nodes {
		if n != nil && !n.Selector.IsBlank() {
			seen[n.Selector.Type] = true
		}
	}
	types := make([]autoprobe.SelectorType, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func supportsAll(e autoprobe.Evaluator, types []autoprobe.SelectorType) bool {
	for _, t := range types {
		if !e.Supports(t) {
			return false
		}
	}
	return true
}
