package probe_test

import (
	"context"
	"testing"

	"github.com/fwojciec/autoprobe"
	"github.com/fwojciec/autoprobe/mock"
	"github.com/fwojciec/autoprobe/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evaluatorFor(name string, types ...autoprobe.SelectorType) *mock.Evaluator {
	return &mock.Evaluator{
		EvaluateFn: func(context.Context, *autoprobe.PatternTree, *autoprobe.Document) (*autoprobe.Evaluation, error) {
			return &autoprobe.Evaluation{Warnings: []string{name}}, nil
		},
		SupportsFn: func(t autoprobe.SelectorType) bool {
			for _, s := range types {
				if s == t {
					return true
				}
			}
			return false
		},
	}
}

func TestMultiEvaluator(t *testing.T) {
	t.Parallel()

	multi := probe.MultiEvaluator{
		evaluatorFor("html", autoprobe.SelectorCSS, autoprobe.SelectorRegex),
		evaluatorFor("xml", autoprobe.SelectorXPath, autoprobe.SelectorRegex),
	}

	t.Run("picks the first evaluator supporting every selector", func(t *testing.T) {
		t.Parallel()

		tree := autoprobe.NewPatternTree("t", catalogSpec())

		eval, err := multi.Evaluate(context.Background(), tree, &autoprobe.Document{})

		require.NoError(t, err)
		assert.Equal(t, []string{"html"}, eval.Warnings)
	})

	t.Run("falls through to later evaluators", func(t *testing.T) {
		t.Parallel()

		tree := autoprobe.NewPatternTree("t", catalogSpec())
		for _, n := range tree.Nodes {
			if n.Selector != nil {
				n.Selector.Type = autoprobe.SelectorXPath
			}
		}

		eval, err := multi.Evaluate(context.Background(), tree, &autoprobe.Document{})

		require.NoError(t, err)
		assert.Equal(t, []string{"xml"}, eval.Warnings)
	})

	t.Run("rejects trees mixing unsupported selector types", func(t *testing.T) {
		t.Parallel()

		tree := autoprobe.NewPatternTree("t", catalogSpec())
		tree.Node(titleID).Selector.Type = autoprobe.SelectorXPath

		_, err := multi.Evaluate(context.Background(), tree, &autoprobe.Document{})

		assert.Equal(t, autoprobe.EINVALID, autoprobe.ErrorCode(err))
		assert.Contains(t, autoprobe.ErrorMessage(err), "css, xpath")
	})

	t.Run("supports the union of selector types", func(t *testing.T) {
		t.Parallel()

		assert.True(t, multi.Supports(autoprobe.SelectorXPath))
		assert.True(t, multi.Supports(autoprobe.SelectorCSS))
		assert.False(t, multi.Supports("jsonpath"))
	})
}

func TestSelectorTypes(t *testing.T) {
	t.Parallel()

	tree := autoprobe.NewPatternTree("t", catalogSpec())
	tree.Node(titleID).Selector.Type = autoprobe.SelectorRegex

	assert.Equal(t, []autoprobe.SelectorType{autoprobe.SelectorCSS, autoprobe.SelectorRegex}, probe.SelectorTypes(tree))
}
