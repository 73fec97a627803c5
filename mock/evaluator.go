package mock

import (
	"context"

	"github.com/fwojciec/autoprobe"
)

var _ autoprobe.Evaluator = (*Evaluator)(nil)

// Evaluator is a mock implementation of autoprobe.Evaluator.
type Evaluator struct {
	EvaluateFn func(ctx context.Context, tree *autoprobe.PatternTree, doc *autoprobe.Document) (*autoprobe.Evaluation, error)
	SupportsFn func(t autoprobe.SelectorType) bool
}

func (e *Evaluator) Evaluate(ctx context.Context, tree *autoprobe.PatternTree, doc *autoprobe.Document) (*autoprobe.Evaluation, error) {
	return e.EvaluateFn(ctx, tree, doc)
}

func (e *Evaluator) Supports(t autoprobe.SelectorType) bool {
	return e.SupportsFn(t)
}

var _ autoprobe.Materializer = (*Materializer)(nil)

// Materializer is a mock implementation of autoprobe.Materializer.
type Materializer struct {
	MaterializeFn func(tree *autoprobe.PatternTree, records []*autoprobe.ExtractionRecord) (autoprobe.PageData, []autoprobe.RecordWarning)
}

func (m *Materializer) Materialize(tree *autoprobe.PatternTree, records []*autoprobe.ExtractionRecord) (autoprobe.PageData, []autoprobe.RecordWarning) {
	return m.MaterializeFn(tree, records)
}
