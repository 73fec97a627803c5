package slog_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/fwojciec/autoprobe"
	"github.com/fwojciec/autoprobe/mock"
	apslog "github.com/fwojciec/autoprobe/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingEvaluator_Evaluate(t *testing.T) {
	t.Parallel()

	t.Run("logs record and warning counts", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		inner := &mock.Evaluator{
			EvaluateFn: func(ctx context.Context, tree *autoprobe.PatternTree, doc *autoprobe.Document) (*autoprobe.Evaluation, error) {
				return &autoprobe.Evaluation{
					Records:  []*autoprobe.ExtractionRecord{{NodeID: "a"}, {NodeID: "b"}},
					Warnings: []string{"missing attribute"},
					NextURL:  "https://example.com/2",
				}, nil
			},
		}

		e := apslog.NewLoggingEvaluator(inner, logger)
		eval, err := e.Evaluate(context.Background(), &autoprobe.PatternTree{ID: "p1"}, &autoprobe.Document{URL: "https://example.com/1"})

		require.NoError(t, err)
		assert.Len(t, eval.Records, 2)
		output := buf.String()
		assert.Contains(t, output, "evaluate")
		assert.Contains(t, output, "pattern=p1")
		assert.Contains(t, output, "records=2")
		assert.Contains(t, output, "warnings=1")
		assert.Contains(t, output, "next=https://example.com/2")
	})

	t.Run("logs error on failure", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		inner := &mock.Evaluator{
			EvaluateFn: func(ctx context.Context, tree *autoprobe.PatternTree, doc *autoprobe.Document) (*autoprobe.Evaluation, error) {
				return nil, errors.New("bad selector")
			},
		}

		e := apslog.NewLoggingEvaluator(inner, logger)
		_, err := e.Evaluate(context.Background(), &autoprobe.PatternTree{ID: "p1"}, &autoprobe.Document{URL: "https://example.com"})

		require.Error(t, err)
		output := buf.String()
		assert.Contains(t, output, "level=WARN")
		assert.Contains(t, output, "err=\"bad selector\"")
	})
}

func TestLoggingEvaluator_Supports(t *testing.T) {
	t.Parallel()

	inner := &mock.Evaluator{
		SupportsFn: func(st autoprobe.SelectorType) bool { return st == autoprobe.SelectorCSS },
	}
	e := apslog.NewLoggingEvaluator(inner, slog.New(slog.DiscardHandler))

	assert.True(t, e.Supports(autoprobe.SelectorCSS))
	assert.False(t, e.Supports(autoprobe.SelectorXPath))
}
