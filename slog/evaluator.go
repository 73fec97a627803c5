package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/autoprobe"
)

var _ autoprobe.Evaluator = (*LoggingEvaluator)(nil)

// LoggingEvaluator wraps an Evaluator and logs each evaluation.
type LoggingEvaluator struct {
	next   autoprobe.Evaluator
	logger *slog.Logger
}

// NewLoggingEvaluator creates a new LoggingEvaluator.
func NewLoggingEvaluator(next autoprobe.Evaluator, logger *slog.Logger) *LoggingEvaluator {
	return &LoggingEvaluator{next: next, logger: logger}
}

// Evaluate delegates to the wrapped evaluator and logs the record count,
// warnings and whether a next page was found.
func (e *LoggingEvaluator) Evaluate(ctx context.Context, tree *autoprobe.PatternTree, doc *autoprobe.Document) (eval *autoprobe.Evaluation, err error) {
	defer func(begin time.Time) {
		var records, warnings int
		var next string
		if eval != nil {
			records, warnings, next = len(eval.Records), len(eval.Warnings), eval.NextURL
		}
		level := slog.LevelInfo
		if err != nil {
			level = slog.LevelWarn
		}
		e.logger.Log(ctx, level, "evaluate",
			"pattern", tree.ID,
			"url", doc.URL,
			"records", records,
			"warnings", warnings,
			"next", next,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return e.next.Evaluate(ctx, tree, doc)
}

// Supports delegates to the wrapped evaluator.
func (e *LoggingEvaluator) Supports(t autoprobe.SelectorType) bool {
	return e.next.Supports(t)
}
