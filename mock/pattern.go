package mock

import (
	"context"

	"github.com/fwojciec/autoprobe"
)

var _ autoprobe.PatternService = (*PatternService)(nil)

// PatternService is a mock implementation of autoprobe.PatternService.
type PatternService struct {
	CreatePatternFn   func(ctx context.Context, tree *autoprobe.PatternTree) error
	FindPatternByIDFn func(ctx context.Context, id string) (*autoprobe.PatternTree, error)
	FindPatternsFn    func(ctx context.Context, filter autoprobe.PatternFilter) ([]*autoprobe.PatternTree, error)
	UpdatePatternFn   func(ctx context.Context, id string, upd autoprobe.PatternUpdate) (*autoprobe.PatternTree, error)
	DeletePatternFn   func(ctx context.Context, id string) error
}

func (s *PatternService) CreatePattern(ctx context.Context, tree *autoprobe.PatternTree) error {
	return s.CreatePatternFn(ctx, tree)
}

func (s *PatternService) FindPatternByID(ctx context.Context, id string) (*autoprobe.PatternTree, error) {
	return s.FindPatternByIDFn(ctx, id)
}

func (s *PatternService) FindPatterns(ctx context.Context, filter autoprobe.PatternFilter) ([]*autoprobe.PatternTree, error) {
	return s.FindPatternsFn(ctx, filter)
}

func (s *PatternService) UpdatePattern(ctx context.Context, id string, upd autoprobe.PatternUpdate) (*autoprobe.PatternTree, error) {
	return s.UpdatePatternFn(ctx, id, upd)
}

func (s *PatternService) DeletePattern(ctx context.Context, id string) error {
	return s.DeletePatternFn(ctx, id)
}
