package usecase

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
)

// Select returns at most k candidates. When there are no more than k it
// returns them all without consulting the ranker. It has no side effects.
func Select(ctx context.Context, ranker ports.Ranker, candidates []domain.Candidate, k int) ([]domain.Candidate, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", domain.ErrInvalidBatchSize, k)
	}
	if len(candidates) <= k {
		return slices.Clone(candidates), nil
	}
	if ranker == nil {
		return nil, domain.ErrRankerUnavailable
	}

	ranked, err := ranker.Rank(ctx, slices.Clone(candidates), k)
	if err != nil {
		return nil, fmt.Errorf("rank candidates: %w", err)
	}
	if len(ranked) == 0 {
		return nil, domain.ErrEmptyRanking
	}
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked, nil
}

// RecencyRanker prefers the most recently published candidates.
type RecencyRanker struct{}

var _ ports.Ranker = RecencyRanker{}

func (RecencyRanker) Rank(_ context.Context, candidates []domain.Candidate, k int) ([]domain.Candidate, error) {
	sorted := slices.Clone(candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PublishedAt.After(sorted[j].PublishedAt)
	})
	if k < len(sorted) {
		sorted = sorted[:k]
	}
	return sorted, nil
}
