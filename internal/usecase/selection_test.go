package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ContentPipeline/internal/domain"
)

type stubRanker struct {
	result []domain.Candidate
	err    error
	calls  int
}

func (s *stubRanker) Rank(context.Context, []domain.Candidate, int) ([]domain.Candidate, error) {
	s.calls++
	return s.result, s.err
}

func TestSelectRejectsNonPositiveK(t *testing.T) {
	t.Parallel()

	for _, k := range []int{0, -1} {
		_, err := Select(context.Background(), &stubRanker{}, []domain.Candidate{candidate("a")}, k)
		assert.ErrorIs(t, err, domain.ErrInvalidBatchSize)
	}
}

func TestSelectReturnsAllWhenFewerThanK(t *testing.T) {
	t.Parallel()

	ranker := &stubRanker{err: errBackend}
	in := []domain.Candidate{candidate("a"), candidate("b")}

	got, err := Select(context.Background(), ranker, in, 5)
	require.NoError(t, err)
	assert.Equal(t, in, got)
	assert.Zero(t, ranker.calls)

	got, err = Select(context.Background(), nil, nil, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSelectRankerFailureIsExplicit(t *testing.T) {
	t.Parallel()

	in := []domain.Candidate{candidate("a"), candidate("b"), candidate("c")}

	_, err := Select(context.Background(), &stubRanker{err: errBackend}, in, 2)
	assert.ErrorIs(t, err, errBackend)

	_, err = Select(context.Background(), &stubRanker{}, in, 2)
	assert.ErrorIs(t, err, domain.ErrEmptyRanking)

	_, err = Select(context.Background(), nil, in, 2)
	assert.ErrorIs(t, err, domain.ErrRankerUnavailable)
}

func TestSelectTruncatesToK(t *testing.T) {
	t.Parallel()

	in := []domain.Candidate{candidate("a"), candidate("b"), candidate("c")}
	ranker := &stubRanker{result: []domain.Candidate{in[2], in[0], in[1]}}

	got, err := Select(context.Background(), ranker, in, 2)
	require.NoError(t, err)
	assert.Equal(t, []domain.Candidate{in[2], in[0]}, got)
}

func TestRecencyRanker(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, time.November, 8, 0, 0, 0, 0, time.UTC)
	a, b, c := candidate("a"), candidate("b"), candidate("c")
	a.PublishedAt = base
	b.PublishedAt = base.Add(2 * time.Hour)
	c.PublishedAt = base.Add(time.Hour)
	in := []domain.Candidate{a, b, c}

	got, err := RecencyRanker{}.Rank(context.Background(), in, 2)
	require.NoError(t, err)
	assert.Equal(t, []domain.Candidate{b, c}, got)
	assert.Equal(t, a, in[0], "input must not be reordered")
}
