package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
)

type fakeCompleter struct {
	answer string
	err    error
	calls  int
	last   string
}

func (f *fakeCompleter) Complete(_ context.Context, _, user string, _ float32) (string, error) {
	f.calls++
	f.last = user
	return f.answer, f.err
}

func TestResearchNoneIsEmpty(t *testing.T) {
	t.Parallel()

	s := &Stages{llm: &fakeCompleter{answer: " none "}}
	got, err := s.Research(context.Background(), domain.Candidate{Title: "t"}, "text")
	require.NoError(t, err)
	assert.True(t, got.Empty())
}

func TestOptimizeTitlesParsesFencedArray(t *testing.T) {
	t.Parallel()

	s := &Stages{llm: &fakeCompleter{answer: "Here you go:\n```json\n[\"First\", \"  \", \"Second\",]\n```"}}
	got, err := s.OptimizeTitles(context.Background(), "t", "text")
	require.NoError(t, err)
	assert.Equal(t, []string{"First", "Second"}, got)
}

func TestWriteDraftKeepsTitleWhenModelOmitsIt(t *testing.T) {
	t.Parallel()

	s := &Stages{llm: &fakeCompleter{answer: `{"summary": "sum", "content": "## Body\ntext"}`}}
	got, err := s.WriteDraft(context.Background(), ports.DraftRequest{Title: "Chosen", Lead: "Lead."})
	require.NoError(t, err)
	assert.Equal(t, domain.Draft{Title: "Chosen", Summary: "sum", Content: "## Body\ntext"}, got)
}

func TestWriteDraftRequiresContent(t *testing.T) {
	t.Parallel()

	s := &Stages{llm: &fakeCompleter{answer: `{"title": "x"}`}}
	_, err := s.WriteDraft(context.Background(), ports.DraftRequest{Title: "Chosen"})
	require.Error(t, err)
}

func TestRewriteReturnsInputOnError(t *testing.T) {
	t.Parallel()

	in := domain.Draft{Title: "T", Summary: "S", Content: "C"}
	s := &Stages{llm: &fakeCompleter{err: errors.New("down")}}
	got, err := s.Enhance(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, in, got)
}

func TestIsSponsored(t *testing.T) {
	t.Parallel()

	s := &Stages{llm: &fakeCompleter{answer: `{"sponsored": true, "reason": "affiliate links"}`}}
	got, err := s.IsSponsored(context.Background(), domain.Candidate{}, "buy now")
	require.NoError(t, err)
	assert.True(t, got)
}

func TestComposeThreadLimits(t *testing.T) {
	t.Parallel()

	long := make([]byte, 400)
	for i := range long {
		long[i] = 'a'
	}
	answer := `["1","2","3","4","5","6","` + string(long) + `"]`
	s := &Stages{llm: &fakeCompleter{answer: answer}}

	got, err := s.ComposeThread(context.Background(), domain.PublishedArticle{})
	require.NoError(t, err)
	assert.Len(t, got, maxThreadPosts)

	s = &Stages{llm: &fakeCompleter{answer: `["` + string(long) + `"]`}}
	got, err = s.ComposeThread(context.Background(), domain.PublishedArticle{})
	require.NoError(t, err)
	assert.Len(t, got[0], maxPostChars)
}

func TestRankFiltersIndices(t *testing.T) {
	t.Parallel()

	now := time.Now()
	candidates := []domain.Candidate{
		{Title: "a", Link: "a", PublishedAt: now},
		{Title: "b", Link: "b", PublishedAt: now},
		{Title: "c", Link: "c", PublishedAt: now},
	}
	s := &Stages{llm: &fakeCompleter{answer: "[2, 9, 2, -1, 0, 1]"}}

	got, err := s.Rank(context.Background(), candidates, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].Link)
	assert.Equal(t, "a", got[1].Link)
}

func TestRankPropagatesQuota(t *testing.T) {
	t.Parallel()

	s := &Stages{llm: &fakeCompleter{err: domain.ErrQuotaExceeded}}
	_, err := s.Rank(context.Background(), []domain.Candidate{{Title: "a"}}, 1)
	require.ErrorIs(t, err, domain.ErrQuotaExceeded)
}
