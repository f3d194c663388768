package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
)

const (
	maxSourceChars = 12000
	maxThreadPosts = 6
	maxPostChars   = 280
)

type completer interface {
	Complete(ctx context.Context, system, user string, temperature float32) (string, error)
}

// Stages implements every generation-backed pipeline capability on top of
// one chat client.
type Stages struct {
	llm completer
}

var (
	_ ports.Researcher        = (*Stages)(nil)
	_ ports.TitleOptimizer    = (*Stages)(nil)
	_ ports.LeadWriter        = (*Stages)(nil)
	_ ports.Drafter           = (*Stages)(nil)
	_ ports.SEOEnhancer       = (*Stages)(nil)
	_ ports.StylePolisher     = (*Stages)(nil)
	_ ports.SponsorClassifier = (*Stages)(nil)
	_ ports.ThreadComposer    = (*Stages)(nil)
	_ ports.Ranker            = (*Stages)(nil)
)

// NewStages binds the stage prompts to a client.
func NewStages(client *Client) *Stages {
	return &Stages{llm: client}
}

// Research collects background facts. An answer of NONE yields an empty result.
func (s *Stages) Research(ctx context.Context, candidate domain.Candidate, text string) (domain.ResearchResult, error) {
	answer, err := s.llm.Complete(ctx, researchSystem, fmt.Sprintf(researchUser,
		candidate.Title, candidate.Summary, truncate(text, maxSourceChars)), 0.2)
	if err != nil {
		return domain.ResearchResult{}, err
	}
	if strings.EqualFold(strings.TrimSpace(answer), "NONE") {
		return domain.ResearchResult{}, nil
	}
	return domain.ResearchResult{Notes: answer}, nil
}

// OptimizeTitles returns title alternatives, best first.
func (s *Stages) OptimizeTitles(ctx context.Context, title, text string) ([]string, error) {
	answer, err := s.llm.Complete(ctx, titleSystem, fmt.Sprintf(titleUser, title, truncate(text, 3000)), 0.7)
	if err != nil {
		return nil, err
	}
	var titles []string
	if err := decodeArray(answer, &titles); err != nil {
		return nil, err
	}
	return nonEmpty(titles), nil
}

// WriteLead writes the opening paragraph.
func (s *Stages) WriteLead(ctx context.Context, title string, research domain.ResearchResult) (string, error) {
	return s.llm.Complete(ctx, leadSystem, fmt.Sprintf(leadUser, title, truncate(research.Notes, maxSourceChars)), 0.6)
}

// WriteDraft writes the article body in Markdown.
func (s *Stages) WriteDraft(ctx context.Context, req ports.DraftRequest) (domain.Draft, error) {
	answer, err := s.llm.Complete(ctx, draftSystem, fmt.Sprintf(draftUser,
		req.Title, req.Lead, truncate(req.Research.Notes, maxSourceChars), truncate(req.SourceText, maxSourceChars)), 0.6)
	if err != nil {
		return domain.Draft{}, err
	}

	var out draftJSON
	if err := decodeObject(answer, &out); err != nil {
		return domain.Draft{}, err
	}
	if strings.TrimSpace(out.Content) == "" {
		return domain.Draft{}, fmt.Errorf("draft has no content")
	}
	draft := domain.Draft{Title: req.Title, Summary: req.Lead, Content: out.Content}
	return out.mergeInto(draft), nil
}

// Enhance rewrites title, summary and headings for search.
func (s *Stages) Enhance(ctx context.Context, draft domain.Draft) (domain.Draft, error) {
	return s.rewrite(ctx, seoSystem, draft)
}

// Polish applies the house style.
func (s *Stages) Polish(ctx context.Context, draft domain.Draft) (domain.Draft, error) {
	return s.rewrite(ctx, styleSystem, draft)
}

func (s *Stages) rewrite(ctx context.Context, system string, draft domain.Draft) (domain.Draft, error) {
	answer, err := s.llm.Complete(ctx, system, fmt.Sprintf(rewriteUser, draft.Title, draft.Summary, draft.Content), 0.4)
	if err != nil {
		return draft, err
	}
	var out draftJSON
	if err := decodeObject(answer, &out); err != nil {
		return draft, err
	}
	return out.mergeInto(draft), nil
}

// IsSponsored flags advertorials and paid placements.
func (s *Stages) IsSponsored(ctx context.Context, candidate domain.Candidate, text string) (bool, error) {
	answer, err := s.llm.Complete(ctx, sponsorSystem, fmt.Sprintf(sponsorUser,
		candidate.Title, truncate(text, 4000)), 0)
	if err != nil {
		return false, err
	}
	var verdict struct {
		Sponsored bool   `json:"sponsored"`
		Reason    string `json:"reason"`
	}
	if err := decodeObject(answer, &verdict); err != nil {
		return false, err
	}
	return verdict.Sponsored, nil
}

// ComposeThread derives a short social thread from the published article.
func (s *Stages) ComposeThread(ctx context.Context, article domain.PublishedArticle) ([]string, error) {
	answer, err := s.llm.Complete(ctx, threadSystem, fmt.Sprintf(threadUser,
		article.Title, article.Summary, article.URL, truncate(article.Content, 6000)), 0.7)
	if err != nil {
		return nil, err
	}
	var posts []string
	if err := decodeArray(answer, &posts); err != nil {
		return nil, err
	}
	posts = nonEmpty(posts)
	if len(posts) > maxThreadPosts {
		posts = posts[:maxThreadPosts]
	}
	for i := range posts {
		posts[i] = truncate(posts[i], maxPostChars)
	}
	return posts, nil
}

// Rank asks the model to order candidates by newsworthiness and keeps k.
// Out-of-range and repeated indices are ignored.
func (s *Stages) Rank(ctx context.Context, candidates []domain.Candidate, k int) ([]domain.Candidate, error) {
	var list strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&list, "%d. %s | %s | %s\n", i, c.Title, c.PublishedAt.Format("2006-01-02 15:04"), truncate(c.Summary, 280))
	}

	answer, err := s.llm.Complete(ctx, rankSystem, fmt.Sprintf(rankUser, k, list.String()), 0)
	if err != nil {
		return nil, err
	}
	var indices []int
	if err := decodeArray(answer, &indices); err != nil {
		return nil, err
	}

	used := make(map[int]bool, len(indices))
	selected := make([]domain.Candidate, 0, k)
	for _, idx := range indices {
		if idx < 0 || idx >= len(candidates) || used[idx] {
			continue
		}
		used[idx] = true
		selected = append(selected, candidates[idx])
		if len(selected) == k {
			break
		}
	}
	return selected, nil
}

type draftJSON struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Content string `json:"content"`
}

// mergeInto keeps the previous value of every field the model left empty.
func (d draftJSON) mergeInto(draft domain.Draft) domain.Draft {
	if v := strings.TrimSpace(d.Title); v != "" {
		draft.Title = v
	}
	if v := strings.TrimSpace(d.Summary); v != "" {
		draft.Summary = v
	}
	if v := strings.TrimSpace(d.Content); v != "" {
		draft.Content = v
	}
	return draft
}

func nonEmpty(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}
