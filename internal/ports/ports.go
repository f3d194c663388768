package ports

import (
	"context"
	"time"

	"ContentPipeline/internal/domain"
)

// CandidateSource pulls fresh candidates from upstream feeds.
type CandidateSource interface {
	Fetch(ctx context.Context) ([]domain.Candidate, error)
}

// Ranker orders candidates by relevance and returns at most k of them.
type Ranker interface {
	Rank(ctx context.Context, candidates []domain.Candidate, k int) ([]domain.Candidate, error)
}

// Ledger records which source links were accepted for processing.
// Claim must be atomic: for one link it returns true exactly once.
type Ledger interface {
	Claim(ctx context.Context, link string) (bool, error)
}

// DuplicateDetector answers whether equivalent content was already published.
type DuplicateDetector interface {
	Exists(ctx context.Context, title, summary string) (bool, error)
	Add(ctx context.Context, title, summary string) error
}

// Scraper retrieves the full text behind a candidate link.
type Scraper interface {
	Scrape(ctx context.Context, link string) (domain.ScrapedContent, error)
}

// SponsorClassifier flags paid or promotional content.
type SponsorClassifier interface {
	IsSponsored(ctx context.Context, candidate domain.Candidate, text string) (bool, error)
}

// Researcher gathers background material for a candidate.
type Researcher interface {
	Research(ctx context.Context, candidate domain.Candidate, text string) (domain.ResearchResult, error)
}

// TitleOptimizer proposes ranked title alternatives, best first.
type TitleOptimizer interface {
	OptimizeTitles(ctx context.Context, title, text string) ([]string, error)
}

// LeadWriter writes the opening paragraph.
type LeadWriter interface {
	WriteLead(ctx context.Context, title string, research domain.ResearchResult) (string, error)
}

// DraftRequest carries everything the drafter may use.
type DraftRequest struct {
	Candidate  domain.Candidate
	Title      string
	Lead       string
	SourceText string
	Research   domain.ResearchResult
}

// Drafter produces the article body.
type Drafter interface {
	WriteDraft(ctx context.Context, req DraftRequest) (domain.Draft, error)
}

// SEOEnhancer rewrites a draft for search visibility.
type SEOEnhancer interface {
	Enhance(ctx context.Context, draft domain.Draft) (domain.Draft, error)
}

// StylePolisher applies the house style to a draft.
type StylePolisher interface {
	Polish(ctx context.Context, draft domain.Draft) (domain.Draft, error)
}

// RelatedLinker inserts links to related articles of our own site.
type RelatedLinker interface {
	InsertLinks(ctx context.Context, draft domain.Draft) (domain.Draft, error)
}

// CoverSelector picks a cover image reference for a draft.
type CoverSelector interface {
	SelectCover(ctx context.Context, draft domain.Draft) (string, error)
}

// Publisher persists the article in the external content store.
type Publisher interface {
	Publish(ctx context.Context, draft domain.Draft, cover string, publishedAt time.Time) (domain.PublishedArticle, error)
}

// SearchIndexer makes a published article searchable.
type SearchIndexer interface {
	Index(ctx context.Context, article domain.PublishedArticle) error
}

// ThreadComposer derives a short sequence of social posts from an article.
type ThreadComposer interface {
	ComposeThread(ctx context.Context, article domain.PublishedArticle) ([]string, error)
}

// TaskDispatcher hands a payload to an external queue for out-of-band delivery
// to destination. It returns once the queue accepted the message.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, destination string, payload []byte) error
}

// Alerter notifies operators.
type Alerter interface {
	Alert(ctx context.Context, message string) error
}

// Scheduler controls when runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
