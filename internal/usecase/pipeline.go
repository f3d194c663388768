package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"ContentPipeline/internal/content"
	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/metrics"
	"ContentPipeline/internal/ports"
)

const (
	defaultIndexAttempts = 4
	defaultIndexInterval = 500 * time.Millisecond
	postPublishTimeout   = 2 * time.Minute
)

// ArticleArchive keeps a local record of what a run published.
type ArticleArchive interface {
	SavePublished(ctx context.Context, runID string, article domain.PublishedArticle) error
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
// Source, Ledger, Detector, Scraper, Researcher, Drafter, Publisher and
// Links are required; every other collaborator may be nil.
type PipelineDeps struct {
	Source     ports.CandidateSource
	Ranker     ports.Ranker
	Ledger     ports.Ledger
	Detector   ports.DuplicateDetector
	Scraper    ports.Scraper
	Sponsor    ports.SponsorClassifier
	Researcher ports.Researcher
	Titles     ports.TitleOptimizer
	Lead       ports.LeadWriter
	Drafter    ports.Drafter
	SEO        ports.SEOEnhancer
	Style      ports.StylePolisher
	Related    ports.RelatedLinker
	Cover      ports.CoverSelector
	Publisher  ports.Publisher
	Indexer    ports.SearchIndexer
	Thread     ports.ThreadComposer
	Dispatcher ports.TaskDispatcher
	Alerter    ports.Alerter
	Archive    ArticleArchive
	Links      *content.LinkRewriter
	Metrics    *metrics.Recorder
	Logger     *slog.Logger

	BatchSize    int
	DefaultCover string
	Destination  string
	// IndexAttempts bounds duplicate-index adds after a publish.
	IndexAttempts int
	IndexInterval time.Duration

	Now   func() time.Time
	NewID func() string
}

// Pipeline drives a bounded batch of candidates through the per-item
// enrichment pipeline, one item at a time.
type Pipeline struct {
	deps   PipelineDeps
	logger *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) (*Pipeline, error) {
	required := []struct {
		name string
		ok   bool
	}{
		{"source", deps.Source != nil},
		{"ledger", deps.Ledger != nil},
		{"duplicate detector", deps.Detector != nil},
		{"scraper", deps.Scraper != nil},
		{"researcher", deps.Researcher != nil},
		{"drafter", deps.Drafter != nil},
		{"publisher", deps.Publisher != nil},
		{"link rewriter", deps.Links != nil},
	}
	for _, r := range required {
		if !r.ok {
			return nil, fmt.Errorf("pipeline: %s is required", r.name)
		}
	}
	if deps.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: got %d", domain.ErrInvalidBatchSize, deps.BatchSize)
	}
	if deps.IndexAttempts <= 0 {
		deps.IndexAttempts = defaultIndexAttempts
	}
	if deps.IndexInterval <= 0 {
		deps.IndexInterval = defaultIndexInterval
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{deps: deps, logger: logger}, nil
}

type outcome int

const (
	outcomePublished outcome = iota + 1
	outcomeAlreadyClaimed
	outcomeDuplicate
	outcomeExcluded
	outcomeFailed
	outcomeQuota
	outcomeCanceled
)

// itemResult is the tagged result of one item. err is set for
// outcomeFailed, outcomeQuota and outcomeCanceled.
type itemResult struct {
	outcome outcome
	article domain.PublishedArticle
	err     error
}

// Run fetches candidates, selects a batch and processes it. Only fetch and
// selection failures are returned as errors; everything after that is
// reflected in the report.
func (p *Pipeline) Run(ctx context.Context) (domain.Report, error) {
	report := domain.Report{RunID: p.deps.NewID(), StartedAt: p.deps.Now()}
	log := p.logger.With("run_id", report.RunID)

	candidates, err := p.deps.Source.Fetch(ctx)
	if err != nil {
		return report, fmt.Errorf("fetch candidates: %w", err)
	}

	batch, err := Select(ctx, p.deps.Ranker, candidates, p.deps.BatchSize)
	if err != nil {
		if domain.IsQuotaExceeded(err) {
			p.alert(ctx, log, fmt.Sprintf("content pipeline run %s: ranking stopped, generation quota exhausted: %v", report.RunID, err))
		}
		return report, fmt.Errorf("select batch: %w", err)
	}
	report.Total = len(batch)
	log.Info("batch selected", "fetched", len(candidates), "selected", report.Total)

loop:
	for i, candidate := range batch {
		if err := ctx.Err(); err != nil {
			report.Aborted = true
			report.AbortReason = err.Error()
			log.Warn("run canceled", "remaining", report.Total-i)
			p.deps.Metrics.Item(metrics.OutcomeAborted)
			break
		}

		itemLog := log.With("link", candidate.Link, "position", i+1)

		if p.preCheckDuplicate(ctx, candidate, itemLog) {
			report.Duplicates++
			p.deps.Metrics.Item(metrics.OutcomeDuplicate)
			continue
		}

		result := p.processItem(ctx, report.RunID, candidate, itemLog)
		switch result.outcome {
		case outcomePublished:
			report.Processed++
			p.deps.Metrics.Item(metrics.OutcomePublished)
			itemLog.Info("article published", "article_id", result.article.ID, "url", result.article.URL)
		case outcomeAlreadyClaimed:
			report.AlreadyClaimed++
			p.deps.Metrics.Item(metrics.OutcomeAlreadyClaimed)
			itemLog.Info("link already claimed, skipping")
		case outcomeDuplicate:
			report.Duplicates++
			report.Skipped++
			p.deps.Metrics.Item(metrics.OutcomeDuplicate)
			itemLog.Info("duplicate content, skipping")
		case outcomeExcluded:
			report.Excluded++
			p.deps.Metrics.Item(metrics.OutcomeExcluded)
			itemLog.Info("sponsored content excluded")
		case outcomeFailed:
			report.Skipped++
			stage := domain.StageOf(result.err)
			p.deps.Metrics.Item(metrics.OutcomeFailed)
			p.deps.Metrics.Failure(string(stage))
			itemLog.Warn("item failed", "stage", stage, "error", result.err)
		case outcomeQuota:
			report.Aborted = true
			report.AbortReason = result.err.Error()
			p.deps.Metrics.Item(metrics.OutcomeAborted)
			stage := domain.StageOf(result.err)
			itemLog.Error("generation quota exhausted, aborting run", "stage", stage, "error", result.err)
			p.alert(ctx, itemLog, fmt.Sprintf(
				"content pipeline run %s aborted at %s (stage %s): %v. %d of %d items left untouched.",
				report.RunID, candidate.Link, stage, result.err, report.Total-i-1, report.Total))
			break loop
		case outcomeCanceled:
			report.Aborted = true
			report.AbortReason = result.err.Error()
			p.deps.Metrics.Item(metrics.OutcomeAborted)
			itemLog.Warn("run canceled during item", "stage", domain.StageOf(result.err), "error", result.err)
			break loop
		}
	}

	report.FinishedAt = p.deps.Now()
	reason := ""
	if report.Aborted {
		reason = "quota"
		if ctx.Err() != nil {
			reason = "canceled"
		}
	}
	p.deps.Metrics.Run(report.FinishedAt.Sub(report.StartedAt).Seconds(), report.Aborted, reason)
	log.Info("run finished",
		"total", report.Total,
		"processed", report.Processed,
		"skipped", report.Skipped,
		"duplicates", report.Duplicates,
		"already_claimed", report.AlreadyClaimed,
		"excluded", report.Excluded,
		"aborted", report.Aborted,
	)
	return report, nil
}

// preCheckDuplicate reports true only when the detector positively
// identified a duplicate. Errors leave the question open.
func (p *Pipeline) preCheckDuplicate(ctx context.Context, candidate domain.Candidate, log *slog.Logger) bool {
	exists, err := p.deps.Detector.Exists(ctx, candidate.Title, candidate.Summary)
	if err != nil {
		log.Warn("duplicate pre-check not determined", "error", err)
		return false
	}
	if exists {
		log.Info("duplicate detected before claim, skipping")
	}
	return exists
}

func (p *Pipeline) processItem(ctx context.Context, runID string, candidate domain.Candidate, log *slog.Logger) itemResult {
	claimed, err := p.deps.Ledger.Claim(ctx, candidate.Link)
	if err != nil {
		return fail(ctx, domain.StageClaim, err)
	}
	if !claimed {
		return itemResult{outcome: outcomeAlreadyClaimed}
	}

	duplicate, err := p.deps.Detector.Exists(ctx, candidate.Title, candidate.Summary)
	if err != nil {
		return fail(ctx, domain.StageDuplicate, err)
	}
	if duplicate {
		return itemResult{outcome: outcomeDuplicate}
	}

	scraped, err := p.deps.Scraper.Scrape(ctx, candidate.Link)
	if err != nil {
		return fail(ctx, domain.StageScrape, err)
	}
	text := content.Sanitize(scraped.FullText)
	if text == "" {
		return fail(ctx, domain.StageScrape, domain.ErrEmptyContent)
	}

	if p.deps.Sponsor != nil {
		sponsored, err := p.deps.Sponsor.IsSponsored(ctx, candidate, text)
		if err != nil {
			return fail(ctx, domain.StageSponsor, err)
		}
		if sponsored {
			return itemResult{outcome: outcomeExcluded}
		}
	}

	research, err := p.deps.Researcher.Research(ctx, candidate, text)
	if err != nil {
		return fail(ctx, domain.StageResearch, err)
	}
	if research.Empty() {
		return fail(ctx, domain.StageResearch, domain.ErrEmptyResearch)
	}

	title, err := p.optimizeTitle(ctx, candidate, text, log)
	if err != nil {
		return fail(ctx, domain.StageTitle, err)
	}

	lead, err := p.writeLead(ctx, title, research, log)
	if err != nil {
		return fail(ctx, domain.StageLead, err)
	}

	draft, err := p.deps.Drafter.WriteDraft(ctx, ports.DraftRequest{
		Candidate:  candidate,
		Title:      title,
		Lead:       lead,
		SourceText: text,
		Research:   research,
	})
	if err != nil {
		return fail(ctx, domain.StageDraft, err)
	}
	if strings.TrimSpace(draft.Content) == "" {
		return fail(ctx, domain.StageDraft, errors.New("drafter returned empty content"))
	}
	if strings.TrimSpace(draft.Title) == "" {
		draft.Title = title
	}
	if strings.TrimSpace(draft.Summary) == "" {
		draft.Summary = candidate.Summary
	}

	if p.deps.SEO != nil {
		if draft, err = refine(ctx, domain.StageSEO, draft, p.deps.SEO.Enhance, log); err != nil {
			return fail(ctx, domain.StageSEO, err)
		}
	}
	if p.deps.Style != nil {
		if draft, err = refine(ctx, domain.StageStyle, draft, p.deps.Style.Polish, log); err != nil {
			return fail(ctx, domain.StageStyle, err)
		}
	}
	if p.deps.Related != nil {
		if draft, err = refine(ctx, domain.StageInternalLnk, draft, p.deps.Related.InsertLinks, log); err != nil {
			return fail(ctx, domain.StageInternalLnk, err)
		}
	}
	draft = p.deps.Links.RewriteDraft(draft)

	cover, err := p.selectCover(ctx, draft, log)
	if err != nil {
		return fail(ctx, domain.StageCover, err)
	}

	article, err := p.deps.Publisher.Publish(ctx, draft, cover, p.deps.Now().UTC())
	if err != nil {
		return fail(ctx, domain.StagePublish, err)
	}
	article.SourceLink = candidate.Link

	p.afterPublish(ctx, runID, article, log)
	return itemResult{outcome: outcomePublished, article: article}
}

// fail classifies a stage error into the item outcome.
func fail(ctx context.Context, stage domain.Stage, err error) itemResult {
	wrapped := domain.WrapStage(stage, err)
	switch {
	case domain.IsQuotaExceeded(err):
		return itemResult{outcome: outcomeQuota, err: wrapped}
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		return itemResult{outcome: outcomeCanceled, err: wrapped}
	default:
		return itemResult{outcome: outcomeFailed, err: wrapped}
	}
}

// mustPropagate reports whether an error of an optional stage has to stop
// the item instead of being passed through.
func mustPropagate(ctx context.Context, err error) bool {
	return domain.IsQuotaExceeded(err) || ctx.Err() != nil
}

// refine runs an optional draft transformation. Ordinary failures and empty
// results keep the previous draft.
func refine(ctx context.Context, stage domain.Stage, draft domain.Draft, fn func(context.Context, domain.Draft) (domain.Draft, error), log *slog.Logger) (domain.Draft, error) {
	next, err := fn(ctx, draft)
	if err != nil {
		if mustPropagate(ctx, err) {
			return draft, err
		}
		log.Warn("stage failed, keeping previous draft", "stage", stage, "error", err)
		return draft, nil
	}
	if strings.TrimSpace(next.Content) == "" {
		log.Warn("stage returned empty content, keeping previous draft", "stage", stage)
		return draft, nil
	}
	return next, nil
}

func (p *Pipeline) optimizeTitle(ctx context.Context, candidate domain.Candidate, text string, log *slog.Logger) (string, error) {
	if p.deps.Titles == nil {
		return candidate.Title, nil
	}
	titles, err := p.deps.Titles.OptimizeTitles(ctx, candidate.Title, text)
	if err != nil {
		if mustPropagate(ctx, err) {
			return "", err
		}
		log.Warn("title optimization failed, keeping source title", "stage", domain.StageTitle, "error", err)
		return candidate.Title, nil
	}
	for _, t := range titles {
		if t = strings.TrimSpace(t); t != "" {
			return t, nil
		}
	}
	return candidate.Title, nil
}

func (p *Pipeline) writeLead(ctx context.Context, title string, research domain.ResearchResult, log *slog.Logger) (string, error) {
	if p.deps.Lead == nil {
		return "", nil
	}
	lead, err := p.deps.Lead.WriteLead(ctx, title, research)
	if err != nil {
		if mustPropagate(ctx, err) {
			return "", err
		}
		log.Warn("lead writing failed, drafting without lead", "stage", domain.StageLead, "error", err)
		return "", nil
	}
	return strings.TrimSpace(lead), nil
}

func (p *Pipeline) selectCover(ctx context.Context, draft domain.Draft, log *slog.Logger) (string, error) {
	if p.deps.Cover == nil {
		return p.deps.DefaultCover, nil
	}
	cover, err := p.deps.Cover.SelectCover(ctx, draft)
	if err != nil {
		if mustPropagate(ctx, err) {
			return "", err
		}
		log.Warn("cover selection failed, using default cover", "stage", domain.StageCover, "error", err)
		return p.deps.DefaultCover, nil
	}
	if strings.TrimSpace(cover) == "" {
		return p.deps.DefaultCover, nil
	}
	return cover, nil
}

// afterPublish runs the side effects of a committed article. Failures are
// logged and counted, never returned. The work outlives cancellation of ctx
// so a committed article still gets indexed.
func (p *Pipeline) afterPublish(ctx context.Context, runID string, article domain.PublishedArticle, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), postPublishTimeout)
	defer cancel()

	log = log.With("article_id", article.ID)

	if err := p.addToDuplicateIndex(ctx, article); err != nil {
		p.deps.Metrics.PostPublishFailure("duplicate_index")
		log.Error("duplicate index add failed; the story may be republished from another link",
			"stage", domain.StageIndex, "url", article.URL, "error", err)
	}

	if p.deps.Indexer != nil {
		if err := p.deps.Indexer.Index(ctx, article); err != nil {
			p.deps.Metrics.PostPublishFailure("search_index")
			log.Warn("search index update failed", "stage", domain.StageIndex, "error", err)
		}
	}

	if p.deps.Archive != nil {
		if err := p.deps.Archive.SavePublished(ctx, runID, article); err != nil {
			p.deps.Metrics.PostPublishFailure("archive")
			log.Warn("archive write failed", "error", err)
		}
	}

	if err := p.distribute(ctx, article, log); err != nil {
		p.deps.Metrics.PostPublishFailure("distribution")
		log.Warn("distribution not enqueued", "stage", domain.StageDistribute, "error", err)
	}
}

// addToDuplicateIndex records the published title and summary with bounded
// exponential retries. Add is idempotent so a retry after an ambiguous failure
// is safe.
func (p *Pipeline) addToDuplicateIndex(ctx context.Context, article domain.PublishedArticle) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.deps.IndexInterval
	policy.MaxInterval = 16 * p.deps.IndexInterval

	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(p.deps.IndexAttempts-1)), ctx)
	return backoff.Retry(func() error {
		return p.deps.Detector.Add(ctx, article.Title, article.Summary)
	}, retry)
}

func (p *Pipeline) distribute(ctx context.Context, article domain.PublishedArticle, log *slog.Logger) error {
	if p.deps.Thread == nil || p.deps.Dispatcher == nil {
		return nil
	}

	posts, err := p.deps.Thread.ComposeThread(ctx, article)
	if err != nil {
		return fmt.Errorf("compose thread: %w", err)
	}
	kept := make([]string, 0, len(posts))
	for _, post := range posts {
		if post = strings.TrimSpace(post); post != "" {
			kept = append(kept, post)
		}
	}
	if len(kept) == 0 {
		log.Info("no social posts composed, skipping distribution")
		return nil
	}

	task := domain.DistributionTask{
		TaskID:     p.deps.NewID(),
		ArticleURL: article.URL,
		Title:      article.Title,
		Posts:      kept,
		CreatedAt:  p.deps.Now().UTC(),
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := p.deps.Dispatcher.Dispatch(ctx, p.deps.Destination, payload); err != nil {
		return fmt.Errorf("dispatch task %s: %w", task.TaskID, err)
	}
	log.Info("distribution enqueued", "task_id", task.TaskID, "posts", len(kept))
	return nil
}

func (p *Pipeline) alert(ctx context.Context, log *slog.Logger, message string) {
	if p.deps.Alerter == nil {
		log.Error("no alerter configured", "alert", message)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := p.deps.Alerter.Alert(ctx, message); err != nil {
		log.Error("operator alert failed", "alert", message, "error", err)
	}
}
