package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ContentPipeline/internal/content"
	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/logging"
	"ContentPipeline/internal/ports"
)

var errBackend = errors.New("backend unavailable")

func quotaErr() error {
	return fmt.Errorf("%w: insufficient_quota", domain.ErrQuotaExceeded)
}

// journal records every collaborator call in order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) mentioning(needle string) []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []string
	for _, e := range j.entries {
		if strings.Contains(e, needle) {
			out = append(out, e)
		}
	}
	return out
}

func (j *journal) has(entry string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, e := range j.entries {
		if e == entry {
			return true
		}
	}
	return false
}

func candidate(id string) domain.Candidate {
	return domain.Candidate{
		Title:       "Title " + id,
		Link:        "https://src.example/" + id,
		Summary:     "Summary " + id,
		PublishedAt: time.Date(2025, time.November, 8, 9, 0, 0, 0, time.UTC),
	}
}

type fakeSource struct {
	candidates []domain.Candidate
	err        error
}

func (f *fakeSource) Fetch(context.Context) ([]domain.Candidate, error) {
	return f.candidates, f.err
}

type fakeLedger struct {
	j       *journal
	claimed map[string]bool
	err     error
}

func (f *fakeLedger) Claim(_ context.Context, link string) (bool, error) {
	f.j.add("claim %s", link)
	if f.err != nil {
		return false, f.err
	}
	if f.claimed[link] {
		return false, nil
	}
	f.claimed[link] = true
	return true, nil
}

type fakeDetector struct {
	j          *journal
	exists     func(title string, call int) (bool, error)
	calls      map[string]int
	add        func(attempt int) error
	adds       int
	indexed    map[string]bool
	addTitle   []string
	addSummary []string
}

func (f *fakeDetector) Exists(_ context.Context, title, _ string) (bool, error) {
	f.j.add("exists %s", title)
	f.calls[title]++
	if f.exists != nil {
		return f.exists(title, f.calls[title])
	}
	return f.indexed[title], nil
}

func (f *fakeDetector) Add(_ context.Context, title, summary string) error {
	f.j.add("add %s", title)
	f.adds++
	if f.add != nil {
		if err := f.add(f.adds); err != nil {
			return err
		}
	}
	f.indexed[title] = true
	f.addTitle = append(f.addTitle, title)
	f.addSummary = append(f.addSummary, summary)
	return nil
}

type fakeScraper struct {
	j    *journal
	text map[string]string
	errs map[string]error
	hook func(link string)
}

func (f *fakeScraper) Scrape(_ context.Context, link string) (domain.ScrapedContent, error) {
	f.j.add("scrape %s", link)
	if f.hook != nil {
		f.hook(link)
	}
	if err := f.errs[link]; err != nil {
		return domain.ScrapedContent{}, err
	}
	if text, ok := f.text[link]; ok {
		return domain.ScrapedContent{FullText: text}, nil
	}
	return domain.ScrapedContent{FullText: "Full text of the story behind " + link}, nil
}

type fakeSponsor struct {
	j         *journal
	sponsored map[string]bool
	seen      []string
}

func (f *fakeSponsor) IsSponsored(_ context.Context, c domain.Candidate, text string) (bool, error) {
	f.j.add("sponsor %s", c.Link)
	f.seen = append(f.seen, text)
	return f.sponsored[c.Link], nil
}

type fakeResearcher struct {
	j    *journal
	errs map[string]error
	empt map[string]bool
	seen []string
}

func (f *fakeResearcher) Research(_ context.Context, c domain.Candidate, text string) (domain.ResearchResult, error) {
	f.j.add("research %s", c.Link)
	f.seen = append(f.seen, text)
	if err := f.errs[c.Link]; err != nil {
		return domain.ResearchResult{}, err
	}
	if f.empt[c.Link] {
		return domain.ResearchResult{Notes: "  "}, nil
	}
	return domain.ResearchResult{Notes: "notes for " + c.Link}, nil
}

type fakeTitles struct {
	j      *journal
	titles []string
	err    error
}

func (f *fakeTitles) OptimizeTitles(_ context.Context, title, _ string) ([]string, error) {
	f.j.add("titles %s", title)
	return f.titles, f.err
}

type fakeLead struct {
	j   *journal
	err error
}

func (f *fakeLead) WriteLead(_ context.Context, title string, _ domain.ResearchResult) (string, error) {
	f.j.add("lead %s", title)
	if f.err != nil {
		return "", f.err
	}
	return "Lead for " + title, nil
}

type fakeDrafter struct {
	j    *journal
	body string
	err  error
	reqs []ports.DraftRequest
}

func (f *fakeDrafter) WriteDraft(_ context.Context, req ports.DraftRequest) (domain.Draft, error) {
	f.j.add("draft %s", req.Candidate.Link)
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return domain.Draft{}, f.err
	}
	body := f.body
	if body == "" {
		body = "Body about " + req.Candidate.Title
	}
	return domain.Draft{Title: req.Title, Content: req.Lead + "\n\n" + body}, nil
}

type fakeRefiner struct {
	j      *journal
	name   string
	err    error
	suffix string
}

func (f *fakeRefiner) apply(draft domain.Draft) (domain.Draft, error) {
	f.j.add("%s %s", f.name, draft.Title)
	if f.err != nil {
		return domain.Draft{}, f.err
	}
	draft.Content += f.suffix
	return draft, nil
}

func (f *fakeRefiner) Enhance(_ context.Context, d domain.Draft) (domain.Draft, error) {
	return f.apply(d)
}
func (f *fakeRefiner) Polish(_ context.Context, d domain.Draft) (domain.Draft, error) {
	return f.apply(d)
}
func (f *fakeRefiner) InsertLinks(_ context.Context, d domain.Draft) (domain.Draft, error) {
	return f.apply(d)
}

type fakeCover struct {
	j     *journal
	cover string
	err   error
}

func (f *fakeCover) SelectCover(_ context.Context, d domain.Draft) (string, error) {
	f.j.add("cover %s", d.Title)
	return f.cover, f.err
}

type publishCall struct {
	draft domain.Draft
	cover string
	at    time.Time
}

type fakePublisher struct {
	j     *journal
	err   error
	calls []publishCall
}

func (f *fakePublisher) Publish(_ context.Context, d domain.Draft, cover string, at time.Time) (domain.PublishedArticle, error) {
	f.j.add("publish %s", d.Title)
	if f.err != nil {
		return domain.PublishedArticle{}, f.err
	}
	f.calls = append(f.calls, publishCall{draft: d, cover: cover, at: at})
	n := len(f.calls)
	return domain.PublishedArticle{
		ID:          fmt.Sprintf("art-%d", n),
		Title:       d.Title,
		Summary:     d.Summary,
		Content:     d.Content,
		URL:         fmt.Sprintf("https://oursite.example/articles/%d", n),
		CoverImage:  cover,
		PublishedAt: at,
	}, nil
}

type fakeIndexer struct {
	j   *journal
	err error
}

func (f *fakeIndexer) Index(_ context.Context, a domain.PublishedArticle) error {
	f.j.add("index %s", a.ID)
	return f.err
}

type fakeThread struct {
	j     *journal
	posts []string
	err   error
}

func (f *fakeThread) ComposeThread(_ context.Context, a domain.PublishedArticle) ([]string, error) {
	f.j.add("thread %s", a.ID)
	return f.posts, f.err
}

type dispatched struct {
	destination string
	payload     []byte
}

type fakeDispatcher struct {
	j     *journal
	err   error
	tasks []dispatched
}

func (f *fakeDispatcher) Dispatch(_ context.Context, destination string, payload []byte) error {
	f.j.add("dispatch %s", destination)
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, dispatched{destination: destination, payload: payload})
	return nil
}

type fakeAlerter struct {
	messages []string
}

func (f *fakeAlerter) Alert(_ context.Context, message string) error {
	f.messages = append(f.messages, message)
	return nil
}

type fakeArchive struct {
	saved []domain.PublishedArticle
}

func (f *fakeArchive) SavePublished(_ context.Context, _ string, a domain.PublishedArticle) error {
	f.saved = append(f.saved, a)
	return nil
}

type harness struct {
	j          *journal
	source     *fakeSource
	ledger     *fakeLedger
	detector   *fakeDetector
	scraper    *fakeScraper
	sponsor    *fakeSponsor
	researcher *fakeResearcher
	titles     *fakeTitles
	lead       *fakeLead
	drafter    *fakeDrafter
	seo        *fakeRefiner
	style      *fakeRefiner
	related    *fakeRefiner
	cover      *fakeCover
	publisher  *fakePublisher
	indexer    *fakeIndexer
	thread     *fakeThread
	dispatcher *fakeDispatcher
	alerter    *fakeAlerter
	archive    *fakeArchive
	batchSize  int
	ranker     ports.Ranker
}

func newHarness(candidates ...domain.Candidate) *harness {
	j := &journal{}
	return &harness{
		j:          j,
		source:     &fakeSource{candidates: candidates},
		ledger:     &fakeLedger{j: j, claimed: map[string]bool{}},
		detector:   &fakeDetector{j: j, calls: map[string]int{}, indexed: map[string]bool{}},
		scraper:    &fakeScraper{j: j, text: map[string]string{}, errs: map[string]error{}},
		sponsor:    &fakeSponsor{j: j, sponsored: map[string]bool{}},
		researcher: &fakeResearcher{j: j, errs: map[string]error{}, empt: map[string]bool{}},
		titles:     &fakeTitles{j: j},
		lead:       &fakeLead{j: j},
		drafter:    &fakeDrafter{j: j},
		seo:        &fakeRefiner{j: j, name: "seo"},
		style:      &fakeRefiner{j: j, name: "style"},
		related:    &fakeRefiner{j: j, name: "related"},
		cover:      &fakeCover{j: j, cover: "https://img.example/cover.jpg"},
		publisher:  &fakePublisher{j: j},
		indexer:    &fakeIndexer{j: j},
		thread:     &fakeThread{j: j, posts: []string{"post one", "post two"}},
		dispatcher: &fakeDispatcher{j: j},
		alerter:    &fakeAlerter{},
		archive:    &fakeArchive{},
		batchSize:  5,
		ranker:     RecencyRanker{},
	}
}

func (h *harness) pipeline(t *testing.T) *Pipeline {
	t.Helper()

	links, err := content.NewLinkRewriter("https://oursite.example")
	require.NoError(t, err)

	ids := 0
	p, err := NewPipeline(PipelineDeps{
		Source:        h.source,
		Ranker:        h.ranker,
		Ledger:        h.ledger,
		Detector:      h.detector,
		Scraper:       h.scraper,
		Sponsor:       h.sponsor,
		Researcher:    h.researcher,
		Titles:        h.titles,
		Lead:          h.lead,
		Drafter:       h.drafter,
		SEO:           h.seo,
		Style:         h.style,
		Related:       h.related,
		Cover:         h.cover,
		Publisher:     h.publisher,
		Indexer:       h.indexer,
		Thread:        h.thread,
		Dispatcher:    h.dispatcher,
		Alerter:       h.alerter,
		Archive:       h.archive,
		Links:         links,
		Logger:        logging.Discard(),
		BatchSize:     h.batchSize,
		DefaultCover:  "https://oursite.example/default.jpg",
		Destination:   "distribution.social",
		IndexAttempts: 3,
		IndexInterval: time.Millisecond,
		Now:           func() time.Time { return time.Date(2025, time.November, 8, 12, 0, 0, 0, time.UTC) },
		NewID: func() string {
			ids++
			return fmt.Sprintf("id-%d", ids)
		},
	})
	require.NoError(t, err)
	return p
}
