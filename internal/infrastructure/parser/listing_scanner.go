package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/scanner"
)

// Option keys understood by ListingScanner. Every key falls back to a
// selector that fits common news index pages.
const (
	OptItemSelector    = "item"
	OptTitleSelector   = "title"
	OptLinkSelector    = "link"
	OptSummarySelector = "summary"
	OptDateSelector    = "date"
	OptDateLayout      = "dateLayout"
)

var listingDefaults = map[string]string{
	OptItemSelector:    "article",
	OptTitleSelector:   "h1, h2, h3",
	OptLinkSelector:    "a[href]",
	OptSummarySelector: "p",
	OptDateSelector:    "time",
	OptDateLayout:      time.RFC3339,
}

// ListingScanner extracts candidates from HTML index pages using CSS selectors.
type ListingScanner struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
	now       func() time.Time
}

// NewListingScanner wires an HTTP client; a nil client gets a 20s timeout.
func NewListingScanner(client *http.Client, userAgent string, logger *slog.Logger) *ListingScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if userAgent == "" {
		userAgent = "ContentPipeline/1.0"
	}
	return &ListingScanner{client: client, userAgent: userAgent, logger: logger, now: time.Now}
}

// Name identifies the strategy inside the registry.
func (s *ListingScanner) Name() string {
	return "listing"
}

// Scan walks every configured listing page and returns the entries found.
func (s *ListingScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Candidate, error) {
	if len(req.Feeds) == 0 {
		return nil, fmt.Errorf("no feeds provided for site %s", req.SiteName)
	}

	var results []domain.Candidate
	for _, feed := range req.Feeds {
		doc, base, err := s.fetchDocument(ctx, feed.URL)
		if err != nil {
			return nil, fmt.Errorf("feed %s: %w", feed.Name, err)
		}
		entries := s.extractCandidates(doc, base, req.Options, sourceName(req.SiteName, feed.Name))
		if s.logger != nil {
			s.logger.Debug("listing parsed", "site", req.SiteName, "feed", feed.Name, "count", len(entries))
		}
		results = append(results, entries...)
	}

	return results, nil
}

func (s *ListingScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("listing returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, resp.Request.URL, nil
}

func (s *ListingScanner) extractCandidates(doc *goquery.Document, base *url.URL, opts map[string]string, source string) []domain.Candidate {
	option := func(key string) string {
		if v := strings.TrimSpace(opts[key]); v != "" {
			return v
		}
		return listingDefaults[key]
	}

	var collected []domain.Candidate
	doc.Find(option(OptItemSelector)).Each(func(_ int, item *goquery.Selection) {
		candidate, ok := parseItem(item, base, option, s.now())
		if !ok {
			return
		}
		candidate.Source = source
		collected = append(collected, candidate)
	})
	return collected
}

func parseItem(item *goquery.Selection, base *url.URL, option func(string) string, now time.Time) (domain.Candidate, bool) {
	title := collapse(item.Find(option(OptTitleSelector)).First().Text())

	link := item.Find(option(OptLinkSelector)).First()
	href, _ := link.Attr("href")
	href = strings.TrimSpace(href)
	if href == "" || title == "" {
		return domain.Candidate{}, false
	}
	target, err := url.Parse(href)
	if err != nil {
		return domain.Candidate{}, false
	}
	if base != nil {
		target = base.ResolveReference(target)
	}

	summary := collapse(item.Find(option(OptSummarySelector)).First().Text())

	publishedAt := now.UTC()
	dateNode := item.Find(option(OptDateSelector)).First()
	dateText, ok := dateNode.Attr("datetime")
	if !ok {
		dateText = dateNode.Text()
	}
	if parsed, err := time.Parse(option(OptDateLayout), strings.TrimSpace(dateText)); err == nil {
		publishedAt = parsed.UTC()
	}

	return domain.Candidate{
		Title:       title,
		Link:        target.String(),
		Summary:     summary,
		PublishedAt: publishedAt,
	}, true
}

func sourceName(site, feed string) string {
	if feed == "" {
		return site
	}
	return fmt.Sprintf("%s/%s", site, feed)
}

func collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
