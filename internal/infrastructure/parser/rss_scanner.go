package parser

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/scanner"
)

const maxFeedBytes = 8 << 20

var feedDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02",
}

type rssDocument struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
	// Atom feeds decode into Entries; RSS leaves it empty.
	Entries []atomEntry `xml:"entry"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

type atomEntry struct {
	Title string `xml:"title"`
	Links []struct {
		Href string `xml:"href,attr"`
		Rel  string `xml:"rel,attr"`
	} `xml:"link"`
	Summary   string `xml:"summary"`
	Content   string `xml:"content"`
	Updated   string `xml:"updated"`
	Published string `xml:"published"`
}

// RSSScanner reads RSS 2.0 and Atom feeds.
type RSSScanner struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
	now       func() time.Time
}

// NewRSSScanner wires an HTTP client; a nil client gets a 20s timeout.
func NewRSSScanner(client *http.Client, userAgent string, logger *slog.Logger) *RSSScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if userAgent == "" {
		userAgent = "ContentPipeline/1.0"
	}
	return &RSSScanner{client: client, userAgent: userAgent, logger: logger, now: time.Now}
}

// Name identifies the strategy inside the registry.
func (s *RSSScanner) Name() string {
	return "rss"
}

// Scan fetches every feed of the site and converts entries to candidates.
func (s *RSSScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Candidate, error) {
	if len(req.Feeds) == 0 {
		return nil, fmt.Errorf("no feeds provided for site %s", req.SiteName)
	}

	var results []domain.Candidate
	for _, feed := range req.Feeds {
		raw, err := s.fetch(ctx, feed.URL)
		if err != nil {
			return nil, fmt.Errorf("feed %s: %w", feed.Name, err)
		}
		entries, err := parseFeed(raw, s.now())
		if err != nil {
			return nil, fmt.Errorf("feed %s: %w", feed.Name, err)
		}
		source := sourceName(req.SiteName, feed.Name)
		for i := range entries {
			entries[i].Source = source
		}
		if s.logger != nil {
			s.logger.Debug("feed parsed", "site", req.SiteName, "feed", feed.Name, "count", len(entries))
		}
		results = append(results, entries...)
	}
	return results, nil
}

func (s *RSSScanner) fetch(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.5")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %s", resp.Status)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	return raw, nil
}

func parseFeed(raw []byte, now time.Time) ([]domain.Candidate, error) {
	var doc rssDocument
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	var out []domain.Candidate
	for _, item := range doc.Channel.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" && strings.HasPrefix(item.GUID, "http") {
			link = strings.TrimSpace(item.GUID)
		}
		if link == "" {
			continue
		}
		out = append(out, domain.Candidate{
			Title:       collapse(item.Title),
			Link:        link,
			Summary:     plainText(item.Description),
			PublishedAt: parseFeedDate(item.PubDate, now),
		})
	}

	for _, entry := range doc.Entries {
		link := atomLink(entry)
		if link == "" {
			continue
		}
		summary := entry.Summary
		if strings.TrimSpace(summary) == "" {
			summary = entry.Content
		}
		date := entry.Published
		if date == "" {
			date = entry.Updated
		}
		out = append(out, domain.Candidate{
			Title:       collapse(entry.Title),
			Link:        link,
			Summary:     plainText(summary),
			PublishedAt: parseFeedDate(date, now),
		})
	}

	return out, nil
}

func atomLink(entry atomEntry) string {
	for _, l := range entry.Links {
		if l.Rel == "" || l.Rel == "alternate" {
			return strings.TrimSpace(l.Href)
		}
	}
	return ""
}

func parseFeedDate(value string, now time.Time) time.Time {
	value = strings.TrimSpace(value)
	for _, layout := range feedDateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC()
		}
	}
	return now.UTC()
}

// plainText drops markup that feeds commonly embed in descriptions.
func plainText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if !strings.Contains(fragment, "<") {
		return collapse(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapse(fragment)
	}
	return collapse(doc.Text())
}
