// Package scraper retrieves article pages and reduces them to Markdown text.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"

	"ContentPipeline/internal/config"
	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
)

// ErrDisallowed is returned when robots.txt forbids fetching the page.
var ErrDisallowed = errors.New("fetch disallowed by robots.txt")

// ErrNoContent is returned when no readable text could be extracted.
var ErrNoContent = errors.New("page has no readable content")

var (
	mainSelectors = []string{"article", "main", "[role=main]", "#content", ".post-content", ".entry-content"}
	noiseElements = "script, style, noscript, iframe, object, embed, form, nav, header, footer, aside, " +
		".advertisement, .ad, .social, .share, .comments, .related, .newsletter"
)

// Scraper implements ports.Scraper over plain HTTP.
type Scraper struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	limiter   *hostLimiter
	robots    *robotsChecker
	converter *md.Converter
	logger    *slog.Logger
}

var _ ports.Scraper = (*Scraper)(nil)

// New builds a scraper from configuration.
func New(cfg config.ScraperConfig, logger *slog.Logger) *Scraper {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return NewWithClient(&http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("stopped after 5 redirects")
			}
			return nil
		},
	}, cfg, logger)
}

// NewWithClient builds a scraper around an existing client.
func NewWithClient(client *http.Client, cfg config.ScraperConfig, logger *slog.Logger) *Scraper {
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 4 << 20
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "ContentPipeline/1.0"
	}

	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	s := &Scraper{
		client:    client,
		userAgent: userAgent,
		maxBytes:  maxBytes,
		limiter:   newHostLimiter(cfg.RequestsPerSecond, 1),
		converter: converter,
		logger:    logger,
	}
	if cfg.RespectRobots {
		s.robots = newRobotsChecker(client, userAgent)
	}
	return s
}

// Scrape downloads link and returns its main content as Markdown.
func (s *Scraper) Scrape(ctx context.Context, link string) (domain.ScrapedContent, error) {
	if s.robots != nil {
		allowed, err := s.robots.Allowed(ctx, link)
		if err != nil {
			return domain.ScrapedContent{}, err
		}
		if !allowed {
			return domain.ScrapedContent{}, fmt.Errorf("%s: %w", link, ErrDisallowed)
		}
	}

	if err := s.limiter.Wait(ctx, link); err != nil {
		return domain.ScrapedContent{}, fmt.Errorf("rate limit: %w", err)
	}

	doc, err := s.fetchDocument(ctx, link)
	if err != nil {
		return domain.ScrapedContent{}, err
	}

	text, err := s.extract(doc)
	if err != nil {
		return domain.ScrapedContent{}, fmt.Errorf("%s: %w", link, err)
	}

	if s.logger != nil {
		s.logger.Debug("page scraped", "link", link, "chars", len(text))
	}
	return domain.ScrapedContent{FullText: text}, nil
}

func (s *Scraper) fetchDocument(ctx context.Context, link string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, s.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}

func (s *Scraper) extract(doc *goquery.Document) (string, error) {
	doc.Find(noiseElements).Remove()

	selection := doc.Find("body")
	for _, selector := range mainSelectors {
		if found := doc.Find(selector).First(); found.Length() > 0 && strings.TrimSpace(found.Text()) != "" {
			selection = found
			break
		}
	}

	markdown := strings.TrimSpace(s.converter.Convert(selection))
	if markdown == "" {
		return "", ErrNoContent
	}
	return markdown, nil
}
