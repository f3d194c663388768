// Package search indexes published articles and looks up related ones.
package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/infrastructure/httpjson"
)

// Client talks to the site search service.
type Client struct {
	client *httpjson.Client
	index  string
	limit  int
}

// NewClient creates a client for one index. limit caps related links.
func NewClient(client *httpjson.Client, index string, limit int) *Client {
	if limit <= 0 {
		limit = 3
	}
	return &Client{client: client, index: index, limit: limit}
}

type document struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

// Index upserts the article document.
func (c *Client) Index(ctx context.Context, article domain.PublishedArticle) error {
	doc := document{
		ID:          article.ID,
		Title:       article.Title,
		Summary:     article.Summary,
		URL:         article.URL,
		PublishedAt: article.PublishedAt,
	}
	path := "/indexes/" + url.PathEscape(c.index) + "/documents"
	if err := c.client.Post(ctx, path, []document{doc}, nil); err != nil {
		return fmt.Errorf("index article %s: %w", article.ID, err)
	}
	return nil
}

// Related returns up to limit already published articles matching query.
func (c *Client) Related(ctx context.Context, query string) ([]domain.RelatedLink, error) {
	req := struct {
		Query string `json:"q"`
		Limit int    `json:"limit"`
	}{Query: query, Limit: c.limit}

	var resp struct {
		Hits []struct {
			Title string `json:"title"`
			URL   string `json:"url"`
		} `json:"hits"`
	}
	path := "/indexes/" + url.PathEscape(c.index) + "/search"
	if err := c.client.Post(ctx, path, req, &resp); err != nil {
		return nil, fmt.Errorf("search related: %w", err)
	}

	links := make([]domain.RelatedLink, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		if strings.TrimSpace(hit.URL) == "" || strings.TrimSpace(hit.Title) == "" {
			continue
		}
		links = append(links, domain.RelatedLink{Title: hit.Title, URL: hit.URL})
		if len(links) == c.limit {
			break
		}
	}
	return links, nil
}

// InsertLinks appends a related reading section built from search hits.
// Hits already linked from the body are not repeated.
func (c *Client) InsertLinks(ctx context.Context, draft domain.Draft) (domain.Draft, error) {
	links, err := c.Related(ctx, draft.Title)
	if err != nil {
		return draft, err
	}

	var b strings.Builder
	for _, link := range links {
		if strings.Contains(draft.Content, link.URL) {
			continue
		}
		fmt.Fprintf(&b, "- [%s](%s)\n", escapeText(link.Title), link.URL)
	}
	if b.Len() == 0 {
		return draft, nil
	}

	draft.Content = strings.TrimRight(draft.Content, "\n") + "\n\n## Related reading\n\n" + b.String()
	return draft, nil
}

func escapeText(s string) string {
	return strings.NewReplacer("[", "(", "]", ")").Replace(s)
}
