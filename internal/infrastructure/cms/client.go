// Package cms publishes articles to the external content store.
package cms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/infrastructure/httpjson"
)

// ErrIncompleteResponse is returned when the store accepted the article but
// did not report an id or url.
var ErrIncompleteResponse = errors.New("cms: response missing id or url")

// Client talks to the content store API.
type Client struct {
	client *httpjson.Client
}

// NewClient wraps a JSON client pointed at the store.
func NewClient(client *httpjson.Client) *Client {
	return &Client{client: client}
}

type publishRequest struct {
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Content     string    `json:"content"`
	CoverImage  string    `json:"cover_image,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

type publishResponse struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

// Publish creates the article and returns its persisted form.
func (c *Client) Publish(ctx context.Context, draft domain.Draft, cover string, publishedAt time.Time) (domain.PublishedArticle, error) {
	req := publishRequest{
		Title:       draft.Title,
		Summary:     draft.Summary,
		Content:     draft.Content,
		CoverImage:  cover,
		PublishedAt: publishedAt.UTC(),
	}

	var resp publishResponse
	if err := c.client.Post(ctx, "/articles", req, &resp); err != nil {
		return domain.PublishedArticle{}, fmt.Errorf("publish article: %w", err)
	}
	if strings.TrimSpace(resp.ID) == "" || strings.TrimSpace(resp.URL) == "" {
		return domain.PublishedArticle{}, ErrIncompleteResponse
	}

	stamp := resp.PublishedAt
	if stamp.IsZero() {
		stamp = publishedAt.UTC()
	}

	return domain.PublishedArticle{
		ID:          resp.ID,
		Title:       draft.Title,
		Summary:     draft.Summary,
		Content:     draft.Content,
		Slug:        resp.Slug,
		URL:         resp.URL,
		CoverImage:  cover,
		PublishedAt: stamp,
	}, nil
}
