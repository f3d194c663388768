// Package cover picks a cover image for a draft from an image search service.
package cover

import (
	"context"
	"fmt"
	"strings"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/infrastructure/httpjson"
)

// Selector queries the image service and falls back to a default cover
// when nothing suitable is found.
type Selector struct {
	client   *httpjson.Client
	fallback string
}

// NewSelector creates a selector. fallback may be empty.
func NewSelector(client *httpjson.Client, fallback string) *Selector {
	return &Selector{client: client, fallback: fallback}
}

// SelectCover returns the first landscape image, the first image of any
// shape, or the fallback, in that order.
func (s *Selector) SelectCover(ctx context.Context, draft domain.Draft) (string, error) {
	req := struct {
		Query   string `json:"query"`
		Context string `json:"context,omitempty"`
	}{Query: draft.Title, Context: draft.Summary}

	var resp struct {
		Images []struct {
			URL    string `json:"url"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"images"`
	}
	if err := s.client.Post(ctx, "/search", req, &resp); err != nil {
		return s.fallback, fmt.Errorf("search cover: %w", err)
	}

	first := ""
	for _, img := range resp.Images {
		u := strings.TrimSpace(img.URL)
		if u == "" {
			continue
		}
		if img.Width > img.Height {
			return u, nil
		}
		if first == "" {
			first = u
		}
	}
	if first != "" {
		return first, nil
	}
	return s.fallback, nil
}
