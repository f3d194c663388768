package dedupe

import (
	"context"
	"fmt"

	"ContentPipeline/internal/infrastructure/httpjson"
)

// SemanticClient delegates duplicate detection to an external similarity
// service. Entries are keyed by Fingerprint so repeated adds are idempotent.
type SemanticClient struct {
	client    *httpjson.Client
	threshold float64
}

// NewSemanticClient creates a client for the service at client's endpoint.
func NewSemanticClient(client *httpjson.Client, threshold float64) *SemanticClient {
	if threshold <= 0 || threshold > 1 {
		threshold = defaultThreshold
	}
	return &SemanticClient{client: client, threshold: threshold}
}

type semanticRequest struct {
	Fingerprint string  `json:"fingerprint"`
	Title       string  `json:"title"`
	Summary     string  `json:"summary"`
	Threshold   float64 `json:"threshold,omitempty"`
}

func (c *SemanticClient) Exists(ctx context.Context, title, summary string) (bool, error) {
	var resp struct {
		Exists bool    `json:"exists"`
		Score  float64 `json:"score"`
	}
	req := semanticRequest{
		Fingerprint: Fingerprint(title, summary),
		Title:       title,
		Summary:     summary,
		Threshold:   c.threshold,
	}
	if err := c.client.Post(ctx, "/exists", req, &resp); err != nil {
		return false, fmt.Errorf("semantic exists: %w", err)
	}
	return resp.Exists, nil
}

func (c *SemanticClient) Add(ctx context.Context, title, summary string) error {
	req := semanticRequest{
		Fingerprint: Fingerprint(title, summary),
		Title:       title,
		Summary:     summary,
	}
	if err := c.client.Post(ctx, "/add", req, nil); err != nil {
		return fmt.Errorf("semantic add: %w", err)
	}
	return nil
}
