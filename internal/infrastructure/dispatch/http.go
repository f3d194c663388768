package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNoDestination is returned for an empty destination.
var ErrNoDestination = errors.New("dispatch: empty destination")

// HTTPQueue pushes tasks to an HTTP task queue. The queue later delivers the
// payload to destination on its own schedule.
type HTTPQueue struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPQueue creates a push-queue client.
func NewHTTPQueue(endpoint, token string) *HTTPQueue {
	return &HTTPQueue{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Dispatch enqueues payload for delivery to destination.
func (q *HTTPQueue) Dispatch(ctx context.Context, destination string, payload []byte) error {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return ErrNoDestination
	}

	target := q.endpoint + "/v2/publish/" + url.PathEscape(destination)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.token != "" {
		req.Header.Set("Authorization", "Bearer "+q.token)
	}
	if id := taskID(payload); id != "" {
		req.Header.Set("Upstash-Deduplication-Id", id)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("queue rejected task: %s", resp.Status)
	}
	return nil
}

// taskID extracts task_id from a JSON payload, or "" when absent.
func taskID(payload []byte) string {
	var probe struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return ""
	}
	return probe.TaskID
}
