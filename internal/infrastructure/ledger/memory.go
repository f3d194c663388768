// Package ledger implements the idempotency ledger: a link is claimed for
// processing at most once within the retention window.
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// Memory is a process-local ledger. It is safe for concurrent use but does
// not survive restarts.
type Memory struct {
	claims *cache.Cache
	ttl    time.Duration
}

// NewMemory creates a ledger whose claims expire after retention.
func NewMemory(retention time.Duration) *Memory {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Memory{
		claims: cache.New(retention, retention/2),
		ttl:    retention,
	}
}

// Claim reports true the first time link is seen within retention.
func (m *Memory) Claim(ctx context.Context, link string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	key := strings.TrimSpace(link)
	if key == "" {
		return false, ErrEmptyLink
	}
	// Add fails when a live entry exists, which makes it the conditional write.
	if err := m.claims.Add(key, time.Now(), m.ttl); err != nil {
		return false, nil
	}
	return true, nil
}
