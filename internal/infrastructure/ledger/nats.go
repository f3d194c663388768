package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// NATS keeps claims in a JetStream key-value bucket. Create only succeeds
// when the key is absent, and the bucket TTL expires claims.
type NATS struct {
	create func(ctx context.Context, key string, value []byte) (uint64, error)
}

// NewNATS creates or updates the claims bucket with retention as TTL.
func NewNATS(ctx context.Context, js jetstream.JetStream, bucket string, retention time.Duration) (*NATS, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "content pipeline processing claims",
		TTL:         retention,
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("create kv bucket %s: %w", bucket, err)
	}
	return &NATS{create: func(ctx context.Context, key string, value []byte) (uint64, error) {
		return kv.Create(ctx, key, value)
	}}, nil
}

func (n *NATS) Claim(ctx context.Context, link string) (bool, error) {
	key := strings.TrimSpace(link)
	if key == "" {
		return false, ErrEmptyLink
	}

	value := []byte(time.Now().UTC().Format(time.RFC3339Nano) + " " + key)
	if _, err := n.create(ctx, claimKey(key), value); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return false, nil
		}
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return true, nil
}

// claimKey maps a link onto the restricted KV key alphabet.
func claimKey(link string) string {
	sum := sha256.Sum256([]byte(link))
	return hex.EncodeToString(sum[:])
}
