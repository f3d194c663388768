package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ContentPipeline/internal/infrastructure/storage"
	"ContentPipeline/internal/ports"
)

var (
	_ ports.Ledger = (*Memory)(nil)
	_ ports.Ledger = (*SQLite)(nil)
	_ ports.Ledger = (*NATS)(nil)
)

func newSQLite(t *testing.T, retention time.Duration) *SQLite {
	t.Helper()
	db, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLite(db, retention)
}

func assertAtMostOnce(t *testing.T, l ports.Ledger) {
	t.Helper()

	const workers = 16
	var (
		wg      sync.WaitGroup
		granted atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.Claim(context.Background(), "https://example.com/a")
			if err == nil && ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), granted.Load())
}

func TestMemoryClaim(t *testing.T) {
	t.Parallel()

	l := NewMemory(time.Hour)
	ctx := context.Background()

	ok, err := l.Claim(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Claim(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Claim(ctx, "https://example.com/b")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = l.Claim(ctx, "  ")
	assert.ErrorIs(t, err, ErrEmptyLink)
}

func TestMemoryClaimExpires(t *testing.T) {
	t.Parallel()

	l := NewMemory(20 * time.Millisecond)
	ctx := context.Background()

	ok, err := l.Claim(ctx, "https://example.com/a")
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)

	ok, err = l.Claim(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryConcurrentClaim(t *testing.T) {
	t.Parallel()
	assertAtMostOnce(t, NewMemory(time.Hour))
}

func TestSQLiteClaim(t *testing.T) {
	t.Parallel()

	l := newSQLite(t, time.Hour)
	ctx := context.Background()

	ok, err := l.Claim(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Claim(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteClaimReclaimsAfterExpiry(t *testing.T) {
	t.Parallel()

	l := newSQLite(t, time.Hour)
	ctx := context.Background()
	base := time.Date(2025, time.November, 8, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	ok, err := l.Claim(ctx, "https://example.com/a")
	require.NoError(t, err)
	require.True(t, ok)

	l.now = func() time.Time { return base.Add(30 * time.Minute) }
	ok, err = l.Claim(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.False(t, ok)

	l.now = func() time.Time { return base.Add(2 * time.Hour) }
	ok, err = l.Claim(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.True(t, ok)

	l.now = func() time.Time { return base.Add(5 * time.Hour) }
	removed, err := l.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestSQLiteConcurrentClaim(t *testing.T) {
	t.Parallel()
	assertAtMostOnce(t, newSQLite(t, time.Hour))
}

func TestNATSClaim(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		keys = map[string][]byte{}
	)
	n := &NATS{create: func(_ context.Context, key string, value []byte) (uint64, error) {
		mu.Lock()
		defer mu.Unlock()
		if _, ok := keys[key]; ok {
			return 0, jetstream.ErrKeyExists
		}
		keys[key] = value
		return uint64(len(keys)), nil
	}}

	ctx := context.Background()
	ok, err := n.Claim(ctx, "https://example.com/a?x=1&y=2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = n.Claim(ctx, "https://example.com/a?x=1&y=2")
	require.NoError(t, err)
	assert.False(t, ok)

	for key := range keys {
		assert.Len(t, key, 64)
	}

	assertAtMostOnce(t, n)
}

func TestNATSClaimPropagatesErrors(t *testing.T) {
	t.Parallel()

	n := &NATS{create: func(context.Context, string, []byte) (uint64, error) {
		return 0, jetstream.ErrBucketNotFound
	}}
	_, err := n.Claim(context.Background(), "https://example.com/a")
	assert.ErrorIs(t, err, jetstream.ErrBucketNotFound)
}
