package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ContentPipeline/internal/config"
	"ContentPipeline/internal/infrastructure/telegram"
	"ContentPipeline/internal/logging"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.SQLitePath = filepath.Join(dir, "pipeline.db")
	cfg.Pipeline.RunLockPath = filepath.Join(dir, "run.lock")
	cfg.LLM.APIKey = "test-key"
	cfg.Publisher.Endpoint = "http://127.0.0.1:1"
	cfg.Sites = nil
	return cfg
}

func TestNewRequiresPublisher(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Publisher.Endpoint = ""

	_, err := New(context.Background(), cfg, logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publisher.endpoint")
}

func TestNewRequiresLLMKey(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.LLM.APIKey = ""

	_, err := New(context.Background(), cfg, logging.Discard())
	assert.Error(t, err)
}

func TestRunWithNoCandidates(t *testing.T) {
	t.Parallel()

	application, err := New(context.Background(), testConfig(t), logging.Discard())
	require.NoError(t, err)
	defer application.Close()

	report, err := application.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Total)
	assert.NotEmpty(t, report.RunID)

	history, err := application.History(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRunSkipsWhenLockHeld(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	application, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer application.Close()

	other := flock.New(cfg.Pipeline.RunLockPath)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer other.Unlock()

	_, err = application.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)
}

func TestMemoryLedgerWithRemoteDedupeHasNoHistory(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Storage.Driver = config.DriverMemory
	cfg.Dedupe.Backend = config.DedupeRemote
	cfg.Dedupe.Endpoint = "http://127.0.0.1:1"

	application, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer application.Close()

	_, err = application.History(context.Background(), 5)
	assert.Error(t, err)
}

func TestNewAlerter(t *testing.T) {
	t.Parallel()

	log := logging.Discard()
	assert.IsType(t, logAlerter{}, newAlerter(config.TelegramConfig{}, log))
	assert.IsType(t, &telegram.Notifier{}, newAlerter(config.TelegramConfig{BotToken: "t", ChatID: "1"}, log))
	assert.NoError(t, logAlerter{logger: log}.Alert(context.Background(), "hello"))
}
