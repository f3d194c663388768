package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/infrastructure/storage"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "contentpipe "+Version+"\n", out)
}

func TestConfigShowMasksSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pipeline:
  batchSize: 3
  siteUrl: https://oursite.example
llm:
  apiKey: sk-secret
`), 0o600))

	out, err := execute(t, "config", "show", "--config", path, "--log-level", "debug")
	require.NoError(t, err)
	assert.Contains(t, out, "batchSize: 3")
	assert.Contains(t, out, "siteUrl: https://oursite.example")
	assert.Contains(t, out, "level: debug")
	assert.Contains(t, out, masked)
	assert.NotContains(t, out, "sk-secret")
}

func TestConfigShowRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  batchSize: 0\n"), 0o600))

	_, err := execute(t, "config", "show", "--config", path)
	assert.Error(t, err)
}

func TestRenderReport(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, time.November, 8, 10, 0, 0, 0, time.UTC)
	out := renderReport(domain.Report{
		RunID:       "run-1",
		Total:       3,
		Processed:   1,
		Skipped:     1,
		Duplicates:  1,
		Aborted:     true,
		AbortReason: "research: generation quota exceeded",
		StartedAt:   start,
		FinishedAt:  start.Add(1500 * time.Millisecond),
	})
	assert.Contains(t, out, "Run run-1")
	assert.Contains(t, out, "Processed")
	assert.Contains(t, out, "generation quota exceeded")
	assert.Contains(t, out, "1.5s")
}

func TestRenderHistory(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "no published articles", renderHistory(nil))

	out := renderHistory([]storage.ArchivedArticle{{
		Article: domain.PublishedArticle{Title: "Hello", URL: "https://oursite.example/hello", PublishedAt: time.Now()},
		RunID:   "run-7",
	}})
	assert.Contains(t, out, "https://oursite.example/hello")
	assert.Contains(t, out, "run-7")
}
