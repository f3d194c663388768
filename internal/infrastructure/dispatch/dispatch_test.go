package dispatch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ContentPipeline/internal/ports"
)

var (
	_ ports.TaskDispatcher = (*JetStream)(nil)
	_ ports.TaskDispatcher = (*HTTPQueue)(nil)
)

func TestJetStreamDispatchUsesTaskID(t *testing.T) {
	t.Parallel()

	var gotSubject, gotID string
	var gotData []byte
	d := &JetStream{
		publish: func(_ context.Context, subject string, data []byte, msgID string) error {
			gotSubject, gotData, gotID = subject, data, msgID
			return nil
		},
		newID: func() string { return "generated" },
	}

	payload := []byte(`{"task_id":"t-1","posts":["a"]}`)
	require.NoError(t, d.Dispatch(context.Background(), "distribution.social", payload))
	assert.Equal(t, "distribution.social", gotSubject)
	assert.Equal(t, "t-1", gotID)
	assert.Equal(t, payload, gotData)

	require.NoError(t, d.Dispatch(context.Background(), "distribution.social", []byte(`not json`)))
	assert.Equal(t, "generated", gotID)
}

func TestJetStreamDispatchErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("no responders")
	d := &JetStream{
		publish: func(context.Context, string, []byte, string) error { return boom },
		newID:   func() string { return "id" },
	}
	assert.ErrorIs(t, d.Dispatch(context.Background(), "s", []byte(`{}`)), boom)
	assert.ErrorIs(t, d.Dispatch(context.Background(), " ", []byte(`{}`)), ErrNoDestination)
}

func TestHTTPQueueDispatch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/publish/https:%2F%2Fsocial.example%2Fhook", r.URL.EscapedPath())
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "t-9", r.Header.Get("Upstash-Deduplication-Id"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"task_id":"t-9"}`, string(body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	q := NewHTTPQueue(server.URL, "tok")
	require.NoError(t, q.Dispatch(context.Background(), "https://social.example/hook", []byte(`{"task_id":"t-9"}`)))
}

func TestHTTPQueueRejected(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	assert.Error(t, NewHTTPQueue(server.URL, "").Dispatch(context.Background(), "dest", []byte(`{}`)))
}
