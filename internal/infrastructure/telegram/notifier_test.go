package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertPostsMessage(t *testing.T) {
	t.Parallel()

	var gotChat, gotText string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotChat = r.PostForm.Get("chat_id")
		gotText = r.PostForm.Get("text")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	n := NewNotifier("TOKEN", "42").WithAPIBase(server.URL)
	require.NoError(t, n.Alert(context.Background(), "quota exceeded"))
	assert.Equal(t, "42", gotChat)
	assert.Equal(t, "quota exceeded", gotText)
}

func TestAlertTruncatesLongMessages(t *testing.T) {
	t.Parallel()

	var gotText string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotText = r.PostForm.Get("text")
	}))
	defer server.Close()

	n := NewNotifier("TOKEN", "42").WithAPIBase(server.URL)
	require.NoError(t, n.Alert(context.Background(), strings.Repeat("é", 5000)))
	assert.Equal(t, maxMessageRunes, utf8.RuneCountInString(gotText))
}

func TestAlertErrors(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, NewNotifier("", "42").Alert(context.Background(), "x"), ErrMisconfigured)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	err := NewNotifier("TOKEN", "42").WithAPIBase(server.URL).Alert(context.Background(), "x")
	assert.Error(t, err)
}
