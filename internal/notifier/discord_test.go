package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscordNotifier_Notify(t *testing.T) {
	var got map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewDiscordNotifier(srv.URL).Notify(context.Background(), "youtube.com is asking for bot verification")
	require.NoError(t, err)
	assert.Equal(t, "youtube.com is asking for bot verification", got["content"])
}

func TestDiscordNotifier_TruncatesLongContent(t *testing.T) {
	var got map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	require.NoError(t, NewDiscordNotifier(srv.URL).Notify(context.Background(), strings.Repeat("é", 3000)))
	assert.Len(t, []rune(got["content"]), maxContentLen)
}

func TestDiscordNotifier_Errors(t *testing.T) {
	t.Run("no webhook", func(t *testing.T) {
		err := (&DiscordNotifier{}).Notify(context.Background(), "hi")
		require.ErrorIs(t, err, ErrNoWebhook)
	})

	t.Run("non 2xx", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		err := NewDiscordNotifier(srv.URL).Notify(context.Background(), "hi")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := NewDiscordNotifier("http://127.0.0.1:1").Notify(ctx, "hi")
		require.ErrorIs(t, err, context.Canceled)
	})
}
