package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/demandcast/pkg/httputil"
	"github.com/wonny/demandcast/pkg/logger"
)

func TestWebhook_Publish(t *testing.T) {
	var got Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := httputil.New(logger.Nop(), 5*time.Second).DisableRetry()
	hook := NewWebhook(server.URL, client, zerolog.Nop())

	subject, text := Success("demandcast", "r1", "6 algorithms")
	require.NoError(t, hook.Publish(context.Background(), subject, text))
	assert.Equal(t, "[demandcast] run r1 succeeded", got.Subject)
	assert.Equal(t, "6 algorithms", got.Text)
	assert.False(t, got.SentAt.IsZero())
}

func TestWebhook_PublishRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := httputil.New(logger.Nop(), 5*time.Second).DisableRetry()
	hook := NewWebhook(server.URL, client, zerolog.Nop())

	err := hook.Publish(context.Background(), "s", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestFailure_PointsAtErrorLog(t *testing.T) {
	subject, text := Failure("demandcast", "r1", "kfs_error_log", errors.New("boom"))
	assert.Equal(t, "[demandcast] run r1 failed", subject)
	assert.Contains(t, text, "boom")
	assert.Contains(t, text, "kfs_error_log where run_time_stamp = 'r1'")
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Publish(context.Background(), "s", "m"))
}
