package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engagic/ingest/pkg/config"
)

func TestNewService_DisabledReturnsNil(t *testing.T) {
	assert.Nil(t, NewService(config.NotifyConfig{Enabled: false, WebhookURL: "https://hooks.example/x"}))
	assert.Nil(t, NewService(config.NotifyConfig{Enabled: true, WebhookURL: ""}))
}

func TestNilService_MethodsAreNoOps(t *testing.T) {
	var s *Service
	assert.NotPanics(t, func() {
		s.NotifyCityFailed(context.Background(), "springfield-il", errors.New("boom"))
		s.NotifyFullSyncCompleted(context.Background(), 5, 1, time.Minute)
		s.NotifyQueueStalled(context.Background(), 12)
	})
}

func TestNotifyCityFailed_PostsWebhook(t *testing.T) {
	var received payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewService(config.NotifyConfig{Enabled: true, WebhookURL: server.URL})
	require.NotNil(t, s)

	s.NotifyCityFailed(context.Background(), "springfield-il", errors.New("timeout"))
	assert.Contains(t, received.Text, "springfield-il")
	assert.Equal(t, "springfield-il", received.Data["banana"])
}
