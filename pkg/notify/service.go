// Package notify sends best-effort operational alerts for the
// conductor's sync and queue-drain loops, following the teacher's
// nil-safe, fail-open Slack service: a disabled or misconfigured
// notifier is a valid, silent no-op rather than a startup error.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/engagic/ingest/pkg/config"
)

// Service posts JSON alerts to a configured webhook. A nil *Service is
// valid and every method on it is a no-op, so callers never need to
// check whether notifications are enabled before using one.
type Service struct {
	webhookURL string
	client     *http.Client
	logger     *slog.Logger
}

// NewService builds a Service from cfg, returning nil when notifications
// are disabled or no webhook URL is configured -- mirroring the
// teacher's pattern of a nil-safe Slack client rather than an error.
func NewService(cfg config.NotifyConfig) *Service {
	if !cfg.Enabled || cfg.WebhookURL == "" {
		return nil
	}
	return &Service{
		webhookURL: cfg.WebhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     slog.Default().With("component", "notify"),
	}
}

type payload struct {
	Text string         `json:"text"`
	Data map[string]any `json:"data,omitempty"`
}

// NotifyCityFailed reports that a city's fetch-and-sync attempt failed
// repeatedly, the one alert worth waking someone up for: every other
// failure mode here is retried or dead-lettered silently.
func (s *Service) NotifyCityFailed(ctx context.Context, banana string, cause error) {
	if s == nil {
		return
	}
	s.post(ctx, payload{
		Text: fmt.Sprintf("sync failed for city %s: %v", banana, cause),
		Data: map[string]any{"banana": banana, "error": cause.Error()},
	})
}

// NotifyFullSyncCompleted reports a completed sweep's headline numbers.
func (s *Service) NotifyFullSyncCompleted(ctx context.Context, citiesSynced, citiesFailed int, duration time.Duration) {
	if s == nil {
		return
	}
	s.post(ctx, payload{
		Text: fmt.Sprintf("full sync completed: %d cities synced, %d failed, took %s", citiesSynced, citiesFailed, duration.Round(time.Second)),
		Data: map[string]any{"cities_synced": citiesSynced, "cities_failed": citiesFailed, "duration_seconds": duration.Seconds()},
	})
}

// NotifyQueueStalled reports a processing-queue backlog of pending jobs.
// Nothing in the conductor calls it or watches a backlog threshold.
func (s *Service) NotifyQueueStalled(ctx context.Context, pending int) {
	if s == nil {
		return
	}
	s.post(ctx, payload{
		Text: fmt.Sprintf("processing queue backlog: %d pending jobs", pending),
		Data: map[string]any{"pending": pending},
	})
}

func (s *Service) post(ctx context.Context, p payload) {
	body, err := json.Marshal(p)
	if err != nil {
		s.logger.Error("marshal notification", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		s.logger.Error("build notification request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("send notification", "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.logger.Error("notification webhook rejected", "status", resp.StatusCode)
	}
}
