// Package notify publishes run alerts to a webhook.
// 알림 실패는 파이프라인을 멈추지 않음 (best-effort)
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/demandcast/pkg/httputil"
)

// Message webhook payload
type Message struct {
	Subject string    `json:"subject"`
	Text    string    `json:"text"`
	SentAt  time.Time `json:"sent_at"`
}

// Webhook posts alerts as JSON
type Webhook struct {
	url    string
	client *httputil.Client
	logger zerolog.Logger
}

// NewWebhook creates a webhook publisher
func NewWebhook(url string, client *httputil.Client, logger zerolog.Logger) *Webhook {
	return &Webhook{
		url:    url,
		client: client,
		logger: logger.With().Str("component", "notify.webhook").Logger(),
	}
}

// Publish implements contracts.Notifier
func (w *Webhook) Publish(ctx context.Context, subject, message string) error {
	resp, err := w.client.PostJSON(ctx, w.url, Message{
		Subject: subject,
		Text:    message,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("publish %q: %w", subject, err)
	}
	status := resp.StatusCode
	if err := httputil.DecodeJSON(resp, nil); err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("publish %q: webhook returned %d", subject, status)
	}

	w.logger.Debug().Str("subject", subject).Msg("notification sent")
	return nil
}

// Nop drops every message
type Nop struct{}

func (Nop) Publish(ctx context.Context, subject, message string) error { return nil }

// Success builds the run success alert
func Success(job, runID, detail string) (string, string) {
	return fmt.Sprintf("[%s] run %s succeeded", job, runID), detail
}

// Failure builds the run failure alert pointing at the error log table
func Failure(job, runID, errorTable string, err error) (string, string) {
	subject := fmt.Sprintf("[%s] run %s failed", job, runID)
	text := fmt.Sprintf("%v\nsee %s where run_time_stamp = '%s'", err, errorTable, runID)
	return subject, text
}
