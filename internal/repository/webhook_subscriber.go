package repository

import (
	"context"
	"time"

	"PulseDeck/internal/domain/models"
	pkghttp "PulseDeck/pkg/http"
)

// WebhookSubscriber POSTs terminal outcome events to an external HTTP
// endpoint (UI backend, notifier). Delivery is at-least-once; receivers
// are expected to dedupe on signal_id.
type WebhookSubscriber struct {
	client *pkghttp.Client
	url    string
}

// NewWebhookSubscriber creates a webhook outcome subscriber for the given URL.
func NewWebhookSubscriber(url string) *WebhookSubscriber {
	return &WebhookSubscriber{
		client: pkghttp.NewClient(pkghttp.WithTimeout(10 * time.Second)),
		url:    url,
	}
}

func (s *WebhookSubscriber) Name() string { return "webhook_outcomes" }

func (s *WebhookSubscriber) HandleOutcome(ctx context.Context, ev models.OutcomeEvent) error {
	return s.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodPost,
		URL:    s.url,
		Body:   ev,
	}, nil)
}
