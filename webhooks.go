package corebank

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/apnabank/corebank/config"
	"github.com/apnabank/corebank/internal/notification"
	"github.com/apnabank/corebank/model"
)

// WebhookNotifier delivers events to the configured webhook through the
// notification queue.
type WebhookNotifier struct {
	queue *Queue
}

func NewWebhookNotifier(q *Queue) *WebhookNotifier {
	return &WebhookNotifier{queue: q}
}

func (w *WebhookNotifier) Notify(ctx context.Context, event model.Event) error {
	return w.queue.EnqueueEvent(ctx, event)
}

// ProcessWebhook posts the queued event to the webhook url. Returning an
// error hands the task back to asynq for retry.
func ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	var event model.Event
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		logrus.WithError(err).Error("failed to decode webhook payload")
		return err
	}

	if err := notification.PostWebhook(ctx, conf.Notification.Webhook.Url, conf.Notification.Webhook.Headers, event); err != nil {
		logrus.WithFields(logrus.Fields{"event": event.Type, "event_id": event.ID}).WithError(err).Warn("webhook delivery failed")
		return err
	}
	return nil
}
