/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/apnabank/corebank/config"
	"github.com/apnabank/corebank/internal/request"
	"github.com/apnabank/corebank/model"
)

// EventSystemError is the event type used for operator alerts raised by NotifyError.
const EventSystemError = "system.error"

// Notifier receives lifecycle events once the unit of work that produced them has committed.
type Notifier interface {
	Notify(ctx context.Context, event model.Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, model.Event) error { return nil }

// Multi hands each event to every notifier in order and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event model.Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PostWebhook delivers event to url as a JSON body.
func PostWebhook(ctx context.Context, url string, headers map[string]string, event model.Event) error {
	if url == "" {
		return errors.New("webhook url is not configured")
	}
	_, err := request.PostJSON(ctx, url, headers, event, nil)
	return err
}

// Publisher is the slice of *nats.Conn the event bus needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NatsNotifier publishes each event on "<prefix>.<event type>".
type NatsNotifier struct {
	pub    Publisher
	prefix string
}

func NewNatsNotifier(pub Publisher, prefix string) *NatsNotifier {
	return &NatsNotifier{pub: pub, prefix: prefix}
}

// ConnectNats dials the configured NATS server.
func ConnectNats(url string) (*nats.Conn, error) {
	return nats.Connect(url, nats.Name("corebank"), nats.MaxReconnects(-1), nats.ReconnectWait(2*time.Second))
}

func (n *NatsNotifier) Subject(eventType string) string {
	if n.prefix == "" {
		return eventType
	}
	return n.prefix + "." + eventType
}

func (n *NatsNotifier) Notify(_ context.Context, event model.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := n.pub.Publish(n.Subject(event.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// NotifyError logs systemError and, when a webhook is configured, raises it
// to operators as a system.error event. It never blocks the caller.
func NotifyError(systemError error) {
	go func(systemError error) {
		logrus.Error(systemError)

		conf, err := config.Fetch()
		if err != nil {
			logrus.Error(err)
			return
		}

		webhook := conf.Notification.Webhook
		if webhook.Url == "" {
			return
		}

		event := model.NewEvent(EventSystemError, map[string]string{"error": systemError.Error()}, time.Now().UTC())
		ctx, cancel := context.WithTimeout(context.Background(), request.DefaultTimeout)
		defer cancel()
		if err := PostWebhook(ctx, webhook.Url, webhook.Headers, event); err != nil {
			logrus.WithError(err).Error("failed to deliver system error alert")
		}
	}(systemError)
}
