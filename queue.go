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

package corebank

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/apnabank/corebank/config"
	"github.com/apnabank/corebank/internal/apierror"
	redis_db "github.com/apnabank/corebank/internal/redis-db"
	"github.com/apnabank/corebank/model"
)

const (
	TypeWebhook  = "corebank:webhook"
	TypeDueCycle = "corebank:due_cycle"
)

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue hands background work to the asynq workers.
type Queue struct {
	client taskEnqueuer
	config *config.Configuration
}

// DueCyclePayload carries the instant a due cycle should run for. A zero
// time means the worker's current time.
type DueCyclePayload struct {
	Now time.Time `json:"now"`
}

// NewQueue initializes a new Queue instance with the provided configuration.
//
// Parameters:
// - conf *config.Configuration: The configuration for the queue.
//
// Returns:
// - *Queue: A pointer to the newly created Queue instance.
// - error: An error if the Redis DNS cannot be parsed.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	opt, err := redis_db.AsynqClientOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	return &Queue{
		client: asynq.NewClient(opt),
		config: conf,
	}, nil
}

func newQueueWithEnqueuer(conf *config.Configuration, client taskEnqueuer) *Queue {
	return &Queue{client: client, config: conf}
}

// EnqueueEvent queues event for webhook delivery. The event id is the task id
// so an event is never delivered twice through the queue.
func (q *Queue) EnqueueEvent(ctx context.Context, event model.Event) error {
	ctx, span := tracer.Start(ctx, "Adding Event To Redis Queue")
	defer span.End()

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeWebhook, payload)
	_, err = q.client.EnqueueContext(ctx, task,
		asynq.TaskID(event.ID),
		asynq.Queue(q.config.Queue.NotificationQueue),
		asynq.MaxRetry(q.config.Queue.MaxRetryAttempts),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"event": event.Type, "event_id": event.ID}).Debug("enqueued webhook")
	return nil
}

// NewDueCycleTask builds the task the periodic scheduler registers.
func NewDueCycleTask(now time.Time) (*asynq.Task, error) {
	payload, err := json.Marshal(DueCyclePayload{Now: now})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDueCycle, payload), nil
}

// EnqueueDueCycle asks a worker to run the due cycle for now.
func (q *Queue) EnqueueDueCycle(ctx context.Context, now time.Time) error {
	task, err := NewDueCycleTask(now)
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueContext(ctx, task,
		asynq.Queue(q.config.Queue.SchedulerQueue),
		asynq.MaxRetry(0),
	)
	return err
}

// ProcessDueCycle is the asynq handler for TypeDueCycle. A cycle that is
// already running elsewhere is not an error.
func (b *Bank) ProcessDueCycle(ctx context.Context, task *asynq.Task) error {
	var payload DueCyclePayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return err
		}
	}
	now := payload.Now
	if now.IsZero() {
		now = b.now()
	}

	_, err := b.RunDueCycle(ctx, now)
	if apierror.IsCode(err, apierror.ErrConflict) {
		logrus.Info("due cycle already running, skipping")
		return nil
	}
	return err
}
