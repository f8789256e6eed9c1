// Package notify delivers user-facing messages for the appointment service.
// Dispatch is queue-backed: the API process enqueues, the notify-worker
// delivers. A broken notifier can therefore never delay or fail a booking.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	TaskDeliver = "notification:deliver"
	Queue       = "notifications"
)

type Payload struct {
	RecipientID uuid.UUID `json:"recipient_id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
}

// NewDeliverTask builds the asynq task for one notification.
func NewDeliverTask(recipientID uuid.UUID, title, body string) (*asynq.Task, error) {
	data, err := json.Marshal(Payload{
		RecipientID: recipientID,
		Title:       title,
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal notification payload: %w", err)
	}
	return asynq.NewTask(TaskDeliver, data), nil
}

// QueueSender enqueues notifications for the notify-worker. Retries after
// enqueue are asynq's responsibility.
type QueueSender struct {
	client *asynq.Client
}

func NewQueueSender(client *asynq.Client) *QueueSender {
	return &QueueSender{client: client}
}

func (s *QueueSender) Send(ctx context.Context, recipientID uuid.UUID, title, body string) error {
	task, err := NewDeliverTask(recipientID, title, body)
	if err != nil {
		return err
	}

	_, err = s.client.EnqueueContext(ctx, task,
		asynq.Queue(Queue),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// LogSender just logs the notification. Used in dev mode when no queue is
// configured.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, recipientID uuid.UUID, title, body string) error {
	s.log.Info("notification",
		zap.String("recipient_id", recipientID.String()),
		zap.String("title", title),
		zap.String("body", body),
	)
	return nil
}
