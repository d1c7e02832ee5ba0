package tasks

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/hugh/go-accounts/internal/database/models"
	"github.com/hugh/go-accounts/pkg/queue"
)

// Enqueuer is the part of *asynq.Client the dispatcher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher hands verification emails to the worker through the queue.
type Dispatcher struct {
	client Enqueuer
}

func NewDispatcher(client Enqueuer) *Dispatcher {
	return &Dispatcher{client: client}
}

func (d *Dispatcher) SendVerificationEmail(ctx context.Context, email models.UserEmail) error {
	task, err := NewSendVerificationTask(SendVerificationPayload{
		UserEmailID: email.ID,
		UserID:      email.UserID,
	})
	if err != nil {
		return fmt.Errorf("building verification task: %w", err)
	}

	_, err = d.client.EnqueueContext(ctx, task,
		asynq.Queue(queue.QueueCritical),
		asynq.MaxRetry(5),
	)
	if err != nil {
		return fmt.Errorf("enqueueing verification for %s: %w", email.Email, err)
	}
	return nil
}
