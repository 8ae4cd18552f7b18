package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// QueueEvents is the asynq queue carrying finance events.
const QueueEvents = "finance-events"

// Enqueuer is the subset of *asynq.Client used for publishing.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqPublisher publishes envelopes as asynq tasks named after the event type.
type AsynqPublisher struct {
	client Enqueuer
	queue  string
}

// NewAsynqPublisher constructs the publisher.
func NewAsynqPublisher(client Enqueuer) *AsynqPublisher {
	return &AsynqPublisher{client: client, queue: QueueEvents}
}

// Publish implements Publisher. The envelope id doubles as the task id, so a
// re-published event is not queued twice.
func (p *AsynqPublisher) Publish(ctx context.Context, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	task := asynq.NewTask(string(env.Type), raw)
	_, err = p.client.EnqueueContext(ctx, task, asynq.Queue(p.queue), asynq.TaskID(env.ID), asynq.MaxRetry(10))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// TaskHandler adapts a Dispatcher to asynq. Permanent failures skip retry.
func TaskHandler(d Dispatcher, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		env, err := ParseEnvelope(t.Payload())
		if err == nil && string(env.Type) != t.Type() {
			err = Permanent(fmt.Errorf("events: task %s carries %s envelope", t.Type(), env.Type))
		}
		if err == nil {
			err = d.Dispatch(ctx, env)
		}
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			logger.Error("event rejected", slog.String("task", t.Type()), slog.Any("error", err))
			return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
		}
		logger.Warn("event failed, will retry", slog.String("task", t.Type()), slog.Any("error", err))
		return err
	}
}
