package events

import (
	"context"
	"log/slog"

	"github.com/panjf2000/ants/v2"
)

// Pool bounds how many events are processed at once. Dispatch blocks until
// the wrapped dispatcher finishes so transports can ack on the result.
type Pool struct {
	next   Dispatcher
	pool   *ants.Pool
	logger *slog.Logger
}

// NewPool wraps next with a worker pool of size workers.
func NewPool(next Dispatcher, size int, logger *slog.Logger) (*Pool, error) {
	if size <= 0 {
		size = 8
	}
	p, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{next: next, pool: p, logger: logger}, nil
}

// Dispatch implements Dispatcher.
func (p *Pool) Dispatch(ctx context.Context, env Envelope) error {
	result := make(chan error, 1)
	if err := p.pool.Submit(func() {
		result <- p.next.Dispatch(ctx, env)
	}); err != nil {
		p.logger.Error("submit event to pool", slog.String("event_id", env.ID), slog.Any("error", err))
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports busy workers.
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Release stops accepting work.
func (p *Pool) Release() {
	p.logger.Info("releasing event pool", slog.Int("running", p.pool.Running()))
	p.pool.Release()
}
