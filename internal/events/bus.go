package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Handler processes one event.
type Handler func(ctx context.Context, env Envelope) error

// Dispatcher routes an envelope to its handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, env Envelope) error
}

// Publisher hands envelopes to a transport.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// MetricsPort counts dispatch outcomes.
type MetricsPort interface {
	ObserveEvent(eventType, outcome string)
}

// Bus is the in-process dispatcher. Deliveries already handled are
// acknowledged without calling the handler. A delivery whose twin is still
// running fails with ErrDeliveryInFlight so the transport retries it.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type]Handler
	guard    *Guard
	metrics  MetricsPort
	logger   *slog.Logger
}

// NewBus constructs a Bus. A nil guard disables delivery deduplication.
func NewBus(guard *Guard, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{handlers: make(map[Type]Handler), guard: guard, logger: logger}
}

// WithMetrics attaches dispatch counters.
func (b *Bus) WithMetrics(m MetricsPort) {
	b.metrics = m
}

// Subscribe registers h for typ, replacing any earlier handler.
func (b *Bus) Subscribe(typ Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[typ] = h
}

// Dispatch implements Dispatcher.
func (b *Bus) Dispatch(ctx context.Context, env Envelope) error {
	b.mu.RLock()
	h, ok := b.handlers[env.Type]
	b.mu.RUnlock()
	if !ok {
		b.observe(env.Type, "unrouted")
		return Permanent(fmt.Errorf("%w: %s", ErrNoHandler, env.Type))
	}
	logger := b.logger.With(slog.String("event_id", env.ID), slog.String("event_type", string(env.Type)))

	state, err := b.guard.Acquire(ctx, env.ID)
	if err != nil {
		// the ledger's own source idempotency still protects us
		logger.Warn("event guard unavailable", slog.Any("error", err))
		state = GuardAcquired
	}
	switch state {
	case GuardSeen:
		logger.Debug("duplicate delivery skipped")
		b.observe(env.Type, "duplicate")
		return nil
	case GuardBusy:
		logger.Debug("delivery in flight elsewhere")
		b.observe(env.Type, "busy")
		return ErrDeliveryInFlight
	}
	if err := h(ctx, env); err != nil {
		if relErr := b.guard.Release(ctx, env.ID); relErr != nil {
			logger.Warn("release event guard", slog.Any("error", relErr))
		}
		if IsPermanent(err) {
			b.observe(env.Type, "rejected")
		} else {
			b.observe(env.Type, "retry")
		}
		return err
	}
	if err := b.guard.Complete(ctx, env.ID); err != nil {
		logger.Warn("complete event guard", slog.Any("error", err))
	}
	logger.Debug("event handled")
	b.observe(env.Type, "handled")
	return nil
}

func (b *Bus) observe(typ Type, outcome string) {
	if b.metrics != nil {
		b.metrics.ObserveEvent(string(typ), outcome)
	}
}

// Publish dispatches synchronously, letting the Bus act as an in-process Publisher.
func (b *Bus) Publish(ctx context.Context, env Envelope) error {
	return b.Dispatch(ctx, env)
}
