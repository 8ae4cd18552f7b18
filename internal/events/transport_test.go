package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t"}, nil
}

func TestAsynqPublisherTreatsTaskIDConflictAsPublished(t *testing.T) {
	q := &fakeEnqueuer{}
	pub := NewAsynqPublisher(q)
	env := mustEnvelope(t, TypeInvoiceIssued, InvoiceIssued{InvoiceID: 3})
	require.NoError(t, pub.Publish(context.Background(), env))
	require.Len(t, q.tasks, 1)
	require.Equal(t, string(TypeInvoiceIssued), q.tasks[0].Type())

	q.err = asynq.ErrTaskIDConflict
	require.NoError(t, pub.Publish(context.Background(), env))
}

func TestTaskHandlerSkipsRetryOnPermanent(t *testing.T) {
	bus := NewBus(nil, quiet)
	bus.Subscribe(TypeDispenseCompleted, func(context.Context, Envelope) error {
		return Permanent(errors.New("no open period"))
	})
	bus.Subscribe(TypeInvoiceIssued, func(context.Context, Envelope) error {
		return errors.New("connection reset")
	})
	h := TaskHandler(bus, quiet)

	raw, err := json.Marshal(mustEnvelope(t, TypeDispenseCompleted, DispenseCompleted{DispenseID: 1}))
	require.NoError(t, err)
	err = h(context.Background(), asynq.NewTask(string(TypeDispenseCompleted), raw))
	require.ErrorIs(t, err, asynq.SkipRetry)

	raw, err = json.Marshal(mustEnvelope(t, TypeInvoiceIssued, InvoiceIssued{InvoiceID: 1}))
	require.NoError(t, err)
	err = h(context.Background(), asynq.NewTask(string(TypeInvoiceIssued), raw))
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)

	err = h(context.Background(), asynq.NewTask(string(TypeInvoiceIssued), []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = h(context.Background(), asynq.NewTask(string(TypeDispenseCompleted), raw))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestKafkaConsumerRetriesTransientAndCommits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	good, err := json.Marshal(mustEnvelope(t, TypePaymentReceived, PaymentReceived{PaymentID: 1}))
	require.NoError(t, err)
	rejected, err := json.Marshal(mustEnvelope(t, TypeDispenseCompleted, DispenseCompleted{DispenseID: 1}))
	require.NoError(t, err)
	reader := &fakeReader{cancel: cancel, msgs: []kafka.Message{
		{Offset: 1, Value: good},
		{Offset: 2, Value: []byte("not json")},
		{Offset: 3, Value: rejected},
	}}

	attempts := 0
	bus := NewBus(nil, quiet)
	bus.Subscribe(TypePaymentReceived, func(context.Context, Envelope) error {
		attempts++
		if attempts < 3 {
			return errors.New("deadlock detected")
		}
		return nil
	})
	bus.Subscribe(TypeDispenseCompleted, func(context.Context, Envelope) error {
		return Permanent(errors.New("configuration"))
	})

	consumer := NewKafkaConsumer(reader, bus, quiet)
	consumer.WithBackoff(time.Millisecond, 2*time.Millisecond)
	require.NoError(t, consumer.Run(ctx))
	require.Equal(t, 3, attempts)
	require.Equal(t, []int64{1, 2, 3}, reader.committed)
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisherKeysByHospital(t *testing.T) {
	w := &fakeWriter{}
	env := mustEnvelope(t, TypeBedChargeAccrued, BedChargeAccrued{EncounterID: 2})
	env.HospitalID = 42
	require.NoError(t, NewKafkaPublisher(w).Publish(context.Background(), env))
	require.Len(t, w.msgs, 1)
	require.Equal(t, "42", string(w.msgs[0].Key))

	back, err := ParseEnvelope(w.msgs[0].Value)
	require.NoError(t, err)
	require.Equal(t, env.ID, back.ID)
}
