package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/saraya-erp/saraya-erp/internal/events"
	"github.com/saraya-erp/saraya-erp/jobs"
)

type stubEnqueuer struct {
	tasks []*asynq.Task
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (s *stubEnqueuer) Close() error { return nil }

type stubInspector struct {
	infos map[string]*asynq.QueueInfo
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := s.infos[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func (s stubInspector) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return nil, nil
}

func (s stubInspector) Close() error { return nil }

func TestTriggerBedChargesCarriesDay(t *testing.T) {
	enq := &stubEnqueuer{}
	c := &JobsCLI{client: enq}

	info, err := c.Trigger(context.Background(), JobBedCharges, TriggerOptions{
		Day:     time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		ActorID: 9,
	})
	require.NoError(t, err)
	require.Equal(t, jobs.TaskBedChargeAccrual, info.Type)

	var payload jobs.BedChargePayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Equal(t, "2026-03-14", payload.Day)
	require.Equal(t, int64(9), payload.ActorID)
}

func TestTriggerRejectsUnknownJob(t *testing.T) {
	c := &JobsCLI{client: &stubEnqueuer{}}
	_, err := c.Trigger(context.Background(), "reindex", TriggerOptions{})
	require.ErrorContains(t, err, "unsupported job")
}

func TestInspectQueuesTreatsMissingQueueAsEmpty(t *testing.T) {
	c := &JobsCLI{inspector: stubInspector{infos: map[string]*asynq.QueueInfo{
		jobs.QueueDefault: {Queue: jobs.QueueDefault, Pending: 2, Retry: 1},
	}}}
	stats, err := c.InspectQueues(context.Background())
	require.NoError(t, err)
	require.Equal(t, []QueueStats{
		{Queue: events.QueueEvents},
		{Queue: jobs.QueueDefault, Pending: 2, Retry: 1},
	}, stats)
}

type capturePublisher struct {
	published []events.Envelope
	err       error
}

func (p *capturePublisher) Publish(_ context.Context, env events.Envelope) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, env)
	return nil
}

func TestPublishCommandWrapsPayload(t *testing.T) {
	pub := &capturePublisher{}
	var stdout, stderr bytes.Buffer
	code := NewEventsCLI(pub).PublishCommand(context.Background(), PublishOptions{
		Type:       string(events.TypeDispenseCompleted),
		HospitalID: 4,
		Payload:    strings.NewReader(`{"dispense_id": 12, "hospital_id": 4, "total_cost": "30.000"}`),
		Stdout:     &stdout,
		Stderr:     &stderr,
	})
	require.Equal(t, 0, code, stderr.String())
	require.Len(t, pub.published, 1)
	env := pub.published[0]
	require.Equal(t, int64(4), env.HospitalID)
	require.Contains(t, stdout.String(), env.ID)

	var evt events.DispenseCompleted
	require.NoError(t, env.Decode(&evt))
	require.Equal(t, int64(12), evt.DispenseID)
}

func TestPublishCommandValidatesInput(t *testing.T) {
	pub := &capturePublisher{}
	cases := []PublishOptions{
		{Type: "finance:unknown", HospitalID: 1, Payload: strings.NewReader(`{}`)},
		{Type: string(events.TypePaymentReceived), HospitalID: 0, Payload: strings.NewReader(`{}`)},
		{Type: string(events.TypePaymentReceived), HospitalID: 1, Payload: strings.NewReader(`{not json`)},
	}
	for _, opts := range cases {
		var stderr bytes.Buffer
		opts.Stdout, opts.Stderr = &bytes.Buffer{}, &stderr
		require.Equal(t, 2, NewEventsCLI(pub).PublishCommand(context.Background(), opts))
		require.NotEmpty(t, stderr.String())
	}
	require.Empty(t, pub.published)

	pub.err = errors.New("redis down")
	var stderr bytes.Buffer
	code := NewEventsCLI(pub).PublishCommand(context.Background(), PublishOptions{
		Type: string(events.TypePaymentReceived), HospitalID: 1, Payload: strings.NewReader(`{}`),
		Stdout: &bytes.Buffer{}, Stderr: &stderr,
	})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "redis down")
}
