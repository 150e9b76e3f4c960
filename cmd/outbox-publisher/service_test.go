package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/payswitch-backend/pkg/config"
	"github.com/angelmondragon/payswitch-backend/pkg/db/models"
	"github.com/angelmondragon/payswitch-backend/pkg/enums"
	"github.com/angelmondragon/payswitch-backend/pkg/logger"
	"github.com/angelmondragon/payswitch-backend/pkg/outbox"
	"github.com/angelmondragon/payswitch-backend/pkg/outbox/registry"
)

func switchedEvent(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	data, err := json.Marshal(map[string]any{"reason": "auto"})
	require.NoError(t, err)
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Actor:      &outbox.ActorRef{Kind: enums.ActorSystem},
		Data:       data,
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventAccountSwitched,
		AggregateType: enums.AggregateMerchantAccount,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
	}
}

type harness struct {
	repo    *fakeRepo
	dlq     *fakeDLQ
	pub     *fakePublisher
	metrics *fakeMetrics
	svc     *Service
}

func newHarness(t *testing.T, events []models.OutboxEvent, results ...error) *harness {
	t.Helper()
	reg, err := registry.NewEventRegistry(config.PubSubConfig{NotificationTopic: "payswitch-notifications"})
	require.NoError(t, err)

	h := &harness{
		repo:    &fakeRepo{events: events},
		dlq:     &fakeDLQ{},
		pub:     &fakePublisher{results: results},
		metrics: &fakeMetrics{},
	}
	h.svc, err = NewService(ServiceParams{
		Outbox:     config.OutboxConfig{BatchSize: 10, PollIntervalMS: 10, MaxAttempts: 3},
		Logger:     logger.Nop(),
		DB:         fakeDB{},
		PubSub:     fakeDB{},
		Repository: h.repo,
		DLQ:        h.dlq,
		Registry:   reg,
		Publishers: func(topic string) publisher {
			if topic != "payswitch-notifications" {
				return nil
			}
			return h.pub
		},
		Metrics: h.metrics,
	})
	require.NoError(t, err)
	return h
}

func TestProcessBatchPublishesAndTagsAttributes(t *testing.T) {
	event := switchedEvent(t, 0)
	h := newHarness(t, []models.OutboxEvent{event}, nil)

	processed, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, []uuid.UUID{event.ID}, h.repo.published)
	require.Len(t, h.pub.messages, 1)

	attrs := h.pub.messages[0].Attributes
	assert.Equal(t, string(enums.EventAccountSwitched), attrs["event_type"])
	assert.Equal(t, event.AggregateID.String(), attrs["aggregate_id"])
	assert.Equal(t, "system", attrs["actor_kind"])
	assert.Equal(t, []string{string(enums.EventAccountSwitched)}, h.metrics.published)
}

func TestProcessBatchContinuesAfterTransientFailure(t *testing.T) {
	first, second := switchedEvent(t, 0), switchedEvent(t, 0)
	h := newHarness(t, []models.OutboxEvent{first, second}, errors.New("unavailable"), nil)

	processed, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, processed)
	assert.Equal(t, []uuid.UUID{first.ID}, h.repo.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, h.repo.published)
	assert.Empty(t, h.dlq.entries)
}

func TestProcessBatchDeadLettersUnknownEvents(t *testing.T) {
	event := switchedEvent(t, 0)
	event.AggregateType = enums.AggregateResetRun
	h := newHarness(t, []models.OutboxEvent{event})

	_, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, h.dlq.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, h.dlq.entries[0].ErrorReason)
	assert.Equal(t, event.Payload, h.dlq.entries[0].Payload)
	assert.Equal(t, []uuid.UUID{event.ID}, h.repo.terminal)
	assert.Empty(t, h.pub.messages)
}

func TestProcessBatchDeadLettersAfterMaxAttempts(t *testing.T) {
	event := switchedEvent(t, 2)
	h := newHarness(t, []models.OutboxEvent{event}, errors.New("still down"))

	_, err := h.svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, h.dlq.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, h.dlq.entries[0].ErrorReason)
	assert.Equal(t, []string{string(enums.OutboxDLQReasonMaxAttempts)}, h.metrics.deadLettered)
	assert.Empty(t, h.repo.failed)
}

func TestProcessBatchSurfacesBookkeepingErrors(t *testing.T) {
	h := newHarness(t, []models.OutboxEvent{switchedEvent(t, 0)}, nil)
	h.repo.markErr = errors.New("db gone")

	_, err := h.svc.processBatch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark published")
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := h.svc.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
	markErr   error
	fetched   bool
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	if f.fetched {
		return nil, nil
	}
	f.fetched = true
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDLQ struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQ) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakePublisher struct {
	results  []error
	messages []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	var err error
	if len(f.results) > 0 {
		err, f.results = f.results[0], f.results[1:]
	}
	return fakeResult{err: err}
}

type fakeResult struct{ err error }

func (r fakeResult) Get(context.Context) (string, error) { return "msg-1", r.err }

type fakeMetrics struct {
	published    []string
	failed       []string
	deadLettered []string
}

func (m *fakeMetrics) IncPublished(eventType string) { m.published = append(m.published, eventType) }
func (m *fakeMetrics) IncFailed(eventType string)    { m.failed = append(m.failed, eventType) }
func (m *fakeMetrics) IncDeadLettered(reason string) { m.deadLettered = append(m.deadLettered, reason) }
