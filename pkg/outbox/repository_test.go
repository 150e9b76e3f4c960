package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/payswitch-backend/pkg/db/models"
	"github.com/angelmondragon/payswitch-backend/pkg/db/sqlitetest"
	"github.com/angelmondragon/payswitch-backend/pkg/enums"
	"github.com/angelmondragon/payswitch-backend/pkg/logger"
)

func TestServiceEmitStoresEnvelope(t *testing.T) {
	conn := sqlitetest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, logger.Nop())

	aggregateID := uuid.New()
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventAccountSwitched,
			AggregateType: enums.AggregateMerchantAccount,
			AggregateID:   aggregateID,
			Actor:         &ActorRef{Kind: enums.ActorAdmin, Subject: "ops@example.com"},
			Data:          map[string]string{"reason": "manual"},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, aggregateID, rows[0].AggregateID)
	assert.Nil(t, rows[0].PublishedAt)
	assert.Contains(t, string(rows[0].Payload), `"reason":"manual"`)
	assert.Contains(t, string(rows[0].Payload), `"kind":"admin"`)

	pending, err := repo.CountPending(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)
}

func TestServiceEmitRollsBackWithCaller(t *testing.T) {
	conn := sqlitetest.Open(t)
	svc := NewService(NewRepository(conn), logger.Nop())

	boom := errors.New("ledger write failed")
	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventMonthlyReset,
			AggregateType: enums.AggregateResetRun,
			AggregateID:   uuid.New(),
			Data:          struct{}{},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestServiceEmitRejectsUnknownTypes(t *testing.T) {
	conn := sqlitetest.Open(t)
	svc := NewService(NewRepository(conn), nil)

	err := svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.OutboxEventType("nope"),
		AggregateType: enums.AggregateMerchantAccount,
		AggregateID:   uuid.New(),
	})
	require.Error(t, err)

	err = svc.Emit(context.Background(), nil, DomainEvent{})
	require.Error(t, err)
}

func TestRepositoryFailureBacksOffAndParks(t *testing.T) {
	conn := sqlitetest.Open(t)
	repo := NewRepository(conn)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return base }

	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventAllocationFailed,
		AggregateType: enums.AggregateMerchantAccount,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{}`),
	}
	require.NoError(t, repo.Insert(conn, event))

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, repo.MarkFailedTx(conn, event.ID, errors.New("pubsub down")))

	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, rows, "row should wait for its retry delay")

	repo.now = func() time.Time { return base.Add(RetryDelay(1) + time.Second) }
	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)
	assert.Equal(t, "pubsub down", *rows[0].LastError)

	require.NoError(t, repo.MarkTerminalTx(conn, event.ID, errors.New("bad payload"), 3))
	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRepositoryDeletePublishedBefore(t *testing.T) {
	conn := sqlitetest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	old := time.Now().UTC().Add(-40 * 24 * time.Hour)
	published := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventMonthlyReset, AggregateType: enums.AggregateResetRun, AggregateID: uuid.New(), Payload: []byte(`{}`), PublishedAt: &old}
	parked := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventMonthlyReset, AggregateType: enums.AggregateResetRun, AggregateID: uuid.New(), Payload: []byte(`{}`), AttemptCount: 7}
	fresh := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventMonthlyReset, AggregateType: enums.AggregateResetRun, AggregateID: uuid.New(), Payload: []byte(`{}`)}
	for _, row := range []models.OutboxEvent{published, parked, fresh} {
		require.NoError(t, repo.Insert(conn, row))
	}
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("id = ?", parked.ID).Update("created_at", old).Error)

	deleted, err := repo.DeletePublishedBefore(ctx, conn, time.Now().UTC().Add(-30*24*time.Hour), 5)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	var remaining []models.OutboxEvent
	require.NoError(t, conn.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, fresh.ID, remaining[0].ID)
}

func TestDLQRepositoryRoundTrip(t *testing.T) {
	conn := sqlitetest.Open(t)
	repo := NewDLQRepository(conn)
	ctx := context.Background()

	eventID := uuid.New()
	msg := "publish rejected"
	require.NoError(t, repo.InsertTx(conn, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventGatewaySyncFailed,
		AggregateType: enums.AggregateMerchantAccount,
		AggregateID:   uuid.New(),
		Topic:         "notifications",
		Payload:       []byte(`{}`),
		ErrorReason:   enums.OutboxDLQReasonNonRetryable,
		ErrorMessage:  &msg,
		AttemptCount:  1,
		FailedAt:      time.Now().UTC(),
	}))

	found, err := repo.FindByEventID(ctx, eventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, found.ErrorReason)

	missing, err := repo.FindByEventID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	list, err := repo.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRetryDelayCaps(t *testing.T) {
	assert.Equal(t, time.Duration(0), RetryDelay(0))
	assert.Equal(t, 5*time.Second, RetryDelay(1))
	assert.Equal(t, 10*time.Second, RetryDelay(2))
	assert.Equal(t, 10*time.Minute, RetryDelay(20))
}
