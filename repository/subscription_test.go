package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/wordweave/services/event/models"
)

func TestUpsertCreatesNewSubscription(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewSubscriptionRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "event_subscriptions" WHERE consumer_group = \$1`).
		WithArgs("search_indexer", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "event_subscriptions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	subscription, err := repo.Upsert(context.Background(), "search_indexer", []string{"post.created", "post.updated"}, "http://indexer/hook")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, subscription.Status)

	eventTypes, err := DecodeEventTypes(subscription)
	require.NoError(t, err)
	assert.Equal(t, []string{"post.created", "post.updated"}, eventTypes)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertReactivatesExistingSubscription(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewSubscriptionRepository(db)

	existing := sqlmock.NewRows([]string{"id", "consumer_group", "event_types", "callback_url", "status"}).
		AddRow(5, "search_indexer", []byte(`["post.created"]`), "", models.SubscriptionInactive)

	mock.ExpectQuery(`SELECT \* FROM "event_subscriptions" WHERE consumer_group = \$1`).
		WithArgs("search_indexer", 1).
		WillReturnRows(existing)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "event_subscriptions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	subscription, err := repo.Upsert(context.Background(), "search_indexer", []string{"post.created", "post.deleted"}, "http://indexer/hook")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, subscription.Status)
	assert.Equal(t, "http://indexer/hook", subscription.CallbackURL)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateUnknownGroup(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewSubscriptionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "event_subscriptions" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.Deactivate(context.Background(), "nobody")
	require.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveSubscriptions(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewSubscriptionRepository(db)

	rows := sqlmock.NewRows([]string{"id", "consumer_group", "event_types", "status"}).
		AddRow(1, "event_service", []byte(`["user.deleted","post.deleted"]`), models.SubscriptionActive).
		AddRow(2, "search_indexer", []byte(`["post.created"]`), models.SubscriptionActive)

	mock.ExpectQuery(`SELECT \* FROM "event_subscriptions" WHERE status = \$1`).
		WithArgs(models.SubscriptionActive).
		WillReturnRows(rows)

	subscriptions, err := repo.ActiveSubscriptions(context.Background())
	require.NoError(t, err)
	require.Len(t, subscriptions, 2)
	assert.Equal(t, "event_service", subscriptions[0].ConsumerGroup)

	assert.NoError(t, mock.ExpectationsWereMet())
}
