package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tenderwatch/internal/tender"
)

func TestNewListingStoreWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewListingStoreWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewListingStoreWithPool(mock, "bad; drop table")
	require.Error(t, err)

	store, err := NewListingStoreWithPool(mock, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultTable, store.table)
}

func TestNewListingStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewListingStore(context.Background(), Config{})
	require.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewListingStoreWithPool(mock, "history")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS history").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRunCopiesRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewListingStoreWithPool(mock, "tender_listings")
	require.NoError(t, err)

	at := time.Unix(1700000000, 0).UTC()
	conf := 0.91
	listings := []tender.Listing{
		{Title: "A", Organization: "Org", Link: "https://www.merx.com/a", Page: 1, ScrapedAt: at},
		{Title: "B", Page: 2, ScrapedAt: at, PredictedCategory: "IT Services", Confidence: &conf},
	}

	mock.ExpectCopyFrom(pgx.Identifier{"tender_listings"}, historyColumns).WillReturnResult(2)

	require.NoError(t, store.StoreRun(context.Background(), "run-1", listings))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRunCopyErrors(t *testing.T) {
	t.Parallel()

	t.Run("copy fails", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		store, err := NewListingStoreWithPool(mock, "")
		require.NoError(t, err)

		boom := errors.New("constraint violation")
		mock.ExpectCopyFrom(pgx.Identifier{DefaultTable}, historyColumns).WillReturnError(boom)

		err = store.StoreRun(context.Background(), "run-2", []tender.Listing{{Title: "A"}})
		require.ErrorIs(t, err, boom)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("short copy", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		store, err := NewListingStoreWithPool(mock, "")
		require.NoError(t, err)

		mock.ExpectCopyFrom(pgx.Identifier{DefaultTable}, historyColumns).WillReturnResult(1)

		err = store.StoreRun(context.Background(), "run-2", []tender.Listing{{Title: "A"}, {Title: "B"}})
		require.ErrorContains(t, err, "stored 1 of 2 listings")
	})
}

func TestStoreRunSkipsEmptyAndRequiresID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewListingStoreWithPool(mock, "")
	require.NoError(t, err)

	require.NoError(t, store.StoreRun(context.Background(), "run-3", nil))
	require.Error(t, store.StoreRun(context.Background(), "", []tender.Listing{{Title: "A"}}))
	require.NoError(t, mock.ExpectationsWereMet())
}
