package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func TestPostgres_SetUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresWithPool(mock)
	value := testResult("https://example.com/hotel")
	payload, err := json.Marshal(value)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO fetch_cache").
		WithArgs("cache-key", payload, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Set(context.Background(), "cache-key", value, time.Hour))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetDecodesPayload(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresWithPool(mock)
	value := testResult("https://example.com/hotel")
	payload, err := json.Marshal(value)
	require.NoError(t, err)

	expiresAt := time.Now().UTC().Add(30 * time.Minute)
	mock.ExpectQuery("SELECT payload, expires_at FROM fetch_cache").
		WithArgs("cache-key").
		WillReturnRows(pgxmock.NewRows([]string{"payload", "expires_at"}).AddRow(payload, expiresAt))

	got, gotExpiry, ok, err := store.Get(context.Background(), "cache-key")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, value.URL, got.URL)
	require.Equal(t, value.StatusCode, got.StatusCode)
	require.Equal(t, expiresAt, gotExpiry)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetMissOnNoRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresWithPool(mock)

	mock.ExpectQuery("SELECT payload, expires_at FROM fetch_cache").
		WithArgs("absent").
		WillReturnError(pgx.ErrNoRows)

	_, _, ok, err := store.Get(context.Background(), "absent")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteRemovesRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresWithPool(mock)

	mock.ExpectExec("DELETE FROM fetch_cache").
		WithArgs("cache-key").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, store.Delete(context.Background(), "cache-key"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetSurfacesQueryErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresWithPool(mock)

	mock.ExpectQuery("SELECT payload, expires_at FROM fetch_cache").
		WithArgs("cache-key").
		WillReturnError(errors.New("connection reset"))

	_, _, _, err = store.Get(context.Background(), "cache-key")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
