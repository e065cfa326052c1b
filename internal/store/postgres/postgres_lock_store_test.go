package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresLockStore_CreateLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresLockStore(db)

	mock.ExpectExec("INSERT INTO talkvault_schema.locks").
		WithArgs("library-write").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO talkvault_schema.locks").
		WithArgs("library-write").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.CreateLock(context.Background(), "library-write")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CreateLock(context.Background(), "library-write")
	require.NoError(t, err)
	assert.False(t, ok, "second insert must conflict")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLockStore_CreateLock_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresLockStore(db)
	mock.ExpectExec("INSERT INTO talkvault_schema.locks").WillReturnError(errors.New("connection reset"))

	ok, err := s.CreateLock(context.Background(), "library-write")
	assert.False(t, ok)
	assert.ErrorContains(t, err, "connection reset")
}

func TestPostgresLockStore_DeleteLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresLockStore(db)
	mock.ExpectExec("DELETE FROM talkvault_schema.locks WHERE name").
		WithArgs("thumbnail-hash").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.DeleteLock(context.Background(), "thumbnail-hash"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLockStore_DeleteAllLocks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresLockStore(db)
	mock.ExpectExec("DELETE FROM talkvault_schema.locks").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := s.DeleteAllLocks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestPostgresLockStore_ListLocks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresLockStore(db)
	now := time.Now()
	mock.ExpectQuery("SELECT name, created_at FROM talkvault_schema.locks").
		WillReturnRows(sqlmock.NewRows([]string{"name", "created_at"}).
			AddRow("library-write", now).
			AddRow("thumbnail-hash", now))

	locks, err := s.ListLocks(context.Background())
	require.NoError(t, err)
	require.Len(t, locks, 2)
	assert.Equal(t, "library-write", locks[0].Name)
	assert.Equal(t, now, locks[0].CreatedAt)
}
