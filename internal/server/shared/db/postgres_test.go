package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubOpen(t *testing.T, fn func(driver, dsn string) (*sql.DB, error)) {
	t.Helper()
	orig := openDB
	openDB = fn
	t.Cleanup(func() { openDB = orig })
}

func TestConnect_OK(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing()

	var gotDriver, gotDSN string
	stubOpen(t, func(driver, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driver, dsn
		return mockDB, nil
	})

	db, err := Connect(context.Background(), "postgres://x", DefaultServerOptions())
	require.NoError(t, err)
	assert.Same(t, mockDB, db)
	assert.Equal(t, "pgx", gotDriver)
	assert.Equal(t, "postgres://x", gotDSN)
	assert.Equal(t, 10, db.Stats().MaxOpenConnections)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnect_OpenError(t *testing.T) {
	stubOpen(t, func(string, string) (*sql.DB, error) { return nil, errors.New("bad dsn") })

	_, err := Connect(context.Background(), "x", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db open error")
}

func TestConnect_PingError(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing().WillReturnError(errors.New("refused"))
	mock.ExpectClose()

	stubOpen(t, func(string, string) (*sql.DB, error) { return mockDB, nil })

	_, err = Connect(context.Background(), "x", DefaultServerOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db ping error")
	require.NoError(t, mock.ExpectationsWereMet())
}
