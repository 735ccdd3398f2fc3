package persistence

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dairyflow/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newPingableDatabase(t *testing.T) (*Database, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB, DriverName: "postgres"}),
		&gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return &Database{DB: gormDB}, mock
}

func TestDatabase_PingContext(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		db, mock := newPingableDatabase(t)
		defer db.Close()

		mock.ExpectPing()

		assert.NoError(t, db.PingContext(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("down", func(t *testing.T) {
		db, mock := newPingableDatabase(t)
		defer db.Close()

		mock.ExpectPing().WillReturnError(assert.AnError)

		assert.ErrorIs(t, db.PingContext(context.Background()), assert.AnError)
	})
}

func TestDatabase_PoolStats(t *testing.T) {
	db, _ := newPingableDatabase(t)
	defer db.Close()

	stats, err := db.PoolStats()

	require.NoError(t, err)
	assert.Equal(t, stats.OpenConnections, stats.InUse+stats.Idle)
}

func TestDatabase_Close(t *testing.T) {
	db, mock := newPingableDatabase(t)

	mock.ExpectClose()

	assert.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_UnreachableServer(t *testing.T) {
	if testing.Short() {
		t.Skip("dials a closed port")
	}
	cfg := &config.DatabaseConfig{
		Host:         "127.0.0.1",
		Port:         1,
		User:         "dairy",
		DBName:       "ledger",
		SSLMode:      "disable",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}

	_, err := Open(cfg, WithoutPreparedStatements())

	require.Error(t, err)
}

func TestOptions(t *testing.T) {
	c := &gorm.Config{PrepareStmt: true}
	WithoutPreparedStatements()(c)
	assert.False(t, c.PrepareStmt)

	WithLogger(gormlogger.Discard)(c)
	assert.Equal(t, gormlogger.Discard, c.Logger)
}
