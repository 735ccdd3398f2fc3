// Package integration runs the ledger against a real PostgreSQL started with
// testcontainers. Row locks, the unique expiry index and the sequence upsert
// only show their real behaviour there.
package integration

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dairyflow/backend/internal/infrastructure/logger"
	"github.com/dairyflow/backend/internal/infrastructure/migration"
	"github.com/dairyflow/backend/migrations"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ledgerTables are truncated between tests, children first
var ledgerTables = []string{
	"spoilage_records",
	"consumption_records",
	"reservations",
	"batches",
	"materials",
	"batch_code_sequences",
}

// One container per package run; tests isolate through CleanTables
var sharedPG struct {
	sync.Mutex
	container testcontainers.Container
	dsn       string
}

// TestDB is a connection to a migrated ledger database
type TestDB struct {
	DB    *gorm.DB
	SqlDB *sql.DB
	DSN   string

	container testcontainers.Container // set only for dedicated containers
	t         *testing.T
}

// NewTestDB starts a dedicated container. Use it for tests that move the
// schema itself.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	skipShort(t)

	container, dsn := startPostgres(t, "ledger_test")
	tdb := connect(t, dsn)
	tdb.container = container
	migrateUp(t, tdb.SqlDB)
	t.Cleanup(tdb.Close)
	return tdb
}

// NewSharedTestDB connects to the package-wide container, starting and
// migrating it on first use
func NewSharedTestDB(t *testing.T) *TestDB {
	t.Helper()
	skipShort(t)

	dsn := func() string {
		sharedPG.Lock()
		defer sharedPG.Unlock()
		if sharedPG.container == nil {
			sharedPG.container, sharedPG.dsn = startPostgres(t, "ledger_shared_test")
			bootstrap := connect(t, sharedPG.dsn)
			migrateUp(t, bootstrap.SqlDB)
			bootstrap.Close()
		}
		return sharedPG.dsn
	}()

	tdb := connect(t, dsn)
	t.Cleanup(tdb.Close)
	return tdb
}

func (tdb *TestDB) Close() {
	if tdb.SqlDB != nil {
		_ = tdb.SqlDB.Close()
	}
	if tdb.container != nil {
		if err := tdb.container.Terminate(context.Background()); err != nil {
			tdb.t.Logf("terminate container: %v", err)
		}
		tdb.container = nil
	}
}

// CleanTables empties every ledger table in one statement
func (tdb *TestDB) CleanTables() {
	tdb.t.Helper()
	err := tdb.DB.Exec("TRUNCATE TABLE " + strings.Join(ledgerTables, ", ") + " CASCADE").Error
	require.NoError(tdb.t, err, "truncate ledger tables")
}

// CleanupSharedContainer terminates the shared container; TestMain calls it
func CleanupSharedContainer() {
	sharedPG.Lock()
	defer sharedPG.Unlock()
	if sharedPG.container == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = sharedPG.container.Terminate(ctx)
	sharedPG.container, sharedPG.dsn = nil, ""
}

func skipShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("needs docker; skipped in -short")
	}
}

func startPostgres(t *testing.T, dbName string) (testcontainers.Container, string) {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase(dbName),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("dairy123"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "container dsn")
	return container, dsn
}

// connect opens GORM through the service's zap adapter. SQL is logged only
// with TEST_DB_DEBUG set.
func connect(t *testing.T, dsn string) *TestDB {
	t.Helper()

	level := gormlogger.Silent
	if os.Getenv("TEST_DB_DEBUG") != "" {
		level = gormlogger.Info
	}
	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger: logger.NewGormLogger(zaptest.NewLogger(t), level),
	})
	require.NoError(t, err, "connect")

	sqlDB, err := db.DB()
	require.NoError(t, err, "sql.DB")

	// Enough connections for the concurrency tests to actually contend
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return &TestDB{DB: db, SqlDB: sqlDB, DSN: dsn, t: t}
}

func migrateUp(t *testing.T, sqlDB *sql.DB) {
	t.Helper()
	m, err := migration.NewEmbedded(sqlDB, migrations.FS, zap.NewNop())
	require.NoError(t, err, "migrator")
	require.NoError(t, m.Up(), "migrate up")
}
