package migration

import (
	"io/fs"
	"testing"

	"github.com/dairyflow/backend/internal/infrastructure/persistence/models"
	"github.com/dairyflow/backend/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tabler interface {
	TableName() string
}

// The SQL schema is what production runs; the GORM models are what the code
// reads and writes. Keep them naming the same tables.
func TestEmbeddedSchemaCoversModels(t *testing.T) {
	up, err := fs.ReadFile(migrations.FS, "000001_ledger.up.sql")
	require.NoError(t, err)
	down, err := fs.ReadFile(migrations.FS, "000001_ledger.down.sql")
	require.NoError(t, err)

	for _, m := range models.AllModels() {
		table := m.(tabler).TableName()
		assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS "+table+" (", table)
		assert.Contains(t, string(down), "DROP TABLE IF EXISTS "+table+";", table)
	}
	assert.Contains(t, string(up), "idx_batches_fifo ON batches (material_id, status, received_date)")
	assert.Contains(t, string(up), "UNIQUE INDEX IF NOT EXISTS idx_spoilage_records_expiry_key")
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	got, err := ListMigrations("../../../migrations")
	require.NoError(t, err)

	require.NotEmpty(t, got)
	assert.Equal(t, "000001_ledger", got[0].String())
	for _, m := range got {
		assert.True(t, m.HasUp && m.HasDown, m.String())
	}
}
