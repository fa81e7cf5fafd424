package reliability

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/custodian/internal/database"
)

func TestMaintenanceJobRunsCleanOnHealthyDatabase(t *testing.T) {
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "maintenance.db"),
		Profile: database.ProfileCache,
		Name:    "classification",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Conn().Exec(`CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)`)
	require.NoError(t, err)
	_, err = db.Conn().Exec(`INSERT INTO kv (k, v) VALUES ('a', 'b')`)
	require.NoError(t, err)

	job := NewMaintenanceJob(db, zerolog.Nop())

	assert.Equal(t, "database_maintenance", job.Name())
	assert.NoError(t, job.Run())
}
