package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTables(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validTables = `
providers:
  - id: tradernet
    priority: 10
  - id: ibflex
    priority: 5

scenarios:
  - security_type: EQUITY
    scenario: equity_crash
    severity: 0.5
  - security_type: CASH
    scenario: none
    severity: 0
`

func TestLoadTables(t *testing.T) {
	path := writeTables(t, validTables)

	tables, err := LoadTables(path)
	require.NoError(t, err)

	require.Len(t, tables.Providers, 2)
	assert.Equal(t, "tradernet", tables.Providers[0].ID)
	assert.Equal(t, 10, tables.Providers[0].Priority)
	require.Len(t, tables.Scenarios, 2)
	assert.Equal(t, 0.5, tables.Scenarios[0].Severity)
}

func TestLoadTablesExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_PROVIDER_ID", "tradernet")
	path := writeTables(t, `
providers:
  - id: ${TEST_PROVIDER_ID}
    priority: 1

scenarios:
  - security_type: EQUITY
    scenario: equity_crash
    severity: 0.5
`)

	tables, err := LoadTables(path)
	require.NoError(t, err)
	assert.Equal(t, "tradernet", tables.Providers[0].ID)
}

func TestLoadTablesMissingFile(t *testing.T) {
	_, err := LoadTables(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidateEmptyScenarioTableIsFatal(t *testing.T) {
	path := writeTables(t, `
providers:
  - id: tradernet
    priority: 1
`)

	_, err := LoadTables(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario table is empty")
}

func TestValidateRejectsBadRows(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"duplicate provider", `
providers:
  - id: a
    priority: 1
  - id: a
    priority: 2
scenarios:
  - security_type: EQUITY
    scenario: x
    severity: 0.5
`},
		{"severity out of range", `
scenarios:
  - security_type: EQUITY
    scenario: x
    severity: 1.5
`},
		{"unknown security type", `
scenarios:
  - security_type: WIDGET
    scenario: x
    severity: 0.5
`},
		{"duplicate security type", `
scenarios:
  - security_type: EQUITY
    scenario: x
    severity: 0.5
  - security_type: EQUITY
    scenario: y
    severity: 0.4
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTables(writeTables(t, tt.content))
			require.Error(t, err)
		})
	}
}

func TestPrioritySnapshotDefaults(t *testing.T) {
	table := NewPriorityTable("", []ProviderPriority{{ID: "a", Priority: 7}})
	snap := table.Snapshot()

	assert.Equal(t, 7, snap.Priority("a"))
	assert.Equal(t, 0, snap.Priority("unlisted"))
	assert.False(t, snap.LoadedAt().IsZero())
}

func TestPriorityTableReloadSwapsSnapshot(t *testing.T) {
	path := writeTables(t, validTables)

	tables, err := LoadTables(path)
	require.NoError(t, err)

	table := NewPriorityTable(path, tables.Providers)
	held := table.Snapshot()
	assert.Equal(t, 10, held.Priority("tradernet"))

	// Rewrite the file with different priorities and reload.
	require.NoError(t, os.WriteFile(path, []byte(`
providers:
  - id: tradernet
    priority: 1

scenarios:
  - security_type: EQUITY
    scenario: equity_crash
    severity: 0.5
`), 0644))
	require.NoError(t, table.Reload())

	// The held snapshot is untouched; fresh snapshots see the new value.
	assert.Equal(t, 10, held.Priority("tradernet"))
	assert.Equal(t, 1, table.Snapshot().Priority("tradernet"))
}

func TestPriorityTableReloadKeepsOldSnapshotOnError(t *testing.T) {
	path := writeTables(t, validTables)

	tables, err := LoadTables(path)
	require.NoError(t, err)

	table := NewPriorityTable(path, tables.Providers)

	require.NoError(t, os.WriteFile(path, []byte(`{invalid yaml`), 0644))
	require.Error(t, table.Reload())

	assert.Equal(t, 10, table.Snapshot().Priority("tradernet"))
}
