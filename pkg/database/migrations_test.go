package database

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var migrationName = regexp.MustCompile(`^(\d{6})_[a-z0-9_]+\.(up|down)\.sql$`)

func TestMigrationFilesArePairedAndSequential(t *testing.T) {
	entries, err := os.ReadDir(filepath.Join("..", "..", "migrations"))
	require.NoError(t, err)

	directions := map[string]map[string]bool{}
	for _, entry := range entries {
		match := migrationName.FindStringSubmatch(entry.Name())
		require.NotNil(t, match, "unexpected file %s", entry.Name())
		if directions[match[1]] == nil {
			directions[match[1]] = map[string]bool{}
		}
		directions[match[1]][match[2]] = true
	}
	require.NotEmpty(t, directions)

	for i := 1; i <= len(directions); i++ {
		version := fmt.Sprintf("%06d", i)
		dirs, ok := directions[version]
		require.True(t, ok, "missing migration %s", version)
		assert.True(t, dirs["up"], "%s has no up migration", version)
		assert.True(t, dirs["down"], "%s has no down migration", version)
	}
}

func TestInsightStoreMigrationMatchesRepositoryColumns(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "..", "migrations", "000002_create_insight_store.up.sql"))
	require.NoError(t, err)
	schema := string(raw)

	for _, column := range []string{"kind", "signal", "confidence", "actions", "data_points", "data_snapshot", "student_ids",
		"generated_at", "applied_action", "applied_at", "active", "created_by", "outcome_success", "outcome_impact"} {
		assert.Contains(t, schema, "    "+column+" ", column)
	}
	assert.Contains(t, schema, "UNIQUE (insight_id, action)")
}
