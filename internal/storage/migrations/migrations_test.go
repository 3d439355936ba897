package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	sql := `
-- header
CREATE TABLE a (x String);

-- second
CREATE TABLE b (
    y String
);
`
	stmts := splitStatements(sql)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x String)", stmts[0])
	assert.True(t, strings.HasPrefix(stmts[1], "CREATE TABLE b ("))
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	assert.NoError(t, validateNoSemicolonInStrings(`SELECT 'it''s'; SELECT 1;`))
	assert.Error(t, validateNoSemicolonInStrings(`SELECT 'a;b'`))
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://localhost:9000/imaigine")
	require.NoError(t, err)
	assert.Equal(t, "imaigine", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	pg, err := sqlFiles(PostgresFS, "postgres")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_job_handles.sql"}, pg)

	data, err := fs.ReadFile(PostgresFS, "postgres/"+pg[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS job_handles")

	stmts, err := clickhouseStatements()
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t, "001_job_events.sql", stmts[0].file)
	assert.Contains(t, stmts[0].sql, "ENGINE = MergeTree()")
}
