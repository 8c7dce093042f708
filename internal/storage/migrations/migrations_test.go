package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	pg, err := load(PostgresFS, "postgres")
	require.NoError(t, err)
	require.NotEmpty(t, pg)
	assert.Equal(t, "001_selection_audits.sql", pg[0].name)
	assert.Contains(t, pg[0].sql, "selection_audits")

	ch, err := load(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	require.NotEmpty(t, ch)
	assert.Contains(t, ch[0].sql, "candidate_snapshots")

	stmts, err := splitStatements(ch[0].sql)
	require.NoError(t, err)
	assert.Len(t, stmts, 1)
}

func TestSplitStatements(t *testing.T) {
	stmts, err := splitStatements("-- header\nCREATE TABLE a (x String);\n\nINSERT INTO a VALUES ('it''s');\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"CREATE TABLE a (x String)", "INSERT INTO a VALUES ('it''s')"}, stmts)

	_, err = splitStatements("INSERT INTO a VALUES ('x;y');")
	assert.ErrorIs(t, err, ErrSemicolonInString)
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:@localhost:9000/selector")
	require.NoError(t, err)
	assert.Equal(t, "selector", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}
