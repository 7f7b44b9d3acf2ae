package database

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T, dsn string, recreate bool) *sqlx.DB {
	t.Helper()
	db, err := Open(context.Background(), Options{Driver: DriverSQLite, DSN: dsn, RecreateSchema: recreate})
	require.NoError(t, err)
	return db
}

func countRows(t *testing.T, db *sqlx.DB, query string) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, query))
	return n
}

func TestOpenRunsMigrationsOnce(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "audit.db")

	db := openTestDB(t, dsn, false)
	assert.Equal(t, 1, countRows(t, db, "SELECT COUNT(*) FROM migrations"))
	assert.Equal(t, 0, countRows(t, db, `SELECT COUNT(*) FROM "AuditEntries"`))
	require.NoError(t, db.Close())

	// Reopening must not re-apply anything.
	db = openTestDB(t, dsn, false)
	defer db.Close()
	assert.Equal(t, 1, countRows(t, db, "SELECT COUNT(*) FROM migrations"))
}

func TestRecreateSchemaDropsExistingRows(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "audit.db")

	db := openTestDB(t, dsn, false)
	_, err := db.Exec(`INSERT INTO "AuditEntries" (raw_url, method, ip_address) VALUES ('/weatherforecast', 'GET', '127.0.0.1')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db = openTestDB(t, dsn, false)
	assert.Equal(t, 1, countRows(t, db, `SELECT COUNT(*) FROM "AuditEntries"`))
	require.NoError(t, db.Close())

	db = openTestDB(t, dsn, true)
	defer db.Close()
	assert.Equal(t, 0, countRows(t, db, `SELECT COUNT(*) FROM "AuditEntries"`))
	assert.Equal(t, 1, countRows(t, db, "SELECT COUNT(*) FROM migrations"))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "mysql", DSN: "x"})
	assert.Error(t, err)
}

func TestLoadMigrationsPerDriver(t *testing.T) {
	for _, driver := range []string{DriverSQLite, DriverPostgres} {
		migrations, err := loadMigrations(driver)
		require.NoError(t, err, driver)
		require.NotEmpty(t, migrations, driver)
		assert.Equal(t, "001_create_audit_entries", migrations[0].Version)
		assert.Contains(t, migrations[0].SQL, `"AuditEntries"`)
	}

	_, err := loadMigrations("oracle")
	assert.Error(t, err)
}

func TestRunMigrationsPostgresDialect(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db := sqlx.NewDb(mockDB, DriverPostgres)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM migrations").WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec("GENERATED BY DEFAULT AS IDENTITY").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO migrations (version) VALUES ($1)")).
		WithArgs("001_create_audit_entries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, RunMigrations(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrationsSkipsApplied(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db := sqlx.NewDb(mockDB, DriverPostgres)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("001_create_audit_entries"))

	require.NoError(t, RunMigrations(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDropSchema(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db := sqlx.NewDb(mockDB, DriverPostgres)
	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "AuditEntries"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DROP TABLE IF EXISTS migrations").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, DropSchema(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
