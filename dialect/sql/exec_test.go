package sql

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIdentityInsertProtocol(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Enable, insert, disable, in that order, on one connection.
	mock.ExpectExec(regexp.QuoteMeta("SET IDENTITY_INSERT users ON")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (id, name) VALUES (@p1, @p2)")).
		WithArgs(7, "a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET IDENTITY_INSERT users OFF")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ex := NewExecutor(OpenDB(db).Conn, nil)
	d := Dialect(nil)
	res, err := ex.Exec(context.Background(), d.Insert("users").
		Columns("id", "name").Values(7, "a").Identity("id"))
	require.NoError(t, err)
	require.True(t, res.RowsAffected.Valid)
	assert.Equal(t, int64(1), res.RowsAffected.Int64)
	// An explicit identity value means no generated id to fetch.
	assert.False(t, res.LastInsertID.Valid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityInsertDisabledAfterFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("SET IDENTITY_INSERT users ON")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (id) VALUES (@p1)")).
		WillReturnError(errors.New("duplicate key"))
	// The disabling statement still runs.
	mock.ExpectExec(regexp.QuoteMeta("SET IDENTITY_INSERT users OFF")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ex := NewExecutor(OpenDB(db).Conn, nil, WithExecLogger(discardLogger()))
	d := Dialect(nil)
	_, err = ex.Exec(context.Background(), d.Insert("users").
		Columns("id").Values(7).Identity("id"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate key")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityInsertCleanupFailureSuppressed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("SET IDENTITY_INSERT users ON")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (id) VALUES (@p1)")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET IDENTITY_INSERT users OFF")).
		WillReturnError(errors.New("connection reset"))

	ex := NewExecutor(OpenDB(db).Conn, nil, WithExecLogger(discardLogger()))
	d := Dialect(nil)
	// The primary statement succeeded; the cleanup failure is logged, not
	// returned.
	res, err := ex.Exec(context.Background(), d.Insert("users").
		Columns("id").Values(7).Identity("id"))
	require.NoError(t, err)
	require.True(t, res.RowsAffected.Valid)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentityInsertEnableFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("SET IDENTITY_INSERT users ON")).
		WillReturnError(errors.New("permission denied"))

	ex := NewExecutor(OpenDB(db).Conn, nil, WithExecLogger(discardLogger()))
	d := Dialect(nil)
	_, err = ex.Exec(context.Background(), d.Insert("users").
		Columns("id").Values(7).Identity("id"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLastInsertIDFetch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (name) VALUES (@p1)")).
		WithArgs("a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT scope_identity()")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	ex := NewExecutor(OpenDB(db).Conn, nil)
	d := Dialect(nil)
	res, err := ex.Exec(context.Background(), d.Insert("users").
		Columns("name").Values("a").Identity("id"))
	require.NoError(t, err)
	require.True(t, res.LastInsertID.Valid)
	assert.Equal(t, int64(42), res.LastInsertID.Int64)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLastInsertIDWithoutScopeIdentity(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (name) VALUES (@p1)")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT @@identity")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))

	cap := NewCapability(WithoutScopeIdentity())
	ex := NewExecutor(OpenDB(db).Conn, cap)
	res, err := ex.Exec(context.Background(), Dialect(cap).Insert("users").
		Columns("name").Values("a").Identity("id"))
	require.NoError(t, err)
	require.True(t, res.LastInsertID.Valid)
	assert.Equal(t, int64(9), res.LastInsertID.Int64)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutputClauseSkipsLastID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// OUTPUT returns rows; no follow-up identity query, no rowcount.
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users (name) OUTPUT inserted.id VALUES (@p1)")).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	ex := NewExecutor(OpenDB(db).Conn, nil)
	d := Dialect(nil)
	res, err := ex.Exec(context.Background(), d.Insert("users").
		Columns("name").Values("a").Identity("id").Returning("id"))
	require.NoError(t, err)
	require.NotNil(t, res.Rows)
	assert.False(t, res.LastInsertID.Valid)
	assert.False(t, res.RowsAffected.Valid)
	require.True(t, res.Rows.Next())
	var id int64
	require.NoError(t, res.Rows.Scan(&id))
	assert.Equal(t, int64(7), id)
	require.NoError(t, res.Rows.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMultiRowInsertSkipsLastID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (name) VALUES (@p1), (@p2)")).
		WillReturnResult(sqlmock.NewResult(0, 2))

	cap := NewCapability(WithServerVersion("10.0.2531.0"))
	ex := NewExecutor(OpenDB(db).Conn, cap)
	res, err := ex.Exec(context.Background(), Dialect(cap).Insert("users").
		Columns("name").Values("a").Values("b").Identity("id"))
	require.NoError(t, err)
	assert.False(t, res.LastInsertID.Valid)
	require.True(t, res.RowsAffected.Valid)
	assert.Equal(t, int64(2), res.RowsAffected.Int64)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutorQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT TOP 1 name FROM users")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("a"))

	ex := NewExecutor(OpenDB(db).Conn, nil)
	d := Dialect(nil)
	rows, err := ex.Query(context.Background(), d.Select("name").From(d.Table("users")).Limit(1))
	require.NoError(t, err)
	require.True(t, rows.Next())
	var name string
	require.NoError(t, rows.Scan(&name))
	assert.Equal(t, "a", name)
	require.NoError(t, rows.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutorCompileErrorNoExecution(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ex := NewExecutor(OpenDB(db).Conn, nil)
	d := Dialect(nil)
	_, err = ex.Exec(context.Background(), d.Select("x").From(d.Table("t")).Limit(5).Offset(10))
	require.Error(t, err)
	assert.True(t, IsCompileError(err))
	// Nothing reached the database.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSavepoints(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("IF @@TRANCOUNT = 0 BEGIN TRANSACTION")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SAVE TRANSACTION sp1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("ROLLBACK TRANSACTION sp1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	drv := OpenDB(db)
	tx, err := drv.Tx(context.Background())
	require.NoError(t, err)
	mtx, ok := tx.(*Tx)
	require.True(t, ok)
	require.NoError(t, mtx.Savepoint(context.Background(), "sp1"))
	require.NoError(t, mtx.RollbackTo(context.Background(), "sp1"))
	require.NoError(t, mtx.ReleaseSavepoint(context.Background(), "sp1"))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())

	require.Error(t, mtx.Savepoint(context.Background(), "bad name"))
}

func TestStatsDriverObservesIdentityProtocol(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("SET IDENTITY_INSERT users ON")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (id) VALUES (@p1)")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET IDENTITY_INSERT users OFF")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	drv := NewStatsDriver(OpenDB(db))
	ex := NewExecutor(drv, nil)
	d := Dialect(nil)
	_, err = ex.Exec(context.Background(), d.Insert("users").
		Columns("id").Values(7).Identity("id"))
	require.NoError(t, err)

	// All three protocol statements ran through the wrapper, two of them
	// being the enable/disable round-trips.
	s := drv.QueryStats().Stats()
	assert.Equal(t, int64(3), s.TotalExecs)
	assert.Equal(t, int64(2), s.IdentityRoundTrips)
	assert.Equal(t, int64(0), s.Errors)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutorIsolationLevel(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cap := NewCapability(WithServerVersion("8.0.194"))
	ex := NewExecutor(OpenDB(db).Conn, cap)
	_, err = ex.IsolationLevel(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnsupportedFeature(err))

	mock.ExpectQuery("SELECT CASE transaction_isolation_level").
		WillReturnRows(sqlmock.NewRows([]string{"level"}).AddRow("SNAPSHOT"))
	cap = NewCapability(WithServerVersion("11.0.3000.0"))
	ex = NewExecutor(OpenDB(db).Conn, cap)
	level, err := ex.IsolationLevel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SNAPSHOT", level)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNextSequenceValue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT NEXT VALUE FOR order_seq")).
		WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(int64(5)))

	ex := NewExecutor(OpenDB(db).Conn, nil)
	v, err := ex.NextSequenceValue(context.Background(), "order_seq")
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
	require.NoError(t, mock.ExpectationsWereMet())
}
