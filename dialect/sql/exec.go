package sql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/syssam/velox-mssql/dialect"
)

// ExecResult is the outcome of executing a compiled statement. LastInsertID
// and RowsAffected are valid only where the statement produced them: a
// statement with an OUTPUT clause returns rows and leaves both unset.
type ExecResult struct {
	LastInsertID NullInt64
	RowsAffected NullInt64
	Rows         *Rows // result rows for SELECT and OUTPUT statements
}

// Executor executes compiled statements on a connection, running the
// identity-insert protocol around INSERTs that supply explicit identity
// values.
//
// SET IDENTITY_INSERT is session state, so the protocol pins one connection
// for its three statements when running against a pool. The executor accepts
// any dialect.ExecQuerier; wrapping drivers (Debug, StatsDriver) observe
// every protocol statement.
type Executor struct {
	conn   dialect.ExecQuerier
	cap    *Capability
	logger *slog.Logger
}

// connPinner is implemented by connections that can pin one underlying
// connection for a sequence of statements.
type connPinner interface {
	pin(ctx context.Context) (dialect.ExecQuerier, func() error, error)
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecLogger sets the logger cleanup failures are reported to.
func WithExecLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = l
	}
}

// NewExecutor returns an Executor over the given connection. A nil
// capability uses the conservative default.
func NewExecutor(conn dialect.ExecQuerier, cap *Capability, opts ...ExecutorOption) *Executor {
	if cap == nil {
		cap = defaultCapability
	}
	e := &Executor{conn: conn, cap: cap, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Exec compiles and executes the querier.
func (e *Executor) Exec(ctx context.Context, q Querier) (*ExecResult, error) {
	st, err := Compile(q)
	if err != nil {
		return nil, err
	}
	return e.ExecStatement(ctx, st)
}

// Query compiles and executes the querier, returning its rows.
func (e *Executor) Query(ctx context.Context, q Querier) (*Rows, error) {
	st, err := Compile(q)
	if err != nil {
		return nil, err
	}
	rows := &Rows{}
	if err := e.conn.Query(ctx, st.Text, st.Args, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ExecStatement executes a compiled statement.
//
// An INSERT that supplies an explicit value for the table's identity column
// runs as three statements on one pinned connection: SET IDENTITY_INSERT ON,
// the INSERT, and SET IDENTITY_INSERT OFF. The OFF statement runs
// unconditionally, on a background context, even when the INSERT fails or
// the caller's context is already canceled; a failure to turn it off never
// masks the primary error and is logged as a CleanupError.
//
// A single-row INSERT into a table with an identity column, with no OUTPUT
// clause and no explicit identity value, is followed by a last-id fetch via
// scope_identity() (or @@identity, per the capability).
func (e *Executor) ExecStatement(ctx context.Context, st *Statement) (res *ExecResult, rerr error) {
	conn := e.conn
	enable := st.Kind == KindInsert && st.SuppliesIdentity
	if enable {
		if p, ok := conn.(connPinner); ok {
			pinned, release, err := p.pin(ctx)
			if err != nil {
				return nil, fmt.Errorf("mssql: pin connection: %w", err)
			}
			conn = pinned
			if release != nil {
				defer func() { _ = release() }()
			}
		}
		if err := conn.Exec(ctx, "SET IDENTITY_INSERT "+st.Table+" ON", []any{}, nil); err != nil {
			return nil, fmt.Errorf("mssql: enable identity insert on %s: %w", st.Table, err)
		}
		defer func() {
			offCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := conn.Exec(offCtx, "SET IDENTITY_INSERT "+st.Table+" OFF", []any{}, nil); err != nil {
				cerr := &CleanupError{Table: st.Table, Err: err}
				e.logger.LogAttrs(ctx, slog.LevelError, "identity insert cleanup failed",
					slog.String("table", st.Table),
					slog.Any("error", cerr))
			}
		}()
	}
	res = &ExecResult{}
	switch {
	case st.Kind == KindSelect || st.Returning:
		rows := &Rows{}
		if err := conn.Query(ctx, st.Text, st.Args, rows); err != nil {
			return nil, err
		}
		res.Rows = rows
		return res, nil
	default:
		var r Result
		if err := conn.Exec(ctx, st.Text, st.Args, &r); err != nil {
			return nil, err
		}
		if n, err := r.RowsAffected(); err == nil {
			res.RowsAffected = NullInt64{Int64: n, Valid: true}
		}
	}
	if st.Kind == KindInsert && st.IdentityColumn != "" && !enable && !st.MultiRow {
		id, err := e.lastInsertID(ctx, conn)
		if err != nil {
			return nil, err
		}
		res.LastInsertID = id
	}
	return res, nil
}

// lastInsertID reads the identity value generated by the previous INSERT.
func (e *Executor) lastInsertID(ctx context.Context, conn dialect.ExecQuerier) (NullInt64, error) {
	query := "SELECT scope_identity()"
	if !e.cap.UseScopeIdentity() {
		query = "SELECT @@identity"
	}
	rows := &Rows{}
	if err := conn.Query(ctx, query, []any{}, rows); err != nil {
		return NullInt64{}, fmt.Errorf("mssql: fetch last insert id: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return NullInt64{}, nil
	}
	var id NullInt64
	if err := rows.Scan(&id); err != nil {
		return NullInt64{}, fmt.Errorf("mssql: fetch last insert id: %w", err)
	}
	return id, nil
}

// NextSequenceValue advances the named sequence and returns its value.
func (e *Executor) NextSequenceValue(ctx context.Context, seq string) (int64, error) {
	rows := &Rows{}
	if err := e.conn.Query(ctx, "SELECT NEXT VALUE FOR "+defaultPreparer.Ident(seq), []any{}, rows); err != nil {
		return 0, fmt.Errorf("mssql: next value for %s: %w", seq, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, fmt.Errorf("mssql: next value for %s: empty result", seq)
	}
	var v int64
	if err := rows.Scan(&v); err != nil {
		return 0, fmt.Errorf("mssql: next value for %s: %w", seq, err)
	}
	return v, nil
}

// IsolationLevel reads the isolation level of the current session. Servers
// that predate sys.dm_exec_sessions (2005) cannot report it.
func (e *Executor) IsolationLevel(ctx context.Context) (string, error) {
	if !e.cap.SupportsIsolationLevelIntrospection() {
		return "", NewUnsupportedFeatureError("isolation level introspection", e.cap.versionString())
	}
	return queryIsolationLevel(ctx, e.conn)
}

// pin returns a connection that stays the same for consecutive statements.
// Transactions already are one; a pool hands out a pinned sql.Conn with its
// release function.
func (c Conn) pin(ctx context.Context) (dialect.ExecQuerier, func() error, error) {
	switch e := c.ExecQuerier.(type) {
	case *sql.DB:
		conn, err := e.Conn(ctx)
		if err != nil {
			return nil, nil, err
		}
		return Conn{conn}, conn.Close, nil
	default:
		return c, nil, nil
	}
}

// Savepoint creates a named savepoint. SQL Server savepoints require an
// active transaction; the preamble opens one when the session has none.
func (tx *Tx) Savepoint(ctx context.Context, name string) error {
	if !isValidOption(name) {
		return fmt.Errorf("mssql: invalid savepoint name: %q", name)
	}
	if err := tx.Exec(ctx, "IF @@TRANCOUNT = 0 BEGIN TRANSACTION", []any{}, nil); err != nil {
		return err
	}
	return tx.Exec(ctx, "SAVE TRANSACTION "+defaultPreparer.Ident(name), []any{}, nil)
}

// RollbackTo rolls the transaction back to the named savepoint.
func (tx *Tx) RollbackTo(ctx context.Context, name string) error {
	if !isValidOption(name) {
		return fmt.Errorf("mssql: invalid savepoint name: %q", name)
	}
	return tx.Exec(ctx, "ROLLBACK TRANSACTION "+defaultPreparer.Ident(name), []any{}, nil)
}

// ReleaseSavepoint is a no-op: SQL Server has no RELEASE SAVEPOINT.
func (tx *Tx) ReleaseSavepoint(context.Context, string) error { return nil }
