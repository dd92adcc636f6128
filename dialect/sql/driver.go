package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/denisenkom/go-mssqldb"

	"github.com/syssam/velox-mssql/dialect"
)

// validOptionRe validates session option names (SET <name> <value>).
var validOptionRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidOption(s string) bool {
	return s != "" && len(s) <= 128 && validOptionRe.MatchString(s)
}

// Driver is a dialect.Driver for SQL Server.
type Driver struct {
	Conn
	dialect string
}

// NewDriver creates a new Driver with the given Conn.
func NewDriver(c Conn) *Driver {
	return &Driver{dialect: dialect.SQLServer, Conn: c}
}

// Open opens a connection through the go-mssqldb driver and returns a
// dialect.Driver.
func Open(source string) (*Driver, error) {
	db, err := sql.Open(dialect.SQLServer, source)
	if err != nil {
		return nil, err
	}
	return NewDriver(Conn{db}), nil
}

// OpenDB wraps the given database/sql.DB with a Driver.
func OpenDB(db *sql.DB) *Driver {
	return NewDriver(Conn{db})
}

// DB returns the underlying *sql.DB instance.
func (d Driver) DB() *sql.DB {
	return d.ExecQuerier.(*sql.DB)
}

// Dialect implements the dialect.Dialect method.
func (d Driver) Dialect() string {
	// The underlying driver may be wrapped with a telemetry driver.
	if strings.HasPrefix(d.dialect, dialect.SQLServer) {
		return dialect.SQLServer
	}
	return d.dialect
}

// Tx starts and returns a transaction.
func (d *Driver) Tx(ctx context.Context) (dialect.Tx, error) {
	return d.BeginTx(ctx, nil)
}

// BeginTx starts a transaction with options.
func (d *Driver) BeginTx(ctx context.Context, opts *TxOptions) (dialect.Tx, error) {
	tx, err := d.DB().BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{
		Conn: Conn{tx},
		Tx:   tx,
	}, nil
}

// Close closes the underlying connection.
func (d *Driver) Close() error { return d.DB().Close() }

// Tx implements dialect.Tx interface.
type Tx struct {
	Conn
	driver.Tx
}

// ctxOptionsKey is the key used for attaching and reading session options.
type ctxOptionsKey struct{}

// sessionOptions holds session options to set before every statement.
type sessionOptions struct {
	opts []struct{ k, v string }
}

// WithSessionOption returns a new context under which every statement runs
// with "SET <name> <value>" applied first, e.g. ("LOCK_TIMEOUT", "5000").
// When the statement runs outside a transaction, the option is applied on a
// pinned connection and reset to its server default before the connection
// returns to the pool.
func WithSessionOption(ctx context.Context, name, value string) context.Context {
	so, _ := ctx.Value(ctxOptionsKey{}).(sessionOptions)
	so.opts = append(so.opts, struct {
		k, v string
	}{
		k: name,
		v: value,
	})
	return context.WithValue(ctx, ctxOptionsKey{}, so)
}

// WithIntSessionOption calls WithSessionOption with the string representation
// of the value.
func WithIntSessionOption(ctx context.Context, name string, value int) context.Context {
	return WithSessionOption(ctx, name, strconv.Itoa(value))
}

// WithLockTimeout sets the LOCK_TIMEOUT session option, in milliseconds.
func WithLockTimeout(ctx context.Context, d time.Duration) context.Context {
	return WithIntSessionOption(ctx, "LOCK_TIMEOUT", int(d.Milliseconds()))
}

// SessionOptionFromContext returns the session option value from the context.
func SessionOptionFromContext(ctx context.Context, name string) (string, bool) {
	so, _ := ctx.Value(ctxOptionsKey{}).(sessionOptions)
	for _, s := range so.opts {
		if s.k == name {
			return s.v, true
		}
	}
	return "", false
}

// optionDefaults are the server defaults the known session options reset to
// when the pinned connection is released.
var optionDefaults = map[string]string{
	"LOCK_TIMEOUT": "-1",
	"DATEFIRST":    "7",
	"TEXTSIZE":     "-1",
}

// ExecQuerier wraps the standard Exec and Query methods.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn implements dialect.ExecQuerier given ExecQuerier.
type Conn struct {
	ExecQuerier
}

// Exec implements the dialect.Exec method.
func (c Conn) Exec(ctx context.Context, query string, args, v any) (rerr error) {
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	ex, cf, err := c.maySetOptions(ctx)
	if err != nil {
		return fmt.Errorf("dialect/sql: exec: set session options: %w", err)
	}
	if cf != nil {
		defer func() { rerr = errors.Join(rerr, cf()) }()
	}
	switch v := v.(type) {
	case nil:
		if _, err := ex.ExecContext(ctx, query, argv...); err != nil {
			return fmt.Errorf("dialect/sql: exec: %w", err)
		}
	case *sql.Result:
		res, err := ex.ExecContext(ctx, query, argv...)
		if err != nil {
			return fmt.Errorf("dialect/sql: exec: %w", err)
		}
		*v = res
	default:
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Result", v)
	}
	return nil
}

// Query implements the dialect.Query method.
func (c Conn) Query(ctx context.Context, query string, args, v any) error {
	vr, ok := v.(*Rows)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Rows", v)
	}
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	ex, cf, err := c.maySetOptions(ctx)
	if err != nil {
		return fmt.Errorf("dialect/sql: query: set session options: %w", err)
	}
	rows, err := ex.QueryContext(ctx, query, argv...)
	if err != nil {
		if cf != nil {
			err = errors.Join(err, cf())
		}
		return fmt.Errorf("dialect/sql: query: %w", err)
	}
	*vr = Rows{rows}
	if cf != nil {
		vr.ColumnScanner = rowsWithCloser{rows, cf}
	}
	return nil
}

// maySetOptions applies session options from the context before executing a
// statement. Statements inside a transaction run on the transaction
// connection; otherwise a connection is pinned and returned to the pool with
// the known options reset.
func (c Conn) maySetOptions(ctx context.Context) (ExecQuerier, func() error, error) {
	so, _ := ctx.Value(ctxOptionsKey{}).(sessionOptions)
	if len(so.opts) == 0 {
		return c, nil, nil
	}
	var (
		ex    ExecQuerier  // Underlying ExecQuerier.
		cf    func() error // Close function.
		reset []string     // Reset statements.
		seen  = make(map[string]struct{}, len(so.opts))
	)
	switch e := c.ExecQuerier.(type) {
	case *sql.Tx:
		ex = e
	case *sql.DB:
		conn, err := e.Conn(ctx)
		if err != nil {
			return nil, nil, err
		}
		ex, cf = conn, conn.Close
	default:
		return nil, nil, fmt.Errorf("unsupported ExecQuerier type: %T", c.ExecQuerier)
	}
	for _, s := range so.opts {
		// Validate the option name to prevent SQL injection.
		if !isValidOption(s.k) {
			if cf != nil {
				_ = cf()
			}
			return nil, nil, fmt.Errorf("invalid session option name: %q", s.k)
		}
		if !isValidOption(strings.TrimPrefix(s.v, "-")) && !validOptionValue(s.v) {
			if cf != nil {
				_ = cf()
			}
			return nil, nil, fmt.Errorf("invalid session option value: %q", s.v)
		}
		if _, ok := seen[s.k]; !ok {
			if def, ok := optionDefaults[strings.ToUpper(s.k)]; ok {
				reset = append(reset, fmt.Sprintf("SET %s %s", s.k, def))
			}
			seen[s.k] = struct{}{}
		}
		if _, err := ex.ExecContext(ctx, fmt.Sprintf("SET %s %s", s.k, s.v)); err != nil {
			if cf != nil {
				err = errors.Join(err, cf())
			}
			return nil, nil, err
		}
	}
	// If there are options to reset, and the connection returns to the
	// pool, clean them up on a background context with a timeout so the
	// reset completes even if the original context was canceled.
	if cls := cf; cf != nil && len(reset) > 0 {
		cf = func() error {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for _, q := range reset {
				if _, err := ex.ExecContext(cleanupCtx, q); err != nil {
					return errors.Join(err, cls())
				}
			}
			return cls()
		}
	}
	return ex, cf, nil
}

// validOptionValue accepts plain integer option values.
func validOptionValue(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.Atoi(s)
	return err == nil
}

// IsolationLevels is the closed set of isolation levels the server accepts.
var IsolationLevels = map[string]struct{}{
	"SERIALIZABLE":     {},
	"READ UNCOMMITTED": {},
	"READ COMMITTED":   {},
	"REPEATABLE READ":  {},
	"SNAPSHOT":         {},
}

// SetIsolationLevel sets the transaction isolation level of the session.
// The level is validated against the closed set before being interpolated;
// underscores may be used in place of spaces.
func (c Conn) SetIsolationLevel(ctx context.Context, level string) error {
	normalized := strings.ToUpper(strings.ReplaceAll(level, "_", " "))
	if _, ok := IsolationLevels[normalized]; !ok {
		valid := make([]string, 0, len(IsolationLevels))
		for l := range IsolationLevels {
			valid = append(valid, l)
		}
		sort.Strings(valid)
		return NewArgumentError("isolation_level", level, valid)
	}
	return c.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL "+normalized, []any{}, nil)
}

// GetIsolationLevel reads the isolation level of the current session from
// sys.dm_exec_sessions.
func (c Conn) GetIsolationLevel(ctx context.Context) (string, error) {
	return queryIsolationLevel(ctx, c)
}

func queryIsolationLevel(ctx context.Context, conn dialect.ExecQuerier) (string, error) {
	rows := &Rows{}
	query := `SELECT CASE transaction_isolation_level
		WHEN 0 THEN NULL
		WHEN 1 THEN 'READ UNCOMMITTED'
		WHEN 2 THEN 'READ COMMITTED'
		WHEN 3 THEN 'REPEATABLE READ'
		WHEN 4 THEN 'SERIALIZABLE'
		WHEN 5 THEN 'SNAPSHOT' END
		FROM sys.dm_exec_sessions WHERE session_id = @@SPID`
	if err := conn.Query(ctx, query, []any{}, rows); err != nil {
		return "", err
	}
	defer rows.Close()
	if !rows.Next() {
		return "", errors.New("mssql: isolation level: no session row. the user may lack permission on sys.dm_exec_sessions")
	}
	var level NullString
	if err := rows.Scan(&level); err != nil {
		return "", err
	}
	if !level.Valid {
		return "", errors.New("mssql: isolation level: session reported no level")
	}
	return level.String, nil
}

var _ dialect.Driver = (*Driver)(nil)

type (
	// Rows wraps the sql.Rows to avoid locks copy.
	Rows struct{ ColumnScanner }
	// Result is an alias to sql.Result.
	Result = sql.Result
	// NullBool is an alias to sql.NullBool.
	NullBool = sql.NullBool
	// NullInt64 is an alias to sql.NullInt64.
	NullInt64 = sql.NullInt64
	// NullString is an alias to sql.NullString.
	NullString = sql.NullString
	// NullFloat64 is an alias to sql.NullFloat64.
	NullFloat64 = sql.NullFloat64
	// NullTime represents a time.Time that may be null.
	NullTime = sql.NullTime
	// TxOptions holds the transaction options to be used in DB.BeginTx.
	TxOptions = sql.TxOptions
)

// NullScanner implements the sql.Scanner interface such that it
// can be used as a scan destination, similar to the types above.
type NullScanner struct {
	S     sql.Scanner
	Valid bool // Valid is true if the Scan value is not NULL.
}

// Scan implements the Scanner interface.
func (n *NullScanner) Scan(value any) error {
	n.Valid = value != nil
	if n.Valid {
		return n.S.Scan(value)
	}
	return nil
}

// ColumnScanner is the interface that wraps the standard
// sql.Rows methods used for scanning database rows.
type ColumnScanner interface {
	Close() error
	ColumnTypes() ([]*sql.ColumnType, error)
	Columns() ([]string, error)
	Err() error
	Next() bool
	NextResultSet() bool
	Scan(dest ...any) error
}

// rowsWithCloser wraps the ColumnScanner interface with a custom Close hook.
type rowsWithCloser struct {
	ColumnScanner
	closer func() error
}

// Close closes the underlying ColumnScanner and calls the custom closer.
func (r rowsWithCloser) Close() error {
	err := r.ColumnScanner.Close()
	return errors.Join(err, r.closer())
}
