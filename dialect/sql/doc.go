// Package sql provides SQL Server statement building and execution
// primitives: identifier quoting, schema-qualifier resolution, type
// rendering, a fluent statement builder, and an execution layer for the
// server's identity-insert protocol.
//
// # Builder Types
//
// The package provides specialized builders for different SQL operations:
//
//   - Builder: Low-level SQL string builder with identifier quoting
//   - Selector: SELECT query builder with joins, predicates, and pagination
//   - InsertBuilder: INSERT statement builder with OUTPUT support
//   - UpdateBuilder: UPDATE statement builder with SET, FROM and WHERE clauses
//   - DeleteBuilder: DELETE statement builder with WHERE predicates
//   - TableBuilder, IndexBuilder, SequenceBuilder: DDL builders
//
// # Capabilities
//
// SQL generation adapts to the connected server through a Capability
// descriptor. A capability may be fully specified up front, or probed from
// the first live connection:
//
//	cap := sql.NewCapability(sql.WithServerVersion("11.0.3000.0"))
//	b := sql.Dialect(cap)
//	b.Select("id", "name").From(b.Table("users")).Where(sql.EQ("status", "active"))
//
// Until a version is known, rendering stays conservative: no OFFSET/FETCH,
// DATE and TIME fold to DATETIME, and TEXT/NTEXT/IMAGE stay in their legacy
// forms.
//
// # Pagination
//
// LIMIT and OFFSET render in one of three mutually exclusive forms:
//
//	// Plain integer limit, no offset: a leading TOP modifier.
//	b.Select("x").From(b.Table("t")).Limit(5)
//	// SELECT TOP 5 x FROM t
//
//	// On 2012+ servers: the native OFFSET/FETCH clause.
//	b.Select("x").From(b.Table("t")).OrderBy("x").Limit(5).Offset(10)
//	// SELECT x FROM t ORDER BY x OFFSET 10 ROWS FETCH NEXT 5 ROWS ONLY
//
//	// Older servers: a ROW_NUMBER() ranked subquery.
//	// SELECT x FROM (SELECT x, ROW_NUMBER() OVER (ORDER BY x) AS mssql_rn
//	//   FROM t) AS anon_1 WHERE mssql_rn > 10 AND mssql_rn <= 15
//
// Both the native clause and the rewrite require an ORDER BY; compiling
// without one fails with a CompileError.
//
// # Predicates
//
// The package provides type-safe predicate functions:
//
//	sql.EQ("name", "john")           // name = @p1
//	sql.GT("age", 18)                // age > @p1
//	sql.Contains("name", "john")     // name LIKE @p1 ('%john%')
//	sql.IsNull("deleted_at")         // deleted_at IS NULL
//	sql.In("status", "a", "b")       // status IN (@p1, @p2)
//	sql.Match("body", "term")        // CONTAINS (body, @p1)
//
// # Execution
//
// Compile turns a builder into a Statement carrying the metadata the
// Executor needs. An INSERT that supplies an explicit identity value runs
// under SET IDENTITY_INSERT, with the OFF statement guaranteed:
//
//	drv, _ := sql.Open(dsn)
//	ex := sql.NewExecutor(drv, cap)
//	res, err := ex.Exec(ctx, b.Insert("users").
//	    Columns("id", "name").Values(7, "a").Identity("id"))
package sql
