package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTable(t *testing.T) {
	d := dialect2012()
	query, args := d.CreateTable("users").
		Columns(
			Column("id").Type(ColumnType{Kind: TypeInt}).NotNull().Identity(1, 1),
			Column("name").Type(ColumnType{Kind: TypeVarChar, Size: 255}).Nullable(),
			Column("status").Type(ColumnType{Kind: TypeVarChar, Size: 20}).NotNull().Default("active"),
		).
		PrimaryKey("id").
		Query()
	assert.Equal(t,
		"CREATE TABLE users (id INTEGER NOT NULL IDENTITY(1,1), name VARCHAR(255) NULL, status VARCHAR(20) NOT NULL DEFAULT 'active', PRIMARY KEY (id))",
		query)
	assert.Empty(t, args)
}

func TestCreateTableComputedColumn(t *testing.T) {
	d := dialect2012()
	query, _ := d.CreateTable("orders").
		Columns(
			Column("price").Type(ColumnType{Kind: TypeMoney}).NotNull(),
			Column("qty").Type(ColumnType{Kind: TypeInt}).NotNull(),
			Column("total").Computed("price * qty").Persisted(),
		).
		Query()
	assert.Equal(t,
		"CREATE TABLE orders (price MONEY NOT NULL, qty INTEGER NOT NULL, total AS (price * qty) PERSISTED)",
		query)
}

func TestCreateTableConstraints(t *testing.T) {
	d := dialect2012()
	query, _ := d.CreateTable("users").
		Columns(
			Column("id").Type(ColumnType{Kind: TypeBigInt}).NotNull(),
			Column("email").Type(ColumnType{Kind: TypeNVarChar, Size: 320}).NotNull(),
		).
		PrimaryKey("id").PrimaryKeyNonClustered().
		Unique("email").
		Query()
	assert.Equal(t,
		"CREATE TABLE users (id BIGINT NOT NULL, email NVARCHAR(320) NOT NULL, PRIMARY KEY NONCLUSTERED (id), UNIQUE (email))",
		query)
}

func TestCreateTableSchemaQualified(t *testing.T) {
	d := dialect2012()
	query, _ := d.CreateTable("t").Schema("mydb.dbo").
		Columns(Column("q").Type(ColumnType{Kind: TypeVarChar, Size: 50})).
		Query()
	assert.Equal(t, "CREATE TABLE mydb.dbo.t (q VARCHAR(50))", query)
}

func TestColumnRequiresTable(t *testing.T) {
	_, err := Compile(Column("x").Type(ColumnType{Kind: TypeInt}))
	require.Error(t, err)
	assert.True(t, IsCompileError(err))
}

func TestCreateIndex(t *testing.T) {
	d := dialect2012()
	query, _ := d.CreateIndex("ix_users_name").
		Table("users").Columns("name").
		Query()
	assert.Equal(t, "CREATE INDEX ix_users_name ON users (name)", query)

	query, args := d.CreateIndex("ix_users_email").
		Unique().NonClustered().
		Table("users").Columns("email").
		Include("name", "status").
		Where(NotNull("email")).
		Query()
	assert.Equal(t,
		"CREATE UNIQUE NONCLUSTERED INDEX ix_users_email ON users (email) INCLUDE (name, status) WHERE email IS NOT NULL",
		query)
	assert.Empty(t, args)

	query, _ = d.CreateIndex("ix_c").Clustered().Table("t").Columns("a", "b").Query()
	assert.Equal(t, "CREATE CLUSTERED INDEX ix_c ON t (a, b)", query)
}

func TestCreateIndexRequiresTable(t *testing.T) {
	_, err := Compile(CreateIndex("ix").Columns("a"))
	require.Error(t, err)
	assert.True(t, IsCompileError(err))
}

func TestDropIndex(t *testing.T) {
	d := dialect2012()
	query, _ := d.DropIndex("ix_users_name").Table("users").Query()
	assert.Equal(t, "DROP INDEX ix_users_name ON users", query)

	_, err := Compile(DropIndex("ix"))
	require.Error(t, err)
	assert.True(t, IsCompileError(err))
}

func TestCreateSequence(t *testing.T) {
	d := dialect2012()
	query, _ := d.CreateSequence("order_seq").Query()
	assert.Equal(t, "CREATE SEQUENCE order_seq START WITH 1", query)

	query, _ = d.CreateSequence("order_seq").
		AsType(ColumnType{Kind: TypeBigInt}).
		Start(1000).Increment(10).
		Query()
	assert.Equal(t, "CREATE SEQUENCE order_seq AS BIGINT START WITH 1000 INCREMENT BY 10", query)

	query, _ = d.CreateSequence("seq").Schema("sales").Query()
	assert.Equal(t, "CREATE SEQUENCE sales.seq START WITH 1", query)
}

func TestDDLStatementKind(t *testing.T) {
	d := dialect2012()
	st, err := Compile(d.CreateTable("t").Columns(Column("a").Type(ColumnType{Kind: TypeInt})))
	require.NoError(t, err)
	assert.Equal(t, KindDDL, st.Kind)
	assert.Equal(t, "t", st.Table)
}
