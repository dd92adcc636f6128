package sql

import (
	"fmt"
	"strconv"
)

// TableBuilder is a CREATE TABLE statement builder.
type TableBuilder struct {
	Builder
	name           string
	schema         string
	columns        []*ColumnBuilder
	primary        []string
	pkNonClustered bool
	uniques        [][]string
}

// CreateTable returns a TableBuilder for the given table name.
func CreateTable(name string) *TableBuilder {
	return &TableBuilder{name: name}
}

// Schema sets the schema qualifier of the table.
func (t *TableBuilder) Schema(schema string) *TableBuilder {
	t.schema = schema
	return t
}

// Columns appends columns to the table.
func (t *TableBuilder) Columns(columns ...*ColumnBuilder) *TableBuilder {
	t.columns = append(t.columns, columns...)
	return t
}

// Column appends one column to the table.
func (t *TableBuilder) Column(c *ColumnBuilder) *TableBuilder {
	t.columns = append(t.columns, c)
	return t
}

// PrimaryKey sets the primary-key columns. The key is CLUSTERED unless
// PrimaryKeyNonClustered is called.
func (t *TableBuilder) PrimaryKey(columns ...string) *TableBuilder {
	t.primary = columns
	return t
}

// PrimaryKeyNonClustered makes the primary key NONCLUSTERED.
func (t *TableBuilder) PrimaryKeyNonClustered() *TableBuilder {
	t.pkNonClustered = true
	return t
}

// Unique appends a UNIQUE constraint over the given columns.
func (t *TableBuilder) Unique(columns ...string) *TableBuilder {
	t.uniques = append(t.uniques, columns)
	return t
}

// Query returns the rendered CREATE TABLE statement.
func (t *TableBuilder) Query() (string, []any) {
	b := t.Builder.new()
	b.WriteString("CREATE TABLE ")
	b.WriteString(b.preparer().FormatTable(t.schema, t.name))
	b.Nested(func(nb *Builder) {
		for i, c := range t.columns {
			if i > 0 {
				nb.Comma()
			}
			c.bound = true
			c.cap, c.prep = nb.cap, nb.prep
			nb.Join(c)
		}
		if len(t.primary) > 0 {
			nb.Comma().WriteString("PRIMARY KEY ")
			if t.pkNonClustered {
				nb.WriteString("NONCLUSTERED ")
			}
			nb.Nested(func(pb *Builder) {
				pb.IdentComma(t.primary...)
			})
		}
		for _, u := range t.uniques {
			nb.Comma().WriteString("UNIQUE ")
			nb.Nested(func(ub *Builder) {
				ub.IdentComma(u...)
			})
		}
	})
	t.AddError(b.Err())
	return b.String(), b.args
}

func (t *TableBuilder) execMeta(st *Statement) {
	st.Kind = KindDDL
	st.Table = t.preparer().FormatTable(t.schema, t.name)
}

// ColumnBuilder is a column definition within a CREATE TABLE statement.
type ColumnBuilder struct {
	Builder
	name      string
	typ       ColumnType
	hasType   bool
	nullable  *bool
	identity  bool
	idStart   int
	idIncr    int
	def       any
	computed  string
	persisted bool
	bound     bool // owned by a TableBuilder
}

// Column returns a new column definition.
func Column(name string) *ColumnBuilder {
	return &ColumnBuilder{name: name}
}

// Type sets the column type.
func (c *ColumnBuilder) Type(t ColumnType) *ColumnBuilder {
	c.typ = t
	c.hasType = true
	return c
}

// Nullable marks the column NULL.
func (c *ColumnBuilder) Nullable() *ColumnBuilder {
	v := true
	c.nullable = &v
	return c
}

// NotNull marks the column NOT NULL.
func (c *ColumnBuilder) NotNull() *ColumnBuilder {
	v := false
	c.nullable = &v
	return c
}

// Identity gives the column the IDENTITY property with the given start and
// increment.
func (c *ColumnBuilder) Identity(start, increment int) *ColumnBuilder {
	c.identity = true
	c.idStart = start
	c.idIncr = increment
	return c
}

// Default sets the column default. Strings render as quoted literals,
// numbers as-is; use Raw for expression defaults.
func (c *ColumnBuilder) Default(v any) *ColumnBuilder {
	c.def = v
	return c
}

// Computed makes the column a computed column over the given expression.
func (c *ColumnBuilder) Computed(expr string) *ColumnBuilder {
	c.computed = expr
	return c
}

// Persisted stores the computed column value instead of computing it per
// query.
func (c *ColumnBuilder) Persisted() *ColumnBuilder {
	c.persisted = true
	return c
}

// Query renders the column definition. Columns render only inside an owning
// CREATE TABLE; compiling one standalone is an error.
func (c *ColumnBuilder) Query() (string, []any) {
	b := c.Builder.new()
	if !c.bound {
		c.AddError(NewCompileError("", "table-bound columns are required in order to generate DDL"))
		return "", nil
	}
	b.Ident(c.name)
	if c.hasType {
		spec, err := RenderType(c.typ, b.capability())
		if err != nil {
			b.AddError(err)
		}
		b.Pad().WriteString(spec)
	}
	if c.computed != "" {
		b.WriteString(" AS (").WriteString(c.computed).WriteByte(')')
		if c.persisted {
			b.WriteString(" PERSISTED")
		}
		c.AddError(b.Err())
		return b.String(), b.args
	}
	if c.nullable != nil {
		if *c.nullable {
			b.WriteString(" NULL")
		} else {
			b.WriteString(" NOT NULL")
		}
	}
	if c.identity {
		b.WriteString(" IDENTITY(" + strconv.Itoa(c.idStart) + "," + strconv.Itoa(c.idIncr) + ")")
	}
	if c.def != nil {
		b.WriteString(" DEFAULT ")
		writeLiteral(&b, c.def)
	}
	c.AddError(b.Err())
	return b.String(), b.args
}

// writeLiteral renders a DDL default literal. DDL text carries no bound
// parameters.
func writeLiteral(b *Builder, v any) {
	switch v := v.(type) {
	case *raw:
		b.WriteString(v.s)
	case string:
		b.WriteByte('\'')
		for _, r := range v {
			if r == '\'' {
				b.WriteByte('\'')
			}
			b.WriteString(string(r))
		}
		b.WriteByte('\'')
	case bool:
		if v {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	default:
		b.WriteString(fmt.Sprintf("%v", v))
	}
}

// IndexBuilder is a CREATE INDEX statement builder.
type IndexBuilder struct {
	Builder
	name      string
	table     string
	schema    string
	unique    bool
	clustered *bool // nil leaves the server default
	columns   []string
	include   []string
	where     *Predicate
}

// CreateIndex returns an IndexBuilder for the given index name.
func CreateIndex(name string) *IndexBuilder {
	return &IndexBuilder{name: name}
}

// Unique makes the index UNIQUE.
func (i *IndexBuilder) Unique() *IndexBuilder {
	i.unique = true
	return i
}

// Clustered makes the index CLUSTERED.
func (i *IndexBuilder) Clustered() *IndexBuilder {
	v := true
	i.clustered = &v
	return i
}

// NonClustered makes the index explicitly NONCLUSTERED.
func (i *IndexBuilder) NonClustered() *IndexBuilder {
	v := false
	i.clustered = &v
	return i
}

// Table sets the table the index is created on.
func (i *IndexBuilder) Table(table string) *IndexBuilder {
	i.table = table
	return i
}

// Schema sets the schema qualifier of the table.
func (i *IndexBuilder) Schema(schema string) *IndexBuilder {
	i.schema = schema
	return i
}

// Columns sets the key columns of the index.
func (i *IndexBuilder) Columns(columns ...string) *IndexBuilder {
	i.columns = columns
	return i
}

// Include adds non-key INCLUDE columns.
func (i *IndexBuilder) Include(columns ...string) *IndexBuilder {
	i.include = columns
	return i
}

// Where makes the index a filtered index over the given predicate.
func (i *IndexBuilder) Where(p *Predicate) *IndexBuilder {
	i.where = p
	return i
}

// Query returns the rendered CREATE INDEX statement.
func (i *IndexBuilder) Query() (string, []any) {
	b := i.Builder.new()
	if i.table == "" {
		i.AddError(NewCompileError("CREATE INDEX", "an index requires a table"))
		return "", nil
	}
	b.WriteString("CREATE ")
	if i.unique {
		b.WriteString("UNIQUE ")
	}
	if i.clustered != nil {
		if *i.clustered {
			b.WriteString("CLUSTERED ")
		} else {
			b.WriteString("NONCLUSTERED ")
		}
	}
	b.WriteString("INDEX ").Ident(i.name)
	b.WriteString(" ON ")
	b.WriteString(b.preparer().FormatTable(i.schema, i.table))
	b.WriteString(" (").IdentComma(i.columns...).WriteByte(')')
	if len(i.include) > 0 {
		b.WriteString(" INCLUDE (").IdentComma(i.include...).WriteByte(')')
	}
	if i.where != nil {
		b.WriteString(" WHERE ")
		b.Join(i.where)
	}
	i.AddError(b.Err())
	return b.String(), b.args
}

func (i *IndexBuilder) execMeta(st *Statement) {
	st.Kind = KindDDL
	st.Table = i.preparer().FormatTable(i.schema, i.table)
}

// DropIndexBuilder is a DROP INDEX statement builder. SQL Server requires
// the owning table in the drop statement.
type DropIndexBuilder struct {
	Builder
	name   string
	table  string
	schema string
}

// DropIndex returns a DropIndexBuilder for the given index name.
func DropIndex(name string) *DropIndexBuilder {
	return &DropIndexBuilder{name: name}
}

// Table sets the table the index belongs to.
func (d *DropIndexBuilder) Table(table string) *DropIndexBuilder {
	d.table = table
	return d
}

// Schema sets the schema qualifier of the table.
func (d *DropIndexBuilder) Schema(schema string) *DropIndexBuilder {
	d.schema = schema
	return d
}

// Query returns the rendered DROP INDEX statement.
func (d *DropIndexBuilder) Query() (string, []any) {
	b := d.Builder.new()
	if d.table == "" {
		d.AddError(NewCompileError("DROP INDEX", "dropping an index requires its table"))
		return "", nil
	}
	b.WriteString("DROP INDEX ").Ident(d.name)
	b.WriteString(" ON ")
	b.WriteString(b.preparer().FormatTable(d.schema, d.table))
	d.AddError(b.Err())
	return b.String(), b.args
}

func (d *DropIndexBuilder) execMeta(st *Statement) {
	st.Kind = KindDDL
	st.Table = d.preparer().FormatTable(d.schema, d.table)
}

// SequenceBuilder is a CREATE SEQUENCE statement builder.
type SequenceBuilder struct {
	Builder
	name    string
	schema  string
	typ     *ColumnType
	start   int
	incr    int
	hasIncr bool
}

// CreateSequence returns a SequenceBuilder for the given sequence name.
// Sequences start at 1 unless Start is called; the server default start
// (the type minimum) is rarely what callers expect.
func CreateSequence(name string) *SequenceBuilder {
	return &SequenceBuilder{name: name, start: 1}
}

// Schema sets the schema qualifier of the sequence.
func (s *SequenceBuilder) Schema(schema string) *SequenceBuilder {
	s.schema = schema
	return s
}

// AsType sets the integer type of the sequence.
func (s *SequenceBuilder) AsType(t ColumnType) *SequenceBuilder {
	s.typ = &t
	return s
}

// Start sets the START WITH value.
func (s *SequenceBuilder) Start(n int) *SequenceBuilder {
	s.start = n
	return s
}

// Increment sets the INCREMENT BY value.
func (s *SequenceBuilder) Increment(n int) *SequenceBuilder {
	s.incr = n
	s.hasIncr = true
	return s
}

// Query returns the rendered CREATE SEQUENCE statement.
func (s *SequenceBuilder) Query() (string, []any) {
	b := s.Builder.new()
	b.WriteString("CREATE SEQUENCE ")
	b.WriteString(b.preparer().FormatTable(s.schema, s.name))
	if s.typ != nil {
		spec, err := RenderType(*s.typ, b.capability())
		if err != nil {
			b.AddError(err)
		}
		b.WriteString(" AS ").WriteString(spec)
	}
	b.WriteString(" START WITH " + strconv.Itoa(s.start))
	if s.hasIncr {
		b.WriteString(" INCREMENT BY " + strconv.Itoa(s.incr))
	}
	s.AddError(b.Err())
	return b.String(), b.args
}

func (s *SequenceBuilder) execMeta(st *Statement) {
	st.Kind = KindDDL
	st.Table = s.preparer().FormatTable(s.schema, s.name)
}
