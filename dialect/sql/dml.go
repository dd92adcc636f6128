package sql

import (
	"strings"
)

// StatementKind classifies a compiled statement for execution.
type StatementKind uint8

const (
	KindSelect StatementKind = iota
	KindInsert
	KindUpdate
	KindDelete
	KindDDL
)

// ResultColumn maps a column the caller asked for to the name it is
// addressable by in the result set. OUTPUT columns keep their original
// column name even though the rendered expression is alias-qualified.
type ResultColumn struct {
	Requested string
	Rendered  string
}

// Statement is a rendered statement together with the metadata the execution
// layer needs: what kind of statement it is, the table it targets, and the
// identity facts that drive the identity-insert protocol.
type Statement struct {
	Text    string
	Args    []any
	Columns []ResultColumn

	Kind                 StatementKind
	Table                string // fully qualified quoted target table
	IdentityColumn       string
	IdentityFromSequence bool // identity value is produced by a sequence
	SuppliesIdentity     bool // statement supplies an explicit identity value
	Returning            bool // statement carries an OUTPUT clause
	MultiRow             bool // INSERT with more than one VALUES tuple
}

// Compile renders a querier into a Statement. If any error was collected
// while building, Compile returns it and no statement: errors never yield
// partial output.
func Compile(q Querier) (*Statement, error) {
	text, args := q.Query()
	if eq, ok := q.(interface{ Err() error }); ok {
		if err := eq.Err(); err != nil {
			return nil, err
		}
	}
	st := &Statement{Text: text, Args: args}
	if rc, ok := q.(interface{ resultColumns() []ResultColumn }); ok {
		st.Columns = rc.resultColumns()
	}
	if em, ok := q.(interface{ execMeta(*Statement) }); ok {
		em.execMeta(st)
	}
	return st, nil
}

// InsertBuilder is an INSERT statement builder.
type InsertBuilder struct {
	Builder
	table     string
	schema    string
	columns   []string
	defaults  bool
	values    [][]any
	returning []string
	identity  string
	fromSeq   bool
}

// Insert returns a new InsertBuilder for the given table.
func Insert(table string) *InsertBuilder {
	return &InsertBuilder{table: table}
}

// Schema sets the schema qualifier of the table.
func (i *InsertBuilder) Schema(schema string) *InsertBuilder {
	i.schema = schema
	return i
}

// Columns sets the insert columns.
func (i *InsertBuilder) Columns(columns ...string) *InsertBuilder {
	i.columns = columns
	return i
}

// Values appends one VALUES tuple.
func (i *InsertBuilder) Values(values ...any) *InsertBuilder {
	i.values = append(i.values, values)
	return i
}

// Default renders DEFAULT VALUES instead of a VALUES list.
func (i *InsertBuilder) Default() *InsertBuilder {
	i.defaults = true
	return i
}

// Returning adds an OUTPUT clause for the given columns. The clause renders
// before the VALUES list and its columns are aliased through "inserted".
func (i *InsertBuilder) Returning(columns ...string) *InsertBuilder {
	i.returning = columns
	return i
}

// Identity declares the table's identity column, driving the identity-insert
// execution protocol when the statement supplies a value for it.
func (i *InsertBuilder) Identity(column string) *InsertBuilder {
	i.identity = column
	return i
}

// IdentityFromSequence marks the identity value as produced by a sequence
// default rather than the IDENTITY property, which exempts the statement from
// the SET IDENTITY_INSERT protocol.
func (i *InsertBuilder) IdentityFromSequence() *InsertBuilder {
	i.fromSeq = true
	return i
}

// suppliesIdentity reports whether the statement supplies an explicit value
// for the table's identity column.
func (i *InsertBuilder) suppliesIdentity() bool {
	if i.identity == "" || i.fromSeq {
		return false
	}
	for _, c := range i.columns {
		if strings.EqualFold(c, i.identity) {
			return true
		}
	}
	return false
}

// Query returns the rendered INSERT statement and its arguments.
func (i *InsertBuilder) Query() (string, []any) {
	b := i.Builder.new()
	b.WriteString("INSERT INTO ")
	b.WriteString(b.preparer().FormatTable(i.schema, i.table))
	if len(i.columns) > 0 {
		b.WriteString(" (").IdentComma(i.columns...).WriteByte(')')
	}
	if len(i.returning) > 0 {
		b.WriteString(" OUTPUT ")
		writeOutput(&b, "inserted", i.returning)
	}
	switch {
	case i.defaults:
		b.WriteString(" DEFAULT VALUES")
	default:
		if len(i.values) > 1 && i.capability().Version() != nil && !i.capability().SupportsMultiValuesInsert() {
			b.AddError(NewUnsupportedFeatureError("multi-row VALUES list", i.capability().versionString()))
		}
		b.WriteString(" VALUES ")
		for j, row := range i.values {
			if j > 0 {
				b.Comma()
			}
			row := row
			b.Nested(func(nb *Builder) {
				nb.Args(row...)
			})
		}
	}
	i.AddError(b.Err())
	return b.String(), b.args
}

func (i *InsertBuilder) resultColumns() []ResultColumn {
	return outputColumns(i.returning)
}

func (i *InsertBuilder) execMeta(st *Statement) {
	st.Kind = KindInsert
	st.Table = i.preparer().FormatTable(i.schema, i.table)
	st.IdentityColumn = i.identity
	st.IdentityFromSequence = i.fromSeq
	st.SuppliesIdentity = i.suppliesIdentity()
	st.Returning = len(i.returning) > 0
	st.MultiRow = len(i.values) > 1
}

// UpdateBuilder is an UPDATE statement builder.
type UpdateBuilder struct {
	Builder
	table     string
	schema    string
	columns   []string
	values    []any
	returning []string
	from      []TableView
	where     *Predicate
}

// Update returns a new UpdateBuilder for the given table.
func Update(table string) *UpdateBuilder {
	return &UpdateBuilder{table: table}
}

// Schema sets the schema qualifier of the table.
func (u *UpdateBuilder) Schema(schema string) *UpdateBuilder {
	u.schema = schema
	return u
}

// Set assigns a value to a column.
func (u *UpdateBuilder) Set(column string, v any) *UpdateBuilder {
	u.columns = append(u.columns, column)
	u.values = append(u.values, v)
	return u
}

// Where ANDs the given predicate into the statement.
func (u *UpdateBuilder) Where(p *Predicate) *UpdateBuilder {
	if u.where == nil {
		u.where = p
	} else if p != nil {
		u.where = And(u.where, p)
	}
	return u
}

// From adds an extra table to the UPDATE ... FROM list. With extra tables the
// FROM clause includes the target table itself, aliased under the legacy
// schema-aliasing mode the same way a SELECT would alias it.
func (u *UpdateBuilder) From(t TableView) *UpdateBuilder {
	u.from = append(u.from, t)
	return u
}

// Returning adds an OUTPUT clause aliased through "inserted".
func (u *UpdateBuilder) Returning(columns ...string) *UpdateBuilder {
	u.returning = columns
	return u
}

// target builds the target table reference under the builder's capability.
func (u *UpdateBuilder) target(b *Builder) *SelectTable {
	t := Table(u.table)
	t.cap, t.prep = b.cap, b.prep
	if u.schema != "" {
		t.Schema(u.schema)
	}
	return t
}

// Query returns the rendered UPDATE statement and its arguments.
func (u *UpdateBuilder) Query() (string, []any) {
	b := u.Builder.new()
	t := u.target(&b)
	b.WriteString("UPDATE ")
	t.crudRef(&b)
	b.WriteString(" SET ")
	for j, c := range u.columns {
		if j > 0 {
			b.Comma()
		}
		b.Ident(c).WriteString(" = ").Arg(u.values[j])
	}
	if len(u.returning) > 0 {
		b.WriteString(" OUTPUT ")
		writeOutput(&b, "inserted", u.returning)
	}
	if len(u.from) > 0 {
		b.WriteString(" FROM ")
		t.ref(&b)
		for _, extra := range u.from {
			b.Comma()
			extra.ref(&b)
		}
	}
	if u.where != nil {
		b.WriteString(" WHERE ")
		b.Join(u.where)
	}
	u.AddError(b.Err())
	return b.String(), b.args
}

func (u *UpdateBuilder) resultColumns() []ResultColumn {
	return outputColumns(u.returning)
}

func (u *UpdateBuilder) execMeta(st *Statement) {
	st.Kind = KindUpdate
	st.Table = u.preparer().FormatTable(u.schema, u.table)
	st.Returning = len(u.returning) > 0
}

// DeleteBuilder is a DELETE statement builder.
type DeleteBuilder struct {
	Builder
	table     string
	schema    string
	returning []string
	from      []TableView
	where     *Predicate
}

// Delete returns a new DeleteBuilder for the given table.
func Delete(table string) *DeleteBuilder {
	return &DeleteBuilder{table: table}
}

// Schema sets the schema qualifier of the table.
func (d *DeleteBuilder) Schema(schema string) *DeleteBuilder {
	d.schema = schema
	return d
}

// Where ANDs the given predicate into the statement.
func (d *DeleteBuilder) Where(p *Predicate) *DeleteBuilder {
	if d.where == nil {
		d.where = p
	} else if p != nil {
		d.where = And(d.where, p)
	}
	return d
}

// From adds an extra table, producing the DELETE ... FROM ... FROM form in
// which the second FROM lists the target table (aliased under legacy
// schema aliasing) alongside the extras.
func (d *DeleteBuilder) From(t TableView) *DeleteBuilder {
	d.from = append(d.from, t)
	return d
}

// Returning adds an OUTPUT clause aliased through "deleted".
func (d *DeleteBuilder) Returning(columns ...string) *DeleteBuilder {
	d.returning = columns
	return d
}

// Query returns the rendered DELETE statement and its arguments.
func (d *DeleteBuilder) Query() (string, []any) {
	b := d.Builder.new()
	t := Table(d.table)
	t.cap, t.prep = b.cap, b.prep
	if d.schema != "" {
		t.Schema(d.schema)
	}
	b.WriteString("DELETE FROM ")
	t.crudRef(&b)
	if len(d.returning) > 0 {
		b.WriteString(" OUTPUT ")
		writeOutput(&b, "deleted", d.returning)
	}
	if len(d.from) > 0 {
		b.WriteString(" FROM ")
		t.ref(&b)
		for _, extra := range d.from {
			b.Comma()
			extra.ref(&b)
		}
	}
	if d.where != nil {
		b.WriteString(" WHERE ")
		b.Join(d.where)
	}
	d.AddError(b.Err())
	return b.String(), b.args
}

func (d *DeleteBuilder) resultColumns() []ResultColumn {
	return outputColumns(d.returning)
}

func (d *DeleteBuilder) execMeta(st *Statement) {
	st.Kind = KindDelete
	st.Table = d.preparer().FormatTable(d.schema, d.table)
	st.Returning = len(d.returning) > 0
}

// writeOutput renders an OUTPUT column list through the given pseudo-table
// alias ("inserted" or "deleted").
func writeOutput(b *Builder, alias string, columns []string) {
	for j, c := range columns {
		if j > 0 {
			b.Comma()
		}
		b.Ident(alias + "." + c)
	}
}

// outputColumns maps OUTPUT columns to result columns. The result set keeps
// the original column names.
func outputColumns(columns []string) []ResultColumn {
	cols := make([]ResultColumn, 0, len(columns))
	for _, c := range columns {
		cols = append(cols, ResultColumn{Requested: c, Rendered: c})
	}
	return cols
}
