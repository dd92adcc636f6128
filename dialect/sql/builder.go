package sql

import (
	"errors"
	"strconv"
	"strings"
)

// Querier wraps the Query method, implemented by all statement builders.
type Querier interface {
	// Query returns the rendered SQL text and its bound arguments.
	Query() (string, []any)
}

// state shares rendering configuration between parent and child builders
// when nesting queriers.
type state interface {
	SetCapability(*Capability)
	SetPreparer(*Preparer)
	Total() int
	SetTotal(int)
}

var (
	defaultCapability = NewCapability()
	defaultPreparer   = NewPreparer(nil)
)

// Builder is the low-level SQL text builder. Statement builders embed it and
// use it for identifier quoting, argument placeholders and clause joining.
type Builder struct {
	sb    *strings.Builder
	cap   *Capability // rendering capability; nil means the conservative default
	prep  *Preparer   // identifier preparer; nil means the shared default
	args  []any       // bound arguments in placeholder order
	total int         // total placeholders used, for @pN numbering
	errs  []error     // errors collected during building
}

// new returns a fresh Builder sharing this builder's configuration.
func (b Builder) new() Builder {
	return Builder{sb: &strings.Builder{}, cap: b.cap, prep: b.prep, total: b.total}
}

// SetCapability sets the capability the builder renders for.
func (b *Builder) SetCapability(c *Capability) { b.cap = c }

// SetPreparer sets the identifier preparer.
func (b *Builder) SetPreparer(p *Preparer) { b.prep = p }

// Total returns the total number of placeholders used so far.
func (b Builder) Total() int { return b.total }

// SetTotal sets the placeholder counter, used when nesting queriers so that
// @pN numbering stays continuous.
func (b *Builder) SetTotal(total int) { b.total = total }

func (b Builder) capability() *Capability {
	if b.cap != nil {
		return b.cap
	}
	return defaultCapability
}

func (b Builder) preparer() *Preparer {
	if b.prep != nil {
		return b.prep
	}
	return defaultPreparer
}

// Quote unconditionally quotes the given identifier.
func (b *Builder) Quote(ident string) string {
	return b.preparer().Quote(ident)
}

// Ident appends the given string as an identifier, quoting it only when the
// dialect requires it. Qualified identifiers ("t.c") are split and each part
// quoted independently. Strings that look like expressions (containing
// parentheses, spaces or "*") are written as-is.
func (b *Builder) Ident(s string) *Builder {
	switch {
	case s == "":
	case s == "*" || strings.ContainsAny(s, "()' "):
		b.WriteString(s)
	case strings.Contains(s, "."):
		parts := strings.Split(s, ".")
		for i, p := range parts {
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(b.preparer().Ident(p))
		}
	default:
		b.WriteString(b.preparer().Ident(s))
	}
	return b
}

// IdentComma calls Ident on all arguments and adds a comma between them.
func (b *Builder) IdentComma(s ...string) *Builder {
	for i := range s {
		if i > 0 {
			b.Comma()
		}
		b.Ident(s[i])
	}
	return b
}

// WriteString appends the string to the query buffer.
func (b *Builder) WriteString(s string) *Builder {
	if b.sb == nil {
		b.sb = &strings.Builder{}
	}
	b.sb.WriteString(s)
	return b
}

// WriteByte appends the byte to the query buffer.
func (b *Builder) WriteByte(c byte) *Builder {
	if b.sb == nil {
		b.sb = &strings.Builder{}
	}
	b.sb.WriteByte(c)
	return b
}

// Comma adds a comma to the query.
func (b *Builder) Comma() *Builder {
	return b.WriteString(", ")
}

// Pad adds a space to the query.
func (b *Builder) Pad() *Builder {
	return b.WriteByte(' ')
}

// Nested applies the given function within parenthesis.
func (b *Builder) Nested(f func(*Builder)) *Builder {
	nb := &Builder{sb: &strings.Builder{}, cap: b.cap, prep: b.prep, total: b.total}
	nb.WriteByte('(')
	f(nb)
	nb.WriteByte(')')
	b.WriteString(nb.String())
	b.args = append(b.args, nb.args...)
	b.total = nb.total
	b.errs = append(b.errs, nb.errs...)
	return b
}

// Arg appends the given argument to the argument list and writes its
// placeholder. Raw values are written verbatim and queriers are joined in.
func (b *Builder) Arg(a any) *Builder {
	switch a := a.(type) {
	case *raw:
		return b.WriteString(a.s)
	case Querier:
		return b.Join(a)
	}
	b.total++
	b.args = append(b.args, a)
	return b.WriteString("@p" + strconv.Itoa(b.total))
}

// Args appends a list of arguments, comma separated.
func (b *Builder) Args(a ...any) *Builder {
	for i := range a {
		if i > 0 {
			b.Comma()
		}
		b.Arg(a[i])
	}
	return b
}

// Join joins a list of queriers to the builder.
func (b *Builder) Join(qs ...Querier) *Builder {
	return b.join(qs, "")
}

// JoinComma joins a list of queriers with a comma between them.
func (b *Builder) JoinComma(qs ...Querier) *Builder {
	return b.join(qs, ", ")
}

func (b *Builder) join(qs []Querier, sep string) *Builder {
	for i, q := range qs {
		if i > 0 {
			b.WriteString(sep)
		}
		if st, ok := q.(state); ok {
			st.SetCapability(b.cap)
			st.SetPreparer(b.prep)
			st.SetTotal(b.total)
		}
		query, args := q.Query()
		b.WriteString(query)
		b.args = append(b.args, args...)
		b.total += len(args)
		if eq, ok := q.(interface{ Err() error }); ok {
			if err := eq.Err(); err != nil {
				b.AddError(err)
			}
		}
	}
	return b
}

// AddError appends an error to the builder. Errors surface through Err and
// fail Compile.
func (b *Builder) AddError(err error) *Builder {
	if err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// Err returns the errors collected during building, joined.
func (b Builder) Err() error {
	return errors.Join(b.errs...)
}

// String returns the accumulated SQL text.
func (b Builder) String() string {
	if b.sb == nil {
		return ""
	}
	return b.sb.String()
}

type raw struct{ s string }

// Raw returns a raw SQL fragment that is written to the query as-is, with no
// quoting and no placeholder.
func Raw(s string) Querier { return &raw{s} }

// Query implements Querier.
func (r *raw) Query() (string, []any) { return r.s, nil }

type expr struct {
	s    string
	args []any
}

// Expr returns a SQL expression with optional pre-bound arguments.
func Expr(s string, args ...any) Querier { return &expr{s: s, args: args} }

// Query implements Querier.
func (e *expr) Query() (string, []any) { return e.s, e.args }

// DialectBuilder is the entry point for building statements under a given
// capability descriptor.
type DialectBuilder struct {
	cap  *Capability
	prep *Preparer
}

// Dialect creates a builder for the given capability. A nil capability uses
// the conservative defaults (no OFFSET/FETCH, large types kept).
func Dialect(cap *Capability) *DialectBuilder {
	if cap == nil {
		cap = defaultCapability
	}
	prep := NewPreparer(NewSchemaResolver(WithDefaultOwner(cap.DefaultSchema())))
	return &DialectBuilder{cap: cap, prep: prep}
}

func (d *DialectBuilder) configure(b *Builder) {
	b.cap = d.cap
	b.prep = d.prep
}

// Select returns a Selector for the given columns.
func (d *DialectBuilder) Select(columns ...string) *Selector {
	s := Select(columns...)
	d.configure(&s.Builder)
	return s
}

// Table returns a table reference.
func (d *DialectBuilder) Table(name string) *SelectTable {
	t := Table(name)
	d.configure(&t.Builder)
	return t
}

// Insert returns an InsertBuilder for the given table.
func (d *DialectBuilder) Insert(table string) *InsertBuilder {
	i := Insert(table)
	d.configure(&i.Builder)
	return i
}

// Update returns an UpdateBuilder for the given table.
func (d *DialectBuilder) Update(table string) *UpdateBuilder {
	u := Update(table)
	d.configure(&u.Builder)
	return u
}

// Delete returns a DeleteBuilder for the given table.
func (d *DialectBuilder) Delete(table string) *DeleteBuilder {
	del := Delete(table)
	d.configure(&del.Builder)
	return del
}

// CreateTable returns a TableBuilder for the given table.
func (d *DialectBuilder) CreateTable(name string) *TableBuilder {
	t := CreateTable(name)
	d.configure(&t.Builder)
	return t
}

// CreateIndex returns an IndexBuilder for the given index name.
func (d *DialectBuilder) CreateIndex(name string) *IndexBuilder {
	i := CreateIndex(name)
	d.configure(&i.Builder)
	return i
}

// DropIndex returns a DropIndexBuilder for the given index name.
func (d *DialectBuilder) DropIndex(name string) *DropIndexBuilder {
	di := DropIndex(name)
	d.configure(&di.Builder)
	return di
}

// CreateSequence returns a SequenceBuilder for the given sequence name.
func (d *DialectBuilder) CreateSequence(name string) *SequenceBuilder {
	sq := CreateSequence(name)
	d.configure(&sq.Builder)
	return sq
}

// TableView is a view that returns a table view. Can be a Table or a
// Selector used as a derived table.
type TableView interface {
	view() string // alias or name the view is addressed by
	ref(*Builder) // renders the FROM-position reference
}

// SelectTable is a reference to a table, optionally schema-qualified and
// aliased.
type SelectTable struct {
	Builder
	name   string
	schema string
	as     string
	anon   bool // alias generated by legacy schema aliasing
}

// Table returns a new table reference.
func Table(name string) *SelectTable {
	return &SelectTable{name: name}
}

// Schema sets the schema qualifier of the table. Under the legacy
// schema-aliasing mode, a schema-qualified table is transparently replaced by
// an anonymous alias of itself everywhere it is referenced.
func (t *SelectTable) Schema(schema string) *SelectTable {
	t.schema = schema
	if schema != "" && t.as == "" && t.capability().LegacySchemaAliasing() {
		t.as = t.name + "_1"
		t.anon = true
	}
	return t
}

// As sets an explicit alias for the table, overriding any generated one.
func (t *SelectTable) As(alias string) *SelectTable {
	t.as = alias
	t.anon = false
	return t
}

// C returns the given column qualified by this table (or its alias).
func (t *SelectTable) C(column string) string {
	return t.view() + "." + column
}

// Columns returns a list of columns qualified by this table.
func (t *SelectTable) Columns(columns ...string) []string {
	names := make([]string, 0, len(columns))
	for _, c := range columns {
		names = append(names, t.C(c))
	}
	return names
}

// Name returns the unqualified table name.
func (t *SelectTable) Name() string { return t.name }

func (t *SelectTable) view() string {
	if t.as != "" {
		return t.as
	}
	return t.name
}

// ref renders the FROM-position reference: "[schema].[name] AS [alias]".
func (t *SelectTable) ref(b *Builder) {
	b.WriteString(b.preparer().FormatTable(t.schema, t.name))
	if t.as != "" {
		b.WriteString(" AS ")
		b.Ident(t.as)
	}
}

// crudRef renders the reference in UPDATE/DELETE target position, always by
// its real name, never through an alias.
func (t *SelectTable) crudRef(b *Builder) {
	b.WriteString(b.preparer().FormatTable(t.schema, t.name))
}

// formatted returns the fully qualified quoted table name.
func (t *SelectTable) formatted(b *Builder) string {
	return b.preparer().FormatTable(t.schema, t.name)
}

// pageValue is a LIMIT or OFFSET value: either a plain integer or a
// non-trivial expression.
type pageValue struct {
	n    int
	expr Querier
}

func (p *pageValue) simple() bool { return p != nil && p.expr == nil }

// write renders the value: integers as literals, expressions joined in.
func (p *pageValue) write(b *Builder) {
	if p.expr != nil {
		b.Join(p.expr)
		return
	}
	b.WriteString(strconv.Itoa(p.n))
}

// paginationStrategy enumerates the mutually exclusive renderings of
// LIMIT/OFFSET. The strategy is selected once per render call and does not
// change afterwards.
type paginationStrategy uint8

const (
	noPagination      paginationStrategy = iota
	topOnly                              // single leading TOP n modifier
	nativeOffsetFetch                    // ORDER BY ... OFFSET ... ROWS FETCH NEXT ... ROWS ONLY
	rowNumberRewrite                     // wrap in a ROW_NUMBER() ranked subquery
)

// Selector is a SELECT statement builder.
type Selector struct {
	Builder
	as        string
	columns   []string
	from      []TableView
	joins     []join
	where     *Predicate
	groupBy   []string
	having    *Predicate
	order     []string
	limit     *pageValue
	offset    *pageValue
	distinct  bool
	rewritten bool // statement is the product of a row-number rewrite
}

type join struct {
	kind  string
	table TableView
	on    *Predicate
}

// Select returns a new Selector for the given columns.
func Select(columns ...string) *Selector {
	return &Selector{columns: columns}
}

// From sets the source of the query.
func (s *Selector) From(t TableView) *Selector {
	s.from = append(s.from, t)
	return s
}

// FromTable is a convenience for From(Table(name)) sharing the selector's
// configuration.
func (s *Selector) FromTable(name string) *Selector {
	t := Table(name)
	t.cap, t.prep = s.cap, s.prep
	return s.From(t)
}

// Distinct marks the query as a DISTINCT query.
func (s *Selector) Distinct() *Selector {
	s.distinct = true
	return s
}

// Select changes the column selection of the query.
func (s *Selector) Select(columns ...string) *Selector {
	s.columns = columns
	return s
}

// AppendSelect appends columns to the selection.
func (s *Selector) AppendSelect(columns ...string) *Selector {
	s.columns = append(s.columns, columns...)
	return s
}

// SelectedColumns returns the selected columns of the query.
func (s *Selector) SelectedColumns() []string {
	return append([]string(nil), s.columns...)
}

// Where ANDs the given predicate into the statement.
func (s *Selector) Where(p *Predicate) *Selector {
	if s.where == nil {
		s.where = p
	} else if p != nil {
		s.where = And(s.where, p)
	}
	return s
}

// Join appends an INNER JOIN to the statement.
func (s *Selector) Join(t TableView) *Selector {
	return s.join("JOIN", t)
}

// LeftJoin appends a LEFT JOIN to the statement.
func (s *Selector) LeftJoin(t TableView) *Selector {
	return s.join("LEFT JOIN", t)
}

// RightJoin appends a RIGHT JOIN to the statement.
func (s *Selector) RightJoin(t TableView) *Selector {
	return s.join("RIGHT JOIN", t)
}

func (s *Selector) join(kind string, t TableView) *Selector {
	s.joins = append(s.joins, join{kind: kind, table: t})
	return s
}

// On sets the join condition of the last join to c1 = c2.
func (s *Selector) On(c1, c2 string) *Selector {
	if len(s.joins) > 0 {
		s.joins[len(s.joins)-1].on = ColumnsEQ(c1, c2)
	}
	return s
}

// OnP sets the join condition of the last join to the given predicate.
func (s *Selector) OnP(p *Predicate) *Selector {
	if len(s.joins) > 0 {
		s.joins[len(s.joins)-1].on = p
	}
	return s
}

// GroupBy appends GROUP BY columns to the statement.
func (s *Selector) GroupBy(columns ...string) *Selector {
	s.groupBy = append(s.groupBy, columns...)
	return s
}

// Having sets the HAVING predicate.
func (s *Selector) Having(p *Predicate) *Selector {
	s.having = p
	return s
}

// OrderBy appends order columns. Use Desc to order descending.
func (s *Selector) OrderBy(columns ...string) *Selector {
	s.order = append(s.order, columns...)
	return s
}

// ClearOrder removes the ORDER BY clause.
func (s *Selector) ClearOrder() *Selector {
	s.order = nil
	return s
}

// Limit sets the LIMIT to a plain integer.
func (s *Selector) Limit(n int) *Selector {
	s.limit = &pageValue{n: n}
	return s
}

// LimitExpr sets the LIMIT to a non-trivial expression.
func (s *Selector) LimitExpr(q Querier) *Selector {
	s.limit = &pageValue{expr: q}
	return s
}

// Offset sets the OFFSET to a plain integer.
func (s *Selector) Offset(n int) *Selector {
	s.offset = &pageValue{n: n}
	return s
}

// OffsetExpr sets the OFFSET to a non-trivial expression.
func (s *Selector) OffsetExpr(q Querier) *Selector {
	s.offset = &pageValue{expr: q}
	return s
}

// As sets the alias used when the selector appears as a derived table.
func (s *Selector) As(alias string) *Selector {
	s.as = alias
	return s
}

func (s *Selector) view() string { return s.as }

// ref renders the selector as a derived table: "(<query>) AS [alias]".
func (s *Selector) ref(b *Builder) {
	b.Nested(func(nb *Builder) {
		nb.Join(s)
	})
	if s.as != "" {
		b.WriteString(" AS ")
		b.Ident(s.as)
	}
}

// strategy selects the pagination rendering once per render call.
// TOP covers a plain-integer limit with no effective offset; the native
// OFFSET/FETCH clause covers everything else on 2012+; older servers take
// the row-number rewrite.
func (s *Selector) strategy() paginationStrategy {
	offset := s.offset
	if offset.simple() && offset.n == 0 {
		offset = nil // an integer offset of zero is no offset at all
	}
	if s.limit == nil && offset == nil {
		return noPagination
	}
	if s.limit.simple() && offset == nil {
		return topOnly
	}
	if s.capability().SupportsOffsetFetch() {
		return nativeOffsetFetch
	}
	return rowNumberRewrite
}

// Query returns the rendered SELECT statement and its arguments.
func (s *Selector) Query() (string, []any) {
	strategy := s.strategy()
	if strategy == rowNumberRewrite && !s.rewritten {
		return s.rowNumberQuery()
	}
	b := s.Builder.new()
	b.WriteString("SELECT ")
	if s.distinct {
		b.WriteString("DISTINCT ")
	}
	if strategy == topOnly {
		// TOP does not accept bound parameters; the value is inlined.
		b.WriteString("TOP ")
		s.limit.write(&b)
		b.Pad()
	}
	if len(s.columns) > 0 {
		b.IdentComma(s.columns...)
	} else {
		b.WriteByte('*')
	}
	if len(s.from) > 0 {
		b.WriteString(" FROM ")
		for i, t := range s.from {
			if i > 0 {
				b.Comma()
			}
			t.ref(&b)
		}
	}
	for _, j := range s.joins {
		b.Pad().WriteString(j.kind).Pad()
		j.table.ref(&b)
		if j.on != nil {
			b.WriteString(" ON ")
			b.Join(j.on)
		}
	}
	if s.where != nil {
		b.WriteString(" WHERE ")
		b.Join(s.where)
	}
	if len(s.groupBy) > 0 {
		b.WriteString(" GROUP BY ")
		b.IdentComma(s.groupBy...)
	}
	if s.having != nil {
		b.WriteString(" HAVING ")
		b.Join(s.having)
	}
	if len(s.order) > 0 {
		b.WriteString(" ORDER BY ")
		s.writeOrder(&b)
	}
	if strategy == nativeOffsetFetch {
		// OFFSET and FETCH are options of the ORDER BY clause.
		if len(s.order) == 0 {
			b.AddError(NewCompileError("OFFSET", "SQL Server requires an ORDER BY when using an OFFSET or a non-simple LIMIT clause"))
		}
		b.WriteString(" OFFSET ")
		if s.offset != nil {
			s.offset.write(&b)
		} else {
			b.WriteByte('0')
		}
		b.WriteString(" ROWS")
		if s.limit != nil {
			b.WriteString(" FETCH NEXT ")
			s.limit.write(&b)
			b.WriteString(" ROWS ONLY")
		}
	}
	s.AddError(b.Err())
	return b.String(), b.args
}

// writeOrder renders the ORDER BY expression list, preserving any
// ASC/DESC suffixes.
func (s *Selector) writeOrder(b *Builder) {
	for i, o := range s.order {
		if i > 0 {
			b.Comma()
		}
		switch {
		case strings.HasSuffix(o, " DESC"):
			b.Ident(strings.TrimSuffix(o, " DESC")).WriteString(" DESC")
		case strings.HasSuffix(o, " ASC"):
			b.Ident(strings.TrimSuffix(o, " ASC")).WriteString(" ASC")
		default:
			b.Ident(o)
		}
	}
}

// rankColumn is the enumeration column added by the row-number rewrite.
const rankColumn = "mssql_rn"

// rowNumberQuery rewrites the statement for servers with no native
// OFFSET/FETCH: the original projection is wrapped in a derived subquery
// that adds a ROW_NUMBER() rank over the ORDER BY list, and the outer query
// filters rank > offset and, with a limit, rank <= limit + offset. The outer
// query carries no ORDER BY; ordering is encoded in the rank. The rewrite is
// applied at most once: the derived statement is tagged and renders plainly.
func (s *Selector) rowNumberQuery() (string, []any) {
	if len(s.order) == 0 {
		s.AddError(NewCompileError("OFFSET", "SQL Server requires an ORDER BY when using an OFFSET or a non-simple LIMIT clause"))
		return "", nil
	}
	if len(s.columns) == 0 {
		s.AddError(NewCompileError("SELECT", "row-number pagination requires an explicit column list"))
		return "", nil
	}
	inner := &Selector{
		Builder:   s.Builder.new(),
		columns:   append([]string(nil), s.columns...),
		from:      s.from,
		joins:     s.joins,
		where:     s.where,
		groupBy:   s.groupBy,
		having:    s.having,
		distinct:  s.distinct,
		rewritten: true,
	}
	rank := s.Builder.new()
	rank.WriteString("ROW_NUMBER() OVER (ORDER BY ")
	s.writeOrder(&rank)
	rank.WriteString(") AS ").Ident(rankColumn)
	inner.columns = append(inner.columns, rank.String())

	outer := &Selector{
		Builder:   s.Builder.new(),
		rewritten: true,
	}
	for _, c := range s.columns {
		outer.columns = append(outer.columns, selectedName(c))
	}
	outer.From(inner.As("anon_1"))
	offset, limit := s.offset, s.limit
	if offset.simple() && offset.n == 0 {
		offset = nil
	}
	switch {
	case offset != nil && limit != nil:
		outer.Where(And(
			rankAbove(offset),
			rankAtMost(limit, offset),
		))
	case offset != nil:
		outer.Where(rankAbove(offset))
	default:
		outer.Where(rankAtMost(limit, nil))
	}
	text, args := outer.Query()
	s.AddError(outer.Err())
	return text, args
}

// rankAbove renders "mssql_rn > <offset>".
func rankAbove(offset *pageValue) *Predicate {
	return P(func(b *Builder) {
		b.Ident(rankColumn).WriteString(" > ")
		offset.write(b)
	})
}

// rankAtMost renders "mssql_rn <= <limit + offset>". The bound is exactly
// limit + offset; a nil offset contributes nothing.
func rankAtMost(limit, offset *pageValue) *Predicate {
	return P(func(b *Builder) {
		b.Ident(rankColumn).WriteString(" <= ")
		if offset == nil {
			limit.write(b)
			return
		}
		if limit.simple() && offset.simple() {
			b.WriteString(strconv.Itoa(limit.n + offset.n))
			return
		}
		limit.write(b)
		b.WriteString(" + ")
		offset.write(b)
	})
}

// selectedName returns the name a selected column is addressable by in an
// enclosing query: its alias if aliased, otherwise the column stripped of
// its table qualifier.
func selectedName(c string) string {
	if i := strings.LastIndex(c, " AS "); i >= 0 {
		return strings.Trim(c[i+len(" AS "):], "[]")
	}
	if i := strings.LastIndexByte(c, '.'); i >= 0 && !strings.ContainsAny(c, "( ") {
		return c[i+1:]
	}
	return c
}

// resultColumns implements the result-column mapping for Compile.
func (s *Selector) resultColumns() []ResultColumn {
	cols := make([]ResultColumn, 0, len(s.columns))
	for _, c := range s.columns {
		cols = append(cols, ResultColumn{Requested: c, Rendered: selectedName(c)})
	}
	return cols
}

// execMeta implements statement metadata for Compile.
func (s *Selector) execMeta(st *Statement) {
	st.Kind = KindSelect
}
