package sql

import "strings"

// ReservedWords is the set of T-SQL reserved words. Identifiers matching an
// entry (case-insensitively) are always quoted.
var ReservedWords = func() map[string]struct{} {
	words := strings.Fields(`
		add all alter and any as asc authorization backup begin between break
		browse bulk by cascade case check checkpoint close clustered coalesce
		collate column commit compute constraint contains containstable
		continue convert create cross current current_date current_time
		current_timestamp current_user cursor database dbcc deallocate declare
		default delete deny desc disk distinct distributed double drop dump
		else end errlvl escape except exec execute exists exit external fetch
		file fillfactor for foreign freetext freetexttable from full function
		goto grant group having holdlock identity identity_insert identitycol
		if in index inner insert intersect into is join key kill left like
		lineno load merge national nocheck nonclustered not null nullif of off
		offsets on open opendatasource openquery openrowset openxml option or
		order outer over percent pivot plan precision primary print proc
		procedure public raiserror read readtext reconfigure references
		replication restore restrict return revert revoke right rollback
		rowcount rowguidcol rule save schema securityaudit select session_user
		set setuser shutdown some statistics system_user table tablesample
		textsize then to top tran transaction trigger truncate tsequal union
		unique unpivot update updatetext use user values varying view waitfor
		when where while with writetext`)
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// Preparer quotes and escapes SQL Server identifiers. Identifiers are
// delimited with square brackets; a closing bracket inside an identifier is
// escaped by doubling it. Quoting is applied only when needed: reserved
// words, identifiers containing characters outside [a-z0-9_$#@], and
// mixed- or upper-case identifiers.
//
// The zero value is not usable; use NewPreparer.
type Preparer struct {
	resolver *SchemaResolver
}

// NewPreparer returns a new Preparer backed by the given resolver. A nil
// resolver gets a private one with default settings.
func NewPreparer(resolver *SchemaResolver) *Preparer {
	if resolver == nil {
		resolver = NewSchemaResolver()
	}
	return &Preparer{resolver: resolver}
}

// Quote unconditionally quotes the identifier. Quoting is defined for any
// string, including the empty one.
func (p *Preparer) Quote(ident string) string {
	return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
}

// Ident quotes the identifier only if required.
func (p *Preparer) Ident(ident string) string {
	if p.requiresQuotes(ident) {
		return p.Quote(ident)
	}
	return ident
}

// QuoteSchema renders a possibly database-qualified schema string, quoting
// each part independently and skipping the database segment when absent.
func (p *Preparer) QuoteSchema(schema string) string {
	qn := p.resolver.Resolve(schema)
	switch {
	case qn.Database != "" && qn.DatabaseDelimited:
		return qn.Database + "." + p.Ident(qn.Owner)
	case qn.Database != "":
		return p.Ident(qn.Database) + "." + p.Ident(qn.Owner)
	case qn.Owner != "":
		return p.Ident(qn.Owner)
	default:
		return ""
	}
}

// FormatTable renders a table name with its optional schema qualifier.
func (p *Preparer) FormatTable(schema, table string) string {
	if schema == "" {
		return p.Ident(table)
	}
	return p.QuoteSchema(schema) + "." + p.Ident(table)
}

// requiresQuotes reports whether the identifier cannot appear unquoted:
// empty, a reserved word, not all lower case, or containing a character
// outside the legal set.
func (p *Preparer) requiresQuotes(ident string) bool {
	if ident == "" {
		return true
	}
	if _, ok := ReservedWords[strings.ToLower(ident)]; ok {
		return true
	}
	if c := ident[0]; c >= '0' && c <= '9' || c == '$' {
		return true
	}
	for _, c := range ident {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '_' || c == '$' || c == '#' || c == '@':
		default:
			return true
		}
	}
	return false
}
