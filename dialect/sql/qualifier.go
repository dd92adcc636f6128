package sql

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSchemaCacheSize is the capacity of the schema-qualifier cache.
// Dynamic schema names evict least recently used entries beyond this bound.
const DefaultSchemaCacheSize = 128

// QualifiedName is a schema string split into its database and owner parts.
// Either part may be empty.
type QualifiedName struct {
	// Database is everything before the last unbracketed dot.
	Database string
	// Owner is the final token of the schema string.
	Owner string
	// DatabaseDelimited reports that the database part still carries its own
	// bracket delimiters and must not be quoted again.
	DatabaseDelimited bool
}

// SchemaResolver splits raw schema strings of the form "database.owner" into
// their parts. SQL Server schema names may embed dots inside bracket
// delimiters ("[My.DB].dbo"), so splitting is bracket-aware. Results are
// memoized in a fixed-capacity LRU cache keyed by the exact input string.
//
// A SchemaResolver is safe for concurrent use.
type SchemaResolver struct {
	cache *lru.Cache[string, QualifiedName]
	owner string // owner used when the schema string is empty
}

// SchemaResolverOption configures a SchemaResolver.
type SchemaResolverOption func(*SchemaResolver)

// WithDefaultOwner sets the owner returned for empty schema strings.
// Defaults to "dbo".
func WithDefaultOwner(owner string) SchemaResolverOption {
	return func(r *SchemaResolver) {
		r.owner = owner
	}
}

// WithSchemaCacheSize sets the capacity of the resolver cache.
func WithSchemaCacheSize(size int) SchemaResolverOption {
	return func(r *SchemaResolver) {
		cache, err := lru.New[string, QualifiedName](size)
		if err == nil {
			r.cache = cache
		}
	}
}

// NewSchemaResolver returns a new SchemaResolver.
func NewSchemaResolver(opts ...SchemaResolverOption) *SchemaResolver {
	cache, _ := lru.New[string, QualifiedName](DefaultSchemaCacheSize)
	r := &SchemaResolver{cache: cache, owner: "dbo"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve splits schema into (database, owner). The empty string resolves to
// the default owner. A string with no unbracketed dot is owner-only.
// Malformed bracket runs are not an error; tokens degrade to a best-effort
// literal split.
func (r *SchemaResolver) Resolve(schema string) QualifiedName {
	switch {
	case schema == "":
		return QualifiedName{Owner: r.owner}
	case !strings.Contains(schema, "."):
		return QualifiedName{Owner: schema}
	}
	if qn, ok := r.cache.Get(schema); ok {
		return qn
	}
	qn := splitSchema(schema)
	r.cache.Add(schema, qn)
	return qn
}

// splitSchema tokenizes a dotted schema string. Brackets suppress the
// qualifier-separator meaning of "." until closed; the part before the last
// unbracketed dot is the database, the final token the owner.
func splitSchema(schema string) QualifiedName {
	var (
		push        []string
		symbol      strings.Builder
		bracket     bool
		hasBrackets bool
	)
	flush := func() {
		if hasBrackets {
			push = append(push, "["+symbol.String()+"]")
		} else {
			push = append(push, symbol.String())
		}
		symbol.Reset()
		hasBrackets = false
	}
	for _, c := range schema {
		switch c {
		case '[':
			bracket = true
			hasBrackets = true
		case ']':
			bracket = false
		case '.':
			if !bracket {
				flush()
				continue
			}
			symbol.WriteRune(c)
		default:
			symbol.WriteRune(c)
		}
	}
	if symbol.Len() > 0 {
		push = append(push, symbol.String())
	}
	switch {
	case len(push) > 1:
		qn := QualifiedName{
			Database: strings.Join(push[:len(push)-1], "."),
			Owner:    push[len(push)-1],
		}
		// A database token that still contains an internal "]...[" pair after
		// stripping the outer brackets is preserved verbatim so the preparer
		// does not quote it a second time.
		if hasInternalBrackets(trimOuter(qn.Database)) {
			qn.DatabaseDelimited = true
		} else {
			qn.Database = strings.TrimLeft(strings.TrimRight(qn.Database, "]"), "[")
		}
		return qn
	case len(push) == 1:
		return QualifiedName{Owner: push[0]}
	default:
		return QualifiedName{}
	}
}

func trimOuter(s string) string {
	if len(s) < 2 {
		return s
	}
	return s[1 : len(s)-1]
}

func hasInternalBrackets(s string) bool {
	i := strings.IndexByte(s, ']')
	return i >= 0 && strings.IndexByte(s[i:], '[') >= 0
}
