package sql

import "strings"

// Predicate is a where-clause predicate. Predicates compose with And, Or and
// Not, and render lazily into the parent builder so that placeholder
// numbering stays in statement order.
type Predicate struct {
	Builder
	fns []func(*Builder)
}

// P returns a predicate from the given render functions.
func P(fns ...func(*Builder)) *Predicate {
	return &Predicate{fns: fns}
}

// ExprP returns a predicate from a raw expression with pre-bound arguments.
func ExprP(s string, args ...any) *Predicate {
	return P(func(b *Builder) {
		b.Join(Expr(s, args...))
	})
}

// Append adds a render function to the predicate.
func (p *Predicate) Append(f func(*Builder)) *Predicate {
	p.fns = append(p.fns, f)
	return p
}

// Query renders the predicate.
func (p *Predicate) Query() (string, []any) {
	b := p.Builder.new()
	for _, f := range p.fns {
		f(&b)
	}
	p.AddError(b.Err())
	return b.String(), b.args
}

// And combines the given predicates with AND.
func And(preds ...*Predicate) *Predicate {
	return P(func(b *Builder) {
		for i, p := range preds {
			if i > 0 {
				b.WriteString(" AND ")
			}
			b.Join(p)
		}
	})
}

// Or combines the given predicates with OR, parenthesized.
func Or(preds ...*Predicate) *Predicate {
	return P(func(b *Builder) {
		if len(preds) > 1 {
			b.Nested(func(nb *Builder) {
				for i, p := range preds {
					if i > 0 {
						nb.WriteString(" OR ")
					}
					nb.Join(p)
				}
			})
			return
		}
		for _, p := range preds {
			b.Join(p)
		}
	})
}

// Not negates the given predicate.
func Not(p *Predicate) *Predicate {
	return P(func(b *Builder) {
		b.WriteString("NOT ")
		b.Nested(func(nb *Builder) {
			nb.Join(p)
		})
	})
}

// valueWrap forces an operand to be treated as a bound value, not a column
// name.
type valueWrap struct{ v any }

// Value marks v as a bound value for the operand-based predicates, where a
// plain string would otherwise be read as a column name.
func Value(v any) any { return &valueWrap{v} }

// isBoundValue reports whether the operand binds a parameter. Strings are
// column references and queriers are expressions; everything else binds.
func isBoundValue(v any) bool {
	switch v.(type) {
	case string, Querier, *raw:
		return false
	}
	return true
}

func writeOperand(b *Builder, v any) {
	switch v := v.(type) {
	case string:
		b.Ident(v)
	case Querier:
		b.Join(v)
	case *valueWrap:
		b.Arg(v.v)
	case bool:
		// Booleans have no literal form; render the bit values.
		if v {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	default:
		b.Arg(v)
	}
}

// binaryP renders "left <op> right" between two operands. For equality, a
// bound value on the left with a non-value right is moved to the right-hand
// side.
func binaryP(left any, op string, right any) *Predicate {
	if op == "=" && isBoundValue(left) && !isBoundValue(right) {
		left, right = right, left
	}
	return P(func(b *Builder) {
		writeOperand(b, left)
		b.WriteString(" " + op + " ")
		writeOperand(b, right)
	})
}

// ExprEQ renders an equality between two arbitrary operands. Strings are
// column references; wrap literals with Value.
func ExprEQ(left, right any) *Predicate { return binaryP(left, "=", right) }

// EQ renders "col = value".
func EQ(col string, v any) *Predicate { return binaryP(col, "=", asValue(v)) }

// NEQ renders "col <> value".
func NEQ(col string, v any) *Predicate { return binaryP(col, "<>", asValue(v)) }

// GT renders "col > value".
func GT(col string, v any) *Predicate { return binaryP(col, ">", asValue(v)) }

// GTE renders "col >= value".
func GTE(col string, v any) *Predicate { return binaryP(col, ">=", asValue(v)) }

// LT renders "col < value".
func LT(col string, v any) *Predicate { return binaryP(col, "<", asValue(v)) }

// LTE renders "col <= value".
func LTE(col string, v any) *Predicate { return binaryP(col, "<=", asValue(v)) }

// ColumnsEQ renders "col1 = col2".
func ColumnsEQ(col1, col2 string) *Predicate { return binaryP(col1, "=", col2) }

// ColumnsNEQ renders "col1 <> col2".
func ColumnsNEQ(col1, col2 string) *Predicate { return binaryP(col1, "<>", col2) }

// asValue keeps non-string values as-is and wraps strings so they bind
// instead of reading as column names.
func asValue(v any) any {
	if s, ok := v.(string); ok {
		return Value(s)
	}
	return v
}

// In renders "col IN (...)". An empty value list renders the never-true
// membership test "IN (SELECT 1 WHERE 1 != 1)" since SQL Server has no empty
// IN list.
func In(col string, vs ...any) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" IN ")
		if len(vs) == 0 {
			b.WriteString("(SELECT 1 WHERE 1 != 1)")
			return
		}
		if len(vs) == 1 {
			if q, ok := vs[0].(Querier); ok {
				b.Nested(func(nb *Builder) {
					nb.Join(q)
				})
				return
			}
		}
		b.Nested(func(nb *Builder) {
			nb.Args(vs...)
		})
	})
}

// NotIn renders "col NOT IN (...)".
func NotIn(col string, vs ...any) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" NOT IN ")
		if len(vs) == 0 {
			b.WriteString("(SELECT 1 WHERE 1 != 1)")
			return
		}
		b.Nested(func(nb *Builder) {
			nb.Args(vs...)
		})
	})
}

// Like renders "col LIKE pattern".
func Like(col, pattern string) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" LIKE ").Arg(pattern)
	})
}

// HasPrefix renders a prefix match.
func HasPrefix(col, prefix string) *Predicate { return Like(col, prefix+"%") }

// HasSuffix renders a suffix match.
func HasSuffix(col, suffix string) *Predicate { return Like(col, "%"+suffix) }

// Contains renders a substring match.
func Contains(col, sub string) *Predicate { return Like(col, "%"+sub+"%") }

// Match renders a full-text CONTAINS predicate.
func Match(col string, v any) *Predicate {
	return P(func(b *Builder) {
		b.WriteString("CONTAINS (").Ident(col).Comma().Arg(v).WriteByte(')')
	})
}

// IsNull renders "col IS NULL".
func IsNull(col string) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" IS NULL")
	})
}

// NotNull renders "col IS NOT NULL".
func NotNull(col string) *Predicate {
	return P(func(b *Builder) {
		b.Ident(col).WriteString(" IS NOT NULL")
	})
}

// DistinctFrom renders the null-aware inequality test. SQL Server has no
// IS DISTINCT FROM; the equivalent is NOT EXISTS over an INTERSECT of the
// two operands.
func DistinctFrom(col string, v any) *Predicate {
	return P(func(b *Builder) {
		b.WriteString("NOT EXISTS (SELECT ").Ident(col).WriteString(" INTERSECT SELECT ").Arg(v).WriteByte(')')
	})
}

// NotDistinctFrom renders the null-aware equality test via EXISTS/INTERSECT.
func NotDistinctFrom(col string, v any) *Predicate {
	return P(func(b *Builder) {
		b.WriteString("EXISTS (SELECT ").Ident(col).WriteString(" INTERSECT SELECT ").Arg(v).WriteByte(')')
	})
}

// Exists renders "EXISTS (<query>)".
func Exists(q Querier) *Predicate {
	return P(func(b *Builder) {
		b.WriteString("EXISTS ")
		b.Nested(func(nb *Builder) {
			nb.Join(q)
		})
	})
}

// Desc suffixes a column for descending order.
func Desc(col string) string { return col + " DESC" }

// Asc suffixes a column for ascending order.
func Asc(col string) string { return col + " ASC" }

// As labels an expression with an alias.
func As(expr, alias string) string { return expr + " AS " + alias }

// Count wraps the expression with COUNT.
func Count(expr string) string { return "COUNT(" + expr + ")" }

// Sum wraps the expression with SUM.
func Sum(expr string) string { return "SUM(" + expr + ")" }

// Avg wraps the expression with AVG.
func Avg(expr string) string { return "AVG(" + expr + ")" }

// Min wraps the expression with MIN.
func Min(expr string) string { return "MIN(" + expr + ")" }

// Max wraps the expression with MAX.
func Max(expr string) string { return "MAX(" + expr + ")" }

// Length renders a character-length expression. SQL Server spells it LEN.
func Length(expr string) string { return "LEN(" + expr + ")" }

// CurrentDate renders the current-date expression, GETDATE() on SQL Server.
func CurrentDate() string { return "GETDATE()" }

// Now renders the standard current-timestamp expression.
func Now() string { return "CURRENT_TIMESTAMP" }

// Concat joins string expressions with the + operator.
func Concat(exprs ...string) string { return strings.Join(exprs, " + ") }

// datepartNames maps portable field names to DATEPART arguments.
var datepartNames = map[string]string{
	"doy":          "dayofyear",
	"dow":          "weekday",
	"milliseconds": "millisecond",
	"microseconds": "microsecond",
}

// Extract renders DATEPART(field, expr), translating portable field names to
// their SQL Server spellings.
func Extract(field, expr string) string {
	if name, ok := datepartNames[strings.ToLower(field)]; ok {
		field = name
	}
	return "DATEPART(" + field + ", " + expr + ")"
}

// TryCast renders a TRY_CAST conversion, which yields NULL instead of an
// error when the value does not convert.
func TryCast(expr, typ string) string {
	return "TRY_CAST (" + expr + " AS " + typ + ")"
}

// NextValueFor renders a sequence-advancing value expression.
func NextValueFor(seq string) Querier {
	return Raw("NEXT VALUE FOR " + seq)
}
