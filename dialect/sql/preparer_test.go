package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreparerQuote(t *testing.T) {
	p := NewPreparer(nil)
	assert.Equal(t, "[users]", p.Quote("users"))
	assert.Equal(t, "[]", p.Quote(""))
	// A closing bracket is escaped by doubling.
	assert.Equal(t, "[a]]b]", p.Quote("a]b"))
	assert.Equal(t, "[a[b]", p.Quote("a[b"))
}

func TestPreparerIdent(t *testing.T) {
	tests := []struct {
		ident string
		want  string
	}{
		{"users", "users"},
		{"user_name2", "user_name2"},
		{"#temp", "#temp"},
		{"", "[]"},
		{"select", "[select]"},
		{"Order", "[Order]"},
		{"Users", "[Users]"},
		{"my table", "[my table]"},
		{"2fa", "[2fa]"},
		{"$money", "[$money]"},
		{"col$1", "col$1"},
		{"weird]name", "[weird]]name]"},
	}
	p := NewPreparer(nil)
	for _, tt := range tests {
		t.Run(tt.ident, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Ident(tt.ident))
		})
	}
}

func TestPreparerFormatTable(t *testing.T) {
	p := NewPreparer(nil)
	assert.Equal(t, "users", p.FormatTable("", "users"))
	assert.Equal(t, "sales.users", p.FormatTable("sales", "users"))
	assert.Equal(t, "mydb.dbo.users", p.FormatTable("mydb.dbo", "users"))
	assert.Equal(t, "[MyDb].dbo.users", p.FormatTable("MyDb.dbo", "users"))
	assert.Equal(t,
		"[MyDataBase.Period].[MyOwner.Dot].[Account]",
		p.FormatTable("[MyDataBase.Period].[MyOwner.Dot]", "Account"))
}

func TestPreparerQuoteSchemaDelimited(t *testing.T) {
	// A verbatim database token keeps its own delimiters and is not quoted
	// a second time.
	p := NewPreparer(nil)
	assert.Equal(t, "[a].[b].owner.t", p.FormatTable("[a].[b].owner", "t"))
}
