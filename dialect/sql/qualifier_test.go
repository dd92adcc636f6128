package sql

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaResolver(t *testing.T) {
	tests := []struct {
		schema string
		want   QualifiedName
	}{
		{
			schema: "",
			want:   QualifiedName{Owner: "dbo"},
		},
		{
			schema: "sales",
			want:   QualifiedName{Owner: "sales"},
		},
		{
			schema: "mydb.dbo",
			want:   QualifiedName{Database: "mydb", Owner: "dbo"},
		},
		{
			schema: "[abc]",
			want:   QualifiedName{Owner: "[abc]"},
		},
		{
			schema: "[abc].[def]",
			want:   QualifiedName{Database: "abc", Owner: "def"},
		},
		{
			// Brackets suppress the dot; the whole token is the owner.
			schema: "[MyDataBase.dbo]",
			want:   QualifiedName{Owner: "MyDataBase.dbo"},
		},
		{
			schema: "[MyDataBase.dbo].foo",
			want:   QualifiedName{Database: "MyDataBase.dbo", Owner: "foo"},
		},
		{
			schema: "[MyDataBase.Period].[MyOwner.Dot]",
			want:   QualifiedName{Database: "MyDataBase.Period", Owner: "MyOwner.Dot"},
		},
	}
	r := NewSchemaResolver()
	for _, tt := range tests {
		t.Run(tt.schema, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.schema))
		})
	}
}

func TestSchemaResolverBracketedDot(t *testing.T) {
	// A dot inside brackets belongs to the name, not the qualifier.
	r := NewSchemaResolver()
	qn := r.Resolve("[My.DB].owner")
	assert.Equal(t, "My.DB", qn.Database)
	assert.Equal(t, "owner", qn.Owner)
	assert.False(t, qn.DatabaseDelimited)
}

func TestSchemaResolverDelimitedDatabase(t *testing.T) {
	// An internal "]...[" pair means the database token is a compound of
	// delimited parts and must pass through verbatim.
	r := NewSchemaResolver()
	qn := r.Resolve("[a].[b].owner")
	assert.Equal(t, "owner", qn.Owner)
	assert.True(t, qn.DatabaseDelimited)
	assert.Equal(t, "[a].[b]", qn.Database)
}

func TestSchemaResolverDefaultOwner(t *testing.T) {
	r := NewSchemaResolver(WithDefaultOwner("sales"))
	assert.Equal(t, QualifiedName{Owner: "sales"}, r.Resolve(""))
}

func TestSchemaResolverCaching(t *testing.T) {
	r := NewSchemaResolver(WithSchemaCacheSize(2))
	first := r.Resolve("db.dbo")
	second := r.Resolve("db.dbo")
	assert.Equal(t, first, second)
	// Exceed the capacity; results stay correct after eviction.
	for i := 0; i < 5; i++ {
		r.Resolve(fmt.Sprintf("db%d.dbo", i))
	}
	assert.Equal(t, first, r.Resolve("db.dbo"))
}

func TestSchemaResolverConcurrent(t *testing.T) {
	r := NewSchemaResolver()
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				qn := r.Resolve(fmt.Sprintf("db%d.dbo", j%10))
				require.Equal(t, "dbo", qn.Owner)
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
