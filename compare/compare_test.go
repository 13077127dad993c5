package compare

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mudrockdev/mudrockdbtool/adapter"
	"github.com/mudrockdev/mudrockdbtool/adapter/adaptertest"
	"github.com/mudrockdev/mudrockdbtool/connection"
	"github.com/mudrockdev/mudrockdbtool/schema"
)

func length(n int64) *int64 { return &n }

func postsColumns(textLength *int64) []schema.Column {
	return []schema.Column{
		{Name: "id", DataType: schema.Integer, IsAutoIncrement: true},
		{Name: "title", DataType: schema.Varchar, CharacterMaxLength: length(255), IsNullable: true},
		{Name: "body", DataType: schema.Text, CharacterMaxLength: textLength, IsNullable: true},
	}
}

var postsKeys = []schema.Key{{KeyType: schema.Primary, KeyName: "PRIMARY", ColumnName: "id", Position: 1}}

func pair(dialectA, dialectB adapter.Dialect) (*adaptertest.Memory, *adaptertest.Memory, *connection.Connection, *connection.Connection) {
	a := adaptertest.New("a", dialectA)
	b := adaptertest.New("b", dialectB)
	return a, b, connection.New(a), connection.New(b)
}

func TestDiffDatabasesClassifiesTables(t *testing.T) {
	memA, memB, a, b := pair(adapter.MySQL, adapter.MySQL)
	memA.AddTable("posts", postsColumns(length(65535)), postsKeys)
	memB.AddTable("posts", postsColumns(length(65535)), postsKeys)
	memA.AddTable("users", adaptertest.Columns("id", "name"), nil)
	memB.AddTable("users", adaptertest.Columns("id", "email"), nil)
	memA.AddTable("audit", adaptertest.Columns("id"), nil)
	memB.AddTable("sessions", adaptertest.Columns("id"), nil)

	diff, err := DiffDatabases(context.Background(), a, b, Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusMap{{"audit", OnlyInA}, {"posts", Same}, {"users", Differs}}, diff.A)
	assert.Equal(t, StatusMap{{"posts", Same}, {"sessions", OnlyInB}, {"users", DiffersB}}, diff.B)
	assert.False(t, diff.Equal())

	// one-sided tables are never inspected
	assert.NotContains(t, memA.Calls, "columns audit")
	assert.NotContains(t, memB.Calls, "columns sessions")
}

func TestDiffDatabasesIsSymmetric(t *testing.T) {
	memA, memB, a, b := pair(adapter.MySQL, adapter.PostgreSQL)
	memA.AddTable("posts", postsColumns(length(65535)), postsKeys)
	memB.AddTable("posts", postsColumns(nil), postsKeys)
	memA.AddTable("users", adaptertest.Columns("id", "name"), nil)
	memB.AddTable("users", adaptertest.Columns("id"), nil)
	memA.AddTable("tags", adaptertest.Columns("id"), nil)

	ab, err := DiffDatabases(context.Background(), a, b, Options{})
	require.NoError(t, err)
	ba, err := DiffDatabases(context.Background(), b, a, Options{})
	require.NoError(t, err)

	flip := map[Status]Status{Same: Same, Differs: DiffersB, DiffersB: Differs, OnlyInA: OnlyInB, OnlyInB: OnlyInA}
	for _, e := range ab.A {
		assert.Equal(t, flip[e.Status], ba.B.Get(e.Table), e.Table)
	}
	for _, e := range ab.B {
		assert.Equal(t, flip[e.Status], ba.A.Get(e.Table), e.Table)
	}
}

func TestTextLengthIgnoredAcrossDialects(t *testing.T) {
	memA, memB, a, b := pair(adapter.MySQL, adapter.PostgreSQL)
	memA.AddTable("posts", postsColumns(length(65535)), postsKeys)
	memB.AddTable("posts", postsColumns(nil), postsKeys)

	diff, err := DiffDatabases(context.Background(), a, b, Options{})
	require.NoError(t, err)
	assert.Equal(t, Same, diff.A.Get("posts"))
	assert.True(t, diff.Equal())

	strict := false
	diff, err = DiffDatabases(context.Background(), a, b, Options{IgnoreLength: &strict})
	require.NoError(t, err)
	assert.Equal(t, Differs, diff.A.Get("posts"))
	assert.Equal(t, DiffersB, diff.B.Get("posts"))
}

func TestTextLengthComparedWithinDialect(t *testing.T) {
	memA, memB, a, b := pair(adapter.MySQL, adapter.MySQL)
	memA.AddTable("posts", postsColumns(length(65535)), postsKeys)
	memB.AddTable("posts", postsColumns(length(16777215)), postsKeys)

	diff, err := DiffDatabases(context.Background(), a, b, Options{})
	require.NoError(t, err)
	assert.Equal(t, Differs, diff.A.Get("posts"))
}

func TestColumnOrderDoesNotMatterInCustomOrder(t *testing.T) {
	memA, memB, a, b := pair(adapter.MySQL, adapter.MySQL)
	memA.AddTable("users", adaptertest.Columns("id", "name", "updated_at"), nil)
	memB.AddTable("users", adaptertest.Columns("updated_at", "name", "id"), nil)

	diff, err := DiffDatabases(context.Background(), a, b, Options{})
	require.NoError(t, err)
	assert.Equal(t, Same, diff.A.Get("users"))

	diff, err = DiffDatabases(context.Background(), a, b, Options{Order: schema.Native})
	require.NoError(t, err)
	assert.Equal(t, Differs, diff.A.Get("users"))
}

func TestStatusMapJSONKeepsOrder(t *testing.T) {
	diff := DatabaseDiff{
		A: StatusMap{{"b_table", Same}, {"a_table", OnlyInA}},
		B: StatusMap{},
	}
	data, err := json.Marshal(diff)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":{"b_table":"==","a_table":">"},"b":{}}`, string(data))
	assert.Contains(t, string(data), `"b_table":"==","a_table":">"`)
}

func TestDiffTableFiltersField(t *testing.T) {
	memA, memB, a, b := pair(adapter.MySQL, adapter.MySQL)
	memA.AddTable("posts", postsColumns(length(65535)), postsKeys)
	memB.AddTable("posts", postsColumns(length(65535))[:2], postsKeys)

	diff, err := DiffTable(context.Background(), a, b, "posts", "id", Options{})
	require.NoError(t, err)
	require.Len(t, diff.A.Columns, 1)
	assert.Equal(t, "id", diff.A.Columns[0].Name)
	assert.Equal(t, diff.A, diff.B)

	diff, err = DiffTable(context.Background(), a, b, "posts", "body", Options{})
	require.NoError(t, err)
	assert.Len(t, diff.A.Columns, 1)
	assert.Empty(t, diff.B.Columns)
}

func TestDiffTableOneSide(t *testing.T) {
	memA, _, a, b := pair(adapter.MySQL, adapter.PostgreSQL)
	memA.AddTable("posts", postsColumns(nil), postsKeys)

	diff, err := DiffTable(context.Background(), a, b, "posts", "", Options{})
	require.NoError(t, err)
	assert.Len(t, diff.A.Columns, 3)
	assert.Empty(t, diff.B.Columns)
	assert.Empty(t, diff.B.Keys)

	_, err = DiffTable(context.Background(), a, b, "ghost", "", Options{})
	assert.ErrorIs(t, err, adapter.ErrNotFound)

	_, err = DiffTable(context.Background(), a, b, "posts", "id;--", Options{})
	assert.ErrorIs(t, err, adapter.ErrValidation)
}

func TestCompatibleSchemas(t *testing.T) {
	memA, memB, a, b := pair(adapter.MySQL, adapter.PostgreSQL)
	memA.AddTable("users", adaptertest.Columns("id", "name", "email"), nil)
	memB.AddTable("users", adaptertest.Columns("email", "id", "name"), nil)
	assert.NoError(t, CompatibleSchemas(context.Background(), a, b, "users"))

	memB.AddTable("users", adaptertest.Columns("id", "name", "nickname"), nil)
	err := CompatibleSchemas(context.Background(), a, b, "users")
	require.ErrorIs(t, err, adapter.ErrIncompatibleSchema)

	var incompatible *adapter.IncompatibleSchemaError
	require.ErrorAs(t, err, &incompatible)
	assert.Equal(t, []string{"email"}, incompatible.Missing)
	assert.Equal(t, []string{"nickname"}, incompatible.Extra)
}

func TestParseIgnoreLength(t *testing.T) {
	v, err := ParseIgnoreLength("")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = ParseIgnoreLength("yes")
	require.NoError(t, err)
	assert.True(t, *v)

	v, err = ParseIgnoreLength("no")
	require.NoError(t, err)
	assert.False(t, *v)

	_, err = ParseIgnoreLength("maybe")
	assert.ErrorIs(t, err, adapter.ErrValidation)
	assert.EqualError(t, err, "Invalid value for ignore-length. Must be 'yes' or 'no', got 'maybe'.")
}

func TestColumnDifferences(t *testing.T) {
	a := TableShape{Columns: postsColumns(length(65535)), Keys: postsKeys}
	b := TableShape{Columns: postsColumns(nil)[:2], Keys: nil}
	b.Columns[1].IsNullable = false
	b.Columns = append(b.Columns, schema.Column{Name: "slug", DataType: schema.Varchar})

	assert.Equal(t, []string{
		"Column 'posts.title' has different nullable property: source='true', target='false'",
		"Column 'posts.body' exists in source but not in target",
		"Column 'posts.slug' exists in target but not in source",
		"Table 'posts' has different primary keys: source=[id], target=[]",
	}, ColumnDifferences("posts", a, b))

	assert.Empty(t, ColumnDifferences("posts", a, a))
}
