package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/mudrockdev/mudrockdbtool/schema"
)

// sqliteStore runs the batch engine against an in-memory SQLite database.
type sqliteStore struct {
	db     *sql.DB
	size   int
	logger zerolog.Logger
	report ProgressFunc
}

func newSQLiteStore(t *testing.T, size int) *sqliteStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// Every pooled connection would get its own in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return &sqliteStore{db: db, size: size, logger: zerolog.Nop()}
}

func (s *sqliteStore) conn() *sql.DB          { return s.db }
func (s *sqliteStore) quote(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }
func (s *sqliteStore) bindVar(int) string     { return "?" }
func (s *sqliteStore) batchSize() int         { return s.size }
func (s *sqliteStore) log() *zerolog.Logger   { return &s.logger }
func (s *sqliteStore) progress() ProgressFunc { return s.report }

type pragmaColumn struct {
	name string
	pk   int
}

func (s *sqliteStore) tableInfo(ctx context.Context, table string) ([]pragmaColumn, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", s.quote(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pragmaColumn
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typ        string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		out = append(out, pragmaColumn{name: name, pk: pk})
	}
	return out, rows.Err()
}

func (s *sqliteStore) nativeColumnNames(ctx context.Context, table string) ([]string, error) {
	info, err := s.tableInfo(ctx, table)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(info))
	for i, c := range info {
		names[i] = c.name
	}
	return names, nil
}

func (s *sqliteStore) orderColumns(ctx context.Context, table string) ([]string, error) {
	info, err := s.tableInfo(ctx, table)
	if err != nil {
		return nil, err
	}
	var keys []schema.Key
	var names []string
	for _, c := range info {
		names = append(names, c.name)
		if c.pk > 0 {
			keys = append(keys, schema.Key{KeyType: schema.Primary, KeyName: "pk", ColumnName: c.name, Position: c.pk})
		}
	}
	return bestOrderColumns(keys, names), nil
}

func (s *sqliteStore) exec(t *testing.T, query string) {
	t.Helper()
	_, err := s.db.Exec(query)
	require.NoError(t, err)
}

func postRows(n int) []schema.Row {
	rows := make([]schema.Row, n)
	for i := range rows {
		rows[i] = schema.NewRow([]string{"title", "id"}, []any{fmt.Sprintf("post %d", i+1), int64(i + 1)})
	}
	return rows
}

func TestStreamRowsCallsSinkPerPage(t *testing.T) {
	for _, tt := range []struct {
		rows, batch, calls int
	}{
		{rows: 0, batch: 10, calls: 0},
		{rows: 1, batch: 10, calls: 1},
		{rows: 25, batch: 10, calls: 3},
		{rows: 30, batch: 10, calls: 3},
		{rows: 7, batch: 1, calls: 7},
	} {
		t.Run(fmt.Sprintf("%d rows by %d", tt.rows, tt.batch), func(t *testing.T) {
			ctx := context.Background()
			s := newSQLiteStore(t, tt.batch)
			s.exec(t, `CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT, body TEXT)`)
			require.NoError(t, insertRows(ctx, s, "posts", postRows(tt.rows)))

			var progress []int64
			s.report = func(table string, done, total int64) {
				assert.Equal(t, "posts", table)
				assert.Equal(t, int64(tt.rows), total)
				progress = append(progress, done)
			}

			calls := 0
			var ids []int64
			err := streamRows(ctx, s, "posts", func(rows []schema.Row) error {
				calls++
				require.LessOrEqual(t, len(rows), tt.batch)
				for _, r := range rows {
					id, ok := r.Get("id")
					require.True(t, ok)
					ids = append(ids, id.(int64))
				}
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, tt.calls, calls)
			require.Len(t, ids, tt.rows)
			assert.True(t, sort.SliceIsSorted(ids, func(i, j int) bool { return ids[i] < ids[j] }))
			assert.Len(t, progress, tt.calls)
		})
	}
}

func TestStreamRowsStopsOnSinkError(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t, 2)
	s.exec(t, `CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT)`)
	require.NoError(t, insertRows(ctx, s, "posts", postRows(6)))

	boom := errors.New("sink full")
	calls := 0
	err := streamRows(ctx, s, "posts", func([]schema.Row) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRoundTripBetweenTables(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t, 4)
	s.exec(t, `CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT, body TEXT)`)
	s.exec(t, `CREATE TABLE posts_copy (id INTEGER PRIMARY KEY, title TEXT, body TEXT)`)
	require.NoError(t, insertRows(ctx, s, "posts", postRows(10)))

	err := streamRows(ctx, s, "posts", func(rows []schema.Row) error {
		return insertRows(ctx, s, "posts_copy", rows)
	})
	require.NoError(t, err)

	src, err := collectRows(ctx, s, "posts")
	require.NoError(t, err)
	dst, err := collectRows(ctx, s, "posts_copy")
	require.NoError(t, err)
	assert.Equal(t, src, dst)
}

func TestInsertRowsFillsMissingColumnsWithNull(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t, 10)
	s.exec(t, `CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT, body TEXT)`)

	require.NoError(t, insertRows(ctx, s, "posts", []schema.Row{
		schema.NewRow([]string{"body", "id"}, []any{"only body", int64(1)}),
	}))

	rows, err := collectRows(ctx, s, "posts")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"id", "title", "body"}, rows[0].Columns)
	assert.Equal(t, []any{int64(1), nil, "only body"}, rows[0].Values)
}

func TestInsertRowsRollsBackFailedChunk(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t, 2)
	s.exec(t, `CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT UNIQUE)`)

	rows := []schema.Row{
		schema.NewRow([]string{"id", "email"}, []any{int64(1), "a@example.com"}),
		schema.NewRow([]string{"id", "email"}, []any{int64(2), "b@example.com"}),
		schema.NewRow([]string{"id", "email"}, []any{int64(3), "c@example.com"}),
		schema.NewRow([]string{"id", "email"}, []any{int64(4), "a@example.com"}),
	}
	err := insertRows(ctx, s, "users", rows)
	require.Error(t, err)

	n, err := rowCount(ctx, s, "users")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "first chunk stays committed, second is rolled back whole")
}

func TestInsertRowsIntoMissingTable(t *testing.T) {
	s := newSQLiteStore(t, 10)
	err := insertRows(context.Background(), s, "ghost", postRows(1))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScanRowsKeepsBinary(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t, 10)
	s.exec(t, `CREATE TABLE files (id INTEGER PRIMARY KEY, name TEXT, data BLOB)`)
	require.NoError(t, insertRows(ctx, s, "files", []schema.Row{
		schema.NewRow([]string{"id", "name", "data"}, []any{int64(1), "a.bin", []byte{0x00, 0xff}}),
	}))

	rows, err := collectRows(ctx, s, "files")
	require.NoError(t, err)
	data, _ := rows[0].Get("data")
	assert.Equal(t, []byte{0x00, 0xff}, data)
	name, _ := rows[0].Get("name")
	assert.Equal(t, "a.bin", name)
}

func TestInsertChunkSize(t *testing.T) {
	assert.Equal(t, 1000, insertChunkSize(1000, 10))
	assert.Equal(t, 65535/100, insertChunkSize(1000, 100))
	assert.Equal(t, 1, insertChunkSize(1000, 70000))
	assert.Equal(t, 5, insertChunkSize(5, 0))
}

func TestReorderRows(t *testing.T) {
	rows := []schema.Row{schema.NewRow([]string{"title", "id"}, []any{"x", int64(1)})}
	out := reorderRows(rows, []string{"id", "title"})
	assert.Equal(t, []any{int64(1), "x"}, out[0].Values)
}
