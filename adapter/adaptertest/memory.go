// Package adaptertest provides an in-memory DatabaseAdapter for tests of
// code built on top of the adapters.
package adaptertest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mudrockdev/mudrockdbtool/adapter"
	"github.com/mudrockdev/mudrockdbtool/schema"
)

// Table is one in-memory table. Rows are stored in native column order.
type Table struct {
	Columns []schema.Column
	Keys    []schema.Key
	Rows    []schema.Row
}

// Memory implements adapter.DatabaseAdapter over a map of tables. Calls
// records every adapter method invoked, in order.
type Memory struct {
	Cfg    adapter.Config
	Tables map[string]*Table
	Calls  []string

	// InsertErr, when set, is returned by InsertInto after InsertOK calls
	// have succeeded.
	InsertErr error
	InsertOK  int
	inserts   int
}

var _ adapter.DatabaseAdapter = (*Memory)(nil)

// New returns an empty database of the given dialect.
func New(name string, dialect adapter.Dialect) *Memory {
	cfg := adapter.Config{
		Name:     name,
		Driver:   dialect,
		Host:     "localhost",
		Database: name,
		Username: "test",
	}.WithDefaults()
	return &Memory{Cfg: cfg, Tables: map[string]*Table{}}
}

// Columns is shorthand for building TEXT and INTEGER columns in tests.
func Columns(names ...string) []schema.Column {
	out := make([]schema.Column, len(names))
	for i, n := range names {
		out[i] = schema.Column{Name: n, DataType: schema.Text, IsNullable: true}
		if n == "id" || strings.HasSuffix(n, "_id") {
			out[i].DataType = schema.Integer
			out[i].IsNullable = false
		}
	}
	return out
}

// AddTable creates table with the given columns and rows. Rows are built
// positionally from values.
func (m *Memory) AddTable(name string, columns []schema.Column, keys []schema.Key, values ...[]any) *Table {
	t := &Table{Columns: columns, Keys: keys}
	names := schema.ColumnNames(columns)
	for _, v := range values {
		t.Rows = append(t.Rows, schema.NewRow(names, v))
	}
	m.Tables[name] = t
	return t
}

func (m *Memory) record(format string, args ...any) {
	m.Calls = append(m.Calls, fmt.Sprintf(format, args...))
}

func (m *Memory) table(name string) (*Table, error) {
	t, ok := m.Tables[name]
	if !ok {
		return nil, &adapter.NotFoundError{Table: name}
	}
	return t, nil
}

func (m *Memory) Dialect() adapter.Dialect { return m.Cfg.Driver }
func (m *Memory) Config() adapter.Config   { return m.Cfg }

func (m *Memory) Connect(context.Context) error { m.record("connect"); return nil }
func (m *Memory) Close() error                  { m.record("close"); return nil }

func (m *Memory) GetTableList(context.Context) ([]string, error) {
	m.record("list")
	names := make([]string, 0, len(m.Tables))
	for n := range m.Tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) GetColumns(_ context.Context, table string, order schema.Order) ([]schema.Column, error) {
	m.record("columns %s", table)
	t, err := m.table(table)
	if err != nil {
		return nil, err
	}
	return schema.SortColumns(append([]schema.Column(nil), t.Columns...), order), nil
}

func (m *Memory) GetKeys(_ context.Context, table string, order schema.Order) ([]schema.Key, error) {
	m.record("keys %s", table)
	t, err := m.table(table)
	if err != nil {
		return nil, err
	}
	return schema.SortKeys(append([]schema.Key(nil), t.Keys...), order), nil
}

func (m *Memory) GetTableData(_ context.Context, table string, order schema.Order) ([]schema.Row, error) {
	m.record("data %s", table)
	t, err := m.table(table)
	if err != nil {
		return nil, err
	}
	names := schema.ColumnNames(schema.SortColumns(t.Columns, order))
	out := make([]schema.Row, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = schema.NewRow(names, r.Reorder(names))
	}
	return out, nil
}

func (m *Memory) StreamTableData(_ context.Context, table string, sink adapter.Sink) error {
	m.record("stream %s", table)
	t, err := m.table(table)
	if err != nil {
		return err
	}
	size := m.Cfg.BatchSize
	for start := 0; start < len(t.Rows); start += size {
		end := start + size
		if end > len(t.Rows) {
			end = len(t.Rows)
		}
		page := append([]schema.Row(nil), t.Rows[start:end]...)
		if err := sink(page); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) InsertInto(_ context.Context, table string, rows []schema.Row) error {
	m.record("insert %s %d", table, len(rows))
	t, err := m.table(table)
	if err != nil {
		return err
	}
	if m.InsertErr != nil && m.inserts >= m.InsertOK {
		return &adapter.QueryError{Op: "insert into", Target: table, Cause: m.InsertErr}
	}
	m.inserts++
	names := schema.ColumnNames(t.Columns)
	for _, r := range rows {
		t.Rows = append(t.Rows, schema.NewRow(names, r.Reorder(names)))
	}
	return nil
}

func (m *Memory) RowCount(_ context.Context, table string) (int64, error) {
	m.record("count %s", table)
	t, err := m.table(table)
	if err != nil {
		return 0, err
	}
	return int64(len(t.Rows)), nil
}

func (m *Memory) TableExists(_ context.Context, table string) (bool, error) {
	m.record("exists %s", table)
	_, ok := m.Tables[table]
	return ok, nil
}

func (m *Memory) DropTable(_ context.Context, table string) error {
	m.record("drop %s", table)
	if _, err := m.table(table); err != nil {
		return err
	}
	delete(m.Tables, table)
	return nil
}

func (m *Memory) TruncateTable(_ context.Context, table string) error {
	m.record("truncate %s", table)
	t, err := m.table(table)
	if err != nil {
		return err
	}
	t.Rows = nil
	return nil
}

func (m *Memory) RenameTable(_ context.Context, from, to string) error {
	m.record("rename %s %s", from, to)
	t, err := m.table(from)
	if err != nil {
		return err
	}
	if _, exists := m.Tables[to]; exists {
		return &adapter.QueryError{Op: "rename table", Target: from, Cause: adapter.ErrTableExists}
	}
	delete(m.Tables, from)
	m.Tables[to] = t
	return nil
}

func (m *Memory) DropAll(context.Context) error {
	m.record("drop all")
	m.Tables = map[string]*Table{}
	return nil
}

type ddl struct {
	Columns []schema.Column `json:"columns"`
	Keys    []schema.Key    `json:"keys"`
}

// GetTableSchema renders "CREATE TABLE <name> <json>", which Exec accepts.
func (m *Memory) GetTableSchema(_ context.Context, table string) (string, error) {
	m.record("schema %s", table)
	t, err := m.table(table)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(ddl{Columns: t.Columns, Keys: t.Keys})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE TABLE %s %s", table, data), nil
}

func (m *Memory) Exec(_ context.Context, query string) (int64, error) {
	m.record("exec %s", strings.SplitN(query, " {", 2)[0])
	rest, ok := strings.CutPrefix(query, "CREATE TABLE ")
	if !ok {
		return 0, nil
	}
	name, body, _ := strings.Cut(rest, " ")
	if _, exists := m.Tables[name]; exists {
		return 0, &adapter.QueryError{Op: "exec", Cause: adapter.ErrTableExists}
	}
	var d ddl
	if err := json.Unmarshal([]byte(body), &d); err != nil {
		return 0, &adapter.QueryError{Op: "exec", Cause: err}
	}
	m.Tables[name] = &Table{Columns: d.Columns, Keys: d.Keys}
	return 0, nil
}

func (m *Memory) Query(_ context.Context, query string) ([]schema.Row, error) {
	m.record("query %s", query)
	return nil, nil
}

func (m *Memory) DatabaseSize(context.Context) (int64, error) {
	m.record("size")
	var n int64
	for _, t := range m.Tables {
		n += int64(len(t.Rows)) * 64
	}
	return n, nil
}

func (m *Memory) DumpCommand(_ context.Context, opts adapter.DumpOptions) (string, error) {
	m.record("dump %s", opts.Table)
	return strings.TrimSpace("dump " + m.Cfg.Database + " " + opts.Table), nil
}

func (m *Memory) RunCommand(_ context.Context, script string) (string, error) {
	m.record("run %s", script)
	return "run " + m.Cfg.Database + " " + script, nil
}
