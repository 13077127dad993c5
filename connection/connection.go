// Package connection binds one configured database to its adapter and
// guards every call with identifier validation and uniform errors.
package connection

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mudrockdev/mudrockdbtool/adapter"
	"github.com/mudrockdev/mudrockdbtool/schema"
)

// Info summarizes a connected database.
type Info struct {
	Name       string
	Dialect    adapter.Dialect
	Host       string
	Database   string
	Schema     string
	TableCount int
	TotalSize  int64 // in bytes
}

type Option func(*adapter.Options)

func WithLogger(l zerolog.Logger) Option {
	return func(o *adapter.Options) { o.Logger = &l }
}

func WithProgress(fn adapter.ProgressFunc) Option {
	return func(o *adapter.Options) { o.Progress = fn }
}

// Connection is a validated handle on one database. It is not safe for
// concurrent use.
type Connection struct {
	db adapter.DatabaseAdapter
}

// Open validates cfg, resolves its adapter and connects.
func Open(ctx context.Context, cfg adapter.Config, opts ...Option) (*Connection, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o adapter.Options
	for _, opt := range opts {
		opt(&o)
	}
	db, err := adapter.GetAdapter(cfg, o)
	if err != nil {
		return nil, err
	}
	if err := db.Connect(ctx); err != nil {
		return nil, err
	}
	return &Connection{db: db}, nil
}

// New wraps an adapter that is already connected.
func New(db adapter.DatabaseAdapter) *Connection {
	return &Connection{db: db}
}

func (c *Connection) Name() string {
	cfg := c.db.Config()
	if cfg.Name != "" {
		return cfg.Name
	}
	return cfg.Database
}

func (c *Connection) Dialect() adapter.Dialect { return c.db.Dialect() }
func (c *Connection) Config() adapter.Config   { return c.db.Config() }

func (c *Connection) Close() error {
	return c.db.Close()
}

// wrap passes typed adapter errors through and turns anything else into a
// QueryError for op.
func wrap(op, target string, err error) error {
	if err == nil {
		return nil
	}
	for _, typed := range []error{adapter.ErrValidation, adapter.ErrConnection, adapter.ErrQuery,
		adapter.ErrNotFound, adapter.ErrIncompatibleSchema, adapter.ErrTableExists} {
		if errors.Is(err, typed) {
			return err
		}
	}
	return &adapter.QueryError{Op: op, Target: target, Cause: err}
}

func (c *Connection) Tables(ctx context.Context) ([]string, error) {
	tables, err := c.db.GetTableList(ctx)
	return tables, wrap("list tables", "", err)
}

func (c *Connection) Columns(ctx context.Context, table string, order schema.Order) ([]schema.Column, error) {
	if err := adapter.ValidateIdentifier("table", table); err != nil {
		return nil, err
	}
	columns, err := c.db.GetColumns(ctx, table, order)
	return columns, wrap("get columns", table, err)
}

func (c *Connection) Keys(ctx context.Context, table string, order schema.Order) ([]schema.Key, error) {
	if err := adapter.ValidateIdentifier("table", table); err != nil {
		return nil, err
	}
	keys, err := c.db.GetKeys(ctx, table, order)
	return keys, wrap("get keys", table, err)
}

func (c *Connection) TableData(ctx context.Context, table string, order schema.Order) ([]schema.Row, error) {
	if err := adapter.ValidateIdentifier("table", table); err != nil {
		return nil, err
	}
	rows, err := c.db.GetTableData(ctx, table, order)
	return rows, wrap("read table", table, err)
}

func (c *Connection) StreamTableData(ctx context.Context, table string, sink adapter.Sink) error {
	if err := adapter.ValidateIdentifier("table", table); err != nil {
		return err
	}
	return wrap("stream table", table, c.db.StreamTableData(ctx, table, sink))
}

func (c *Connection) InsertInto(ctx context.Context, table string, rows []schema.Row) error {
	if err := adapter.ValidateIdentifier("table", table); err != nil {
		return err
	}
	return wrap("insert into", table, c.db.InsertInto(ctx, table, rows))
}

func (c *Connection) RowCount(ctx context.Context, table string) (int64, error) {
	if err := adapter.ValidateIdentifier("table", table); err != nil {
		return 0, err
	}
	n, err := c.db.RowCount(ctx, table)
	return n, wrap("count rows", table, err)
}

func (c *Connection) TableExists(ctx context.Context, table string) (bool, error) {
	if err := adapter.ValidateIdentifier("table", table); err != nil {
		return false, err
	}
	ok, err := c.db.TableExists(ctx, table)
	return ok, wrap("table exists", table, err)
}

// requireTable fails with NotFoundError when table is absent.
func (c *Connection) requireTable(ctx context.Context, table string) error {
	ok, err := c.TableExists(ctx, table)
	if err != nil {
		return err
	}
	if !ok {
		return &adapter.NotFoundError{Table: table}
	}
	return nil
}

func (c *Connection) DropTable(ctx context.Context, table string) error {
	if err := c.requireTable(ctx, table); err != nil {
		return err
	}
	return wrap("drop table", table, c.db.DropTable(ctx, table))
}

func (c *Connection) TruncateTable(ctx context.Context, table string) error {
	if err := c.requireTable(ctx, table); err != nil {
		return err
	}
	return wrap("truncate table", table, c.db.TruncateTable(ctx, table))
}

func (c *Connection) RenameTable(ctx context.Context, from, to string) error {
	if err := adapter.ValidateIdentifier("new table", to); err != nil {
		return err
	}
	if err := c.requireTable(ctx, from); err != nil {
		return err
	}
	return wrap("rename table", from, c.db.RenameTable(ctx, from, to))
}

func (c *Connection) DropAll(ctx context.Context) error {
	return wrap("drop all", c.Config().Database, c.db.DropAll(ctx))
}

func (c *Connection) TableSchema(ctx context.Context, table string) (string, error) {
	if err := adapter.ValidateIdentifier("table", table); err != nil {
		return "", err
	}
	ddl, err := c.db.GetTableSchema(ctx, table)
	return ddl, wrap("table schema", table, err)
}

func (c *Connection) Exec(ctx context.Context, query string) (int64, error) {
	n, err := c.db.Exec(ctx, query)
	return n, wrap("exec", "", err)
}

func (c *Connection) Query(ctx context.Context, query string) ([]schema.Row, error) {
	rows, err := c.db.Query(ctx, query)
	return rows, wrap("query", "", err)
}

// Info collects the table count and on-disk size of the database.
func (c *Connection) Info(ctx context.Context) (Info, error) {
	cfg := c.Config()
	info := Info{
		Name:     c.Name(),
		Dialect:  c.Dialect(),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Database: cfg.Database,
		Schema:   cfg.Schema,
	}
	tables, err := c.Tables(ctx)
	if err != nil {
		return info, err
	}
	info.TableCount = len(tables)

	size, err := c.db.DatabaseSize(ctx)
	if err != nil {
		return info, wrap("database size", "", err)
	}
	info.TotalSize = size
	return info, nil
}

func (c *Connection) DumpCommand(ctx context.Context, opts adapter.DumpOptions) (string, error) {
	if opts.Table != "" {
		if err := adapter.ValidateIdentifier("table", opts.Table); err != nil {
			return "", err
		}
	}
	cmd, err := c.db.DumpCommand(ctx, opts)
	return cmd, wrap("dump", opts.Table, err)
}

func (c *Connection) RunCommand(ctx context.Context, script string) (string, error) {
	if script == "" {
		return "", &adapter.ValidationError{Field: "script", Reason: "Missing required configuration: script"}
	}
	cmd, err := c.db.RunCommand(ctx, script)
	return cmd, wrap("run", "", err)
}
