// Package adapter talks to the supported database servers and translates
// their catalogs into the shared schema model.
package adapter

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mudrockdev/mudrockdbtool/schema"
)

// Sink receives one page of streamed rows. Returning an error aborts the
// stream.
type Sink func(rows []schema.Row) error

// ProgressFunc is told how many rows of table have been streamed so far.
type ProgressFunc func(table string, done, total int64)

// Options carries the collaborators an adapter reports to.
type Options struct {
	Logger   *zerolog.Logger
	Progress ProgressFunc
}

func (o Options) logger() zerolog.Logger {
	if o.Logger == nil {
		return zerolog.Nop()
	}
	return *o.Logger
}

// DumpOptions selects what a dump command exports.
type DumpOptions struct {
	Table      string // empty dumps the whole database
	SchemaOnly bool
	Compact    bool // MySQL only
}

// DatabaseAdapter defines the interface for database-specific operations
type DatabaseAdapter interface {
	Dialect() Dialect
	Config() Config

	Connect(ctx context.Context) error
	Close() error

	GetTableList(ctx context.Context) ([]string, error)
	GetColumns(ctx context.Context, table string, order schema.Order) ([]schema.Column, error)
	GetKeys(ctx context.Context, table string, order schema.Order) ([]schema.Key, error)
	GetTableData(ctx context.Context, table string, order schema.Order) ([]schema.Row, error)
	StreamTableData(ctx context.Context, table string, sink Sink) error
	InsertInto(ctx context.Context, table string, rows []schema.Row) error
	RowCount(ctx context.Context, table string) (int64, error)
	TableExists(ctx context.Context, table string) (bool, error)

	DropTable(ctx context.Context, table string) error
	TruncateTable(ctx context.Context, table string) error
	RenameTable(ctx context.Context, from, to string) error
	DropAll(ctx context.Context) error
	GetTableSchema(ctx context.Context, table string) (string, error)

	Exec(ctx context.Context, query string) (int64, error)
	Query(ctx context.Context, query string) ([]schema.Row, error)
	DatabaseSize(ctx context.Context) (int64, error)

	DumpCommand(ctx context.Context, opts DumpOptions) (string, error)
	RunCommand(ctx context.Context, script string) (string, error)
}

// GetAdapter returns the appropriate adapter for the given configuration.
// The adapter is not connected yet.
func GetAdapter(cfg Config, opts Options) (DatabaseAdapter, error) {
	switch cfg.Driver {
	case MySQL:
		return NewMySQLAdapter(cfg, opts), nil
	case PostgreSQL:
		return NewPostgreSQLAdapter(cfg, opts), nil
	default:
		return nil, &ValidationError{Field: "driver", Value: string(cfg.Driver), Reason: "Unsupported driver: " + string(cfg.Driver)}
	}
}
