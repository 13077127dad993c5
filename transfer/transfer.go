// Package transfer copies, moves and renames tables between connections.
package transfer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mudrockdev/mudrockdbtool/adapter"
	"github.com/mudrockdev/mudrockdbtool/compare"
	"github.com/mudrockdev/mudrockdbtool/schema"
)

// Endpoint is one side of a transfer.
type Endpoint interface {
	compare.Inspector
	Name() string
	StreamTableData(ctx context.Context, table string, sink adapter.Sink) error
	InsertInto(ctx context.Context, table string, rows []schema.Row) error
	DropTable(ctx context.Context, table string) error
	TruncateTable(ctx context.Context, table string) error
	RenameTable(ctx context.Context, from, to string) error
	TableSchema(ctx context.Context, table string) (string, error)
	Exec(ctx context.Context, query string) (int64, error)
}

type Options struct {
	// Overwrite allows an existing destination table to be dropped.
	Overwrite bool
	Logger    *zerolog.Logger
}

func (o Options) logger() zerolog.Logger {
	if o.Logger == nil {
		return zerolog.Nop()
	}
	return *o.Logger
}

// Result describes a finished transfer.
type Result struct {
	Table        string
	Rows         int64
	Batches      int
	CrossDialect bool
}

func tableExistsError(table string) error {
	return fmt.Errorf("%w: Table '%s' already exists.", adapter.ErrTableExists, table)
}

func requireTable(ctx context.Context, e Endpoint, table string) error {
	ok, err := e.TableExists(ctx, table)
	if err != nil {
		return err
	}
	if !ok {
		return &adapter.NotFoundError{Table: table}
	}
	return nil
}

// Copy copies table from src to dst. Between databases of the same dialect
// the destination table is recreated from the source DDL. Across dialects the
// destination must already hold a table with the same column names; it is
// truncated and only data is copied.
func Copy(ctx context.Context, src, dst Endpoint, table string, opts Options) (*Result, error) {
	if err := adapter.ValidateIdentifier("table", table); err != nil {
		return nil, err
	}
	if err := requireTable(ctx, src, table); err != nil {
		return nil, err
	}

	log := opts.logger().With().Str("table", table).Str("from", src.Name()).Str("to", dst.Name()).Logger()
	res := &Result{Table: table, CrossDialect: src.Dialect() != dst.Dialect()}

	if res.CrossDialect {
		if err := requireTable(ctx, dst, table); err != nil {
			return nil, err
		}
		if err := compare.CompatibleSchemas(ctx, src, dst, table); err != nil {
			return nil, err
		}
		if err := dst.TruncateTable(ctx, table); err != nil {
			return nil, err
		}
		log.Debug().Msg("truncated destination table")
	} else {
		if err := recreate(ctx, src, dst, table, opts.Overwrite); err != nil {
			return nil, err
		}
		log.Debug().Msg("recreated destination table")
	}

	err := src.StreamTableData(ctx, table, func(rows []schema.Row) error {
		if err := dst.InsertInto(ctx, table, rows); err != nil {
			return err
		}
		res.Rows += int64(len(rows))
		res.Batches++
		return nil
	})
	if err != nil {
		return res, err
	}

	log.Info().Int64("rows", res.Rows).Int("batches", res.Batches).Bool("cross_dialect", res.CrossDialect).Msg("table copied")
	return res, nil
}

func recreate(ctx context.Context, src, dst Endpoint, table string, overwrite bool) error {
	exists, err := dst.TableExists(ctx, table)
	if err != nil {
		return err
	}
	if exists {
		if !overwrite {
			return tableExistsError(table)
		}
		if err := dst.DropTable(ctx, table); err != nil {
			return err
		}
	}
	ddl, err := src.TableSchema(ctx, table)
	if err != nil {
		return err
	}
	_, err = dst.Exec(ctx, ddl)
	return err
}

// Move copies table and then drops it from src. The source is left intact
// when the copy fails.
func Move(ctx context.Context, src, dst Endpoint, table string, opts Options) (*Result, error) {
	res, err := Copy(ctx, src, dst, table, opts)
	if err != nil {
		return res, err
	}
	if err := src.DropTable(ctx, table); err != nil {
		return res, err
	}
	log := opts.logger()
	log.Info().Str("table", table).Str("from", src.Name()).Msg("source table dropped")
	return res, nil
}

// Rename renames a table inside one database. No data is copied.
func Rename(ctx context.Context, conn Endpoint, from, to string, opts Options) error {
	if err := adapter.ValidateIdentifier("new table", to); err != nil {
		return err
	}
	if err := requireTable(ctx, conn, from); err != nil {
		return err
	}
	exists, err := conn.TableExists(ctx, to)
	if err != nil {
		return err
	}
	if exists {
		if !opts.Overwrite {
			return tableExistsError(to)
		}
		if err := conn.DropTable(ctx, to); err != nil {
			return err
		}
	}
	if err := conn.RenameTable(ctx, from, to); err != nil {
		return err
	}
	log := opts.logger()
	log.Info().Str("from", from).Str("to", to).Str("database", conn.Name()).Msg("table renamed")
	return nil
}
