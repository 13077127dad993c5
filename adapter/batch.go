package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mudrockdev/mudrockdbtool/schema"
)

// maxBindParams is the placeholder limit shared by the MySQL and PostgreSQL
// wire protocols.
const maxBindParams = 65535

// rowStore is the slice of a dialect the batch engine needs.
type rowStore interface {
	conn() *sql.DB
	quote(ident string) string
	bindVar(n int) string
	batchSize() int
	log() *zerolog.Logger
	progress() ProgressFunc
	nativeColumnNames(ctx context.Context, table string) ([]string, error)
	orderColumns(ctx context.Context, table string) ([]string, error)
}

// bestOrderColumns picks a total ordering for paging: the primary key, else
// the first unique key followed by every other column, else every column.
// Unique keys may hold repeated NULLs, so they alone do not order rows.
func bestOrderColumns(keys []schema.Key, columns []string) []string {
	pick := func(match func(schema.Key) bool) []string {
		var name string
		var picked []schema.Key
		for _, k := range keys {
			if !match(k) {
				continue
			}
			if name == "" {
				name = k.KeyName
			}
			if k.KeyName == name {
				picked = append(picked, k)
			}
		}
		sort.SliceStable(picked, func(i, j int) bool { return picked[i].Position < picked[j].Position })
		out := make([]string, len(picked))
		for i, k := range picked {
			out[i] = k.ColumnName
		}
		return out
	}

	if pk := pick(func(k schema.Key) bool { return k.KeyType == schema.Primary }); len(pk) > 0 {
		return pk
	}
	uk := pick(func(k schema.Key) bool { return k.KeyType == schema.Unique })
	if len(uk) == 0 && len(columns) == 0 {
		return nil
	}
	out := append([]string{}, uk...)
	for _, c := range columns {
		if !slices.Contains(uk, c) {
			out = append(out, c)
		}
	}
	return out
}

func rowCount(ctx context.Context, s rowStore, table string) (int64, error) {
	var n int64
	err := s.conn().QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.quote(table))).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func orderByClause(s rowStore, columns []string) string {
	if len(columns) == 0 {
		return ""
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = s.quote(c)
	}
	return " ORDER BY " + strings.Join(quoted, ", ")
}

// streamRows pages through table in batchSize chunks and hands each page to
// sink before fetching the next one. Pages are ordered by the table's best
// order columns so LIMIT/OFFSET windows do not overlap.
func streamRows(ctx context.Context, s rowStore, table string, sink Sink) error {
	total, err := rowCount(ctx, s, table)
	if err != nil {
		return err
	}
	order, err := s.orderColumns(ctx, table)
	if err != nil {
		return err
	}

	size := s.batchSize()
	base := fmt.Sprintf("SELECT * FROM %s%s", s.quote(table), orderByClause(s, order))
	progress := s.progress()

	var done int64
	for offset := 0; ; offset += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		query := fmt.Sprintf("%s LIMIT %d OFFSET %d", base, size, offset)
		s.log().Debug().Str("table", table).Int("offset", offset).Int("limit", size).Msg("fetching page")

		rows, err := s.conn().QueryContext(ctx, query)
		if err != nil {
			return err
		}
		page, err := scanRows(rows)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		if err := sink(page); err != nil {
			return err
		}
		done += int64(len(page))
		if progress != nil {
			progress(table, done, total)
		}
		if len(page) < size {
			return nil
		}
	}
}

func collectRows(ctx context.Context, s rowStore, table string) ([]schema.Row, error) {
	var out []schema.Row
	err := streamRows(ctx, s, table, func(rows []schema.Row) error {
		out = append(out, rows...)
		return nil
	})
	return out, err
}

// insertChunkSize caps a chunk so a single statement stays under the bind
// parameter limit.
func insertChunkSize(batch, columns int) int {
	if columns == 0 {
		return batch
	}
	limit := maxBindParams / columns
	if limit < 1 {
		limit = 1
	}
	if batch > limit {
		return limit
	}
	return batch
}

// insertRows writes rows into table in chunks. Each chunk is a single
// multi-row INSERT in its own transaction; a failed chunk is rolled back
// and earlier chunks stay committed.
func insertRows(ctx context.Context, s rowStore, table string, rows []schema.Row) error {
	if len(rows) == 0 {
		return nil
	}
	columns, err := s.nativeColumnNames(ctx, table)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return &NotFoundError{Table: table}
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = s.quote(c)
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", s.quote(table), strings.Join(quoted, ", "))

	size := insertChunkSize(s.batchSize(), len(columns))
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		if err := insertChunk(ctx, s, prefix, columns, rows[start:end]); err != nil {
			return err
		}
		s.log().Debug().Str("table", table).Int("rows", end-start).Msg("inserted batch")
	}
	return nil
}

func insertChunk(ctx context.Context, s rowStore, prefix string, columns []string, rows []schema.Row) error {
	var sb strings.Builder
	sb.WriteString(prefix)
	args := make([]any, 0, len(rows)*len(columns))
	n := 0
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j, v := range row.Reorder(columns) {
			if j > 0 {
				sb.WriteString(", ")
			}
			n++
			sb.WriteString(s.bindVar(n))
			args = append(args, v)
		}
		sb.WriteByte(')')
	}

	tx, err := s.conn().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func isBinaryType(name string) bool {
	name = strings.ToUpper(name)
	return strings.Contains(name, "BLOB") || strings.Contains(name, "BINARY") || name == "BYTEA"
}

// scanRows reads every row from rows and closes it. Text arrives from the
// drivers as []byte; it is surfaced as string unless the column is binary.
func scanRows(rows *sql.Rows) ([]schema.Row, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	binary := make([]bool, len(types))
	for i, t := range types {
		binary[i] = isBinaryType(t.DatabaseTypeName())
	}

	var out []schema.Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				if binary[i] {
					values[i] = append([]byte(nil), b...)
				} else {
					values[i] = string(b)
				}
			}
		}
		out = append(out, schema.NewRow(columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func execAffected(ctx context.Context, db *sql.DB, query string) (int64, error) {
	res, err := db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// reorderRows lays every row out in columns order.
func reorderRows(rows []schema.Row, columns []string) []schema.Row {
	out := make([]schema.Row, len(rows))
	for i, r := range rows {
		out[i] = schema.NewRow(columns, r.Reorder(columns))
	}
	return out
}
