package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/mudrockdev/mudrockdbtool/schema"
)

// SQLSTATE codes the adapter classifies.
const (
	pgUndefinedTable     = "42P01"
	pgInvalidPassword    = "28P01"
	pgInvalidAuthSpec    = "28000"
	pgInvalidCatalogName = "3D000"
)

var postgresTypes = map[string]schema.DataType{
	"bigint":                      schema.BigInt,
	"character varying":           schema.Varchar,
	"character":                   schema.Char,
	"date":                        schema.Date,
	"double precision":            schema.DoublePrecision,
	"integer":                     schema.Integer,
	"mediumint":                   schema.Integer,
	"numeric":                     schema.Numeric,
	"real":                        schema.Real,
	"smallint":                    schema.SmallInt,
	"text":                        schema.Text,
	"time with time zone":         schema.Time,
	"time without time zone":      schema.Time,
	"timestamp with time zone":    schema.Timestamp,
	"timestamp without time zone": schema.Timestamp,
	"tinyint":                     schema.SmallInt,
}

// updateTimestampColumns carry IsUpdateCurrentTimestamp on PostgreSQL,
// which has no ON UPDATE clause; such columns are maintained by triggers.
var updateTimestampColumns = map[string]bool{
	"refresh_at": true,
	"updated_at": true,
}

// PostgreSQLAdapter implements DatabaseAdapter for PostgreSQL
type PostgreSQLAdapter struct {
	cfg    Config
	db     *sql.DB
	logger zerolog.Logger
	report ProgressFunc
}

func NewPostgreSQLAdapter(cfg Config, opts Options) *PostgreSQLAdapter {
	return &PostgreSQLAdapter{
		cfg:    cfg.WithDefaults(),
		logger: opts.logger().With().Str("dialect", string(PostgreSQL)).Str("database", cfg.Database).Logger(),
		report: opts.Progress,
	}
}

func (a *PostgreSQLAdapter) Dialect() Dialect { return PostgreSQL }
func (a *PostgreSQLAdapter) Config() Config   { return a.cfg }

func dsnValue(s string) string {
	if s != "" && !strings.ContainsAny(s, ` '\`) {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}

// DSN renders a key/value connection string. The session search_path is
// pinned to the configured schema, so unqualified table names resolve there.
func (a *PostgreSQLAdapter) DSN() string {
	parts := []string{
		"host=" + dsnValue(a.cfg.Host),
		fmt.Sprintf("port=%d", a.cfg.Port),
		"user=" + dsnValue(a.cfg.Username),
		"password=" + dsnValue(a.cfg.Password),
		"dbname=" + dsnValue(a.cfg.Database),
		"sslmode=" + dsnValue(a.cfg.SSLMode),
		"search_path=" + dsnValue(a.cfg.Schema),
		"client_encoding=UTF8",
	}
	return strings.Join(parts, " ")
}

func (a *PostgreSQLAdapter) Connect(ctx context.Context) error {
	db, err := sql.Open("postgres", a.DSN())
	if err != nil {
		return a.connectionError(err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return a.connectionError(err)
	}
	a.db = db
	a.logger.Debug().Str("host", a.cfg.Host).Int("port", a.cfg.Port).Str("schema", a.cfg.Schema).Msg("connected")
	return nil
}

func (a *PostgreSQLAdapter) connectionError(err error) error {
	return &ConnectionError{Dialect: PostgreSQL, Host: a.cfg.Host, Port: a.cfg.Port, Cause: err}
}

func (a *PostgreSQLAdapter) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *PostgreSQLAdapter) classify(op, target string, err error) error {
	if err == nil {
		return nil
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		switch pe.Code {
		case pgUndefinedTable:
			return &NotFoundError{Table: target}
		case pgInvalidPassword, pgInvalidAuthSpec, pgInvalidCatalogName:
			return a.connectionError(err)
		}
	}
	return queryError(op, target, err)
}

func (a *PostgreSQLAdapter) GetTableList(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`, a.cfg.Schema)
	if err != nil {
		return nil, a.classify("list tables", "", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, a.classify("list tables", "", err)
		}
		tables = append(tables, tableName)
	}
	return tables, a.classify("list tables", "", rows.Err())
}

// postgresColumn is one row of information_schema.columns.
type postgresColumn struct {
	Name      string
	DataType  string
	MaxLength sql.NullInt64
	Precision sql.NullInt64
	Scale     sql.NullInt64
	Nullable  string
	Default   sql.NullString
	Identity  string
}

// stripCast removes a trailing ::type cast from a catalog default.
func stripCast(def string) string {
	if i := strings.LastIndex(def, "::"); i > 0 && !strings.Contains(def[i:], "'") {
		return def[:i]
	}
	return def
}

func normalizePostgresColumn(raw postgresColumn) schema.Column {
	nativeType := strings.ToLower(raw.DataType)
	col := schema.Column{
		Name:               raw.Name,
		DataType:           schema.DataType(nativeType),
		CharacterMaxLength: nullInt(raw.MaxLength),
		NumericPrecision:   nullInt(raw.Precision),
		NumericScale:       nullInt(raw.Scale),
		IsNullable:         strings.EqualFold(raw.Nullable, "YES"),
		IsAutoIncrement:    strings.EqualFold(raw.Identity, "YES"),
	}
	if t, ok := postgresTypes[nativeType]; ok {
		col.DataType = t
	}

	if raw.Default.Valid {
		def := stripCast(strings.TrimSpace(raw.Default.String))
		switch {
		case strings.HasPrefix(strings.ToLower(def), "nextval("):
			col.IsAutoIncrement = true
		case isCurrentTimestamp(def):
			col.IsDefaultCurrentTimestamp = true
		case strings.EqualFold(def, "NULL"):
		default:
			v := unquoteLiteral(def)
			col.ColumnDefault = &v
		}
	}
	col.IsUpdateCurrentTimestamp = updateTimestampColumns[col.Name]

	return col.Normalize()
}

func (a *PostgreSQLAdapter) GetColumns(ctx context.Context, table string, order schema.Order) ([]schema.Column, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT
			column_name,
			data_type,
			character_maximum_length,
			numeric_precision,
			numeric_scale,
			is_nullable,
			column_default,
			is_identity
		FROM
			information_schema.columns
		WHERE
			table_schema = $1 AND
			table_name = $2
		ORDER BY
			ordinal_position
	`, a.cfg.Schema, table)
	if err != nil {
		return nil, a.classify("get columns", table, err)
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var raw postgresColumn
		if err := rows.Scan(&raw.Name, &raw.DataType, &raw.MaxLength, &raw.Precision, &raw.Scale,
			&raw.Nullable, &raw.Default, &raw.Identity); err != nil {
			return nil, a.classify("get columns", table, err)
		}
		columns = append(columns, normalizePostgresColumn(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, a.classify("get columns", table, err)
	}
	return schema.SortColumns(columns, order), nil
}

func postgresKeyType(primary, unique bool) schema.KeyType {
	switch {
	case primary:
		return schema.Primary
	case unique:
		return schema.Unique
	default:
		return schema.Index
	}
}

func (a *PostgreSQLAdapter) GetKeys(ctx context.Context, table string, order schema.Order) ([]schema.Key, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT
			i.relname AS index_name,
			a.attname AS column_name,
			ix.indisprimary,
			ix.indisunique,
			ix.indnatts,
			k.ord
		FROM
			pg_index ix
			JOIN pg_class t ON t.oid = ix.indrelid
			JOIN pg_class i ON i.oid = ix.indexrelid
			JOIN pg_namespace n ON n.oid = t.relnamespace
			CROSS JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord)
			JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
		WHERE
			n.nspname = $1 AND
			t.relname = $2
		ORDER BY
			i.relname, k.ord
	`, a.cfg.Schema, table)
	if err != nil {
		return nil, a.classify("get keys", table, err)
	}
	defer rows.Close()

	var keys []schema.Key
	for rows.Next() {
		var (
			k               schema.Key
			primary, unique bool
			natts           int
		)
		if err := rows.Scan(&k.KeyName, &k.ColumnName, &primary, &unique, &natts, &k.Position); err != nil {
			return nil, a.classify("get keys", table, err)
		}
		k.KeyType = postgresKeyType(primary, unique)
		k.IsComposite = natts > 1
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, a.classify("get keys", table, err)
	}
	return schema.SortKeys(keys, order), nil
}

func (a *PostgreSQLAdapter) GetTableData(ctx context.Context, table string, order schema.Order) ([]schema.Row, error) {
	rows, err := collectRows(ctx, a, table)
	if err != nil {
		return nil, a.classify("read table", table, err)
	}
	if order != schema.Custom {
		return rows, nil
	}
	columns, err := a.GetColumns(ctx, table, order)
	if err != nil {
		return nil, err
	}
	return reorderRows(rows, schema.ColumnNames(columns)), nil
}

func (a *PostgreSQLAdapter) StreamTableData(ctx context.Context, table string, sink Sink) error {
	return a.classify("stream table", table, streamRows(ctx, a, table, sink))
}

func (a *PostgreSQLAdapter) InsertInto(ctx context.Context, table string, rows []schema.Row) error {
	return a.classify("insert into", table, insertRows(ctx, a, table, rows))
}

func (a *PostgreSQLAdapter) RowCount(ctx context.Context, table string) (int64, error) {
	n, err := rowCount(ctx, a, table)
	return n, a.classify("count rows", table, err)
}

func (a *PostgreSQLAdapter) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := a.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)
	`, a.cfg.Schema, table).Scan(&exists)
	if err != nil {
		return false, a.classify("table exists", table, err)
	}
	return exists, nil
}

func (a *PostgreSQLAdapter) DropTable(ctx context.Context, table string) error {
	_, err := a.db.ExecContext(ctx, "DROP TABLE "+a.quote(table))
	return a.classify("drop table", table, err)
}

func (a *PostgreSQLAdapter) TruncateTable(ctx context.Context, table string) error {
	_, err := a.db.ExecContext(ctx, "TRUNCATE TABLE "+a.quote(table))
	return a.classify("truncate table", table, err)
}

func (a *PostgreSQLAdapter) RenameTable(ctx context.Context, from, to string) error {
	_, err := a.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", a.quote(from), a.quote(to)))
	return a.classify("rename table", from, err)
}

func (a *PostgreSQLAdapter) DropAll(ctx context.Context) error {
	s := a.quote(a.cfg.Schema)
	for _, stmt := range []string{
		"DROP SCHEMA IF EXISTS " + s + " CASCADE",
		"CREATE SCHEMA " + s,
	} {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return a.classify("drop all", a.cfg.Schema, err)
		}
	}
	a.logger.Info().Str("schema", a.cfg.Schema).Msg("schema recreated")
	return nil
}

// pgColumnType renders the column type for a reconstructed CREATE TABLE.
// Sequence-backed integer columns become serial types.
func pgColumnType(raw postgresColumn) (string, bool) {
	serial := raw.Default.Valid && strings.HasPrefix(strings.ToLower(raw.Default.String), "nextval(")
	dataType := strings.ToLower(raw.DataType)
	if serial {
		switch dataType {
		case "integer":
			return "serial", true
		case "bigint":
			return "bigserial", true
		case "smallint":
			return "smallserial", true
		}
	}
	switch dataType {
	case "character varying", "character":
		if raw.MaxLength.Valid {
			return fmt.Sprintf("%s(%d)", dataType, raw.MaxLength.Int64), false
		}
	case "numeric":
		if raw.Precision.Valid && raw.Scale.Valid {
			return fmt.Sprintf("numeric(%d,%d)", raw.Precision.Int64, raw.Scale.Int64), false
		}
		if raw.Precision.Valid {
			return fmt.Sprintf("numeric(%d)", raw.Precision.Int64), false
		}
	case "user-defined", "array":
		return raw.DataType, false
	}
	return dataType, false
}

// GetTableSchema reconstructs a CREATE TABLE statement from the catalog. The
// output is equivalent DDL, not the statement the table was created with.
func (a *PostgreSQLAdapter) GetTableSchema(ctx context.Context, table string) (string, error) {
	exists, err := a.TableExists(ctx, table)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", &NotFoundError{Table: table}
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT
			column_name,
			data_type,
			character_maximum_length,
			numeric_precision,
			numeric_scale,
			is_nullable,
			column_default,
			is_identity
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`, a.cfg.Schema, table)
	if err != nil {
		return "", a.classify("table schema", table, err)
	}
	var lines []string
	for rows.Next() {
		var raw postgresColumn
		if err := rows.Scan(&raw.Name, &raw.DataType, &raw.MaxLength, &raw.Precision, &raw.Scale,
			&raw.Nullable, &raw.Default, &raw.Identity); err != nil {
			rows.Close()
			return "", a.classify("table schema", table, err)
		}
		typ, serial := pgColumnType(raw)
		line := fmt.Sprintf("    %s %s", a.quote(raw.Name), typ)
		if strings.EqualFold(raw.Identity, "YES") {
			line += " GENERATED BY DEFAULT AS IDENTITY"
		}
		if !strings.EqualFold(raw.Nullable, "YES") {
			line += " NOT NULL"
		}
		if raw.Default.Valid && !serial {
			line += " DEFAULT " + raw.Default.String
		}
		lines = append(lines, line)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", a.classify("table schema", table, err)
	}

	constraints, err := a.db.QueryContext(ctx, `
		SELECT c.conname, pg_get_constraintdef(c.oid)
		FROM pg_constraint c
			JOIN pg_class t ON t.oid = c.conrelid
			JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE n.nspname = $1 AND t.relname = $2 AND c.contype IN ('p', 'u', 'c')
		ORDER BY c.contype, c.conname
	`, a.cfg.Schema, table)
	if err != nil {
		return "", a.classify("table schema", table, err)
	}
	constraintNames := []string{}
	for constraints.Next() {
		var name, def string
		if err := constraints.Scan(&name, &def); err != nil {
			constraints.Close()
			return "", a.classify("table schema", table, err)
		}
		constraintNames = append(constraintNames, name)
		lines = append(lines, fmt.Sprintf("    CONSTRAINT %s %s", a.quote(name), def))
	}
	constraints.Close()
	if err := constraints.Err(); err != nil {
		return "", a.classify("table schema", table, err)
	}

	var indexDefs []string
	err = a.queryStrings(ctx, &indexDefs, `
		SELECT indexdef
		FROM pg_indexes
		WHERE schemaname = $1 AND tablename = $2 AND NOT (indexname = ANY($3))
		ORDER BY indexname
	`, a.cfg.Schema, table, pq.Array(constraintNames))
	if err != nil {
		return "", a.classify("table schema", table, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE %s (\n%s\n);", a.quote(table), strings.Join(lines, ",\n"))
	for _, def := range indexDefs {
		sb.WriteString("\n")
		sb.WriteString(unqualifyIndexDef(def, a.cfg.Schema))
		sb.WriteString(";")
	}
	return sb.String(), nil
}

// unqualifyIndexDef drops the schema prefix pg_indexes puts on the table.
func unqualifyIndexDef(def, schemaName string) string {
	for _, prefix := range []string{schemaName + ".", pq.QuoteIdentifier(schemaName) + "."} {
		def = strings.Replace(def, " ON "+prefix, " ON ", 1)
		def = strings.Replace(def, " ON ONLY "+prefix, " ON ONLY ", 1)
	}
	return def
}

func (a *PostgreSQLAdapter) queryStrings(ctx context.Context, dst *[]string, query string, args ...any) error {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return err
		}
		*dst = append(*dst, s)
	}
	return rows.Err()
}

func (a *PostgreSQLAdapter) Exec(ctx context.Context, query string) (int64, error) {
	n, err := execAffected(ctx, a.db, query)
	return n, a.classify("exec", "", err)
}

func (a *PostgreSQLAdapter) Query(ctx context.Context, query string) ([]schema.Row, error) {
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, a.classify("query", "", err)
	}
	out, err := scanRows(rows)
	return out, a.classify("query", "", err)
}

func (a *PostgreSQLAdapter) DatabaseSize(ctx context.Context) (int64, error) {
	var size int64
	err := a.db.QueryRowContext(ctx, "SELECT pg_database_size(current_database())").Scan(&size)
	return size, a.classify("database size", "", err)
}

func (a *PostgreSQLAdapter) DumpCommand(_ context.Context, opts DumpOptions) (string, error) {
	path, err := WriteCredentials(a.cfg)
	if err != nil {
		return "", err
	}
	return pgDumpCommand(a.cfg, path, opts), nil
}

func (a *PostgreSQLAdapter) RunCommand(_ context.Context, script string) (string, error) {
	path, err := WriteCredentials(a.cfg)
	if err != nil {
		return "", err
	}
	return pgRunCommand(a.cfg, path, script), nil
}

// rowStore

func (a *PostgreSQLAdapter) conn() *sql.DB          { return a.db }
func (a *PostgreSQLAdapter) bindVar(n int) string   { return fmt.Sprintf("$%d", n) }
func (a *PostgreSQLAdapter) batchSize() int         { return a.cfg.BatchSize }
func (a *PostgreSQLAdapter) log() *zerolog.Logger   { return &a.logger }
func (a *PostgreSQLAdapter) progress() ProgressFunc { return a.report }

func (a *PostgreSQLAdapter) quote(ident string) string {
	return pq.QuoteIdentifier(ident)
}

func (a *PostgreSQLAdapter) nativeColumnNames(ctx context.Context, table string) ([]string, error) {
	columns, err := a.GetColumns(ctx, table, schema.Native)
	if err != nil {
		return nil, err
	}
	return schema.ColumnNames(columns), nil
}

func (a *PostgreSQLAdapter) orderColumns(ctx context.Context, table string) ([]string, error) {
	keys, err := a.GetKeys(ctx, table, schema.Native)
	if err != nil {
		return nil, err
	}
	columns, err := a.nativeColumnNames(ctx, table)
	if err != nil {
		return nil, err
	}
	return bestOrderColumns(keys, columns), nil
}
