package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"github.com/mudrockdev/mudrockdbtool/schema"
)

// MySQL server error numbers the adapter classifies.
const (
	mysqlErrDBAccessDenied = 1044
	mysqlErrAccessDenied   = 1045
	mysqlErrNoSuchTable    = 1146
)

var mysqlTypes = map[string]schema.DataType{
	"bigint":     schema.BigInt,
	"char":       schema.Char,
	"date":       schema.Date,
	"datetime":   schema.Timestamp,
	"decimal":    schema.Numeric,
	"double":     schema.DoublePrecision,
	"float":      schema.Real,
	"int":        schema.Integer,
	"longtext":   schema.Text,
	"mediumint":  schema.Integer,
	"mediumtext": schema.Text,
	"numeric":    schema.Numeric,
	"smallint":   schema.SmallInt,
	"text":       schema.Text,
	"time":       schema.Time,
	"timestamp":  schema.Timestamp,
	"tinyint":    schema.SmallInt,
	"tinytext":   schema.Text,
	"varchar":    schema.Varchar,
}

// MySQLAdapter implements DatabaseAdapter for MySQL and MariaDB
type MySQLAdapter struct {
	cfg    Config
	db     *sql.DB
	logger zerolog.Logger
	report ProgressFunc
}

func NewMySQLAdapter(cfg Config, opts Options) *MySQLAdapter {
	return &MySQLAdapter{
		cfg:    cfg.WithDefaults(),
		logger: opts.logger().With().Str("dialect", string(MySQL)).Str("database", cfg.Database).Logger(),
		report: opts.Progress,
	}
}

func (a *MySQLAdapter) Dialect() Dialect { return MySQL }
func (a *MySQLAdapter) Config() Config   { return a.cfg }

// DSN renders the driver connection string for the configured endpoint.
func (a *MySQLAdapter) DSN() string {
	mc := mysql.NewConfig()
	mc.User = a.cfg.Username
	mc.Passwd = a.cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(a.cfg.Host, strconv.Itoa(a.cfg.Port))
	mc.DBName = a.cfg.Database
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

func (a *MySQLAdapter) Connect(ctx context.Context) error {
	db, err := sql.Open("mysql", a.DSN())
	if err != nil {
		return a.connectionError(err)
	}
	// DropAll switches databases with USE, which is per session.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return a.connectionError(err)
	}
	a.db = db
	a.logger.Debug().Str("host", a.cfg.Host).Int("port", a.cfg.Port).Msg("connected")
	return nil
}

func (a *MySQLAdapter) connectionError(err error) error {
	return &ConnectionError{Dialect: MySQL, Host: a.cfg.Host, Port: a.cfg.Port, Cause: err}
}

func (a *MySQLAdapter) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// classify turns driver errors into the adapter's error types.
func (a *MySQLAdapter) classify(op, target string, err error) error {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlErrNoSuchTable:
			return &NotFoundError{Table: target}
		case mysqlErrAccessDenied, mysqlErrDBAccessDenied:
			return a.connectionError(err)
		}
	}
	return queryError(op, target, err)
}

func (a *MySQLAdapter) GetTableList(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, "SHOW TABLES")
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

// mysqlColumn is one row of INFORMATION_SCHEMA.COLUMNS.
type mysqlColumn struct {
	Name      string
	DataType  string
	MaxLength sql.NullInt64
	Precision sql.NullInt64
	Scale     sql.NullInt64
	Nullable  string
	Default   sql.NullString
	Extra     string
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

// currentTimestampPattern matches CURRENT_TIMESTAMP, NOW() and
// LOCALTIMESTAMP with an optional fractional-seconds precision.
var currentTimestampPattern = regexp.MustCompile(`(?i)^(CURRENT_TIMESTAMP|NOW|LOCALTIMESTAMP)(\(\s*\d*\s*\))?$`)

func isCurrentTimestamp(def string) bool {
	return currentTimestampPattern.MatchString(strings.TrimSpace(def))
}

func unquoteLiteral(def string) string {
	if len(def) >= 2 && def[0] == '\'' && def[len(def)-1] == '\'' {
		return strings.ReplaceAll(def[1:len(def)-1], "''", "'")
	}
	return def
}

// normalizeMySQLColumn converts a raw catalog row into the canonical form.
func normalizeMySQLColumn(raw mysqlColumn) schema.Column {
	nativeType := strings.ToLower(raw.DataType)
	col := schema.Column{
		Name:               raw.Name,
		DataType:           schema.DataType(nativeType),
		CharacterMaxLength: nullInt(raw.MaxLength),
		NumericPrecision:   nullInt(raw.Precision),
		NumericScale:       nullInt(raw.Scale),
		IsNullable:         strings.EqualFold(raw.Nullable, "YES"),
	}
	if t, ok := mysqlTypes[nativeType]; ok {
		col.DataType = t
	}

	if raw.Default.Valid {
		def := raw.Default.String
		switch {
		case isCurrentTimestamp(def):
			col.IsDefaultCurrentTimestamp = true
		case strings.EqualFold(def, "NULL"):
		default:
			v := unquoteLiteral(def)
			col.ColumnDefault = &v
		}
	}

	extra := strings.ToLower(raw.Extra)
	col.IsAutoIncrement = strings.Contains(extra, "auto_increment")
	col.IsUpdateCurrentTimestamp = strings.Contains(extra, "on update current_timestamp")

	return col.Normalize()
}

func (a *MySQLAdapter) GetColumns(ctx context.Context, table string, order schema.Order) ([]schema.Column, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT
			COLUMN_NAME,
			DATA_TYPE,
			CHARACTER_MAXIMUM_LENGTH,
			NUMERIC_PRECISION,
			NUMERIC_SCALE,
			IS_NULLABLE,
			COLUMN_DEFAULT,
			EXTRA
		FROM
			INFORMATION_SCHEMA.COLUMNS
		WHERE
			TABLE_SCHEMA = ? AND
			TABLE_NAME = ?
		ORDER BY
			ORDINAL_POSITION
	`, a.cfg.Database, table)
	if err != nil {
		return nil, a.classify("get columns", table, err)
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var raw mysqlColumn
		if err := rows.Scan(&raw.Name, &raw.DataType, &raw.MaxLength, &raw.Precision, &raw.Scale,
			&raw.Nullable, &raw.Default, &raw.Extra); err != nil {
			return nil, a.classify("get columns", table, err)
		}
		columns = append(columns, normalizeMySQLColumn(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, a.classify("get columns", table, err)
	}
	return schema.SortColumns(columns, order), nil
}

func mysqlKeyType(indexName string, nonUnique int) schema.KeyType {
	switch {
	case indexName == "PRIMARY":
		return schema.Primary
	case nonUnique == 0:
		return schema.Unique
	default:
		return schema.Index
	}
}

func (a *MySQLAdapter) GetKeys(ctx context.Context, table string, order schema.Order) ([]schema.Key, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT
			s.INDEX_NAME,
			s.COLUMN_NAME,
			s.NON_UNIQUE,
			s.SEQ_IN_INDEX,
			(
				SELECT COUNT(*)
				FROM INFORMATION_SCHEMA.STATISTICS c
				WHERE c.TABLE_SCHEMA = s.TABLE_SCHEMA
					AND c.TABLE_NAME = s.TABLE_NAME
					AND c.INDEX_NAME = s.INDEX_NAME
			) AS COLUMN_COUNT
		FROM
			INFORMATION_SCHEMA.STATISTICS s
		WHERE
			s.TABLE_SCHEMA = ? AND
			s.TABLE_NAME = ?
		ORDER BY
			s.INDEX_NAME, s.SEQ_IN_INDEX
	`, a.cfg.Database, table)
	if err != nil {
		return nil, a.classify("get keys", table, err)
	}
	defer rows.Close()

	var keys []schema.Key
	for rows.Next() {
		var (
			k           schema.Key
			columnName  sql.NullString
			nonUnique   int
			columnCount int
		)
		if err := rows.Scan(&k.KeyName, &columnName, &nonUnique, &k.Position, &columnCount); err != nil {
			return nil, a.classify("get keys", table, err)
		}
		// Functional index parts have no column.
		if !columnName.Valid {
			continue
		}
		k.ColumnName = columnName.String
		k.KeyType = mysqlKeyType(k.KeyName, nonUnique)
		k.IsComposite = columnCount > 1
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, a.classify("get keys", table, err)
	}
	return schema.SortKeys(keys, order), nil
}

func (a *MySQLAdapter) GetTableData(ctx context.Context, table string, order schema.Order) ([]schema.Row, error) {
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

func (a *MySQLAdapter) StreamTableData(ctx context.Context, table string, sink Sink) error {
	return a.classify("stream table", table, streamRows(ctx, a, table, sink))
}

func (a *MySQLAdapter) InsertInto(ctx context.Context, table string, rows []schema.Row) error {
	return a.classify("insert into", table, insertRows(ctx, a, table, rows))
}

func (a *MySQLAdapter) RowCount(ctx context.Context, table string) (int64, error) {
	n, err := rowCount(ctx, a, table)
	return n, a.classify("count rows", table, err)
}

func (a *MySQLAdapter) TableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := a.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?",
		a.cfg.Database, table).Scan(&n)
	if err != nil {
		return false, a.classify("table exists", table, err)
	}
	return n > 0, nil
}

func (a *MySQLAdapter) DropTable(ctx context.Context, table string) error {
	_, err := a.db.ExecContext(ctx, "DROP TABLE "+a.quote(table))
	return a.classify("drop table", table, err)
}

func (a *MySQLAdapter) TruncateTable(ctx context.Context, table string) error {
	_, err := a.db.ExecContext(ctx, "TRUNCATE TABLE "+a.quote(table))
	return a.classify("truncate table", table, err)
}

func (a *MySQLAdapter) RenameTable(ctx context.Context, from, to string) error {
	_, err := a.db.ExecContext(ctx, fmt.Sprintf("RENAME TABLE %s TO %s", a.quote(from), a.quote(to)))
	return a.classify("rename table", from, err)
}

func (a *MySQLAdapter) DropAll(ctx context.Context) error {
	db := a.quote(a.cfg.Database)
	for _, stmt := range []string{
		"DROP DATABASE IF EXISTS " + db,
		"CREATE DATABASE " + db,
		"USE " + db,
	} {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return a.classify("drop all", a.cfg.Database, err)
		}
	}
	a.logger.Info().Msg("database recreated")
	return nil
}

func (a *MySQLAdapter) GetTableSchema(ctx context.Context, table string) (string, error) {
	var name, ddl string
	err := a.db.QueryRowContext(ctx, "SHOW CREATE TABLE "+a.quote(table)).Scan(&name, &ddl)
	if err != nil {
		return "", a.classify("show create table", table, err)
	}
	return ddl, nil
}

func (a *MySQLAdapter) Exec(ctx context.Context, query string) (int64, error) {
	n, err := execAffected(ctx, a.db, query)
	return n, a.classify("exec", "", err)
}

func (a *MySQLAdapter) Query(ctx context.Context, query string) ([]schema.Row, error) {
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, a.classify("query", "", err)
	}
	out, err := scanRows(rows)
	return out, a.classify("query", "", err)
}

func (a *MySQLAdapter) DatabaseSize(ctx context.Context) (int64, error) {
	var size int64
	err := a.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(data_length + index_length), 0) FROM information_schema.tables WHERE table_schema = DATABASE()").Scan(&size)
	return size, a.classify("database size", "", err)
}

// isMariaDB asks the server for its version string.
func (a *MySQLAdapter) isMariaDB(ctx context.Context) (bool, error) {
	var version string
	if err := a.db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version); err != nil {
		return false, a.classify("version", "", err)
	}
	return strings.Contains(strings.ToLower(version), "mariadb"), nil
}

func (a *MySQLAdapter) DumpCommand(ctx context.Context, opts DumpOptions) (string, error) {
	mariadb, err := a.isMariaDB(ctx)
	if err != nil {
		return "", err
	}
	path, err := WriteCredentials(a.cfg)
	if err != nil {
		return "", err
	}
	return mysqlDumpCommand(a.cfg, path, mariadb, opts), nil
}

func (a *MySQLAdapter) RunCommand(ctx context.Context, script string) (string, error) {
	mariadb, err := a.isMariaDB(ctx)
	if err != nil {
		return "", err
	}
	path, err := WriteCredentials(a.cfg)
	if err != nil {
		return "", err
	}
	return mysqlRunCommand(a.cfg, path, mariadb, script), nil
}

// rowStore

func (a *MySQLAdapter) conn() *sql.DB          { return a.db }
func (a *MySQLAdapter) bindVar(int) string     { return "?" }
func (a *MySQLAdapter) batchSize() int         { return a.cfg.BatchSize }
func (a *MySQLAdapter) log() *zerolog.Logger   { return &a.logger }
func (a *MySQLAdapter) progress() ProgressFunc { return a.report }

func (a *MySQLAdapter) quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (a *MySQLAdapter) nativeColumnNames(ctx context.Context, table string) ([]string, error) {
	columns, err := a.GetColumns(ctx, table, schema.Native)
	if err != nil {
		return nil, err
	}
	return schema.ColumnNames(columns), nil
}

func (a *MySQLAdapter) orderColumns(ctx context.Context, table string) ([]string, error) {
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
