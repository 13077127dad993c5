package adapter

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mudrockdev/mudrockdbtool/schema"
)

func nullString(s string) sql.NullString { return sql.NullString{String: s, Valid: true} }
func nullInt64(n int64) sql.NullInt64    { return sql.NullInt64{Int64: n, Valid: true} }

func TestNormalizeMySQLColumn(t *testing.T) {
	tests := []struct {
		name  string
		raw   mysqlColumn
		check func(t *testing.T, c schema.Column)
	}{
		{
			name: "auto increment id",
			raw:  mysqlColumn{Name: "id", DataType: "bigint", Precision: nullInt64(19), Scale: nullInt64(0), Nullable: "NO", Extra: "auto_increment"},
			check: func(t *testing.T, c schema.Column) {
				assert.Equal(t, schema.BigInt, c.DataType)
				assert.True(t, c.IsAutoIncrement)
				assert.False(t, c.IsNullable)
				assert.Nil(t, c.NumericPrecision, "precision is only kept for NUMERIC")
				assert.Nil(t, c.NumericScale)
			},
		},
		{
			name: "created_at default current timestamp",
			raw:  mysqlColumn{Name: "created_at", DataType: "timestamp", Nullable: "YES", Default: nullString("CURRENT_TIMESTAMP"), Extra: "DEFAULT_GENERATED"},
			check: func(t *testing.T, c schema.Column) {
				assert.Equal(t, schema.Timestamp, c.DataType)
				assert.True(t, c.IsDefaultCurrentTimestamp)
				assert.Nil(t, c.ColumnDefault)
				assert.False(t, c.IsUpdateCurrentTimestamp)
			},
		},
		{
			name: "updated_at on update",
			raw:  mysqlColumn{Name: "updated_at", DataType: "datetime", Nullable: "YES", Default: nullString("current_timestamp()"), Extra: "on update current_timestamp()"},
			check: func(t *testing.T, c schema.Column) {
				assert.Equal(t, schema.Timestamp, c.DataType)
				assert.True(t, c.IsDefaultCurrentTimestamp)
				assert.True(t, c.IsUpdateCurrentTimestamp)
			},
		},
		{
			name: "fractional precision default and update",
			raw:  mysqlColumn{Name: "changed_at", DataType: "datetime", Nullable: "NO", Default: nullString("CURRENT_TIMESTAMP(6)"), Extra: "DEFAULT_GENERATED on update CURRENT_TIMESTAMP(6)"},
			check: func(t *testing.T, c schema.Column) {
				assert.Equal(t, schema.Timestamp, c.DataType)
				assert.Nil(t, c.ColumnDefault)
				assert.True(t, c.IsDefaultCurrentTimestamp)
				assert.True(t, c.IsUpdateCurrentTimestamp)
			},
		},
		{
			name: "mariadb lower case precision",
			raw:  mysqlColumn{Name: "seen_at", DataType: "timestamp", Nullable: "YES", Default: nullString("current_timestamp(3)")},
			check: func(t *testing.T, c schema.Column) {
				assert.Nil(t, c.ColumnDefault)
				assert.True(t, c.IsDefaultCurrentTimestamp)
				assert.False(t, c.IsUpdateCurrentTimestamp)
			},
		},
		{
			name: "mariadb quoted default",
			raw:  mysqlColumn{Name: "status", DataType: "varchar", MaxLength: nullInt64(32), Nullable: "NO", Default: nullString("'it''s draft'")},
			check: func(t *testing.T, c schema.Column) {
				assert.Equal(t, schema.Varchar, c.DataType)
				assert.Equal(t, int64(32), *c.CharacterMaxLength)
				assert.Equal(t, "it's draft", *c.ColumnDefault)
			},
		},
		{
			name: "mariadb NULL default",
			raw:  mysqlColumn{Name: "note", DataType: "text", MaxLength: nullInt64(65535), Nullable: "YES", Default: nullString("NULL")},
			check: func(t *testing.T, c schema.Column) {
				assert.Equal(t, schema.Text, c.DataType)
				assert.Nil(t, c.ColumnDefault)
				assert.False(t, c.IsDefaultCurrentTimestamp)
			},
		},
		{
			name: "decimal keeps precision",
			raw:  mysqlColumn{Name: "price", DataType: "decimal", Precision: nullInt64(10), Scale: nullInt64(2), Nullable: "NO", Default: nullString("0.00")},
			check: func(t *testing.T, c schema.Column) {
				assert.Equal(t, schema.Numeric, c.DataType)
				assert.Equal(t, int64(10), *c.NumericPrecision)
				assert.Equal(t, int64(2), *c.NumericScale)
				assert.Equal(t, "0.00", *c.ColumnDefault)
			},
		},
		{
			name: "unmapped type passes through",
			raw:  mysqlColumn{Name: "payload", DataType: "json", Nullable: "YES"},
			check: func(t *testing.T, c schema.Column) {
				assert.Equal(t, schema.DataType("json"), c.DataType)
			},
		},
		{
			name: "tinyint and float",
			raw:  mysqlColumn{Name: "flag", DataType: "tinyint", Nullable: "NO"},
			check: func(t *testing.T, c schema.Column) {
				assert.Equal(t, schema.SmallInt, c.DataType)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, normalizeMySQLColumn(tt.raw))
		})
	}
}

func TestNormalizePostgresColumn(t *testing.T) {
	tests := []struct {
		name  string
		raw   postgresColumn
		check func(t *testing.T, c schema.Column)
	}{
		{
			name: "serial id",
			raw:  postgresColumn{Name: "id", DataType: "integer", Precision: nullInt64(32), Scale: nullInt64(0), Nullable: "NO", Default: nullString("nextval('posts_id_seq'::regclass)"), Identity: "NO"},
			check: func(t *testing.T, c schema.Column) {
				assert.Equal(t, schema.Integer, c.DataType)
				assert.True(t, c.IsAutoIncrement)
				assert.Nil(t, c.ColumnDefault)
				assert.Nil(t, c.NumericPrecision)
			},
		},
		{
			name: "identity column",
			raw:  postgresColumn{Name: "id", DataType: "bigint", Nullable: "NO", Identity: "YES"},
			check: func(t *testing.T, c schema.Column) {
				assert.True(t, c.IsAutoIncrement)
			},
		},
		{
			name: "updated_at by name",
			raw:  postgresColumn{Name: "updated_at", DataType: "timestamp without time zone", Nullable: "YES", Default: nullString("CURRENT_TIMESTAMP"), Identity: "NO"},
			check: func(t *testing.T, c schema.Column) {
				assert.Equal(t, schema.Timestamp, c.DataType)
				assert.True(t, c.IsDefaultCurrentTimestamp)
				assert.True(t, c.IsUpdateCurrentTimestamp)
			},
		},
		{
			name: "now default",
			raw:  postgresColumn{Name: "created_at", DataType: "timestamp with time zone", Nullable: "NO", Default: nullString("now()"), Identity: "NO"},
			check: func(t *testing.T, c schema.Column) {
				assert.True(t, c.IsDefaultCurrentTimestamp)
				assert.False(t, c.IsUpdateCurrentTimestamp)
			},
		},
		{
			name: "fractional precision default",
			raw:  postgresColumn{Name: "created_at", DataType: "timestamp without time zone", Nullable: "NO", Default: nullString("CURRENT_TIMESTAMP(6)"), Identity: "NO"},
			check: func(t *testing.T, c schema.Column) {
				assert.Nil(t, c.ColumnDefault)
				assert.True(t, c.IsDefaultCurrentTimestamp)
			},
		},
		{
			name: "localtimestamp with precision",
			raw:  postgresColumn{Name: "logged_at", DataType: "timestamp without time zone", Nullable: "YES", Default: nullString("LOCALTIMESTAMP(0)"), Identity: "NO"},
			check: func(t *testing.T, c schema.Column) {
				assert.Nil(t, c.ColumnDefault)
				assert.True(t, c.IsDefaultCurrentTimestamp)
			},
		},
		{
			name: "cast literal default",
			raw:  postgresColumn{Name: "status", DataType: "character varying", MaxLength: nullInt64(32), Nullable: "NO", Default: nullString("'draft'::character varying"), Identity: "NO"},
			check: func(t *testing.T, c schema.Column) {
				assert.Equal(t, schema.Varchar, c.DataType)
				assert.Equal(t, "draft", *c.ColumnDefault)
			},
		},
		{
			name: "time zone type",
			raw:  postgresColumn{Name: "opens", DataType: "time with time zone", Nullable: "YES", Identity: "NO"},
			check: func(t *testing.T, c schema.Column) {
				assert.Equal(t, schema.Time, c.DataType)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, normalizePostgresColumn(tt.raw))
		})
	}
}

func TestIsCurrentTimestamp(t *testing.T) {
	for _, def := range []string{"CURRENT_TIMESTAMP", "current_timestamp()", "CURRENT_TIMESTAMP(6)", " now() ", "NOW", "LOCALTIMESTAMP(3)"} {
		assert.True(t, isCurrentTimestamp(def), def)
	}
	for _, def := range []string{"'CURRENT_TIMESTAMP'", "CURRENT_TIMESTAMP(6) + 1", "CURRENT_DATE", "now(x)", ""} {
		assert.False(t, isCurrentTimestamp(def), def)
	}
}

func TestBestOrderColumns(t *testing.T) {
	columns := []string{"email", "id", "name"}

	pk := []schema.Key{
		{KeyType: schema.Index, KeyName: "idx_name", ColumnName: "name", Position: 1},
		{KeyType: schema.Primary, KeyName: "PRIMARY", ColumnName: "tenant_id", IsComposite: true, Position: 2},
		{KeyType: schema.Primary, KeyName: "PRIMARY", ColumnName: "id", IsComposite: true, Position: 1},
	}
	assert.Equal(t, []string{"id", "tenant_id"}, bestOrderColumns(pk, columns))

	uk := []schema.Key{
		{KeyType: schema.Unique, KeyName: "uniq_email", ColumnName: "email", Position: 1},
		{KeyType: schema.Unique, KeyName: "uniq_name", ColumnName: "name", Position: 1},
	}
	assert.Equal(t, []string{"email", "id", "name"}, bestOrderColumns(uk, columns))

	nullableUnique := []schema.Key{
		{KeyType: schema.Unique, KeyName: "uniq_name_email", ColumnName: "email", IsComposite: true, Position: 2},
		{KeyType: schema.Unique, KeyName: "uniq_name_email", ColumnName: "name", IsComposite: true, Position: 1},
	}
	assert.Equal(t, []string{"name", "email", "id"}, bestOrderColumns(nullableUnique, columns))

	assert.Equal(t, []string{"email", "id", "name"}, bestOrderColumns(nil, columns))
	assert.Nil(t, bestOrderColumns(nil, nil))
}

func TestPgColumnType(t *testing.T) {
	typ, serial := pgColumnType(postgresColumn{DataType: "bigint", Default: nullString("nextval('t_id_seq'::regclass)")})
	assert.Equal(t, "bigserial", typ)
	assert.True(t, serial)

	typ, _ = pgColumnType(postgresColumn{DataType: "character varying", MaxLength: nullInt64(255)})
	assert.Equal(t, "character varying(255)", typ)

	typ, _ = pgColumnType(postgresColumn{DataType: "numeric", Precision: nullInt64(10), Scale: nullInt64(2)})
	assert.Equal(t, "numeric(10,2)", typ)

	typ, serial = pgColumnType(postgresColumn{DataType: "text"})
	assert.Equal(t, "text", typ)
	assert.False(t, serial)
}

func TestUnqualifyIndexDef(t *testing.T) {
	def := "CREATE INDEX idx_posts_user_id ON public.posts USING btree (user_id)"
	assert.Equal(t, "CREATE INDEX idx_posts_user_id ON posts USING btree (user_id)", unqualifyIndexDef(def, "public"))
}
