// Package schema holds the dialect-independent description of a table:
// its columns, its keys and the rows read from it.
package schema

import (
	"fmt"
	"strings"
)

// DataType is the canonical column type shared by every dialect.
type DataType string

const (
	BigInt          DataType = "BIGINT"
	Char            DataType = "CHAR"
	Date            DataType = "DATE"
	Timestamp       DataType = "TIMESTAMP"
	Numeric         DataType = "NUMERIC"
	DoublePrecision DataType = "DOUBLE PRECISION"
	Real            DataType = "REAL"
	Integer         DataType = "INTEGER"
	SmallInt        DataType = "SMALLINT"
	Text            DataType = "TEXT"
	Time            DataType = "TIME"
	Varchar         DataType = "VARCHAR"
)

// Column is one normalized column of a table.
type Column struct {
	Name                      string   `json:"column_name"`
	DataType                  DataType `json:"data_type"`
	CharacterMaxLength        *int64   `json:"character_maximum_length"`
	NumericPrecision          *int64   `json:"numeric_precision"`
	NumericScale              *int64   `json:"numeric_scale"`
	IsNullable                bool     `json:"is_nullable"`
	ColumnDefault             *string  `json:"column_default"`
	IsAutoIncrement           bool     `json:"is_auto_increment"`
	IsDefaultCurrentTimestamp bool     `json:"is_default_current_timestamp"`
	IsUpdateCurrentTimestamp  bool     `json:"is_update_current_timestamp"`
}

// Normalize drops precision and scale from non-numeric columns.
func (c Column) Normalize() Column {
	if c.DataType != Numeric {
		c.NumericPrecision = nil
		c.NumericScale = nil
	}
	return c
}

func (c Column) OrderName() string     { return c.Name }
func (c Column) OrderTieBreak() string { return "" }

// KeyType classifies an index.
type KeyType string

const (
	Primary KeyType = "PRIMARY"
	Unique  KeyType = "UNIQUE"
	Index   KeyType = "INDEX"
)

// Key is one (index, column) pair. A composite index yields one Key per
// participating column, each with IsComposite set.
type Key struct {
	KeyType     KeyType `json:"key_type"`
	KeyName     string  `json:"key_name"`
	ColumnName  string  `json:"column_name"`
	IsComposite bool    `json:"is_composite"`
	Position    int     `json:"position"`
}

func (k Key) OrderName() string { return k.ColumnName }

func (k Key) OrderTieBreak() string {
	return fmt.Sprintf("%s\x00%06d\x00%s", k.KeyName, k.Position, k.KeyType)
}

// Table is a named table with its columns and keys.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
	Keys    []Key    `json:"keys"`
}

// Order selects how columns and keys are sequenced.
type Order string

const (
	Native Order = "native"
	Custom Order = "custom"
)

// ParseOrder accepts "native" or "custom". The empty string means native.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(Native):
		return Native, nil
	case string(Custom):
		return Custom, nil
	default:
		return "", fmt.Errorf("Invalid value for column order. Must be 'custom' or 'native', got '%s'.", s)
	}
}
