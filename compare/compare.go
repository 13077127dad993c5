// Package compare diffs table structure between two databases, possibly of
// different dialects.
package compare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/mudrockdev/mudrockdbtool/adapter"
	"github.com/mudrockdev/mudrockdbtool/schema"
)

// Status classifies one table in a database-level diff.
type Status string

const (
	Same      Status = "=="
	Differs   Status = "!="
	DiffersB  Status = "<>" // the B side of a mismatch
	OnlyInA   Status = ">"
	OnlyInB   Status = "<"
	statusNil Status = ""
)

// Inspector is the read-only catalog surface the diff needs.
type Inspector interface {
	Dialect() adapter.Dialect
	Tables(ctx context.Context) ([]string, error)
	TableExists(ctx context.Context, table string) (bool, error)
	Columns(ctx context.Context, table string, order schema.Order) ([]schema.Column, error)
	Keys(ctx context.Context, table string, order schema.Order) ([]schema.Key, error)
}

type Options struct {
	Order schema.Order
	// IgnoreLength clears TEXT lengths before comparing. Nil means "only
	// when the dialects differ".
	IgnoreLength *bool
}

func (o Options) ignoreLength(a, b Inspector) bool {
	if o.IgnoreLength != nil {
		return *o.IgnoreLength
	}
	return a.Dialect() != b.Dialect()
}

// ParseIgnoreLength reads a yes/no flag value. An empty value leaves the
// choice to the dialects.
func ParseIgnoreLength(s string) (*bool, error) {
	var v bool
	switch s {
	case "":
		return nil, nil
	case "yes":
		v = true
	case "no":
		v = false
	default:
		return nil, &adapter.ValidationError{
			Field:  "ignore-length",
			Value:  s,
			Reason: fmt.Sprintf("Invalid value for ignore-length. Must be 'yes' or 'no', got '%s'.", s),
		}
	}
	return &v, nil
}

func (o Options) order() schema.Order {
	if o.Order == "" {
		return schema.Custom
	}
	return o.Order
}

// Entry is one table's status.
type Entry struct {
	Table  string
	Status Status
}

// StatusMap is a table name to status map kept in table name order.
type StatusMap []Entry

func (m StatusMap) Get(table string) Status {
	for _, e := range m {
		if e.Table == table {
			return e.Status
		}
	}
	return statusNil
}

func (m StatusMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(e.Table))
		buf.WriteByte(':')
		buf.WriteString(strconv.Quote(string(e.Status)))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DatabaseDiff holds the two parallel status maps.
type DatabaseDiff struct {
	A StatusMap `json:"a"`
	B StatusMap `json:"b"`
}

// Equal reports whether every table exists on both sides with equal shape.
func (d *DatabaseDiff) Equal() bool {
	for _, e := range d.A {
		if e.Status != Same {
			return false
		}
	}
	for _, e := range d.B {
		if e.Status != Same {
			return false
		}
	}
	return true
}

// TableShape is the comparable part of a table.
type TableShape struct {
	Columns []schema.Column `json:"columns"`
	Keys    []schema.Key    `json:"keys"`
}

// Hash fingerprints the JSON form of the shape.
func (s TableShape) Hash() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(xxhash.Sum64(data), 16), nil
}

// TableDiff is the shape of one table on each side.
type TableDiff struct {
	Table string     `json:"table"`
	A     TableShape `json:"a"`
	B     TableShape `json:"b"`
}

func shapeOf(ctx context.Context, insp Inspector, table string, order schema.Order, ignoreLength bool) (TableShape, error) {
	columns, err := insp.Columns(ctx, table, order)
	if err != nil {
		return TableShape{}, err
	}
	keys, err := insp.Keys(ctx, table, order)
	if err != nil {
		return TableShape{}, err
	}
	if ignoreLength {
		columns = schema.NormalizeLengths(columns)
	}
	if columns == nil {
		columns = []schema.Column{}
	}
	if keys == nil {
		keys = []schema.Key{}
	}
	return TableShape{Columns: columns, Keys: keys}, nil
}

func tableSet(ctx context.Context, insp Inspector) (map[string]bool, error) {
	tables, err := insp.Tables(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(tables))
	for _, t := range tables {
		set[t] = true
	}
	return set, nil
}

// DiffDatabases classifies every table found on either side. Tables on one
// side only are reported without being hashed.
func DiffDatabases(ctx context.Context, a, b Inspector, opts Options) (*DatabaseDiff, error) {
	setA, err := tableSet(ctx, a)
	if err != nil {
		return nil, err
	}
	setB, err := tableSet(ctx, b)
	if err != nil {
		return nil, err
	}

	var names []string
	for t := range setA {
		names = append(names, t)
	}
	for t := range setB {
		if !setA[t] {
			names = append(names, t)
		}
	}
	sort.Strings(names)

	ignore := opts.ignoreLength(a, b)
	order := opts.order()
	diff := &DatabaseDiff{A: StatusMap{}, B: StatusMap{}}
	for _, table := range names {
		switch {
		case !setB[table]:
			diff.A = append(diff.A, Entry{table, OnlyInA})
			continue
		case !setA[table]:
			diff.B = append(diff.B, Entry{table, OnlyInB})
			continue
		}

		same, err := sameShape(ctx, a, b, table, order, ignore)
		if err != nil {
			return nil, err
		}
		if same {
			diff.A = append(diff.A, Entry{table, Same})
			diff.B = append(diff.B, Entry{table, Same})
		} else {
			diff.A = append(diff.A, Entry{table, Differs})
			diff.B = append(diff.B, Entry{table, DiffersB})
		}
	}
	return diff, nil
}

func sameShape(ctx context.Context, a, b Inspector, table string, order schema.Order, ignoreLength bool) (bool, error) {
	shapeA, err := shapeOf(ctx, a, table, order, ignoreLength)
	if err != nil {
		return false, err
	}
	shapeB, err := shapeOf(ctx, b, table, order, ignoreLength)
	if err != nil {
		return false, err
	}
	hashA, err := shapeA.Hash()
	if err != nil {
		return false, err
	}
	hashB, err := shapeB.Hash()
	if err != nil {
		return false, err
	}
	return hashA == hashB, nil
}

// DiffTable returns the shape of table on both sides, restricted to field
// when it is not empty. A side without the table yields an empty shape.
func DiffTable(ctx context.Context, a, b Inspector, table, field string, opts Options) (*TableDiff, error) {
	if err := adapter.ValidateIdentifier("table", table); err != nil {
		return nil, err
	}
	if field != "" {
		if err := adapter.ValidateIdentifier("field", field); err != nil {
			return nil, err
		}
	}

	ignore := opts.ignoreLength(a, b)
	side := func(insp Inspector) (TableShape, bool, error) {
		ok, err := insp.TableExists(ctx, table)
		if err != nil || !ok {
			return TableShape{Columns: []schema.Column{}, Keys: []schema.Key{}}, false, err
		}
		shape, err := shapeOf(ctx, insp, table, opts.order(), ignore)
		return filterField(shape, field), true, err
	}

	shapeA, okA, err := side(a)
	if err != nil {
		return nil, err
	}
	shapeB, okB, err := side(b)
	if err != nil {
		return nil, err
	}
	if !okA && !okB {
		return nil, &adapter.NotFoundError{Table: table}
	}
	return &TableDiff{Table: table, A: shapeA, B: shapeB}, nil
}

func filterField(s TableShape, field string) TableShape {
	if field == "" {
		return s
	}
	out := TableShape{Columns: []schema.Column{}, Keys: []schema.Key{}}
	for _, c := range s.Columns {
		if c.Name == field {
			out.Columns = append(out.Columns, c)
		}
	}
	for _, k := range s.Keys {
		if k.ColumnName == field || k.KeyName == field {
			out.Keys = append(out.Keys, k)
		}
	}
	return out
}

// CompatibleSchemas checks that table has the same column name set in src
// and dst, ignoring order and types.
func CompatibleSchemas(ctx context.Context, src, dst Inspector, table string) error {
	srcColumns, err := src.Columns(ctx, table, schema.Native)
	if err != nil {
		return err
	}
	dstColumns, err := dst.Columns(ctx, table, schema.Native)
	if err != nil {
		return err
	}
	missing, extra := nameSetDiff(schema.ColumnNames(srcColumns), schema.ColumnNames(dstColumns))
	if len(missing) > 0 || len(extra) > 0 {
		return &adapter.IncompatibleSchemaError{Table: table, Missing: missing, Extra: extra}
	}
	return nil
}

// nameSetDiff returns the names only in a and the names only in b, sorted.
func nameSetDiff(a, b []string) (onlyA, onlyB []string) {
	inA := make(map[string]bool, len(a))
	for _, n := range a {
		inA[n] = true
	}
	inB := make(map[string]bool, len(b))
	for _, n := range b {
		inB[n] = true
	}
	for n := range inA {
		if !inB[n] {
			onlyA = append(onlyA, n)
		}
	}
	for n := range inB {
		if !inA[n] {
			onlyB = append(onlyB, n)
		}
	}
	sort.Strings(onlyA)
	sort.Strings(onlyB)
	return onlyA, onlyB
}

func formatLength(n *int64) string {
	if n == nil {
		return "none"
	}
	return strconv.FormatInt(*n, 10)
}

func formatDefault(s *string) string {
	if s == nil {
		return "NULL"
	}
	return "'" + *s + "'"
}

// ColumnDifferences describes how the columns and primary key of table
// differ between a and b, one message per difference.
func ColumnDifferences(table string, a, b TableShape) []string {
	differences := []string{}

	targetColumns := make(map[string]schema.Column, len(b.Columns))
	for _, col := range b.Columns {
		targetColumns[col.Name] = col
	}
	sourceColumns := make(map[string]schema.Column, len(a.Columns))

	for _, sourceCol := range a.Columns {
		colName := sourceCol.Name
		sourceColumns[colName] = sourceCol
		targetCol, exists := targetColumns[colName]
		if !exists {
			differences = append(differences, fmt.Sprintf("Column '%s.%s' exists in source but not in target", table, colName))
			continue
		}
		if sourceCol.DataType != targetCol.DataType {
			differences = append(differences, fmt.Sprintf("Column '%s.%s' has different data type: source='%s', target='%s'",
				table, colName, sourceCol.DataType, targetCol.DataType))
		}
		if sourceCol.IsNullable != targetCol.IsNullable {
			differences = append(differences, fmt.Sprintf("Column '%s.%s' has different nullable property: source='%t', target='%t'",
				table, colName, sourceCol.IsNullable, targetCol.IsNullable))
		}
		if formatLength(sourceCol.CharacterMaxLength) != formatLength(targetCol.CharacterMaxLength) {
			differences = append(differences, fmt.Sprintf("Column '%s.%s' has different length: source='%s', target='%s'",
				table, colName, formatLength(sourceCol.CharacterMaxLength), formatLength(targetCol.CharacterMaxLength)))
		}
		if formatDefault(sourceCol.ColumnDefault) != formatDefault(targetCol.ColumnDefault) ||
			sourceCol.IsDefaultCurrentTimestamp != targetCol.IsDefaultCurrentTimestamp {
			differences = append(differences, fmt.Sprintf("Column '%s.%s' has different default: source=%s, target=%s",
				table, colName, formatDefault(sourceCol.ColumnDefault), formatDefault(targetCol.ColumnDefault)))
		}
		if sourceCol.IsAutoIncrement != targetCol.IsAutoIncrement {
			differences = append(differences, fmt.Sprintf("Column '%s.%s' has different auto increment: source=%t, target=%t",
				table, colName, sourceCol.IsAutoIncrement, targetCol.IsAutoIncrement))
		}
	}

	for _, targetCol := range b.Columns {
		if _, exists := sourceColumns[targetCol.Name]; !exists {
			differences = append(differences, fmt.Sprintf("Column '%s.%s' exists in target but not in source", table, targetCol.Name))
		}
	}

	sourcePK, targetPK := primaryKey(a.Keys), primaryKey(b.Keys)
	if fmt.Sprint(sourcePK) != fmt.Sprint(targetPK) {
		differences = append(differences, fmt.Sprintf("Table '%s' has different primary keys: source=%v, target=%v",
			table, sourcePK, targetPK))
	}
	return differences
}

func primaryKey(keys []schema.Key) []string {
	var pk []schema.Key
	for _, k := range keys {
		if k.KeyType == schema.Primary {
			pk = append(pk, k)
		}
	}
	sort.SliceStable(pk, func(i, j int) bool { return pk[i].Position < pk[j].Position })
	names := make([]string, len(pk))
	for i, k := range pk {
		names[i] = k.ColumnName
	}
	return names
}
