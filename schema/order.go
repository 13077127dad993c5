package schema

import (
	"sort"
	"strings"
)

// trailingNames are always emitted last, in this order. They take
// precedence over the "_id" suffix rule, so key_id and token_id land here.
var trailingNames = []string{"created_at", "refresh_at", "updated_at", "key_id", "token_id"}

// Orderable is anything the custom orderer can sequence by name.
type Orderable interface {
	OrderName() string
	// OrderTieBreak separates items that share a name.
	OrderTieBreak() string
}

func trailingRank(name string) int {
	for i, n := range trailingNames {
		if n == name {
			return i
		}
	}
	return -1
}

// Sort returns a copy of items in custom order: "id" first, then every
// "*_id" name sorted, then the remaining names sorted, then the trailing
// names in their fixed priority. Items sharing a name are ordered by
// OrderTieBreak, so the result depends only on the input set.
func Sort[T Orderable](items []T) []T {
	var ids, foreign, other, trailing []T
	for _, item := range items {
		name := item.OrderName()
		switch {
		case name == "id":
			ids = append(ids, item)
		case trailingRank(name) >= 0:
			trailing = append(trailing, item)
		case strings.HasSuffix(name, "_id"):
			foreign = append(foreign, item)
		default:
			other = append(other, item)
		}
	}

	byName := func(s []T) func(i, j int) bool {
		return func(i, j int) bool {
			a, b := s[i], s[j]
			if a.OrderName() != b.OrderName() {
				return a.OrderName() < b.OrderName()
			}
			return a.OrderTieBreak() < b.OrderTieBreak()
		}
	}
	sort.SliceStable(ids, byName(ids))
	sort.SliceStable(foreign, byName(foreign))
	sort.SliceStable(other, byName(other))
	sort.SliceStable(trailing, func(i, j int) bool {
		ri, rj := trailingRank(trailing[i].OrderName()), trailingRank(trailing[j].OrderName())
		if ri != rj {
			return ri < rj
		}
		return trailing[i].OrderTieBreak() < trailing[j].OrderTieBreak()
	})

	out := make([]T, 0, len(items))
	out = append(out, ids...)
	out = append(out, foreign...)
	out = append(out, other...)
	out = append(out, trailing...)
	return out
}

// SortColumns applies order to columns. Native order returns them as given.
func SortColumns(columns []Column, order Order) []Column {
	if order != Custom {
		return columns
	}
	return Sort(columns)
}

// SortKeys applies order to keys, sequencing by column name.
func SortKeys(keys []Key, order Order) []Key {
	if order != Custom {
		return keys
	}
	return Sort(keys)
}

// ColumnNames returns the names of columns in their current order.
func ColumnNames(columns []Column) []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}
