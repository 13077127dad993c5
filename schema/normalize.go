package schema

// NormalizeLengths returns a copy of columns with the length of every TEXT
// column cleared. Dialects disagree on whether TEXT carries a length, so
// cross-dialect comparisons apply this before hashing.
func NormalizeLengths(columns []Column) []Column {
	out := make([]Column, len(columns))
	for i, c := range columns {
		if c.DataType == Text {
			c.CharacterMaxLength = nil
		}
		out[i] = c
	}
	return out
}
