package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/mudrockdev/mudrockdbtool/adapter"
	"github.com/mudrockdev/mudrockdbtool/compare"
	"github.com/mudrockdev/mudrockdbtool/connection"
	"github.com/mudrockdev/mudrockdbtool/schema"
)

var diffFlags struct {
	columnOrder  string
	ignoreLength string
	summary      bool
	rows         bool
}

var diffCmd = &cobra.Command{
	Use:   "diff <config1> <config2> [table] [field]",
	Short: "Compare the tables of two databases, or the schema of one table",
	Long: `Compares two databases table by table, or the columns and keys of one table.

Table status:
  ==  same columns and keys on both sides
  !=  differs (left side), <> differs (right side)
  >   only on the left, <  only on the right

TEXT lengths are ignored by default when the two databases use different drivers.`,
	Args: cobra.RangeArgs(2, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		order, err := adapter.ParseOrder(diffFlags.columnOrder)
		if err != nil {
			return err
		}
		ignore, err := compare.ParseIgnoreLength(diffFlags.ignoreLength)
		if err != nil {
			return err
		}
		opts := compare.Options{Order: order, IgnoreLength: ignore}

		db1, err := open(cmd, args[0])
		if err != nil {
			return err
		}
		defer db1.Close()
		db2, err := open(cmd, args[1])
		if err != nil {
			return err
		}
		defer db2.Close()

		out := cmd.OutOrStdout()
		if len(args) > 2 {
			field := ""
			if len(args) > 3 {
				field = args[3]
			}
			return diffTable(cmd.Context(), out, db1, db2, args[2], field, opts)
		}
		return diffDatabases(cmd.Context(), out, db1, db2, opts)
	},
}

func marshalIndent(v any) (string, error) {
	var buf strings.Builder
	if err := printJSON(&buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// unifiedDiff renders a and b as JSON and diffs them line by line.
func unifiedDiff(nameA, nameB string, a, b any) (string, error) {
	textA, err := marshalIndent(a)
	if err != nil {
		return "", err
	}
	textB, err := marshalIndent(b)
	if err != nil {
		return "", err
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(textA),
		B:        difflib.SplitLines(textB),
		FromFile: nameA,
		ToFile:   nameB,
		Context:  3,
	})
}

func diffDatabases(ctx context.Context, out io.Writer, db1, db2 *connection.Connection, opts compare.Options) error {
	diff, err := compare.DiffDatabases(ctx, db1, db2, opts)
	if err != nil {
		return err
	}

	if err := printJSON(out, diff); err != nil {
		return err
	}
	if !diffFlags.summary && !diffFlags.rows {
		return nil
	}
	return printSummary(ctx, out, db1, db2, diff, opts)
}

// printSummary lists every table that is not equal on both sides with the
// first reason found.
func printSummary(ctx context.Context, out io.Writer, db1, db2 *connection.Connection, diff *compare.DatabaseDiff, opts compare.Options) error {
	var lines []string
	for _, e := range diff.A {
		switch e.Status {
		case compare.OnlyInA:
			lines = append(lines, fmt.Sprintf("- %s (exists in source but not in target)", e.Table))
		case compare.Differs:
			td, err := compare.DiffTable(ctx, db1, db2, e.Table, "", opts)
			if err != nil {
				return err
			}
			diffs := compare.ColumnDifferences(e.Table, td.A, td.B)
			if len(diffs) == 0 {
				lines = append(lines, fmt.Sprintf("- %s (keys differ)", e.Table))
				continue
			}
			lines = append(lines, fmt.Sprintf("- %s (%s)", e.Table, diffs[0]))
			if len(diffs) > 1 {
				lines = append(lines, fmt.Sprintf("  (and %d more differences)", len(diffs)-1))
			}
		case compare.Same:
			if !diffFlags.rows {
				continue
			}
			source, err := db1.RowCount(ctx, e.Table)
			if err != nil {
				return err
			}
			target, err := db2.RowCount(ctx, e.Table)
			if err != nil {
				return err
			}
			if source != target {
				lines = append(lines, fmt.Sprintf("- %s (row counts differ: source=%s, target=%s)",
					e.Table, humanize.Comma(source), humanize.Comma(target)))
			}
		}
	}
	for _, e := range diff.B {
		if e.Status == compare.OnlyInB {
			lines = append(lines, fmt.Sprintf("- %s (exists in target but not in source)", e.Table))
		}
	}

	fmt.Fprintln(out, "\n=== Comparison Summary ===")
	if len(lines) == 0 {
		fmt.Fprintln(out, "No differences found between the databases.")
		return nil
	}
	fmt.Fprintf(out, "Found differences in %d tables:\n", countTables(lines))
	for _, l := range lines {
		fmt.Fprintln(out, l)
	}
	return nil
}

func countTables(lines []string) int {
	n := 0
	for _, l := range lines {
		if len(l) > 1 && l[0] == '-' {
			n++
		}
	}
	return n
}

func diffTable(ctx context.Context, out io.Writer, db1, db2 *connection.Connection, table, field string, opts compare.Options) error {
	td, err := compare.DiffTable(ctx, db1, db2, table, field, opts)
	if err != nil {
		return err
	}
	text, err := unifiedDiff(db1.Name()+"/"+table, db2.Name()+"/"+table, td.A, td.B)
	if err != nil {
		return err
	}
	if text == "" {
		fmt.Fprintf(out, "Table '%s' is identical in both databases.\n", table)
		return nil
	}
	_, err = fmt.Fprint(out, text)
	return err
}

func init() {
	diffCmd.Flags().StringVarP(&diffFlags.columnOrder, "column-order", "o", string(schema.Custom), "Column order used for comparing: custom or native")
	diffCmd.Flags().StringVarP(&diffFlags.ignoreLength, "ignore-length", "l", "", "Ignore TEXT lengths: yes or no (default: yes across drivers)")
	diffCmd.Flags().BoolVarP(&diffFlags.summary, "summary", "s", false, "Explain every table that differs")
	diffCmd.Flags().BoolVarP(&diffFlags.rows, "rows", "r", false, "Also compare row counts of equal tables (implies --summary)")
}
