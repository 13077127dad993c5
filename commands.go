package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/spf13/cobra"

	"github.com/mudrockdev/mudrockdbtool/adapter"
	"github.com/mudrockdev/mudrockdbtool/compare"
	"github.com/mudrockdev/mudrockdbtool/connection"
	"github.com/mudrockdev/mudrockdbtool/populator"
	"github.com/mudrockdev/mudrockdbtool/schema"
	"github.com/mudrockdev/mudrockdbtool/transfer"
)

var (
	listOrder string
	listKeys  bool

	dumpSchemaOnly bool
	dumpCompact    bool
	dumpOutput     string

	seedOpts populator.Options
)

var lsCmd = &cobra.Command{
	Use:   "ls <config> [table]",
	Short: "List the tables of a database or the columns of a table",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := open(cmd, args[0])
		if err != nil {
			return err
		}
		defer db.Close()

		var names []string
		if len(args) > 1 {
			var columns []schema.Column
			columns, err = db.Columns(cmd.Context(), args[1], schema.Native)
			names = schema.ColumnNames(columns)
		} else {
			names, err = db.Tables(cmd.Context())
		}
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Fprintln(cmd.OutOrStdout(), n)
		}
		return nil
	},
}

var llCmd = &cobra.Command{
	Use:   "ll <config> [table] [field]",
	Short: "Print the tables of a database or the schema of a table as JSON",
	Args:  cobra.RangeArgs(1, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		order, err := adapter.ParseOrder(listOrder)
		if err != nil {
			return err
		}
		db, err := open(cmd, args[0])
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		if len(args) == 1 {
			tables, err := db.Tables(ctx)
			if err != nil {
				return err
			}
			return printJSON(out, tables)
		}

		table := args[1]
		columns, err := db.Columns(ctx, table, order)
		if err != nil {
			return err
		}
		if len(args) > 2 {
			filtered := []schema.Column{}
			for _, c := range columns {
				if c.Name == args[2] {
					filtered = append(filtered, c)
				}
			}
			columns = filtered
		}
		if !listKeys {
			return printJSON(out, columns)
		}
		keys, err := db.Keys(ctx, table, order)
		if err != nil {
			return err
		}
		return printJSON(out, compare.TableShape{Columns: columns, Keys: keys})
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <config>",
	Short: "Show the host, table count and size of a database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := open(cmd, args[0])
		if err != nil {
			return err
		}
		defer db.Close()

		info, err := db.Info(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Name:     %s\n", info.Name)
		fmt.Fprintf(out, "Driver:   %s\n", info.Dialect)
		fmt.Fprintf(out, "Host:     %s\n", info.Host)
		fmt.Fprintf(out, "Database: %s\n", info.Database)
		if info.Schema != "" {
			fmt.Fprintf(out, "Schema:   %s\n", info.Schema)
		}
		fmt.Fprintf(out, "Tables:   %d\n", info.TableCount)
		fmt.Fprintf(out, "Size:     %s\n", formatSize(info.TotalSize))
		return nil
	},
}

var catCmd = &cobra.Command{
	Use:   "cat <config1> [config2] <table|query>",
	Short: "Print the rows of a table or query, or diff them between two databases",
	Long: `Prints the rows of a table, or of an arbitrary query when the argument is not a
plain table name. With a second configuration the rows of both databases are
shown as a unified diff.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var second, target string
		switch {
		case len(args) == 3:
			second, target = args[1], args[2]
		case isConfig(args[1]):
			return fmt.Errorf("missing table or query after '%s'", args[1])
		default:
			target = args[1]
		}

		db1, err := open(cmd, args[0])
		if err != nil {
			return err
		}
		defer db1.Close()

		rows1, err := readRows(cmd, db1, target)
		if err != nil {
			return err
		}
		if second == "" {
			return printJSON(cmd.OutOrStdout(), rows1)
		}

		db2, err := open(cmd, second)
		if err != nil {
			return err
		}
		defer db2.Close()
		rows2, err := readRows(cmd, db2, target)
		if err != nil {
			return err
		}
		text, err := unifiedDiff(db1.Name(), db2.Name(), rows1, rows2)
		if err != nil {
			return err
		}
		if text == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "Rows are identical in both databases.")
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), text)
		return nil
	},
}

func readRows(cmd *cobra.Command, db *connection.Connection, target string) ([]schema.Row, error) {
	var rows []schema.Row
	var err error
	if isIdentifier(target) {
		rows, err = db.TableData(cmd.Context(), target, schema.Custom)
	} else {
		rows, err = db.Query(cmd.Context(), target)
	}
	if rows == nil {
		rows = []schema.Row{}
	}
	return rows, err
}

var cpCmd = &cobra.Command{
	Use:   "cp <config1> <config2> <table>",
	Short: "Copy a table between databases",
	Long: `Copies a table from one database to another.

Between databases of the same driver the destination table is recreated
from the source schema. Between different drivers the destination table must
already exist with the same column names; it is emptied and only data is
copied.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return copyOrMove(cmd, args[0], args[1], args[2], false)
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv <config1> <config2|old_table> <table|new_table>",
	Short: "Move a table to another database, or rename it",
	Long: `mv config1 old_table new_table   renames old_table inside config1
mv config1 config2 table         moves table from config1 to config2

A move copies like cp and then drops the source table.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if isConfig(args[1]) {
			return copyOrMove(cmd, args[0], args[1], args[2], true)
		}
		return renameTable(cmd, args[0], args[1], args[2])
	},
}

func copyOrMove(cmd *cobra.Command, srcName, dstName, table string, move bool) error {
	ctx := cmd.Context()
	src, err := open(cmd, srcName)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := open(cmd, dstName)
	if err != nil {
		return err
	}
	defer dst.Close()

	if ok, err := src.TableExists(ctx, table); err != nil {
		return err
	} else if !ok {
		return &adapter.NotFoundError{Table: table}
	}

	opts := transfer.Options{Logger: &logger}
	if src.Dialect() != dst.Dialect() {
		if err := compare.CompatibleSchemas(ctx, src, dst, table); err != nil {
			return err
		}
		ok, err := confirm(cmd, fmt.Sprintf("Table '%s' may be incompatible. Do you want to clear it? ", table))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), cancelled)
			return nil
		}
	} else if exists, err := dst.TableExists(ctx, table); err != nil {
		return err
	} else if exists {
		ok, err := confirm(cmd, fmt.Sprintf("Table '%s' already exists in destination. Do you want to overwrite it? ", table))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), cancelled)
			return nil
		}
		opts.Overwrite = true
	}

	run, verb := transfer.Copy, "copied"
	if move {
		run, verb = transfer.Move, "moved"
	}
	res, err := run(ctx, src, dst, table, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Table '%s' %s successfully to destination database (%d rows).\n", table, verb, res.Rows)
	return nil
}

func renameTable(cmd *cobra.Command, name, from, to string) error {
	ctx := cmd.Context()
	db, err := open(cmd, name)
	if err != nil {
		return err
	}
	defer db.Close()

	opts := transfer.Options{Logger: &logger}
	exists, err := db.TableExists(ctx, to)
	if err != nil {
		return err
	}
	if exists {
		ok, err := confirm(cmd, fmt.Sprintf("Table '%s' already exists in the database. Do you want to overwrite it? ", to))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), cancelled)
			return nil
		}
		opts.Overwrite = true
	}
	if err := transfer.Rename(ctx, db, from, to, opts); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Table '%s' renamed to '%s' successfully.\n", from, to)
	return nil
}

// destructive builds rm and truncate, which share their flow.
func destructive(use, short, verb string, action func(*cobra.Command, *connection.Connection, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <config> <table>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			table := args[1]
			db, err := open(cmd, args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			exists, err := db.TableExists(cmd.Context(), table)
			if err != nil {
				return err
			}
			if !exists {
				return &adapter.NotFoundError{Table: table}
			}
			ok, err := confirm(cmd, fmt.Sprintf("Are you sure you want to %s table '%s'? ", use, table))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), cancelled)
				return nil
			}
			if err := action(cmd, db, table); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Table '%s' %s successfully.\n", table, verb)
			return nil
		},
	}
}

var rmCmd = destructive("rm", "Remove a table from a database", "removed",
	func(cmd *cobra.Command, db *connection.Connection, table string) error {
		return db.DropTable(cmd.Context(), table)
	})

var truncateCmd = destructive("truncate", "Remove every row of a table", "truncated",
	func(cmd *cobra.Command, db *connection.Connection, table string) error {
		return db.TruncateTable(cmd.Context(), table)
	})

var rmAllCmd = &cobra.Command{
	Use:     "rmall <config>",
	Aliases: []string{"rm-all"},
	Short:   "Remove all tables from a database",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := open(cmd, args[0])
		if err != nil {
			return err
		}
		defer db.Close()

		ok, err := confirm(cmd, fmt.Sprintf("Are you sure you want to remove all tables from '%s'? ", db.Name()))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), cancelled)
			return nil
		}
		if err := db.DropAll(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "All tables removed successfully.")
		return nil
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump <config> [table]",
	Short: "Dump a database or a table with mysqldump or pg_dump",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := open(cmd, args[0])
		if err != nil {
			return err
		}
		defer db.Close()

		opts := adapter.DumpOptions{SchemaOnly: dumpSchemaOnly, Compact: dumpCompact}
		if len(args) > 1 {
			opts.Table = args[1]
		}
		command, err := db.DumpCommand(cmd.Context(), opts)
		if err != nil {
			return err
		}

		if dumpOutput != "" {
			if _, err := os.Stat(dumpOutput); err == nil {
				ok, err := confirm(cmd, fmt.Sprintf("File '%s' already exists. Do you want to overwrite it? ", dumpOutput))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), cancelled)
					return nil
				}
			}
			command += " > " + shellescape.Quote(dumpOutput)
		}
		if err := runShell(cmd.Context(), command, cmd.OutOrStdout(), cmd.ErrOrStderr()); err != nil {
			return err
		}
		if dumpOutput != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Database dumped successfully to '%s'.\n", dumpOutput)
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run <config> <script.sql>",
	Short: "Run an SQL script with mysql or psql",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		script := args[1]
		if info, err := os.Stat(script); err != nil || info.IsDir() {
			return &adapter.ValidationError{Field: "script", Value: script, Reason: fmt.Sprintf("Script file '%s' does not exist.", script)}
		}
		db, err := open(cmd, args[0])
		if err != nil {
			return err
		}
		defer db.Close()

		command, err := db.RunCommand(cmd.Context(), script)
		if err != nil {
			return err
		}
		return runShell(cmd.Context(), command, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed <config>",
	Short: "Create and fill the users, posts and products fixture tables",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := open(cmd, args[0])
		if err != nil {
			return err
		}
		defer db.Close()

		opts := seedOpts
		opts.Logger = &logger
		opts.BatchSize = db.Config().BatchSize
		stats, err := populator.Seed(cmd.Context(), db, opts)
		if errors.Is(err, adapter.ErrTableExists) && !opts.Replace {
			ok, cerr := confirm(cmd, "Fixture tables already exist. Do you want to replace them? ")
			if cerr != nil {
				return cerr
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), cancelled)
				return nil
			}
			opts.Replace = true
			stats, err = populator.Seed(cmd.Context(), db, opts)
		}
		if err != nil {
			return err
		}
		parts := make([]string, len(stats))
		for i, s := range stats {
			parts[i] = fmt.Sprintf("%s=%d", s.Table, s.Rows)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Fixture tables seeded: %s\n", strings.Join(parts, ", "))
		return nil
	},
}

func setupCommands() {
	llCmd.Flags().StringVarP(&listOrder, "column-order", "o", string(schema.Native), "Column order: custom or native")
	llCmd.Flags().BoolVarP(&listKeys, "keys", "k", false, "Include the keys of the table")

	dumpCmd.Flags().BoolVarP(&dumpSchemaOnly, "schema-only", "s", false, "Dump only the schema")
	dumpCmd.Flags().BoolVarP(&dumpCompact, "compact", "c", false, "Use --compact (mysqldump only)")
	dumpCmd.Flags().StringVarP(&dumpOutput, "output", "o", "", "Write the dump to this file")

	seedCmd.Flags().IntVar(&seedOpts.Users, "users", 10, "Number of users")
	seedCmd.Flags().IntVar(&seedOpts.PostsPerUser, "posts-per-user", 3, "Number of posts per user")
	seedCmd.Flags().IntVar(&seedOpts.Products, "products", 20, "Number of products")
	seedCmd.Flags().Int64Var(&seedOpts.Seed, "seed", 0, "Random seed (0 picks one)")
	seedCmd.Flags().BoolVar(&seedOpts.Replace, "replace", false, "Drop fixture tables that already exist")

	rootCmd.AddCommand(lsCmd, llCmd, infoCmd, diffCmd, catCmd, cpCmd, mvCmd, rmCmd, truncateCmd, rmAllCmd, dumpCmd, runCmd, seedCmd)
}
