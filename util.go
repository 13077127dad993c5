package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mudrockdev/mudrockdbtool/adapter"
)

const cancelled = "Operation cancelled."

// stdinIsTerminal is replaced in tests.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// confirm asks a y/N question. Without --yes it only prompts on a terminal
// and treats anything else as "no".
func confirm(cmd *cobra.Command, question string) (bool, error) {
	if assumeYes {
		return true, nil
	}
	if !stdinIsTerminal() {
		fmt.Fprintln(cmd.ErrOrStderr(), question+"(use --yes to confirm non-interactively)")
		return false, nil
	}
	fmt.Fprint(cmd.OutOrStdout(), question+"(y/N) ")
	reader := bufio.NewReader(cmd.InOrStdin())
	response, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read confirmation: %v", err)
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes", nil
}

// printJSON writes v indented, leaving <, > and & unescaped.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	return enc.Encode(v)
}

func formatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

// progressReporter prints a single updating line per table.
func progressReporter(w io.Writer) adapter.ProgressFunc {
	return func(table string, done, total int64) {
		percent := 100
		if total > 0 {
			percent = int(done * 100 / total)
		}
		fmt.Fprintf(w, "\r%s: %s/%s rows (%d%%)", table, humanize.Comma(done), humanize.Comma(total), percent)
		if done >= total {
			fmt.Fprintln(w)
		}
	}
}

// runShell executes command through sh -c, wiring its output to out.
func runShell(ctx context.Context, command string, out, errOut io.Writer) error {
	logger.Debug().Str("command", command).Msg("executing")
	c := exec.CommandContext(ctx, "sh", "-c", command)
	c.Stdout = out
	c.Stderr = errOut
	if err := c.Run(); err != nil {
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
}

func isIdentifier(s string) bool {
	return adapter.ValidateIdentifier("table", s) == nil
}
