package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mudrockdev/mudrockdbtool/adapter"
	"github.com/mudrockdev/mudrockdbtool/config"
	"github.com/mudrockdev/mudrockdbtool/connection"
)

var (
	configDir string
	verbose   bool
	assumeYes bool
	version   = "dev"

	logger = zerolog.Nop()
)

// openConnection is replaced in tests.
var openConnection = func(ctx context.Context, dir, name string) (*connection.Connection, error) {
	cfg, err := config.Load(dir, name)
	if err != nil {
		return nil, err
	}
	return connection.Open(ctx, cfg, connection.WithLogger(logger), connection.WithProgress(progressReporter(os.Stderr)))
}

// configExists is replaced in tests.
var configExists = config.Exists

var rootCmd = &cobra.Command{
	Use:           "mudrockdbtool",
	Short:         "Inspect, compare, copy and move tables between MySQL and PostgreSQL databases",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = newLogger(cmd.ErrOrStderr(), verbose)
	},
}

func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
		Level(level).
		With().Timestamp().Logger()
}

// open resolves a configuration name to a live connection.
func open(cmd *cobra.Command, name string) (*connection.Connection, error) {
	return openConnection(cmd.Context(), config.Dir(configDir), name)
}

func isConfig(name string) bool {
	return configExists(config.Dir(configDir), name)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		printError(rootCmd.ErrOrStderr(), err)
		os.Exit(1)
	}
}

func printError(w io.Writer, err error) {
	var incompatible *adapter.IncompatibleSchemaError
	if errors.As(err, &incompatible) {
		fmt.Fprintln(w, incompatible.Error())
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

func loadEnv() {
	// .env next to the binary first, then the working directory
	if exe, err := os.Executable(); err == nil {
		_ = godotenv.Load(filepath.Join(filepath.Dir(exe), ".env"))
	}
	_ = godotenv.Load()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Directory holding <name>.yaml configurations (default $"+config.DirEnv+" or ./config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log statements and batches to stderr")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Answer yes to every confirmation prompt")

	setupCommands()
}

func main() {
	loadEnv()
	Execute()
}
