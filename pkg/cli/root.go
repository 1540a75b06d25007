// Package cli implements the ingest command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"duck-ingest/internal/app"
	"duck-ingest/internal/config"
)

var (
	version = "dev"
	commit  = "none"
)

// exitError carries a process exit code other than 1.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// Execute runs the CLI and returns the process exit code: 0 on success,
// 2 when a source-system run finished with failed mappings, 1 otherwise.
func Execute(ctx context.Context) int {
	rootCmd := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	return reportError(rootCmd, err, os.Stdout, os.Stderr)
}

func reportError(rootCmd *cobra.Command, err error, stdout, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	if getOutputFormat(rootCmd) == "json" {
		_ = printJSON(stdout, map[string]any{"error": err.Error()})
	} else {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	return 1
}

// rootState is the configuration resolved before every subcommand runs.
type rootState struct {
	cfg    *config.Config
	logger *slog.Logger
}

// openApp wires the application from the resolved configuration.
func (s *rootState) openApp() (*app.App, error) {
	return app.New(s.cfg, s.logger)
}

// rootFlags holds the values of the persistent flags.
type rootFlags struct {
	dbPath        string
	targetDriver  string
	targetDSN     string
	envFile       string
	output        string
	dryRun        bool
	noColor       bool
	batchSize     int
	parallel      int
	maxViolations int
}

// applyOverrides copies every flag the user set onto cfg. Flags take
// precedence over the environment.
func (f *rootFlags) applyOverrides(flags *pflag.FlagSet, cfg *config.Config) error {
	var err error
	flags.Visit(func(flag *pflag.Flag) {
		switch flag.Name {
		case "db":
			cfg.MetaDBPath = f.dbPath
		case "target-driver":
			cfg.TargetDriver = f.targetDriver
		case "target-dsn":
			cfg.TargetDSN = f.targetDSN
		case "batch-size":
			if f.batchSize <= 0 {
				err = errors.Join(err, fmt.Errorf("--batch-size must be positive"))
				return
			}
			cfg.BatchSize = f.batchSize
		case "parallel":
			if f.parallel <= 0 {
				err = errors.Join(err, fmt.Errorf("--parallel must be positive"))
				return
			}
			cfg.Parallelism = f.parallel
		case "max-violations":
			cfg.MaxViolations = f.maxViolations
		case "dry-run":
			cfg.DryRun = f.dryRun
		}
	})
	return err
}

func newRootCmd() *cobra.Command {
	var (
		state rootState
		flags rootFlags
	)

	rootCmd := &cobra.Command{
		Use:           "ingest",
		Short:         "Metadata-driven ingestion engine",
		Long:          "Runs table mappings declared in the metadata catalog from source systems into the target warehouse.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutputFormat(flags.output); err != nil {
				return err
			}
			if err := config.LoadDotEnv(flags.envFile); err != nil {
				return err
			}
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := flags.applyOverrides(cmd.Flags(), cfg); err != nil {
				return err
			}

			state.cfg = cfg
			state.logger = cfg.NewLogger()
			for _, w := range cfg.Warnings {
				state.logger.Warn(w)
			}
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.dbPath, "db", "", "Metadata catalog path (default $META_DB_PATH or ingest_meta.sqlite)")
	pf.StringVar(&flags.targetDriver, "target-driver", "", "Target database driver (sqlite3, duckdb, postgres, mysql)")
	pf.StringVar(&flags.targetDSN, "target-dsn", "", "Target database DSN")
	pf.StringVar(&flags.envFile, "env-file", ".env", "Environment file to load before reading configuration")
	pf.StringVarP(&flags.output, "output", "o", "table", "Output format (table, json)")
	pf.BoolVar(&flags.dryRun, "dry-run", false, "Extract, transform and validate without loading")
	pf.BoolVar(&flags.noColor, "no-color", false, "Disable colored output")
	pf.IntVar(&flags.batchSize, "batch-size", 0, "Rows per extraction batch (default $BATCH_SIZE or 5000)")
	pf.IntVar(&flags.parallel, "parallel", 0, "Mappings run concurrently within a dependency level (default $PARALLELISM or 1)")
	pf.IntVar(&flags.maxViolations, "max-violations", 0, "Violations logged per execution, negative disables logging (default $MAX_VIOLATIONS or 1000)")

	rootCmd.AddCommand(
		newRunCmd(&state),
		newListCmd(&state),
		newOrderCmd(&state),
		newImportCmd(&state),
		newHistoryCmd(&state),
		newViolationsCmd(&state),
		newMigrateCmd(&state),
		newVersionCmd(),
	)
	return rootCmd
}
