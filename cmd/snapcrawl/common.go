package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/snapcrawl/internal/config"
	"github.com/nao1215/snapcrawl/internal/log"
	"github.com/nao1215/snapcrawl/internal/report"
	"github.com/nao1215/snapcrawl/internal/store"
)

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// setupLogger creates the redacting structured logger for a command.
func setupLogger(cmd *cobra.Command, verbose bool) *slog.Logger {
	logger := log.NewSecureLogger(cmd.ErrOrStderr(), verbose)
	slog.SetDefault(logger)
	return logger
}

// baseConfig returns the defaults overridden by .env and SNAPCRAWL_*
// variables, then by the global --archive and --index-format flags.
func baseConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	env, err := config.LoadEnv(config.DefaultEnvFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(env); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("archive") {
		if cfg.ArchiveDir, err = flags.GetString("archive"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("index-format") {
		if cfg.IndexFormat, err = flags.GetString("index-format"); err != nil {
			return nil, err
		}
	}
	cfg.Verbose = getVerboseFlag(cmd)
	return cfg, nil
}

// archiveConfig is baseConfig for commands that only read an archive.
func archiveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := baseConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.ArchiveDir == "" {
		return nil, fmt.Errorf("configuration error: %w", config.ErrNoArchiveDir)
	}
	if err := config.ValidateIndexFormat(cfg.IndexFormat); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// openArchive opens the snapshot store of cfg.
func openArchive(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store.Store, error) {
	if err := os.MkdirAll(cfg.ArchiveDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	st, err := store.Open(ctx, cfg.ArchiveDir, cfg.IndexFormat, store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", cfg.ArchiveDir, err)
	}
	return st, nil
}

// errArchiveNotFound is returned by commands that read an archive when no
// index exists at the archive directory.
var errArchiveNotFound = errors.New("archive not found")

// openExistingArchive opens the snapshot store of cfg without creating
// anything. It fails when the directory has no index for cfg.IndexFormat.
func openExistingArchive(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*store.Store, error) {
	name := store.IndexFileName
	if cfg.IndexFormat == store.FormatSQLite {
		name = store.SQLiteFileName
	}
	if _, err := os.Stat(filepath.Join(cfg.ArchiveDir, name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: no %s index in %s", errArchiveNotFound, cfg.IndexFormat, cfg.ArchiveDir)
		}
		return nil, fmt.Errorf("failed to open archive %s: %w", cfg.ArchiveDir, err)
	}
	return openArchive(ctx, cfg, logger)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// addReportFlags registers the report format flags shared by crawl and report.
func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
}

// readReportFlags copies the report format flags into cfg.
func readReportFlags(cmd *cobra.Command, cfg *config.Config) error {
	var err error
	if cfg.JSONReport, err = cmd.Flags().GetBool("json"); err != nil {
		return err
	}
	if cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown"); err != nil {
		return err
	}
	if cfg.ReportFile, err = cmd.Flags().GetString("output"); err != nil {
		return err
	}
	if cfg.JSONReport && cfg.MarkdownReport {
		return fmt.Errorf("configuration error: %w", config.ErrConflictingReportFormats)
	}
	return nil
}

// outputReport writes summary in the format selected by cfg, to
// cfg.ReportFile or to stdout.
func outputReport(cmd *cobra.Command, cfg *config.Config, summary *report.Summary) error {
	var output io.Writer = cmd.OutOrStdout()
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports list crawled URLs, which can be private.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	var w report.Writer
	switch {
	case cfg.JSONReport:
		w = report.NewJSONWriter(output, report.WithPrettyPrint())
	case cfg.MarkdownReport:
		w = report.NewMarkdownWriter(output)
	default:
		w = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
	_, err := w.Write(summary)
	return err
}
