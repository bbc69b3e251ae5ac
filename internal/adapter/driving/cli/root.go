// Package cli is the command-line driving adapter: it parses arguments,
// builds the configuration and wires adapters into the critique service.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/critchecker/internal/adapter/driven/csvreport"
	"github.com/ericfisherdev/critchecker/internal/adapter/driven/deviantart"
	"github.com/ericfisherdev/critchecker/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/critchecker/internal/adapter/driven/terminal"
	"github.com/ericfisherdev/critchecker/internal/application"
	"github.com/ericfisherdev/critchecker/internal/config"
	"github.com/ericfisherdev/critchecker/internal/domain/model"
	"github.com/ericfisherdev/critchecker/internal/domain/port/driven"
)

// Deps holds the process-level collaborators of the command tree.
type Deps struct {
	Stdout io.Writer
	Stderr io.Writer
	// NewClient builds the comment client for a configuration. Nil selects
	// the DeviantArt client.
	NewClient func(cfg *config.Config) driven.CommentClient
}

func (d Deps) withDefaults() Deps {
	if d.Stdout == nil {
		d.Stdout = os.Stdout
	}
	if d.Stderr == nil {
		d.Stderr = os.Stderr
	}
	if d.NewClient == nil {
		d.NewClient = func(cfg *config.Config) driven.CommentClient {
			return deviantart.NewClient(deviantart.Options{
				BaseURL: cfg.BaseURL,
				Timeout: cfg.Timeout,
				Retries: cfg.Retries,
			})
		}
	}
	return d
}

// flags holds raw flag values; they only override the configuration when
// explicitly set on the command line.
type flags struct {
	configPath       string
	logLevel         string
	dbPath           string
	reportPath       string
	scanText         bool
	includeBody      bool
	includeTimestamp bool
	concurrency      int
	maxDepth         int
	convenors        []string
}

// NewRootCommand builds the critchecker command tree.
func NewRootCommand(deps Deps) *cobra.Command {
	deps = deps.withDefaults()
	var f flags

	root := &cobra.Command{
		Use:   "critchecker <journal-url> <start-date>",
		Short: "Collect Critmas critiques from a DeviantArt launch post",
		Long: `critchecker walks every critique batch posted on a Critmas launch journal,
collects the critiques left in reply to each batch and writes them to a CSV
report. The start date (YYYY-MM-DD, server time UTC-8) excludes batches and
linked critiques posted before it.`,
		Example:       "  critchecker https://www.deviantart.com/critmas/journal/Critmas-2023-Launch-1000000 2023-12-26 -r crits.csv",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd, deps, &f, args[0], args[1])
		},
	}
	root.SetOut(deps.Stdout)
	root.SetErr(deps.Stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "configuration file (default ~/.config/critchecker/config.toml)")
	pf.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&f.dbPath, "db", "", "SQLite database to export the report to")

	lf := root.Flags()
	lf.StringVarP(&f.reportPath, "report", "r", "", "CSV report path (default ~/critmas.csv)")
	lf.BoolVarP(&f.scanText, "scan-text", "s", false, "also collect comment URLs written as plain text in batches")
	lf.BoolVar(&f.includeBody, "include-body", false, "add the critique text as a crit_body column")
	lf.BoolVar(&f.includeTimestamp, "include-timestamp", false, "add the critique time as a crit_posted_at column")
	lf.IntVar(&f.concurrency, "concurrency", config.DefaultConcurrency, "maximum concurrent requests")
	lf.IntVar(&f.maxDepth, "max-depth", config.DefaultMaxDepth, "maximum reply depth to walk below a batch")
	lf.StringArrayVar(&f.convenors, "convenor", nil, "organizer handle whose replies are not critiques (repeatable)")

	root.AddCommand(newShowCommand(deps, &f))

	return root
}

// loadConfig resolves the configuration and installs the logger.
func loadConfig(cmd *cobra.Command, deps Deps, f *flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("log-level") {
		level, err := config.ParseLevel(f.logLevel)
		if err != nil {
			return nil, err
		}
		cfg.LogLevel = level
	}
	if changed("db") {
		cfg.DBPath = f.dbPath
	}
	if changed("report") {
		cfg.ReportPath = f.reportPath
	}
	if changed("scan-text") {
		cfg.ScanText = f.scanText
	}
	if changed("include-body") {
		cfg.IncludeBody = f.includeBody
	}
	if changed("include-timestamp") {
		cfg.IncludeTimestamp = f.includeTimestamp
	}
	if changed("concurrency") {
		cfg.Concurrency = f.concurrency
	}
	if changed("max-depth") {
		cfg.MaxDepth = f.maxDepth
	}
	if changed("convenor") {
		cfg.Convenors = append(cfg.Convenors, f.convenors...)
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(deps.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	return cfg, nil
}

func runCollect(cmd *cobra.Command, deps Deps, f *flags, launchURL, startDate string) error {
	start, err := model.ParseStartDate(startDate)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd, deps, f)
	if err != nil {
		return err
	}
	slog.Debug("config loaded",
		"report", cfg.ReportPath,
		"db", cfg.DBPath,
		"concurrency", cfg.Concurrency,
		"max_depth", cfg.MaxDepth,
		"base_url", cfg.BaseURL,
	)

	ctx := cmd.Context()

	var writerOpts []csvreport.Option
	if cfg.IncludeTimestamp {
		writerOpts = append(writerOpts, csvreport.WithTimestamp())
	}
	if cfg.IncludeBody {
		writerOpts = append(writerOpts, csvreport.WithBody())
	}
	writer := csvreport.NewWriter(cfg.ReportPath, writerOpts...)

	var store driven.ReportStore
	if cfg.DBPath != "" {
		db, err := sqlite.Open(ctx, cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		store = sqlite.NewCritiqueRepo(db)
	}

	svc := application.NewCritiqueService(deps.NewClient(cfg), writer, store, terminal.NewProgress(deps.Stderr))

	summary, err := svc.Run(ctx, launchURL, application.RunOptions{
		StartDate:   start,
		Convenors:   cfg.Convenors,
		ScanText:    cfg.ScanText,
		Concurrency: cfg.Concurrency,
		MaxDepth:    cfg.MaxDepth,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, terminal.RenderSummary(summary))
	fmt.Fprintf(out, "Report written to %s\n", writer.Path())
	if skipped := summary.Skipped(); skipped > 0 {
		fmt.Fprintf(out, "Warning: %d item(s) skipped due to errors; rerun with --log-level debug for details\n", skipped)
	}

	return nil
}
