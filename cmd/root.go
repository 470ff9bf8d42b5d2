package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tabiq-dev/tabiq/internal/config"
	"github.com/tabiq-dev/tabiq/internal/errors"
	"github.com/tabiq-dev/tabiq/internal/format"
	"github.com/tabiq-dev/tabiq/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "tabiq",
	Short: "Ask questions about tabular data in plain English",
	Long: `tabiq answers natural language questions about CSV, TSV, JSON, and
Parquet files. Each question compiles to a small tabular program that
runs in an in-process sandbox under step and wall clock budgets. When a
completion provider is configured the program is synthesized by the
model; otherwise a deterministic fallback covers the common shapes
(filter, aggregate, sort, join, time series).`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

var (
	appCfg *config.Config

	flagFormat      string
	flagLogLevel    string
	flagVerbose     bool
	flagDebug       bool
	flagProvider    string
	flagModel       string
	flagHistoryPath string
	flagNoHistory   bool
)

func Execute() error {
	ctx := context.Background()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagFormat, "format", format.StyleTable, "Output format: table, json, csv, or markdown")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, or error")
	pf.BoolVar(&flagVerbose, "verbose", false, "Verbose logging")
	pf.BoolVar(&flagDebug, "debug", false, "Debug mode")
	pf.StringVar(&flagProvider, "provider", "", "Completion provider for this invocation")
	pf.StringVar(&flagModel, "model", "", "Completion model for this invocation")
	pf.StringVar(&flagHistoryPath, "history-path", "", "Path to the session history database")
	pf.BoolVar(&flagNoHistory, "no-history", false, "Do not record this invocation in session history")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(timeseriesCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(configCmd)
}

// setup merges configuration from the config file, TABIQ_* environment
// variables, and command line flags, then initializes logging. It runs
// before every subcommand.
func setup(_ *cobra.Command, _ []string) error {
	pf := rootCmd.PersistentFlags()

	overrides := map[string]interface{}{}
	if pf.Changed("log-level") {
		overrides["log-level"] = flagLogLevel
	}

	if flagVerbose {
		overrides["verbose"] = true
	}

	if flagDebug {
		overrides["debug"] = true
	}

	if pf.Changed("provider") {
		overrides["provider"] = flagProvider
	}

	if pf.Changed("model") {
		overrides["model"] = flagModel
	}

	if pf.Changed("history-path") {
		overrides["history-path"] = flagHistoryPath
	}

	cfg, err := config.LoadConfigWithOverrides(overrides)
	if err != nil {
		return err
	}

	cfg.ExpandAllPaths()

	if flagNoHistory {
		cfg.History.Enabled = false
	}

	if err := logging.InitializeLogger(cfg.Logging); err != nil {
		return err
	}

	appCfg = cfg

	return normalizeFormat()
}

func normalizeFormat() error {
	switch flagFormat {
	case format.StyleTable, format.StyleJSON, format.StyleCSV, format.StyleMarkdown:
		return nil
	case "md":
		flagFormat = format.StyleMarkdown
		return nil
	}

	return errors.Newf(errors.ErrTypeValidation, "unknown output format: %s", flagFormat).
		WithSuggestion("use table, json, csv, or markdown")
}
