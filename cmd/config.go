package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tabiq-dev/tabiq/internal/config"
	"github.com/tabiq-dev/tabiq/internal/format"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialize the configuration",
	Long: `Config prints the active configuration, merged from the config file,
TABIQ_* environment variables, and command line flags. The init
subcommand writes the merged configuration to the config file so it can
be edited.

Examples:
  tabiq config
  tabiq config --format json
  tabiq config init`,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the active configuration to the config file",
	RunE:  runConfigInit,
}

func init() {
	configCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()

	if flagFormat == format.StyleJSON {
		return writeJSON(w, appCfg)
	}

	fmt.Fprintf(w, "Completion:\n")
	fmt.Fprintf(w, "  Provider: %s\n", appCfg.LLM.Provider)

	if appCfg.LLM.Model != "" {
		fmt.Fprintf(w, "  Model:    %s\n", appCfg.LLM.Model)
	}

	fmt.Fprintf(w, "Execution:\n")
	fmt.Fprintf(w, "  Timeout:     %s\n", appCfg.Exec.Timeout)
	fmt.Fprintf(w, "  Step budget: %d\n", appCfg.Exec.MaxSteps)
	fmt.Fprintf(w, "  Row limits:  %d interactive, %d job\n", appCfg.Exec.RowLimit, appCfg.Exec.JobRowLimit)
	fmt.Fprintf(w, "Cache:\n")
	fmt.Fprintf(w, "  Budget: %d MB per table, %d MB total\n", appCfg.Cache.MaxEntryMB, appCfg.Cache.MaxTotalMB)
	fmt.Fprintf(w, "History:\n")
	fmt.Fprintf(w, "  Enabled: %t\n", appCfg.History.Enabled)
	fmt.Fprintf(w, "  Path:    %s\n", appCfg.History.Path)
	fmt.Fprintf(w, "Jobs:\n")
	fmt.Fprintf(w, "  Workers: %d, queue %d\n", appCfg.Jobs.Workers, appCfg.Jobs.QueueSize)
	fmt.Fprintf(w, "Logging:\n")
	fmt.Fprintf(w, "  Level: %s, format %s\n", appCfg.Logging.Level, appCfg.Logging.Format)

	return nil
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	if err := appCfg.EnsureDirectories(); err != nil {
		return err
	}

	if err := config.SaveConfig(appCfg); err != nil {
		return err
	}

	path := os.Getenv("TABIQ_CONFIG")
	if path == "" {
		path = filepath.Join(config.GetConfigDir(), "config.json")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)

	return nil
}
