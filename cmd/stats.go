package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tabiq-dev/tabiq/internal/dataset"
	"github.com/tabiq-dev/tabiq/internal/format"
	"github.com/tabiq-dev/tabiq/internal/monitor"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache and memory statistics",
	Long: `Stats reports the table cache configuration and counters for this
process plus a snapshot of runtime memory use. The cache lives in
process memory, so counters start at zero in each invocation.

Examples:
  tabiq stats
  tabiq stats --format json`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()

	store := dataset.NewStore(appCfg.Cache)
	defer store.Close()

	cacheStats := store.Cache().GetStats()
	mem := monitor.Read()

	if flagFormat == format.StyleJSON {
		return writeJSON(w, map[string]any{
			"cache":  cacheStats,
			"memory": mem,
		})
	}

	fmt.Fprintf(w, "Cache:\n")
	fmt.Fprintf(w, "  Budget:   %d MB per table, %d MB total\n", appCfg.Cache.MaxEntryMB, appCfg.Cache.MaxTotalMB)
	fmt.Fprintf(w, "  Entries:  %d (%d bytes)\n", cacheStats.Entries, cacheStats.TotalBytes)
	fmt.Fprintf(w, "  Hit rate: %.0f%% (%d hits, %d misses)\n", cacheStats.HitRate*100, cacheStats.Hits, cacheStats.Misses)

	fmt.Fprintf(w, "\nMemory:\n")
	fmt.Fprintf(w, "  Heap:       %.1f MB allocated, %.1f MB from OS\n", mem.AllocMB, mem.SysMB)
	fmt.Fprintf(w, "  Objects:    %d\n", mem.HeapObjects)
	fmt.Fprintf(w, "  GC cycles:  %d\n", mem.NumGC)
	fmt.Fprintf(w, "  Goroutines: %d\n", mem.Goroutines)

	if mem.High() {
		fmt.Fprintf(w, "  Pressure:   %.2f (high)\n", mem.Pressure())
	} else {
		fmt.Fprintf(w, "  Pressure:   %.2f\n", mem.Pressure())
	}

	return nil
}
