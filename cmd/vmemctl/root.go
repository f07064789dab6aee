// Command vmemctl bootstraps a kmem.System and reports on it: its arena
// chain, its slab caches, and the behavior of a synthetic workload run
// through bench.Workload. Grounded on the cobra command layout of
// _examples/joshuapare-hivekit/cmd/hivectl (root.go's persistent flags
// and print helpers, one file per subcommand).
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shenjiangwei/vmemslab/internal/klog"
)

var (
	jsonOut bool
	verbose bool

	totalSize   uint64
	quantum     uint64
	minClass    uint64
	maxClass    uint64
	importScale uint8
)

var rootCmd = &cobra.Command{
	Use:     "vmemctl",
	Short:   "Bootstrap and inspect a boundary-tag arena and slab allocator",
	Version: "0.1.0",
	Long: `vmemctl bootstraps a kmem.System (a base arena over real pages, a
kpages arena sourced from it, a kmalloc arena sourced from that, and a
set of size-classed slab caches) and reports on its state, the way a
kernel's /proc/slabinfo reports on its own allocator.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output in JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.PersistentFlags().Uint64Var(&totalSize, "total-size", 64<<20, "bytes of backing memory to mmap")
	rootCmd.PersistentFlags().Uint64Var(&quantum, "quantum", 8, "arena allocation quantum")
	rootCmd.PersistentFlags().Uint64Var(&minClass, "min-class", 16, "smallest bootstrapped slab size class")
	rootCmd.PersistentFlags().Uint64Var(&maxClass, "max-class", 4096, "largest bootstrapped slab size class")
	rootCmd.PersistentFlags().Uint8Var(&importScale, "import-scale", 3, "arena over-import shift")

	cobra.OnInitialize(func() {
		if verbose {
			klog.SetLevel(klog.LevelDebug)
		}
	})
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printInfo prints a message to stdout unless JSON output was requested,
// the way hivectl's printInfo stays quiet in --quiet mode.
func printInfo(format string, args ...interface{}) {
	if !jsonOut {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

func main() {
	execute()
}
