package main

import (
	"github.com/spf13/cobra"

	"github.com/shenjiangwei/vmemslab/bench"
)

var (
	benchOps      int
	benchMinSize  uint64
	benchMaxSize  uint64
	benchKeepLive int
	benchSeed     int64
)

func init() {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Drive a synthetic allocation workload and report hit/miss stats",
		Long: `bench bootstraps a system and runs a reproducible mix of slab-sized
and oversized allocations, plus a slice of aligned Xalloc requests,
through bench.Workload, the way the original's standalone load test
drove its allocator before reporting a summary.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := bootstrapFromFlags()
			if err != nil {
				return err
			}
			defer sys.Close()

			w := bench.New(sys, benchSeed)
			if err := w.Run(benchOps, benchMinSize, benchMaxSize, benchKeepLive); err != nil {
				return err
			}
			w.Drain()

			if jsonOut {
				return printJSON(w.Stats())
			}
			printInfo("%s\n", w.Report())
			return nil
		},
	}
	cmd.Flags().IntVar(&benchOps, "ops", 2000, "number of allocate/free cycles to drive")
	cmd.Flags().Uint64Var(&benchMinSize, "min-size", 16, "smallest request size")
	cmd.Flags().Uint64Var(&benchMaxSize, "max-size", 8192, "largest request size")
	cmd.Flags().IntVar(&benchKeepLive, "keep-live", 256, "max outstanding allocations before freeing one at random")
	cmd.Flags().Int64Var(&benchSeed, "seed", 1, "random seed for the request sequence")
	rootCmd.AddCommand(cmd)
}
