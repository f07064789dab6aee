package main

import (
	"github.com/spf13/cobra"

	"github.com/shenjiangwei/vmemslab/arena"
)

var arenaDumpCheck bool

func init() {
	cmd := &cobra.Command{
		Use:   "arena-dump",
		Short: "Dump arena stats and optionally verify structural invariants",
		Long: `arena-dump bootstraps a system, allocates and frees a small amount
of churn through the kmalloc arena to populate the free lists with more
than one segment, then prints each arena's Stats(). With --check, it
also runs CheckInvariants() on every arena in the chain.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := bootstrapFromFlags()
			if err != nil {
				return err
			}
			defer sys.Close()

			if err := churnKmalloc(sys.Kmalloc()); err != nil {
				return err
			}

			for _, a := range []*arena.Arena{sys.Base(), sys.Kpages(), sys.Kmalloc()} {
				printInfo("%s\n", a.Stats().String())
				if arenaDumpCheck {
					if err := a.CheckInvariants(); err != nil {
						return err
					}
					printInfo("  invariants OK\n")
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&arenaDumpCheck, "check", false, "verify structural invariants on every arena")
	rootCmd.AddCommand(cmd)
}

// churnKmalloc allocates and partially frees a handful of differently
// sized requests so arena-dump has more than one free/alloc segment to
// show, instead of reporting an arena that's either pristine or holding
// one giant allocation.
func churnKmalloc(a *arena.Arena) error {
	sizes := []uint64{4096, 8192, 16384, 4096, 8192}
	addrs := make([]uint64, len(sizes))
	for i, size := range sizes {
		addr, err := a.Alloc(size, 0)
		if err != nil {
			return err
		}
		addrs[i] = addr
	}
	for i := 0; i < len(addrs); i += 2 {
		a.Free(addrs[i], sizes[i])
	}
	return nil
}
