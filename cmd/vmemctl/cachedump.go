package main

import (
	"github.com/spf13/cobra"

	"github.com/shenjiangwei/vmemslab/slab"
)

func init() {
	cmd := &cobra.Command{
		Use:   "cache-dump",
		Short: "Allocate a few objects per size class and dump cache occupancy",
		Long: `cache-dump bootstraps a system, allocates a handful of objects from
every bootstrapped slab size class, and reports each cache's occupancy
and the result of the registry lookup for a representative size — a
smoke test that slab.Lookup and slab.Cache.Alloc agree with each other.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := bootstrapFromFlags()
			if err != nil {
				return err
			}
			defer sys.Close()

			for _, c := range sys.Caches() {
				var held []uint64
				for i := 0; i < 4; i++ {
					addr, err := c.Alloc(0)
					if err != nil {
						return err
					}
					held = append(held, addr)
				}
				printInfo("%-16s objSize=%-6d curAlloc=%d\n", c.Name(), c.ObjSize(), c.NrCurAlloc())
				for _, addr := range held {
					c.Free(addr)
				}
			}

			probe := sys.Caches()[0].ObjSize()
			if found := slab.Lookup(probe); found != nil {
				printInfo("Lookup(%d) -> %s\n", probe, found.Name())
			}
			return nil
		},
	}
	rootCmd.AddCommand(cmd)
}
