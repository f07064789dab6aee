package main

import (
	"fmt"

	"github.com/shenjiangwei/vmemslab/kmem"
)

// bootstrapFromFlags builds a System from the persistent flags every
// subcommand shares, the CLI's only entry point into the allocator.
func bootstrapFromFlags() (*kmem.System, error) {
	sys, err := kmem.Bootstrap(
		kmem.WithTotalSize(totalSize),
		kmem.WithQuantum(quantum),
		kmem.WithSizeClasses(minClass, maxClass),
		kmem.WithImportScale(importScale),
	)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping system: %w", err)
	}
	return sys, nil
}
