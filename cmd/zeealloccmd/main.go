// Command zeealloccmd exercises a zeealloc.Allocator against a fixed,
// seeded synthetic workload and prints its final Stats. It stands in for
// the benchmark harness the teacher package instead runs through `go
// test -bench` (§1: "out of scope: benchmark harness"); this module
// keeps that distinction but still wants one runnable entry point.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/cznic/mathutil"
	"github.com/zeealloc-go/zeealloc"
)

func main() {
	quota := flag.Int("quota", 4<<20, "total bytes to push through the allocator before unwinding")
	maxAlloc := flag.Int("max", 4096, "largest single allocation size")
	seed := flag.Int64("seed", 42, "PRNG seed")
	flag.Parse()

	if err := run(*quota, *maxAlloc, *seed); err != nil {
		fmt.Fprintln(os.Stderr, "zeealloccmd:", err)
		os.Exit(1)
	}
}

func run(quota, maxAlloc int, seed int64) error {
	backing := &zeealloc.MmapProvider{}
	defer backing.Close()

	alloc := zeealloc.New(backing, zeealloc.Config{})

	rng, err := mathutil.NewFC32(1, math.MaxInt32, true)
	if err != nil {
		return err
	}
	rng.Seed(seed)

	var live [][]byte
	remaining := quota
	for remaining > 0 {
		size := uintptr(rng.Next()%maxAlloc + 1)
		b, err := alloc.Allocate(size, 1)
		if err != nil {
			return fmt.Errorf("allocate %d: %w", size, err)
		}
		live = append(live, b)
		remaining -= int(size)

		if len(live) > 1 && rng.Next()%3 == 0 {
			i := rng.Next() % len(live)
			if err := alloc.Deallocate(live[i]); err != nil {
				return fmt.Errorf("deallocate: %w", err)
			}
			live[i] = live[len(live)-1]
			live = live[:len(live)-1]
		}
	}

	for _, b := range live {
		if err := alloc.Deallocate(b); err != nil {
			return fmt.Errorf("deallocate: %w", err)
		}
	}

	s := alloc.Stats()
	fmt.Printf("allocations=%d backing_calls=%d backing_bytes=%#x live_bytes=%#x\n",
		s.Allocations, s.BackingCalls, s.BackingBytes, s.LiveBytes)
	return nil
}
