package zeealloc

import (
	"math"
	"testing"
	"unsafe"

	"github.com/cznic/mathutil"
)

// testProvider is a Provider usable on any host the Go toolchain itself
// runs on, independent of the mmap_unix/mmap_windows build tags: it asks
// Go's own allocator for bytesRequested+align bytes and returns an
// aligned subslice, the same offset trick HeapProvider uses for wasm
// guests.
type testProvider struct{}

func (testProvider) Allocate(bytesRequested, align uintptr) ([]byte, error) {
	buf := make([]byte, bytesRequested+align)
	base := uintptr(unsafe.Pointer(&buf[0]))
	aligned := (base + align - 1) &^ (align - 1)
	off := aligned - base
	return buf[off : off+bytesRequested : off+bytesRequested], nil
}

func newTestAllocator(cfg Config) *Allocator {
	if cfg.PageSize == 0 {
		cfg.PageSize = testPageSize
	}
	return New(testProvider{}, cfg)
}

func frameOf(t *testing.T, payload []byte, pageSize uintptr) *Frame {
	t.Helper()
	f, err := frameFromPayload(unsafe.Pointer(&payload[0]), pageSize)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

// Scenario 1: allocate one byte.
func TestScenarioAllocateOneByte(t *testing.T) {
	a := newTestAllocator(Config{})

	b, err := a.Allocate(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 1 {
		t.Fatalf("len(b) = %d, want 1", len(b))
	}

	f := frameOf(t, b, testPageSize)
	if f.frameSize != minFrameSize {
		t.Fatalf("frame_size = %#x, want minFrameSize %#x", f.frameSize, minFrameSize)
	}

	for size := minFrameSize * 2; size <= testPageSize; size *= 2 {
		bucket := bucketOf(size, testPageSize)
		if a.freeLists[bucket].empty() {
			t.Errorf("bucket %d (size %#x) should hold exactly one carved remainder", bucket, size)
		}
	}
}

// Scenario 2: small round-trip coalesces all the way back to one page.
func TestScenarioSmallRoundTrip(t *testing.T) {
	a := newTestAllocator(Config{FreeStrategy: Compact})

	b, err := a.Allocate(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Deallocate(b); err != nil {
		t.Fatal(err)
	}

	pageBucket := bucketOf(testPageSize, testPageSize)
	if a.freeLists[pageBucket].empty() {
		t.Fatal("expected one fully coalesced page-sized frame on bucket 1")
	}
	for size := minFrameSize; size < testPageSize; size *= 2 {
		bucket := bucketOf(size, testPageSize)
		if !a.freeLists[bucket].empty() {
			t.Errorf("bucket %d (size %#x) should be empty after full coalescing", bucket, size)
		}
	}
}

// Scenario 3: jumbo frames are kept intact across alloc/free.
func TestScenarioJumbo(t *testing.T) {
	a := newTestAllocator(Config{})

	size := uintptr(127 << 10)
	b, err := a.Allocate(size, 1)
	if err != nil {
		t.Fatal(err)
	}

	f := frameOf(t, b, testPageSize)
	if f.frameSize != 128<<10 {
		t.Fatalf("frame_size = %#x, want %#x", f.frameSize, uintptr(128<<10))
	}
	if bucketOf(f.frameSize, testPageSize) != 0 {
		t.Fatal("a >PageSize frame must land in bucket 0 (jumbo)")
	}

	if err := a.Deallocate(b); err != nil {
		t.Fatal(err)
	}
	if a.freeLists[0].empty() {
		t.Fatal("jumbo frame should return to bucket 0 untouched")
	}
	got := a.frameAt(a.freeLists[0].head)
	if got.frameSize != 128<<10 {
		t.Fatalf("returned jumbo frame_size = %#x, want %#x", got.frameSize, uintptr(128<<10))
	}
}

// Scenario 4: growth sequence up to MIN_PAYLOAD never moves the pointer.
func TestScenarioGrowthSequenceInPlace(t *testing.T) {
	a := newTestAllocator(Config{})

	b, err := a.Allocate(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	addr := uintptr(unsafe.Pointer(&b[0]))

	for i := uintptr(2); i <= minPayload; i++ {
		b, err = a.Resize(b, i, 1)
		if err != nil {
			t.Fatal(err)
		}
		if got := uintptr(unsafe.Pointer(&b[0])); got != addr {
			t.Fatalf("resize to %d moved the pointer: %#x -> %#x", i, addr, got)
		}
	}
}

// Scenario 6: requesting more than two-word alignment is rejected.
func TestScenarioAlignRejection(t *testing.T) {
	a := newTestAllocator(Config{})

	if _, err := a.Allocate(64, testPageSize); err != ErrOutOfMemory {
		t.Fatalf("err = %v, want ErrOutOfMemory", err)
	}
}

// A zero-size Allocate still carves a real Frame (padToFrameSize treats
// it the same as any small request), so Deallocate must recover and
// free it rather than mistaking its zero-length slice for "nothing
// allocated" — the len(payload) == 0 shortcut used to lose it.
func TestZeroSizeAllocateRoundTrips(t *testing.T) {
	a := newTestAllocator(Config{})

	before := a.stats.Allocations
	b, err := a.Allocate(0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 0 {
		t.Fatalf("len(b) = %d, want 0", len(b))
	}
	if a.stats.Allocations != before+1 {
		t.Fatal("zero-size Allocate should still count as an allocation")
	}

	if err := a.Deallocate(b); err != nil {
		t.Fatal(err)
	}
	if a.stats.Allocations != before {
		t.Fatal("Deallocate of a zero-size allocation's slice should free its frame, not no-op")
	}
}

// Resizing down to 0 must free the frame too: a zero-cap check (not
// len) is what lets Resize tell a real zero-size payload apart from "no
// prior allocation at all".
func TestResizeToZeroRoundTrips(t *testing.T) {
	a := newTestAllocator(Config{})

	b, err := a.Allocate(64, 1)
	if err != nil {
		t.Fatal(err)
	}
	shrunk, err := a.Resize(b, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(shrunk) != 0 {
		t.Fatalf("len(shrunk) = %d, want 0", len(shrunk))
	}

	if err := a.Deallocate(shrunk); err != nil {
		t.Fatal(err)
	}
	if a.stats.Allocations != 0 || a.stats.LiveBytes != 0 {
		t.Fatalf("leaked the frame behind a resize-to-zero: %+v", a.stats)
	}
}

// Resize(nil, ...) — no prior allocation at all — must still behave
// like a fresh Allocate, the one case that really is a no-op-then-alloc.
func TestResizeNilActsLikeAllocate(t *testing.T) {
	a := newTestAllocator(Config{})

	b, err := a.Resize(nil, 8, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 8 {
		t.Fatalf("len(b) = %d, want 8", len(b))
	}
	if err := a.Deallocate(b); err != nil {
		t.Fatal(err)
	}
}

// Deallocate(nil) remains a no-op: there was never a Frame to recover.
func TestDeallocateNilIsNoop(t *testing.T) {
	a := newTestAllocator(Config{})
	if err := a.Deallocate(nil); err != nil {
		t.Fatal(err)
	}
}

// Under Dev validation, a buddy frame corrupted by an out-of-bounds
// write is caught by from_address's own assertion during coalescing,
// rather than silently coalescing into a bogus frame.
func TestCoalesceCatchesCorruptBuddyUnderDev(t *testing.T) {
	a := newTestAllocator(Config{Validation: Dev})

	b, err := a.Allocate(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	f, err := frameFromPayload(unsafe.Pointer(&b[0]), testPageSize)
	if err != nil {
		t.Fatal(err)
	}

	buddy := a.frameAt(buddyAddress(f.addr(), f.frameSize))
	buddy.frameSize = 3 // neither a power of two nor a multiple of PageSize

	defer func() {
		if recover() == nil {
			t.Fatal("expected Dev validation to catch the corrupted buddy frame_size")
		}
	}()
	a.Deallocate(b)
}

// Scenario 5: many-to-few — allocate a batch of small blocks, grow one of
// them far past a page, free most of the rest, then shrink the big block
// to nothing. No leaks: Stats returns to its starting point.
func TestScenarioManyToFew(t *testing.T) {
	a := newTestAllocator(Config{})

	const n = 100
	blocks := make([][]byte, n)
	for i := range blocks {
		b, err := a.Allocate(4, 1)
		if err != nil {
			t.Fatal(err)
		}
		blocks[i] = b
	}

	grown, err := a.Resize(blocks[0], 20000, 1)
	if err != nil {
		t.Fatal(err)
	}
	blocks[0] = grown

	for i := 1; i <= 75; i++ {
		if err := a.Deallocate(blocks[i]); err != nil {
			t.Fatal(err)
		}
		blocks[i] = nil
	}

	shrunk, err := a.Resize(blocks[0], 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	blocks[0] = shrunk

	for _, b := range blocks {
		if b == nil {
			continue
		}
		if err := a.Deallocate(b); err != nil {
			t.Fatal(err)
		}
	}

	if a.stats.Allocations != 0 {
		t.Fatalf("Allocations = %d, want 0 (no user-visible leak)", a.stats.Allocations)
	}
	if a.stats.LiveBytes != 0 {
		t.Fatalf("LiveBytes = %#x, want 0", a.stats.LiveBytes)
	}
}

// A seeded randomized workload in the teacher's own test style
// (cznic-memory's test1/test2/test3): allocate a quota's worth of
// variably-sized blocks, fill each with a reproducible byte pattern,
// shuffle, then free everything and verify the allocator's own counters
// return to zero.
func TestRandomizedWorkloadRoundTrip(t *testing.T) {
	const quota = 512 << 10
	const maxSize = 2048

	a := newTestAllocator(Config{})

	rng, err := mathutil.NewFC32(0, math.MaxInt32, true)
	if err != nil {
		t.Fatal(err)
	}
	rng.Seed(42)
	pos := rng.Pos()

	var blocks [][]byte
	remaining := quota
	for remaining > 0 {
		size := rng.Next()%maxSize + 1
		remaining -= size
		b, err := a.Allocate(uintptr(size), 1)
		if err != nil {
			t.Fatal(err)
		}
		for i := range b {
			b[i] = byte(rng.Next())
		}
		blocks = append(blocks, b)
	}

	rng.Seek(pos)
	for i, b := range blocks {
		if want := rng.Next()%maxSize + 1; len(b) != want {
			t.Fatalf("block %d: len = %d, want %d", i, len(b), want)
		}
		for j, got := range b {
			if want := byte(rng.Next()); got != want {
				t.Fatalf("block %d byte %d: corrupted heap", i, j)
			}
		}
	}

	for i := range blocks {
		j := rng.Next() % len(blocks)
		blocks[i], blocks[j] = blocks[j], blocks[i]
	}

	for _, b := range blocks {
		if err := a.Deallocate(b); err != nil {
			t.Fatal(err)
		}
	}

	if a.stats.Allocations != 0 || a.stats.LiveBytes != 0 {
		t.Fatalf("leaked state after freeing everything: %+v", a.stats)
	}
}

func TestDeallocateDoubleFreePanics(t *testing.T) {
	a := newTestAllocator(Config{Validation: External})

	b, err := a.Allocate(8, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Deallocate(b); err != nil {
		t.Fatal(err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic on double free under External validation")
		}
	}()
	a.Deallocate(b)
}

func TestFreeStrategyFastDoesNotCoalesce(t *testing.T) {
	a := newTestAllocator(Config{FreeStrategy: Fast})

	b, err := a.Allocate(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Deallocate(b); err != nil {
		t.Fatal(err)
	}

	bucket := bucketOf(minFrameSize, testPageSize)
	if a.freeLists[bucket].empty() {
		t.Fatal("Fast strategy should leave the freed frame on its own bucket, uncoalesced")
	}
}

func TestJumboMatchStrategies(t *testing.T) {
	for _, strat := range []JumboMatchStrategy{First, Exact, Closest} {
		a := newTestAllocator(Config{JumboMatchStrategy: strat})

		jumboSize := 3 * testPageSize
		big, err := a.Allocate(jumboSize-4*wordSize, 1)
		if err != nil {
			t.Fatal(err)
		}
		if err := a.Deallocate(big); err != nil {
			t.Fatal(err)
		}

		// A second request padding to the very same frame size should
		// reuse the freed jumbo frame rather than calling the backing
		// provider again, under every matching strategy.
		before := a.stats.BackingCalls
		small, err := a.Allocate(jumboSize-4*wordSize, 1)
		if err != nil {
			t.Fatal(err)
		}
		if a.stats.BackingCalls != before {
			t.Errorf("%v: expected the existing jumbo frame to be reused", strat)
		}
		a.Deallocate(small)
	}
}
