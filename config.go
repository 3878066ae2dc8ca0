package zeealloc

// FreeStrategy selects what Deallocate does with a returned Frame.
type FreeStrategy int

const (
	// Compact walks the buddy chain on every free, coalescing adjacent
	// free frames of equal size back into larger frames. Default.
	Compact FreeStrategy = iota
	// Fast prepends the freed frame to its bucket's free list and stops;
	// no coalescing is attempted.
	Fast
)

// JumboMatchStrategy selects how Allocate picks among free jumbo frames
// (bucket 0, size > PageSize) when more than one could satisfy a request.
type JumboMatchStrategy int

const (
	// First takes the first free jumbo frame whose size is >= the
	// target, in free-list order. Default.
	First JumboMatchStrategy = iota
	// Exact takes only a jumbo frame whose size equals the target
	// exactly; a miss falls through to the backing provider.
	Exact
	// Closest scans the whole jumbo free list and takes the
	// smallest frame that still fits, preferring an exact match the
	// instant one is seen.
	Closest
)

// Validation selects the scope of runtime metadata checks performed when
// recovering a Frame from a caller-supplied pointer.
type Validation int

const (
	// External checks frame metadata only at the Deallocate/Resize
	// boundary. A double free panics; a pointer whose header does not
	// recover a valid Frame makes Deallocate or Resize return an
	// *UnalignedMemoryError rather than panic. Default: cheap enough to
	// always run, and it is the only line of defense against a foreign
	// or corrupted pointer reaching the core.
	External Validation = iota
	// Dev additionally asserts internal invariants not reachable from
	// external input alone: split-down bounds, a legal frame_size on
	// every Frame reached through a buddy address or a free-list link,
	// and that a frame is never its own buddy. Each of these checks is
	// constant-time. Free-list membership is not checked for duplicates.
	Dev
	// Unsafe skips all metadata validation. A corrupted or foreign
	// pointer is undefined behavior.
	Unsafe
)

// Config parameterizes an Allocator at construction. The zero value
// resolves to a 64 KiB page size, the Compact free strategy, the First
// jumbo match strategy and External validation.
type Config struct {
	// PageSize is the size of one bucket-1 frame and the alignment
	// granted by the backing provider. Must be a power of two and at
	// least MinFrameSize for the target's word size. Zero resolves to
	// 64 KiB.
	PageSize uintptr

	FreeStrategy       FreeStrategy
	JumboMatchStrategy JumboMatchStrategy
	Validation         Validation
}

const defaultPageSize uintptr = 64 << 10

func (c Config) withDefaults() Config {
	if c.PageSize == 0 {
		c.PageSize = defaultPageSize
	}
	return c
}
