// Package zeealloc implements a small general-purpose heap allocator for
// single-threaded, embedded-style environments: it turns a coarse,
// page-granularity, grow-only backing Provider into a malloc/realloc/free
// surface for arbitrary small and medium allocations.
//
// The allocator keeps frame metadata in-band (a two-word header
// immediately before every payload) so that Deallocate and Resize can
// recover a frame's size from the payload pointer alone, with no side
// table. Free frames are kept on one intrusive free list per size class;
// allocation splits a free frame down to the requested size class, and
// deallocation optionally walks the buddy chain to coalesce adjacent
// free frames back together.
//
// zeealloc is not safe for concurrent use. A caller that needs
// concurrency wraps an Allocator in an external mutex.
package zeealloc
