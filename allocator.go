package zeealloc

import "unsafe"

// Allocator turns a page-granularity Provider into a malloc/realloc/free
// surface for small and medium allocations. It is not safe for
// concurrent use by multiple goroutines: callers that need concurrency
// wrap an Allocator in an external sync.Mutex, the same division of
// responsibility cznic/memory.Allocator documents for its own zero-sync
// design.
//
// Unlike cznic/memory.Allocator, whose zero value is ready for use, a
// zeealloc.Allocator requires a backing Provider and must be constructed
// with New.
type Allocator struct {
	backing   Provider
	pageSize  uintptr
	freeLists []freeList

	freeStrategy       FreeStrategy
	jumboMatchStrategy JumboMatchStrategy
	validation         Validation

	stats Stats
}

// New constructs an Allocator over backing, a page-granularity Provider.
// A zero Config resolves to the documented defaults (see Config).
func New(backing Provider, cfg Config) *Allocator {
	cfg = cfg.withDefaults()
	return &Allocator{
		backing:            backing,
		pageSize:           cfg.PageSize,
		freeLists:          make([]freeList, bucketCount(cfg.PageSize)),
		freeStrategy:       cfg.FreeStrategy,
		jumboMatchStrategy: cfg.JumboMatchStrategy,
		validation:         cfg.Validation,
	}
}

// Allocate reserves requestedSize bytes aligned to requestedAlign and
// returns the payload slice, or ErrOutOfMemory.
func (a *Allocator) Allocate(requestedSize, requestedAlign uintptr) ([]byte, error) {
	tracef("Allocate(%#x, %#x)\n", requestedSize, requestedAlign)

	if requestedAlign > 2*wordSize {
		return nil, ErrOutOfMemory
	}

	target := padToFrameSize(requestedSize, a.pageSize)
	f, err := a.findOrCreateFrame(target)
	if err != nil {
		return nil, err
	}

	f = a.splitDown(f, target)
	f.markAllocated()

	a.stats.Allocations++
	a.stats.LiveBytes += f.payloadSize()

	b := f.payloadSlice(0, requestedSize)
	tracef("Allocate(%#x, %#x) -> %p\n", requestedSize, requestedAlign, oldPtr(b))
	return b, nil
}

// findOrCreateFrame returns a free Frame of size >= target, pulling it
// from the free lists (walking from target's bucket up to bucket 1) or,
// on a miss, from the backing Provider.
func (a *Allocator) findOrCreateFrame(target uintptr) (*Frame, error) {
	searchSize := target
	for {
		bucket := bucketOf(searchSize, a.pageSize)
		if f := a.takeFromBucket(bucket, searchSize); f != nil {
			return f, nil
		}

		if bucket <= 1 {
			break
		}
		searchSize *= 2
	}

	allocSize := roundup(target, a.pageSize)
	raw, err := a.backing.Allocate(allocSize, a.pageSize)
	if err != nil {
		return nil, err
	}

	a.stats.BackingCalls++
	a.stats.BackingBytes += allocSize
	return initFrame(raw), nil
}

// takeFromBucket returns a free frame from bucket able to satisfy
// minSize, or nil. For buckets 1..B-1 every member has exactly the
// bucket's canonical size, so the head always matches. For bucket 0
// (jumbo) the configured JumboMatchStrategy governs the search.
func (a *Allocator) takeFromBucket(bucket int, minSize uintptr) *Frame {
	list := &a.freeLists[bucket]
	if bucket != 0 {
		return list.removeAfter(nil, a)
	}
	return a.takeJumbo(list, minSize)
}

func (a *Allocator) takeJumbo(list *freeList, minSize uintptr) *Frame {
	if list.empty() {
		return nil
	}

	switch a.jumboMatchStrategy {
	case Exact:
		var prev *Frame
		for cur := a.frameAt(list.head); ; {
			if cur.frameSize == minSize {
				return list.removeAfter(prev, a)
			}
			if cur.next == 0 {
				return nil
			}
			prev, cur = cur, a.frameAt(cur.next)
		}

	case Closest:
		var bestPrev, best *Frame
		var prev *Frame
		for cur := a.frameAt(list.head); ; {
			if cur.frameSize >= minSize {
				if cur.frameSize == minSize {
					return list.removeAfter(prev, a)
				}
				if best == nil || cur.frameSize < best.frameSize {
					best, bestPrev = cur, prev
				}
			}
			if cur.next == 0 {
				break
			}
			prev, cur = cur, a.frameAt(cur.next)
		}
		if best == nil {
			return nil
		}
		return list.removeAfter(bestPrev, a)

	default: // First
		var prev *Frame
		for cur := a.frameAt(list.head); ; {
			if cur.frameSize >= minSize {
				return list.removeAfter(prev, a)
			}
			if cur.next == 0 {
				return nil
			}
			prev, cur = cur, a.frameAt(cur.next)
		}
	}
}

// splitDown repeatedly halves f, pushing the carved-off upper half onto
// the matching free list, until f is no larger than max(target,
// minFrameSize) or f has reached minFrameSize. Jumbo frames (size >
// pageSize) are never split.
func (a *Allocator) splitDown(f *Frame, target uintptr) *Frame {
	floor := target
	if floor < minFrameSize {
		floor = minFrameSize
	}

	for f.frameSize > floor && f.frameSize <= a.pageSize {
		half := f.frameSize / 2
		a.devAssert(half >= minFrameSize, "split produced a sub-minimum frame (%#x)", half)

		upperAddr := f.addr() + half
		upper := newFrameAt(upperAddr, half)

		a.freeLists[bucketOf(half, a.pageSize)].prepend(upper)

		f.frameSize = half
	}
	return f
}

// Resize changes the size of the allocation backing old to newSize
// bytes. If newSize fits within the existing frame's payload, the
// allocation shrinks in place (split-down to the smallest size class
// that still fits) and the same pointer is returned. Otherwise a fresh
// allocation is made, the overlap is copied, and old is freed — growth
// never happens in place, even when a free buddy of matching size is
// adjacent (§9 Open Question: growth on resize).
func (a *Allocator) Resize(old []byte, newSize, newAlign uintptr) ([]byte, error) {
	tracef("Resize(%p, %#x, %#x)\n", oldPtr(old), newSize, newAlign)

	if newAlign > 2*wordSize {
		return nil, ErrOutOfMemory
	}

	// Reslice to the full backing frame first: cap(old) == 0 is the only
	// reliable "nothing was ever allocated here" signal, since Allocate
	// can legitimately hand back a zero-length, non-nil slice for a
	// zero-size request (frame.go payloadSlice keeps cap == the frame's
	// full remaining payload precisely so this distinction survives).
	old = old[:cap(old)]
	if len(old) == 0 {
		return a.Allocate(newSize, newAlign)
	}

	f, err := a.recoverFrame(&old[0])
	if err != nil {
		return nil, err
	}

	if newSize <= f.payloadSize() {
		a.stats.LiveBytes -= f.payloadSize()
		f = a.splitDown(f, padToFrameSize(newSize, a.pageSize))
		f.markAllocated()
		a.stats.LiveBytes += f.payloadSize()
		return f.payloadSlice(0, newSize), nil
	}

	// Copy from the frame's own recorded payload, not from the caller's
	// old slice: the C ABI shim recovers a frame from a bare pointer via
	// a synthetic single-byte slice (§4.6), so old's length can't be
	// trusted as the amount of live data to preserve.
	oldPayload := f.payloadSlice(0, f.payloadSize())

	grown, err := a.Allocate(newSize, newAlign)
	if err != nil {
		return nil, err
	}
	copy(grown, oldPayload)
	if err := a.Deallocate(old); err != nil {
		return nil, err
	}
	return grown, nil
}

// Deallocate returns payload's frame to the allocator. Under the Fast
// strategy, or for any jumbo frame, the frame is prepended to its
// bucket's free list. Under Compact (default, non-jumbo only) the buddy
// chain is walked and coalesced first.
func (a *Allocator) Deallocate(payload []byte) error {
	// Same cap(payload) == 0 reasoning as Resize: a zero-length slice
	// backed by a real frame (a zero-size Allocate) must still be freed,
	// so only reslicing to the full frame and checking what's left can
	// tell "no frame" apart from "a frame with no payload".
	payload = payload[:cap(payload)]
	if len(payload) == 0 {
		return nil
	}

	tracef("Deallocate(%p)\n", unsafe.Pointer(&payload[0]))

	f, err := a.recoverFrame(&payload[0])
	if err != nil {
		return err
	}

	if a.validation != Unsafe && !f.isAllocated() {
		panic("zeealloc: double free or invalid pointer")
	}

	a.stats.Allocations--
	a.stats.LiveBytes -= f.payloadSize()
	f.markFree()

	if a.freeStrategy == Fast || f.frameSize >= a.pageSize {
		a.freeLists[bucketOf(f.frameSize, a.pageSize)].prepend(f)
		return nil
	}

	f = a.coalesce(f)
	a.freeLists[bucketOf(f.frameSize, a.pageSize)].prepend(f)
	return nil
}

// coalesce walks f's buddy chain while f.frameSize < pageSize, merging
// with a free buddy of equal size each time, and returns the (possibly
// enlarged) frame. It stops the moment the buddy is allocated or has a
// different frameSize — a coalescing frontier, either because the buddy
// was itself split further or belongs to a different backing run.
func (a *Allocator) coalesce(f *Frame) *Frame {
	for f.frameSize < a.pageSize {
		buddyAddr := buddyAddress(f.addr(), f.frameSize)
		buddy := a.frameAt(buddyAddr)
		if buddy.isAllocated() || buddy.frameSize != f.frameSize {
			break
		}

		a.devAssert(buddyAddr != f.addr(), "frame is its own buddy at %#x", f.addr())
		a.freeLists[bucketOf(buddy.frameSize, a.pageSize)].remove(buddy, a)

		if buddyAddr < f.addr() {
			buddy.frameSize = f.frameSize * 2
			f = buddy
		} else {
			f.frameSize *= 2
		}
	}
	return f
}

// recoverFrame validates and overlays the Frame owning p, according to
// the allocator's configured Validation level.
func (a *Allocator) recoverFrame(p *byte) (*Frame, error) {
	if a.validation == Unsafe {
		return a.frameAt(uintptr(unsafe.Pointer(p)) - 2*wordSize), nil
	}
	return frameFromPayload(unsafe.Pointer(p), a.pageSize)
}

// Stats returns a snapshot of the allocator's live counters (§10).
func (a *Allocator) Stats() Stats {
	return a.stats
}

func oldPtr(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}
