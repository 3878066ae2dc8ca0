package zeealloc

import "github.com/cznic/mathutil"

// roundup rounds n up to the nearest multiple of m. m must be a power of
// two. Ground truth: cznic/memory's roundup, used identically.
func roundup(n, m uintptr) uintptr { return (n + m - 1) &^ (m - 1) }

// log2 returns log2(pow2) for a power-of-two pow2. Uses mathutil.BitLen
// the way the teacher package uses it to turn a byte count into a size
// class: BitLen(x) is the number of bits needed to represent x, so for a
// power of two p, BitLen(p)-1 == log2(p).
func log2(pow2 uintptr) uint {
	return uint(mathutil.BitLen(int(pow2))) - 1
}

// nextPow2 returns the smallest power of two >= n (n > 0). Same
// BitLen(n-1) trick the teacher package uses inline in Malloc to compute
// a size-class slot size from a requested byte count.
func nextPow2(n uintptr) uintptr {
	if n <= 1 {
		return 1
	}
	return uintptr(1) << uint(mathutil.BitLen(int(n-1)))
}

// bucketCount returns B, the number of free-list buckets for a given
// page size: index 0 is jumbo, 1 is PageSize, B-1 is minFrameSize.
func bucketCount(pageSize uintptr) int {
	return int(log2(pageSize)-log2(minFrameSize)) + 2
}

// padToFrameSize maps a requested payload size to the frame size that
// will hold it: exactly the metadata-padded, bucketed, or page-rounded
// size from §4.3.
func padToFrameSize(requested, pageSize uintptr) uintptr {
	need := requested + 2*wordSize
	switch {
	case need <= minFrameSize:
		return minFrameSize
	case need <= pageSize:
		return nextPow2(need)
	default:
		return roundup(need, pageSize)
	}
}

// bucketOf maps a frame size to its free-list bucket index.
func bucketOf(frameSize, pageSize uintptr) int {
	switch {
	case frameSize > pageSize:
		return 0
	case frameSize <= minFrameSize:
		return bucketCount(pageSize) - 1
	default:
		return 1 + int(log2(pageSize)) - int(log2(frameSize))
	}
}

// buddyAddress returns the address of addr's buddy frame, valid only for
// non-jumbo frames carved from a PageSize-aligned backing allocation.
func buddyAddress(addr, frameSize uintptr) uintptr {
	return addr ^ frameSize
}
