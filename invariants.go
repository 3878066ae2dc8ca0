package zeealloc

import "fmt"

// devAssert panics with msg when the Dev validation level is active and
// cond is false. Internal invariants (split-down bounds, the frame_size
// of frames reached by buddy address or free-list link, a frame never
// being its own buddy) are only checked under Dev. Free-list membership
// is not checked for duplicates at any validation level.
func (a *Allocator) devAssert(cond bool, format string, args ...interface{}) {
	if a.validation != Dev {
		return
	}
	if !cond {
		panic(fmt.Sprintf("zeealloc: invariant violated: "+format, args...))
	}
}
