package zeealloc

// freeList is a headed, singly-linked, intrusive list of free Frames,
// threaded through each Frame's next word. One freeList exists per size
// class, held in an array by the Allocator core. The zero value is an
// empty list.
type freeList struct {
	head uintptr // address of the first free Frame, or 0
}

// empty reports whether the list has no members.
func (l *freeList) empty() bool {
	return l.head == 0
}

// prepend threads f onto the front of the list. f must not already be a
// member of any free list.
func (l *freeList) prepend(f *Frame) {
	f.next = l.head
	l.head = f.addr()
}

// removeAfter detaches and returns the Frame after cursor, or the head
// itself when cursor is nil. Returns nil if there is no such frame.
func (l *freeList) removeAfter(cursor *Frame, a *Allocator) *Frame {
	if cursor == nil {
		if l.head == 0 {
			return nil
		}
		f := a.frameAt(l.head)
		l.head = f.next
		return f
	}

	if cursor.next == 0 {
		return nil
	}
	f := a.frameAt(cursor.next)
	cursor.next = f.next
	return f
}

// remove unlinks target from the list by identity, scanning from the
// head. No-op if target is not a member. O(n); only used by buddy
// coalescing, where the fan-out per free is bounded by
// log2(PageSize/MinFrameSize).
func (l *freeList) remove(target *Frame, a *Allocator) {
	if l.head == 0 {
		return
	}
	if l.head == target.addr() {
		l.head = target.next
		return
	}

	cur := a.frameAt(l.head)
	for cur.next != 0 {
		next := a.frameAt(cur.next)
		if next.addr() == target.addr() {
			cur.next = next.next
			return
		}
		cur = next
	}
}
