//go:build wasm

package abi

import (
	"unsafe"

	"github.com/zeealloc-go/zeealloc"
)

// heap is the single Allocator instance every exported function below
// binds to. It is constructed once, over HeapProvider (the only
// Provider that doesn't need an OS mmap syscall), with the library's
// default Config.
var heap = zeealloc.New(zeealloc.HeapProvider{}, zeealloc.Config{})

// Malloc implements C's malloc(size_t). Ground truth: §4.6, and the
// //go:wasmexport-based shim bytecodealliance/wasm-tools-go uses to
// expose cabi_realloc to a component-model host.
//
//go:wasmexport malloc
func Malloc(size uintptr) unsafe.Pointer {
	if size == 0 {
		return nil
	}
	b, err := heap.Allocate(size, 1)
	if err != nil {
		return nil
	}
	return unsafe.Pointer(&b[0])
}

// Free implements C's free(void*). p must have come from Malloc, Calloc
// or Realloc; a synthetic single-byte slice is reconstructed at p so
// the core can recover the owning Frame (§4.6).
//
//go:wasmexport free
func Free(p unsafe.Pointer) {
	if p == nil {
		return
	}
	heap.Deallocate(unsafe.Slice((*byte)(p), 1))
}

// Realloc implements C's realloc(void*, size_t).
//
//go:wasmexport realloc
func Realloc(p unsafe.Pointer, size uintptr) unsafe.Pointer {
	if p == nil {
		return Malloc(size)
	}
	if size == 0 {
		heap.Deallocate(unsafe.Slice((*byte)(p), 1))
		return nil
	}

	b, err := heap.Resize(unsafe.Slice((*byte)(p), 1), size, 1)
	if err != nil || len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}

// Calloc implements C's calloc(size_t, size_t): count*size bytes,
// zeroed. Overflow in the multiplication yields null rather than a
// truncated allocation.
//
//go:wasmexport calloc
func Calloc(count, size uintptr) unsafe.Pointer {
	if count == 0 || size == 0 {
		return nil
	}

	total := count * size
	if total/count != size {
		return nil
	}

	p := Malloc(total)
	if p == nil {
		return nil
	}
	b := unsafe.Slice((*byte)(p), total)
	for i := range b {
		b[i] = 0
	}
	return p
}
