// Package abi exposes zeealloc's core through the C ABI malloc, realloc,
// free and calloc, for a WebAssembly host to call directly. The shim
// carries no state of its own beyond the single package-level Allocator
// it binds to at init (§4.6): every exported function is a thin
// translation between bare pointers and zeealloc's slice-based surface.
//
// The exported symbols only exist in a GOARCH=wasm build (see
// abi_wasm.go); this file just carries the package doc so `go doc` and
// non-wasm builds of the module have something to show.
package abi
