// Copyright 2011 Evan Shaw. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE-MMAP-GO file.

// Modifications (c) zeealloc authors.

//go:build darwin || dragonfly || freebsd || linux || openbsd || solaris || netbsd

// +build darwin dragonfly freebsd linux openbsd solaris netbsd

package zeealloc

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// MmapProvider is the canonical backing Provider (§6): each call performs
// one anonymous, private mmap of bytesRequested+align bytes and hands
// back its align-aligned subslice of exactly bytesRequested bytes, since
// mmap itself only guarantees OS-page alignment. Whole mappings are
// tracked only so Close can unmap them for test hygiene; the core itself never asks a Provider to free
// or shrink anything (§4.5).
type MmapProvider struct {
	regions [][]byte
}

var _ Provider = (*MmapProvider)(nil)

// Allocate implements Provider.
func (m *MmapProvider) Allocate(bytesRequested uintptr, align uintptr) ([]byte, error) {
	full, err := unix.Mmap(-1, 0, int(bytesRequested+align), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, ErrOutOfMemory
	}

	base := uintptr(unsafe.Pointer(&full[0]))
	off := ((base + align - 1) &^ (align - 1)) - base

	m.regions = append(m.regions, full)
	return full[off : off+bytesRequested : off+bytesRequested], nil
}

// Close unmaps every region this provider has ever handed out. It is not
// part of the Provider contract the core relies on (§4.5: "free/shrink
// on this provider must be unreachable; the core never calls them") —
// it exists purely so tests and short-lived processes can tear down
// cleanly, the role cznic/memory.Allocator.Close plays for its mmap'd
// pages.
func (m *MmapProvider) Close() error {
	var err error
	for _, b := range m.regions {
		if len(b) == 0 {
			continue
		}
		if e := unix.Munmap(b); e != nil && err == nil {
			err = e
		}
	}
	m.regions = nil
	return err
}
