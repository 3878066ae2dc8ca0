// Copyright 2011 Evan Shaw. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE-MMAP-GO file.

// Modifications (c) zeealloc authors.

//go:build windows

package zeealloc

import (
	"os"
	"syscall"
	"unsafe"
)

// MmapProvider is the Windows backing Provider (§6): each call creates a
// fresh anonymous file mapping and maps a view of exactly bytesRequested
// bytes, the two-step CreateFileMapping/MapViewOfFile sequence Windows
// requires in place of a bare mmap(2).
type MmapProvider struct {
	handles map[uintptr]syscall.Handle
}

var _ Provider = (*MmapProvider)(nil)

// Allocate implements Provider.
func (m *MmapProvider) Allocate(bytesRequested uintptr, align uintptr) ([]byte, error) {
	size := int64(bytesRequested)
	maxSizeHigh := uint32(size >> 32)
	maxSizeLow := uint32(size & 0xFFFFFFFF)

	h, errno := syscall.CreateFileMapping(syscall.Handle(^uintptr(0)), nil, syscall.PAGE_READWRITE, maxSizeHigh, maxSizeLow, nil)
	if h == 0 {
		return nil, ErrOutOfMemory
	}

	addr, errno := syscall.MapViewOfFile(h, syscall.FILE_MAP_WRITE, 0, 0, uintptr(bytesRequested))
	if addr == 0 {
		syscall.CloseHandle(h)
		_ = errno
		return nil, ErrOutOfMemory
	}

	if addr&(align-1) != 0 {
		panic("zeealloc: mapped view misaligned for the requested page size")
	}

	if m.handles == nil {
		m.handles = map[uintptr]syscall.Handle{}
	}
	m.handles[addr] = h

	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), bytesRequested), nil
}

// Close unmaps every view this provider has handed out. See the Unix
// MmapProvider.Close doc: not part of the core's contract, only test
// hygiene.
func (m *MmapProvider) Close() error {
	var err error
	for addr, h := range m.handles {
		if e := syscall.UnmapViewOfFile(addr); e != nil && err == nil {
			err = e
		}
		if e := syscall.CloseHandle(h); e != nil && err == nil {
			err = os.NewSyscallError("CloseHandle", e)
		}
	}
	m.handles = nil
	return err
}
