// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package loader

import (
	"unsafe"

	"golang.org/x/sys/unix"

	elfabi "github.com/tinyguest/sodload/pkg/abi/elf"
	"github.com/tinyguest/sodload/pkg/errors"
	"github.com/tinyguest/sodload/pkg/hostarch"
)

// protFlags translates PT_LOAD p_flags bits into the mmap/mprotect PROT_*
// bits they imply.
func protFlags(flags uint32) int {
	var prot int
	if flags&elfabi.PF_X != 0 {
		prot |= unix.PROT_EXEC
	}
	if flags&elfabi.PF_W != 0 {
		prot |= unix.PROT_WRITE
	}
	if flags&elfabi.PF_R != 0 {
		prot |= unix.PROT_READ
	}
	return prot
}

// MapSegments maps every PT_LOAD entry in phdrs into the reservation at
// bias, file-backing the portion covered by p_filesz and zero-filling the
// remainder up to p_memsz.
func MapSegments(fd int, fileOffset int64, phdrs []elfabi.Phdr, bias int64) error {
	for i, p := range phdrs {
		if p.Type != elfabi.PT_LOAD {
			continue
		}
		if err := mapSegment(fd, fileOffset, p, bias); err != nil {
			return &errors.MapFailed{SegmentIndex: i, Errno: err}
		}
	}
	return nil
}

func mapSegment(fd int, fileOffset int64, p elfabi.Phdr, bias int64) error {
	segStart := hostarch.Addr(uint64(int64(p.Vaddr) + bias))
	segEnd := segStart + hostarch.Addr(p.Memsz)
	segFileEnd := segStart + hostarch.Addr(p.Filesz)

	segPageStart := segStart.RoundDown()
	segPageEnd := segEnd.MustRoundUp()

	prot := protFlags(p.Flags)

	if p.Filesz != 0 {
		fileMapLen := uintptr(segFileEnd.MustRoundUp() - segPageStart)
		mapOffset := fileOffset + int64(hostarch.Addr(p.Offset).RoundDown())
		if err := mmapFixedAt(uintptr(segPageStart), fileMapLen, fd, mapOffset, prot); err != nil {
			return err
		}

		// Zero the tail of the final file-backed page, matching bionic's
		// phdr_table_load_segments: the mapping only carries PROT_WRITE when
		// the segment itself is writable, so only a writable segment's tail
		// can be zeroed by a direct store.
		if off := segFileEnd.PageOffset(); off != 0 && p.Flags&elfabi.PF_W != 0 {
			tail := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(segFileEnd))), int(hostarch.PageSize-off))
			for i := range tail {
				tail[i] = 0
			}
		}
	}

	if segFileEnd.MustRoundUp() < segPageEnd {
		gapStart := segFileEnd.MustRoundUp()
		gapLen := uintptr(segPageEnd - gapStart)
		if err := mmapAnonFixedAt(uintptr(gapStart), gapLen, prot); err != nil {
			return err
		}
	}

	return nil
}

// mmapFixedAt maps length bytes of fd at fileOffset into the process at the
// exact virtual address addr.
func mmapFixedAt(addr uintptr, length uintptr, fd int, fileOffset int64, prot int) error {
	_, _, errno := unix.Syscall6(unix.SYS_MMAP, addr, length, uintptr(prot), uintptr(unix.MAP_FIXED|unix.MAP_PRIVATE), uintptr(fd), uintptr(fileOffset))
	if errno != 0 {
		return errno
	}
	return nil
}

// mmapAnonFixedAt maps an anonymous, zero-filled range of length bytes at
// the exact virtual address addr.
func mmapAnonFixedAt(addr uintptr, length uintptr, prot int) error {
	_, _, errno := unix.Syscall6(unix.SYS_MMAP, addr, length, uintptr(prot), uintptr(unix.MAP_FIXED|unix.MAP_PRIVATE|unix.MAP_ANONYMOUS), ^uintptr(0), 0)
	if errno != 0 {
		return errno
	}
	return nil
}
