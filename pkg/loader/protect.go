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
	"bytes"
	"unsafe"

	"golang.org/x/sys/unix"

	elfabi "github.com/tinyguest/sodload/pkg/abi/elf"
	"github.com/tinyguest/sodload/pkg/errors"
	"github.com/tinyguest/sodload/pkg/hostarch"
)

func segmentPageRange(p elfabi.Phdr, bias int64) (start, end hostarch.Addr) {
	segStart := hostarch.Addr(uint64(int64(p.Vaddr) + bias))
	segEnd := segStart + hostarch.Addr(p.Memsz)
	return segStart.RoundDown(), segEnd.MustRoundUp()
}

func mprotectRange(start, end hostarch.Addr, prot int) error {
	if start == end {
		return nil
	}
	mem := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(start))), int(end-start))
	return unix.Mprotect(mem, prot)
}

// ProtectLoaded restores the page protections implied by p_flags for every
// PT_LOAD segment whose write bit is clear.
func ProtectLoaded(phdrs []elfabi.Phdr, bias int64) error {
	for _, p := range phdrs {
		if p.Type != elfabi.PT_LOAD || p.Flags&elfabi.PF_W != 0 {
			continue
		}
		start, end := segmentPageRange(p, bias)
		if err := mprotectRange(start, end, protFlags(p.Flags)); err != nil {
			return &errors.Io{Op: "mprotect(protect_loaded)", Errno: err}
		}
	}
	return nil
}

// UnprotectLoaded ORs write permission into the same set of segments
// ProtectLoaded restores, so a relocation collaborator may rewrite them.
func UnprotectLoaded(phdrs []elfabi.Phdr, bias int64) error {
	for _, p := range phdrs {
		if p.Type != elfabi.PT_LOAD || p.Flags&elfabi.PF_W != 0 {
			continue
		}
		start, end := segmentPageRange(p, bias)
		if err := mprotectRange(start, end, protFlags(p.Flags)|unix.PROT_WRITE); err != nil {
			return &errors.Io{Op: "mprotect(unprotect_loaded)", Errno: err}
		}
	}
	return nil
}

// ProtectRelro makes every PT_GNU_RELRO range read-only. Non-page-aligned
// ranges are deliberately over-protected to whole pages.
func ProtectRelro(phdrs []elfabi.Phdr, bias int64) error {
	for _, p := range phdrs {
		if p.Type != elfabi.PT_GNU_RELRO {
			continue
		}
		start := hostarch.Addr(uint64(int64(p.Vaddr) + bias)).RoundDown()
		end := hostarch.Addr(uint64(int64(p.Vaddr+p.Memsz) + bias)).MustRoundUp()
		if err := mprotectRange(start, end, unix.PROT_READ); err != nil {
			return &errors.Io{Op: "mprotect(protect_relro)", Errno: err}
		}
	}
	return nil
}

// SerializeRelro writes every PT_GNU_RELRO page range to fd, in order, then
// remaps those same pages read-only private from fd at the file offset
// just written. The file offset advances by each segment's page-range
// size, so sibling processes mapping the same fd from offset 0 see the
// RELRO ranges back-to-back in segment order.
func SerializeRelro(phdrs []elfabi.Phdr, bias int64, fd int) error {
	var fileOffset int64
	for _, p := range phdrs {
		if p.Type != elfabi.PT_GNU_RELRO {
			continue
		}
		start := hostarch.Addr(uint64(int64(p.Vaddr) + bias)).RoundDown()
		end := hostarch.Addr(uint64(int64(p.Vaddr+p.Memsz) + bias)).MustRoundUp()
		length := int(end - start)
		mem := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(start))), length)

		if err := writeAll(fd, mem); err != nil {
			return &errors.Io{Op: "write(serialize_relro)", Errno: err}
		}
		if err := mmapFixedAt(uintptr(start), uintptr(length), fd, fileOffset, unix.PROT_READ); err != nil {
			return &errors.Io{Op: "mmap(serialize_relro)", Errno: err}
		}
		fileOffset += int64(length)
	}
	return nil
}

// writeAll retries write(2) across EINTR and short writes, per the
// concurrency model's blocking-op contract.
func writeAll(fd int, p []byte) error {
	for len(p) > 0 {
		n, err := unix.Write(fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// MapRelro is the inverse of SerializeRelro, run by a sibling process that
// wants to share physical RELRO pages with the process that called it.
//
// It temporarily maps the whole of fd read-only, then for each PT_GNU_RELRO
// segment walks page-by-page comparing the in-memory page to the
// corresponding file page. Maximal runs of equal pages are replaced by a
// MAP_FIXED|MAP_PRIVATE mapping from fd; unequal pages are left as private
// dirty memory. If fd is shorter than the current segment's extent, the
// loop stops without attempting later segments. The temporary mapping is
// always released, even if a later step fails.
func MapRelro(phdrs []elfabi.Phdr, bias int64, fd int) error {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return &errors.Io{Op: "fstat(map_relro)", Errno: err}
	}
	fileSize := st.Size
	if fileSize == 0 {
		return nil
	}
	tmp, err := unix.Mmap(fd, 0, int(fileSize), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return &errors.Io{Op: "mmap(map_relro tmp)", Errno: err}
	}
	defer unix.Munmap(tmp)

	var fileOffset int64
	for _, p := range phdrs {
		if p.Type != elfabi.PT_GNU_RELRO {
			continue
		}
		start := hostarch.Addr(uint64(int64(p.Vaddr) + bias)).RoundDown()
		end := hostarch.Addr(uint64(int64(p.Vaddr+p.Memsz) + bias)).MustRoundUp()
		length := int64(end - start)

		if fileOffset+length > fileSize {
			break
		}

		mem := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(start))), int(length))
		filePart := tmp[fileOffset : fileOffset+length]

		runStart := -1
		flush := func(runEndPage int) error {
			if runStart < 0 {
				return nil
			}
			runAddr := start + hostarch.Addr(runStart*hostarch.PageSize)
			runLen := uintptr((runEndPage - runStart) * hostarch.PageSize)
			runFileOffset := fileOffset + int64(runStart*hostarch.PageSize)
			if err := mmapFixedAt(uintptr(runAddr), runLen, fd, runFileOffset, unix.PROT_READ); err != nil {
				return err
			}
			runStart = -1
			return nil
		}

		pages := int(length) / hostarch.PageSize
		for page := 0; page < pages; page++ {
			off := page * hostarch.PageSize
			equal := bytes.Equal(mem[off:off+hostarch.PageSize], filePart[off:off+hostarch.PageSize])
			if equal && runStart < 0 {
				runStart = page
			} else if !equal && runStart >= 0 {
				if err := flush(page); err != nil {
					return &errors.Io{Op: "mmap(map_relro)", Errno: err}
				}
			}
		}
		if err := flush(pages); err != nil {
			return &errors.Io{Op: "mmap(map_relro)", Errno: err}
		}

		fileOffset += length
	}
	return nil
}
