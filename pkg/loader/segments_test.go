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
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"

	elfabi "github.com/tinyguest/sodload/pkg/abi/elf"
	"github.com/tinyguest/sodload/pkg/hostarch"
	"github.com/tinyguest/sodload/pkg/loader/elftest"
)

func reserveAnon(t *testing.T, size uintptr) uintptr {
	t.Helper()
	addr, _, errno := unix.Syscall6(unix.SYS_MMAP, 0, uintptr(size), uintptr(unix.PROT_NONE), uintptr(unix.MAP_PRIVATE|unix.MAP_ANONYMOUS), ^uintptr(0), 0)
	if errno != 0 {
		t.Fatalf("mmap(reservation): %v", errno)
	}
	t.Cleanup(func() {
		mem := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size))
		unix.Munmap(mem)
	})
	return addr
}

func TestMapSegmentsFileBackedContentVisible(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 200)
	img := elftest.Build([]elftest.Segment{
		{Type: elfabi.PT_LOAD, Flags: elfabi.PF_R | elfabi.PF_W, Vaddr: 0, Data: payload, Memsz: 8192},
	})
	fd, done := tempELF(t, img)
	defer done()

	hdr, err := ReadHeader(fd, 0)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	table, err := LoadPhdrTable(fd, 0, hdr)
	if err != nil {
		t.Fatalf("LoadPhdrTable: %v", err)
	}
	defer table.Release()

	size := PlanAddressSpace(table.Phdrs)
	base := reserveAnon(t, uintptr(size.Size))
	bias := int64(base) - int64(size.MinVaddr)

	if err := MapSegments(fd, 0, table.Phdrs, bias); err != nil {
		t.Fatalf("MapSegments: %v", err)
	}

	mapped := unsafe.Slice((*byte)(unsafe.Pointer(base)), 8192)
	if !bytes.Equal(mapped[:len(payload)], payload) {
		t.Errorf("file-backed content mismatch")
	}
	// Zero-fill tail beyond p_filesz, within the same page.
	if mapped[len(payload)] != 0 {
		t.Errorf("zero-fill tail not zeroed: %#x", mapped[len(payload)])
	}
	// Anonymous gap beyond the last file-backed page, up to p_memsz.
	if mapped[hostarch.PageSize] != 0 {
		t.Errorf("anonymous gap not zeroed")
	}
}

func TestMapSegmentsMultipleLoadsDistinctRanges(t *testing.T) {
	img := elftest.Build([]elftest.Segment{
		{Type: elfabi.PT_LOAD, Flags: elfabi.PF_R, Vaddr: 0, Data: bytes.Repeat([]byte{0x11}, 16), Memsz: 4096},
		{Type: elfabi.PT_LOAD, Flags: elfabi.PF_R | elfabi.PF_W, Vaddr: 0x2000, Data: bytes.Repeat([]byte{0x22}, 16), Memsz: 4096},
	})
	fd, done := tempELF(t, img)
	defer done()

	hdr, err := ReadHeader(fd, 0)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	table, err := LoadPhdrTable(fd, 0, hdr)
	if err != nil {
		t.Fatalf("LoadPhdrTable: %v", err)
	}
	defer table.Release()

	size := PlanAddressSpace(table.Phdrs)
	base := reserveAnon(t, uintptr(size.Size))
	bias := int64(base) - int64(size.MinVaddr)

	if err := MapSegments(fd, 0, table.Phdrs, bias); err != nil {
		t.Fatalf("MapSegments: %v", err)
	}

	first := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(int64(table.Phdrs[0].Vaddr)+bias))), 16)
	second := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(int64(table.Phdrs[1].Vaddr)+bias))), 16)
	if !bytes.Equal(first, bytes.Repeat([]byte{0x11}, 16)) {
		t.Errorf("first segment content mismatch: %x", first)
	}
	if !bytes.Equal(second, bytes.Repeat([]byte{0x22}, 16)) {
		t.Errorf("second segment content mismatch: %x", second)
	}
}
