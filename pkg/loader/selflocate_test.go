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
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"

	elfabi "github.com/tinyguest/sodload/pkg/abi/elf"
	"github.com/tinyguest/sodload/pkg/errors"
)

func TestLocateSelfPhdrViaPTPHDR(t *testing.T) {
	phdrs := []elfabi.Phdr{
		{Type: elfabi.PT_LOAD, Vaddr: 0, Filesz: 0x2000, Memsz: 0x2000},
		{Type: elfabi.PT_PHDR, Vaddr: 0x40},
	}
	const bias = 0x10000
	ptr, err := LocateSelfPhdr(phdrs, bias, elfabi.ELFCLASS64)
	if err != nil {
		t.Fatalf("LocateSelfPhdr: %v", err)
	}
	if ptr != bias+0x40 {
		t.Errorf("ptr = %#x, want %#x", ptr, bias+0x40)
	}
}

func TestLocateSelfPhdrViaHeaderFallback(t *testing.T) {
	phdrs := []elfabi.Phdr{
		{Type: elfabi.PT_LOAD, Vaddr: 0, Offset: 0, Filesz: 4096, Memsz: 4096},
	}

	// Lay out a minimal ELF64 header at the start of an anonymous page, with
	// e_phoff pointing just past the fixed header, matching the bytes
	// LocateSelfPhdr expects to find mapped at vaddr 0 when no PT_PHDR entry
	// is present.
	buf := make([]byte, 4096)
	copy(buf[0:4], elfabi.Magic[:])
	buf[elfabi.EI_CLASS] = byte(elfabi.ELFCLASS64)
	const ehdrSize = elfabi.EI_NIDENT + 48
	phoff := uint64(ehdrSize)
	*(*uint64)(unsafe.Pointer(&buf[elfabi.EI_NIDENT+16])) = phoff // e_phoff field offset within Header64

	mem, err := unix.Mmap(-1, 0, len(buf), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		t.Fatalf("Mmap: %v", err)
	}
	defer unix.Munmap(mem)
	copy(mem, buf)

	bias := int64(uintptr(unsafe.Pointer(&mem[0])))

	ptr, err := LocateSelfPhdr(phdrs, bias, elfabi.ELFCLASS64)
	if err != nil {
		t.Fatalf("LocateSelfPhdr: %v", err)
	}
	want := uintptr(bias) + uintptr(phoff)
	if ptr != want {
		t.Errorf("ptr = %#x, want %#x", ptr, want)
	}
}

func TestLocateSelfPhdrNotLocatable(t *testing.T) {
	phdrs := []elfabi.Phdr{
		{Type: elfabi.PT_LOAD, Vaddr: 0, Offset: 0x1000, Filesz: 0x1000, Memsz: 0x1000},
	}
	_, err := LocateSelfPhdr(phdrs, 0, elfabi.ELFCLASS64)
	if _, ok := err.(*errors.PhdrNotLocatable); !ok {
		t.Fatalf("LocateSelfPhdr error = %v (%T), want *errors.PhdrNotLocatable", err, err)
	}
}
