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

	elfabi "github.com/tinyguest/sodload/pkg/abi/elf"
	"github.com/tinyguest/sodload/pkg/errors"
	"github.com/tinyguest/sodload/pkg/hostarch"
)

// LocateSelfPhdr finds the in-memory copy of the program header table
// reachable inside an already-mapped PT_LOAD segment, so that the
// temporary FileWindow PhdrTableLoader opened can be released.
func LocateSelfPhdr(phdrs []elfabi.Phdr, bias int64, class elfabi.Class) (uintptr, error) {
	var candidate hostarch.Addr
	found := false

	for _, p := range phdrs {
		if p.Type == elfabi.PT_PHDR {
			candidate = hostarch.Addr(uint64(int64(p.Vaddr) + bias))
			found = true
			break
		}
	}

	if !found {
		for _, p := range phdrs {
			if p.Type != elfabi.PT_LOAD {
				continue
			}
			if p.Offset != 0 {
				continue
			}
			base := hostarch.Addr(uint64(int64(p.Vaddr) + bias))
			hdr := (*elfabi.Header64)(unsafe.Pointer(uintptr(base) + elfabi.EI_NIDENT))
			var phoff uint64
			if class == elfabi.ELFCLASS32 {
				hdr32 := (*elfabi.Header32)(unsafe.Pointer(uintptr(base) + elfabi.EI_NIDENT))
				phoff = uint64(hdr32.Phoff)
			} else {
				phoff = hdr.Phoff
			}
			candidate = base + hostarch.Addr(phoff)
			found = true
			break
		}
	}

	if !found {
		return 0, &errors.PhdrNotLocatable{}
	}

	tableSize := uint64(len(phdrs)) * uint64(elfabi.PhdrEntSize(class))
	candEnd := candidate + hostarch.Addr(tableSize)

	for _, p := range phdrs {
		if p.Type != elfabi.PT_LOAD {
			continue
		}
		segStart := hostarch.Addr(uint64(int64(p.Vaddr) + bias))
		segFileEnd := segStart + hostarch.Addr(p.Filesz)
		if candidate >= segStart && candEnd <= segFileEnd {
			return uintptr(candidate), nil
		}
	}

	return 0, &errors.PhdrNotLocatable{}
}
