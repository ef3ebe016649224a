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
	elfabi "github.com/tinyguest/sodload/pkg/abi/elf"
	"github.com/tinyguest/sodload/pkg/hostarch"
)

// LoadSize is the result of planning the address-space extent a set of
// PT_LOAD segments requires, named after soinfo::phdr_table_get_load_size
// in the original bionic linker: exposed standalone so a caller can
// pre-flight a Fixed reservation before calling Reserve.
type LoadSize struct {
	MinVaddr hostarch.Addr
	MaxVaddr hostarch.Addr
	Size     uint64
}

// PlanAddressSpace computes the page-aligned virtual address extent of
// every PT_LOAD entry in phdrs.
func PlanAddressSpace(phdrs []elfabi.Phdr) LoadSize {
	var minVaddr, maxVaddr hostarch.Addr
	found := false
	for _, p := range phdrs {
		if p.Type != elfabi.PT_LOAD {
			continue
		}
		v := hostarch.Addr(p.Vaddr)
		end := hostarch.Addr(p.Vaddr + p.Memsz)
		if !found || v < minVaddr {
			minVaddr = v
		}
		if !found || end > maxVaddr {
			maxVaddr = end
		}
		found = true
	}
	if !found {
		minVaddr = 0
		maxVaddr = 0
	}
	start := minVaddr.RoundDown()
	end := maxVaddr.MustRoundUp()
	return LoadSize{MinVaddr: start, MaxVaddr: end, Size: uint64(end - start)}
}
