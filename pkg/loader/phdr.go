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
	"encoding/binary"

	elfabi "github.com/tinyguest/sodload/pkg/abi/elf"
	"github.com/tinyguest/sodload/pkg/errors"
)

// maxPhdrTableBytes is the 64 KiB ceiling the component design places on
// e_phnum*sizeof(Phdr).
const maxPhdrTableBytes = 64 * 1024

// PhdrTable is a decoded, class-agnostic view of a program header table,
// backed by a FileWindow holding the raw on-disk bytes.
type PhdrTable struct {
	window *FileWindow
	Phdrs  []elfabi.Phdr
}

// LoadPhdrTable maps the program header table described by hdr and decodes
// it into a class-agnostic PhdrTable.
func LoadPhdrTable(fd int, fileOffset int64, hdr elfabi.Header) (*PhdrTable, error) {
	entSize := elfabi.PhdrEntSize(hdr.Class)
	if hdr.Phnum < 1 || int(hdr.Phnum)*entSize > maxPhdrTableBytes {
		return nil, &errors.BadPhdrCount{N: int(hdr.Phnum)}
	}

	tableSize := uint64(hdr.Phnum) * uint64(entSize)
	w, err := OpenFileWindow(fd, uint64(fileOffset)+hdr.Phoff, tableSize)
	if err != nil {
		return nil, err
	}

	phdrs := make([]elfabi.Phdr, hdr.Phnum)
	raw := w.Bytes()
	for i := range phdrs {
		entry := raw[i*entSize : (i+1)*entSize]
		r := bytes.NewReader(entry)
		if hdr.Class == elfabi.ELFCLASS32 {
			var p32 elfabi.Phdr32
			if err := binary.Read(r, binary.LittleEndian, &p32); err != nil {
				w.Release()
				return nil, &errors.Io{Op: "decode phdr32", Errno: err}
			}
			phdrs[i] = elfabi.Phdr{
				Type: p32.Type, Flags: p32.Flags,
				Offset: uint64(p32.Offset), Vaddr: uint64(p32.Vaddr), Paddr: uint64(p32.Paddr),
				Filesz: uint64(p32.Filesz), Memsz: uint64(p32.Memsz), Align: uint64(p32.Align),
			}
		} else {
			var p64 elfabi.Phdr64
			if err := binary.Read(r, binary.LittleEndian, &p64); err != nil {
				w.Release()
				return nil, &errors.Io{Op: "decode phdr64", Errno: err}
			}
			phdrs[i] = elfabi.Phdr{
				Type: p64.Type, Flags: p64.Flags,
				Offset: p64.Offset, Vaddr: p64.Vaddr, Paddr: p64.Paddr,
				Filesz: p64.Filesz, Memsz: p64.Memsz, Align: p64.Align,
			}
		}
	}

	return &PhdrTable{window: w, Phdrs: phdrs}, nil
}

// Release unmaps the backing FileWindow. The spec keeps this window only
// until PhdrSelfLocator finds the in-segment copy; callers release it once
// relocation no longer needs the temporary table.
func (t *PhdrTable) Release() error {
	if t.window == nil {
		return nil
	}
	return t.window.Release()
}

// ByType returns every phdr entry with the given p_type, in table order.
func (t *PhdrTable) ByType(typ uint32) []elfabi.Phdr {
	var out []elfabi.Phdr
	for _, p := range t.Phdrs {
		if p.Type == typ {
			out = append(out, p)
		}
	}
	return out
}
