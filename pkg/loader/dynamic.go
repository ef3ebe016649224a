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

// DynamicView is the result of reading the optional .dynamic section: the
// decoded dynamic tags, plus the string table they reference.
type DynamicView struct {
	shdrWindow *FileWindow
	dynWindow  *FileWindow
	strWindow  *FileWindow

	Entries []elfabi.Dyn
	strtab  []byte
}

// ReadDynamic locates SHT_DYNAMIC among the section headers, validates its
// linked string table, and maps both. e_shnum == 0 is treated as "dynamic
// section unavailable" (see the Open Questions decision in DESIGN.md),
// surfaced to the caller as NoDynamic rather than a distinguished error.
func ReadDynamic(fd int, fileOffset int64, hdr elfabi.Header) (*DynamicView, error) {
	if hdr.Shnum == 0 {
		return nil, &errors.NoDynamic{}
	}

	entSize := elfabi.ShdrEntSize(hdr.Class)
	tableSize := uint64(hdr.Shnum) * uint64(entSize)
	shdrWindow, err := OpenFileWindow(fd, uint64(fileOffset)+hdr.Shoff, tableSize)
	if err != nil {
		return nil, err
	}

	shdrs := make([]elfabi.Shdr, hdr.Shnum)
	raw := shdrWindow.Bytes()
	for i := range shdrs {
		entry := raw[i*entSize : (i+1)*entSize]
		r := bytes.NewReader(entry)
		if hdr.Class == elfabi.ELFCLASS32 {
			var s32 elfabi.Shdr32
			if err := binary.Read(r, binary.LittleEndian, &s32); err != nil {
				shdrWindow.Release()
				return nil, &errors.Io{Op: "decode shdr32", Errno: err}
			}
			shdrs[i] = elfabi.Shdr{
				Name: s32.Name, Type: s32.Type, Flags: uint64(s32.Flags),
				Addr: uint64(s32.Addr), Offset: uint64(s32.Offset), Size: uint64(s32.Size),
				Link: s32.Link, Info: s32.Info, Addralign: uint64(s32.Addralign), Entsize: uint64(s32.Entsize),
			}
		} else {
			var s64 elfabi.Shdr64
			if err := binary.Read(r, binary.LittleEndian, &s64); err != nil {
				shdrWindow.Release()
				return nil, &errors.Io{Op: "decode shdr64", Errno: err}
			}
			shdrs[i] = elfabi.Shdr{
				Name: s64.Name, Type: s64.Type, Flags: s64.Flags,
				Addr: s64.Addr, Offset: s64.Offset, Size: s64.Size,
				Link: s64.Link, Info: s64.Info, Addralign: s64.Addralign, Entsize: s64.Entsize,
			}
		}
	}

	dynIdx := -1
	for i, s := range shdrs {
		if s.Type == elfabi.SHT_DYNAMIC {
			dynIdx = i
			break
		}
	}
	if dynIdx < 0 {
		shdrWindow.Release()
		return nil, &errors.NoDynamic{}
	}
	dyn := shdrs[dynIdx]

	if dyn.Link >= uint32(hdr.Shnum) {
		shdrWindow.Release()
		return nil, &errors.BadDynamicLink{}
	}
	str := shdrs[dyn.Link]
	if str.Type != elfabi.SHT_STRTAB {
		shdrWindow.Release()
		return nil, &errors.BadStrtabType{Got: str.Type}
	}

	dynWindow, err := OpenFileWindow(fd, uint64(fileOffset)+dyn.Offset, dyn.Size)
	if err != nil {
		shdrWindow.Release()
		return nil, err
	}
	strWindow, err := OpenFileWindow(fd, uint64(fileOffset)+str.Offset, str.Size)
	if err != nil {
		dynWindow.Release()
		shdrWindow.Release()
		return nil, err
	}

	dynEntSize := elfabi.DynEntSize(hdr.Class)
	rawDyn := dynWindow.Bytes()
	count := len(rawDyn) / dynEntSize
	entries := make([]elfabi.Dyn, count)
	for i := range entries {
		entry := rawDyn[i*dynEntSize : (i+1)*dynEntSize]
		r := bytes.NewReader(entry)
		if hdr.Class == elfabi.ELFCLASS32 {
			var d32 elfabi.Dyn32
			if err := binary.Read(r, binary.LittleEndian, &d32); err != nil {
				return nil, &errors.BadDynamicLink{}
			}
			entries[i] = elfabi.Dyn{Tag: int64(d32.Tag), Val: uint64(d32.Val)}
		} else {
			var d64 elfabi.Dyn64
			if err := binary.Read(r, binary.LittleEndian, &d64); err != nil {
				return nil, &errors.BadDynamicLink{}
			}
			entries[i] = elfabi.Dyn{Tag: d64.Tag, Val: d64.Val}
		}
	}

	return &DynamicView{
		shdrWindow: shdrWindow,
		dynWindow:  dynWindow,
		strWindow:  strWindow,
		Entries:    entries,
		strtab:     strWindow.Bytes(),
	}, nil
}

// GetString returns the NUL-terminated string at index into the string
// table. It panics if index is beyond the string table, matching the
// component design's explicit "panics on index >= strtab_size" contract.
func (d *DynamicView) GetString(index uint32) string {
	if int(index) >= len(d.strtab) {
		panic("index out of range of string table")
	}
	end := index
	for end < uint32(len(d.strtab)) && d.strtab[end] != 0 {
		end++
	}
	return string(d.strtab[index:end])
}

// Release unmaps every FileWindow the view holds.
func (d *DynamicView) Release() {
	d.strWindow.Release()
	d.dynWindow.Release()
	d.shdrWindow.Release()
}
