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

// Package elftest builds minimal, well-formed ELF64 little-endian ET_DYN
// images in memory for use by pkg/loader's tests.
package elftest

import (
	"bytes"
	"encoding/binary"

	elfabi "github.com/tinyguest/sodload/pkg/abi/elf"
)

// Segment describes one PT_LOAD or PT_GNU_RELRO entry to synthesize.
type Segment struct {
	Type   uint32
	Flags  uint32
	Vaddr  uint64
	Data   []byte // file contents; len(Data) becomes p_filesz
	Memsz  uint64 // if zero, defaults to len(Data)
	Offset uint64 // file offset; always assigned by Build
}

// Image is a fully assembled ET_DYN image, along with the byte ranges of
// each segment's file contents within Bytes.
type Image struct {
	Bytes    []byte
	Segments []Segment
}

const (
	ehdrSize = elfabi.EI_NIDENT + 48
	phdrSize = 56
	pageSize = 0x1000
)

// Build lays out an ELF64 header followed by a program header table and
// then each segment's file contents, in order. Non-empty contents are
// zero-padded in front so that each segment's file offset has the same
// offset within a page as its Vaddr, as the loader's mapping requires.
func Build(segs []Segment) *Image {
	var phdrsBuf bytes.Buffer
	offset := uint64(ehdrSize) + uint64(len(segs))*phdrSize
	var body bytes.Buffer

	out := make([]Segment, len(segs))
	copy(out, segs)

	for i := range out {
		if len(out[i].Data) != 0 {
			if pad := (out[i].Vaddr - offset) % pageSize; pad != 0 {
				body.Write(make([]byte, pad))
				offset += pad
			}
		}
		out[i].Offset = offset
		memsz := out[i].Memsz
		if memsz == 0 {
			memsz = uint64(len(out[i].Data))
		}
		out[i].Memsz = memsz

		p := elfabi.Phdr64{
			Type:   out[i].Type,
			Flags:  out[i].Flags,
			Offset: out[i].Offset,
			Vaddr:  out[i].Vaddr,
			Paddr:  out[i].Vaddr,
			Filesz: uint64(len(out[i].Data)),
			Memsz:  memsz,
			Align:  0x1000,
		}
		binary.Write(&phdrsBuf, binary.LittleEndian, &p)

		body.Write(out[i].Data)
		offset += uint64(len(out[i].Data))
	}

	hdr := elfabi.Header64{
		Type:      elfabi.ET_DYN,
		Machine:   hostMachineForTest,
		Version:   elfabi.EV_CURRENT,
		Phoff:     ehdrSize,
		Ehsize:    ehdrSize,
		Phentsize: phdrSize,
		Phnum:     uint16(len(segs)),
	}

	var full bytes.Buffer
	full.Write(elfabi.Magic[:])
	full.WriteByte(byte(elfabi.ELFCLASS64))
	full.WriteByte(elfabi.ELFDATA2LSB)
	full.WriteByte(elfabi.EV_CURRENT)
	full.Write(make([]byte, elfabi.EI_NIDENT-7))
	binary.Write(&full, binary.LittleEndian, &hdr)
	full.Write(phdrsBuf.Bytes())
	full.Write(body.Bytes())

	return &Image{Bytes: full.Bytes(), Segments: out}
}

// hostMachineForTest is the loader package's host machine on amd64 builds,
// so images built here pass ReadHeader's machine check only on amd64.
const hostMachineForTest = elfabi.EM_X86_64

const shdrSize = 64

// Section describes one entry to place in the section header table, for
// images that exercise the .dynamic/.dynstr path.
type Section struct {
	Type   uint32
	Link   uint32
	Data   []byte
	Offset uint64 // filled in by BuildWithSections
}

// BuildWithSections is Build, extended with a section header table and the
// section contents it describes, appended after the program data.
func BuildWithSections(segs []Segment, sections []Section) *Image {
	img := Build(segs)
	base := img.Bytes

	out := make([]Section, len(sections))
	copy(out, sections)

	offset := uint64(len(base))
	var body bytes.Buffer
	for i := range out {
		out[i].Offset = offset
		body.Write(out[i].Data)
		offset += uint64(len(out[i].Data))
	}

	var shdrsBuf bytes.Buffer
	for _, s := range out {
		sh := elfabi.Shdr64{
			Type:   s.Type,
			Link:   s.Link,
			Offset: s.Offset,
			Size:   uint64(len(s.Data)),
		}
		binary.Write(&shdrsBuf, binary.LittleEndian, &sh)
	}
	shoff := offset

	var full bytes.Buffer
	full.Write(base)
	full.Write(body.Bytes())
	full.Write(shdrsBuf.Bytes())

	full2 := full.Bytes()
	binary.LittleEndian.PutUint64(full2[ehdrShoffFieldOffset():ehdrShoffFieldOffset()+8], shoff)
	binary.LittleEndian.PutUint16(full2[ehdrShnumFieldOffset():ehdrShnumFieldOffset()+2], uint16(len(out)))

	return &Image{Bytes: full2, Segments: img.Segments}
}

// ehdrShoffFieldOffset and ehdrShnumFieldOffset return the byte offset of
// e_shoff and e_shnum within the fixed ELF64 header, for patching in the
// section header table location after the rest of the file is known.
func ehdrShoffFieldOffset() int {
	// e_ident(16) + e_type(2) + e_machine(2) + e_version(4) + e_entry(8) +
	// e_phoff(8) = 40, then e_shoff follows.
	return elfabi.EI_NIDENT + 2 + 2 + 4 + 8 + 8
}

func ehdrShnumFieldOffset() int {
	// e_shoff(8) + e_flags(4) + e_ehsize(2) + e_phentsize(2) + e_phnum(2) = 18
	// bytes after e_shoff's own offset, then e_shentsize(2), then e_shnum.
	return ehdrShoffFieldOffset() + 8 + 4 + 2 + 2 + 2 + 2
}
