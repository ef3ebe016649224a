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

	"golang.org/x/sys/unix"

	elfabi "github.com/tinyguest/sodload/pkg/abi/elf"
	"github.com/tinyguest/sodload/pkg/errors"
)

// pread retries a positional read across EINTR, matching the blocking-op
// contract in the concurrency model: pread must be retried transparently.
func pread(fd int, p []byte, off int64) (int, error) {
	for {
		n, err := unix.Pread(fd, p, off)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// ReadHeader reads and validates the fixed ELF header at fileOffset in fd.
func ReadHeader(fd int, fileOffset int64) (elfabi.Header, error) {
	var ident [elfabi.EI_NIDENT]byte
	n, err := pread(fd, ident[:], fileOffset)
	if err != nil {
		return elfabi.Header{}, &errors.Io{Op: "pread(ident)", Errno: err}
	}
	if n != len(ident) {
		return elfabi.Header{}, &errors.ShortRead{Expected: len(ident), Got: n}
	}
	if !bytes.Equal(ident[elfabi.EI_MAG0:elfabi.EI_MAG3+1], elfabi.Magic[:]) {
		return elfabi.Header{}, &errors.BadMagic{}
	}
	class := elfabi.Class(ident[elfabi.EI_CLASS])
	if class != elfabi.ELFCLASS32 && class != elfabi.ELFCLASS64 {
		return elfabi.Header{}, &errors.BadClass{Got: ident[elfabi.EI_CLASS]}
	}
	if class != hostClass {
		return elfabi.Header{}, &errors.BadClass{Got: ident[elfabi.EI_CLASS]}
	}
	if ident[elfabi.EI_DATA] != elfabi.ELFDATA2LSB {
		return elfabi.Header{}, &errors.BadEndianness{}
	}
	if ident[elfabi.EI_VERSION] != elfabi.EV_CURRENT {
		return elfabi.Header{}, &errors.BadVersion{Got: uint32(ident[elfabi.EI_VERSION])}
	}

	rest := make([]byte, elfabi.EhdrSize(class)-elfabi.EI_NIDENT)
	n, err = pread(fd, rest, fileOffset+int64(elfabi.EI_NIDENT))
	if err != nil {
		return elfabi.Header{}, &errors.Io{Op: "pread(ehdr)", Errno: err}
	}
	if n != len(rest) {
		return elfabi.Header{}, &errors.ShortRead{Expected: len(rest), Got: n}
	}

	var hdr elfabi.Header
	hdr.Class = class
	r := bytes.NewReader(rest)
	if class == elfabi.ELFCLASS32 {
		var h32 elfabi.Header32
		if err := binary.Read(r, binary.LittleEndian, &h32); err != nil {
			return elfabi.Header{}, &errors.Io{Op: "decode ehdr32", Errno: err}
		}
		hdr.Type, hdr.Machine, hdr.Version = h32.Type, h32.Machine, h32.Version
		hdr.Entry, hdr.Phoff, hdr.Shoff = uint64(h32.Entry), uint64(h32.Phoff), uint64(h32.Shoff)
		hdr.Flags = h32.Flags
		hdr.Ehsize, hdr.Phentsize, hdr.Phnum = h32.Ehsize, h32.Phentsize, h32.Phnum
		hdr.Shentsize, hdr.Shnum, hdr.Shstrndx = h32.Shentsize, h32.Shnum, h32.Shstrndx
	} else {
		var h64 elfabi.Header64
		if err := binary.Read(r, binary.LittleEndian, &h64); err != nil {
			return elfabi.Header{}, &errors.Io{Op: "decode ehdr64", Errno: err}
		}
		hdr.Type, hdr.Machine, hdr.Version = h64.Type, h64.Machine, h64.Version
		hdr.Entry, hdr.Phoff, hdr.Shoff = h64.Entry, h64.Phoff, h64.Shoff
		hdr.Flags = h64.Flags
		hdr.Ehsize, hdr.Phentsize, hdr.Phnum = h64.Ehsize, h64.Phentsize, h64.Phnum
		hdr.Shentsize, hdr.Shnum, hdr.Shstrndx = h64.Shentsize, h64.Shnum, h64.Shstrndx
	}

	if hdr.Type != elfabi.ET_DYN {
		return elfabi.Header{}, &errors.BadType{Got: hdr.Type}
	}
	if hdr.Version != elfabi.EV_CURRENT {
		return elfabi.Header{}, &errors.BadVersion{Got: hdr.Version}
	}
	if hdr.Machine != hostMachine {
		return elfabi.Header{}, &errors.BadMachine{Got: hdr.Machine}
	}
	return hdr, nil
}
