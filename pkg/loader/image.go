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

// Package loader implements the core of a user-space dynamic ELF loader:
// header and program-header validation, address-space reservation, segment
// mapping, PT_GNU_RELRO protection management, and the self-locating phdr
// lookup a relocation collaborator needs once a shared object is mapped.
package loader

import (
	"unsafe"

	"golang.org/x/sys/unix"

	elfabi "github.com/tinyguest/sodload/pkg/abi/elf"
	"github.com/tinyguest/sodload/pkg/cleanup"
	"github.com/tinyguest/sodload/pkg/linkermap"
	"github.com/tinyguest/sodload/pkg/log"
)

// Image is the root aggregate of a single loaded shared object.
type Image struct {
	Name       string
	fd         int
	fileOffset int64
	Header     elfabi.Header

	phdrs     []elfabi.Phdr
	phdrTable *PhdrTable // nil once self-located and released

	dynamic *DynamicView // nil unless ReadDynamic was called

	Reservation Reservation
	PhdrPtr     uintptr
}

// Load runs the full core sequence: ReadHeader, LoadPhdrTable,
// PlanAddressSpace, Reserve, MapSegments, LocateSelfPhdr. Any failure
// releases every FileWindow and the reservation acquired so far.
func Load(ctx *linkermap.Context, name string, fd int, fileOffset int64, policy ReservationPolicy) (*Image, error) {
	var c cleanup.Cleanup
	defer c.Clean()

	hdr, err := ReadHeader(fd, fileOffset)
	if err != nil {
		log.Warningf("%q %v", name, err)
		return nil, err
	}

	phdrTable, err := LoadPhdrTable(fd, fileOffset, hdr)
	if err != nil {
		log.Warningf("%q %v", name, err)
		return nil, err
	}
	c.Add(func() { phdrTable.Release() })

	if policy.kind == reservationWellKnownName && policy.name == "" {
		policy.name = name
	}

	res, err := Reserve(ctx, phdrTable.Phdrs, policy, hdr.Class)
	if err != nil {
		log.Warningf("%q %v", name, err)
		return nil, err
	}
	c.Add(func() { unix.Munmap(reservationBytes(res)) })

	if err := MapSegments(fd, fileOffset, phdrTable.Phdrs, res.Bias); err != nil {
		log.Warningf("%q %v", name, err)
		return nil, err
	}

	phdrPtr, err := LocateSelfPhdr(phdrTable.Phdrs, res.Bias, hdr.Class)
	if err != nil {
		log.Warningf("%q %v", name, err)
		return nil, err
	}

	img := &Image{
		Name:        name,
		fd:          fd,
		fileOffset:  fileOffset,
		Header:      hdr,
		phdrs:       phdrTable.Phdrs,
		phdrTable:   phdrTable,
		Reservation: res,
		PhdrPtr:     phdrPtr,
	}

	// Self-location succeeded: the temporary phdr window is no longer
	// needed, per the component design's lifecycle note.
	phdrTable.Release()
	img.phdrTable = nil

	c.Release()
	log.Infof("%q loaded at bias=%#x", name, res.Bias)
	return img, nil
}

func reservationBytes(r Reservation) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(r.Base))), int(r.Size))
}

// Close releases the reservation and any FileWindow the Image still holds.
func (img *Image) Close() error {
	if img.dynamic != nil {
		img.dynamic.Release()
		img.dynamic = nil
	}
	if img.phdrTable != nil {
		img.phdrTable.Release()
		img.phdrTable = nil
	}
	return unix.Munmap(reservationBytes(img.Reservation))
}

// Phdrs returns the image's decoded program header table.
func (img *Image) Phdrs() []elfabi.Phdr { return img.phdrs }

// Bias returns the image's load bias.
func (img *Image) Bias() int64 { return img.Reservation.Bias }

// ReadDynamic reads and caches the image's .dynamic section and its string
// table, per the ElfReader.read_dynamic() collaborator API.
func (img *Image) ReadDynamic() (*DynamicView, error) {
	if img.dynamic != nil {
		return img.dynamic, nil
	}
	d, err := ReadDynamic(img.fd, img.fileOffset, img.Header)
	if err != nil {
		return nil, err
	}
	img.dynamic = d
	return d, nil
}

// DynamicSection returns the load address and p_flags of the image's
// PT_DYNAMIC segment, mirroring soinfo::get_dynamic_section. Absent ==
// ok-false, not an error, matching get_dynamic_section's optional return.
func (img *Image) DynamicSection() (ptr uintptr, flags uint32, ok bool) {
	for _, p := range img.phdrs {
		if p.Type == elfabi.PT_DYNAMIC {
			return uintptr(int64(p.Vaddr) + img.Bias()), p.Flags, true
		}
	}
	return 0, 0, false
}

// ARMExidx returns the PT_ARM_EXIDX range, if any. On non-ARM32 targets
// this always reports absent, matching the design note that the accessor
// is either absent from the API or statically returns "none".
func (img *Image) ARMExidx() (ptr uintptr, count int, ok bool) {
	if hostMachine != uint16(elfabi.EM_ARM) {
		return 0, 0, false
	}
	for _, p := range img.phdrs {
		if p.Type == elfabi.PT_ARM_EXIDX {
			const exidxEntrySize = 8
			return uintptr(int64(p.Vaddr) + img.Bias()), int(p.Memsz / exidxEntrySize), true
		}
	}
	return 0, 0, false
}

// DynEntries iterates over the image's dynamic tags via the supplied view,
// stopping at DT_NULL, mirroring bionic's
// `for (d = dynamic; d->d_tag != DT_NULL; ++d)` walk.
func (d *DynamicView) DynEntries() []elfabi.Dyn {
	for i, e := range d.Entries {
		if e.Tag == elfabi.DT_NULL {
			return d.Entries[:i]
		}
	}
	return d.Entries
}
