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

	elfabi "github.com/tinyguest/sodload/pkg/abi/elf"
	"github.com/tinyguest/sodload/pkg/errors"
	"github.com/tinyguest/sodload/pkg/linkermap"
	"github.com/tinyguest/sodload/pkg/loader/elftest"
)

// selfLocatableImage builds an image whose PT_PHDR entry falls inside the
// file-backed range of its sole PT_LOAD segment, so Load can complete
// without needing the e_phoff header fallback.
func selfLocatableImage() *elftest.Image {
	return elftest.Build([]elftest.Segment{
		{Type: elfabi.PT_LOAD, Flags: elfabi.PF_R | elfabi.PF_W, Vaddr: 0, Data: make([]byte, 128), Memsz: 4096},
		{Type: elfabi.PT_PHDR, Vaddr: 0},
	})
}

func TestLoadSucceedsAndContentIsMapped(t *testing.T) {
	payload := bytes.Repeat([]byte{0x5A}, 40)
	img := elftest.Build([]elftest.Segment{
		{Type: elfabi.PT_LOAD, Flags: elfabi.PF_R | elfabi.PF_W, Vaddr: 0, Data: append(payload, make([]byte, 88)...), Memsz: 4096},
		{Type: elfabi.PT_PHDR, Vaddr: 0},
	})
	fd, done := tempELF(t, img)
	defer done()

	loaded, err := Load(linkermap.NewContext(), "test.so", fd, 0, NoPolicy())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer loaded.Close()

	if loaded.Name != "test.so" {
		t.Errorf("Name = %q, want %q", loaded.Name, "test.so")
	}
	mapped := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(int64(loaded.Reservation.Bias)))), len(payload))
	if !bytes.Equal(mapped, payload) {
		t.Errorf("mapped content mismatch: got %x, want %x", mapped, payload)
	}
	if loaded.PhdrPtr == 0 {
		t.Errorf("PhdrPtr is zero after a successful Load")
	}
	if loaded.phdrTable != nil {
		t.Errorf("phdrTable window was not released after self-location succeeded")
	}
}

func TestLoadReleasesReservationOnSelfLocateFailure(t *testing.T) {
	// A single PT_LOAD at a nonzero file offset has no PT_PHDR and no
	// p_offset==0 segment to fall back on, so self-location must fail and
	// Load must unwind the reservation it already made.
	img := elftest.Build([]elftest.Segment{
		{Type: elfabi.PT_LOAD, Flags: elfabi.PF_R, Vaddr: 0x1000, Data: make([]byte, 16), Memsz: 0x1000},
	})
	fd, done := tempELF(t, img)
	defer done()

	_, err := Load(linkermap.NewContext(), "unlocatable.so", fd, 0, NoPolicy())
	if _, ok := err.(*errors.PhdrNotLocatable); !ok {
		t.Fatalf("Load error = %v (%T), want *errors.PhdrNotLocatable", err, err)
	}
}

func TestLoadPropagatesHeaderError(t *testing.T) {
	img := minimalImage()
	img.Bytes[0] = 'X'
	fd, done := tempELF(t, img)
	defer done()

	_, err := Load(linkermap.NewContext(), "badmagic.so", fd, 0, NoPolicy())
	if _, ok := err.(*errors.BadMagic); !ok {
		t.Fatalf("Load error = %v (%T), want *errors.BadMagic", err, err)
	}
}

func TestImageDynamicSectionAbsentWhenNoPTDynamic(t *testing.T) {
	img := selfLocatableImage()
	fd, done := tempELF(t, img)
	defer done()

	loaded, err := Load(linkermap.NewContext(), "nodyn.so", fd, 0, NoPolicy())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer loaded.Close()

	if _, _, ok := loaded.DynamicSection(); ok {
		t.Errorf("DynamicSection() ok = true, want false without a PT_DYNAMIC entry")
	}
	if _, _, ok := loaded.ARMExidx(); ok {
		t.Errorf("ARMExidx() ok = true, want false on a non-ARM host")
	}
}
