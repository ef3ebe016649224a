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
	"github.com/tinyguest/sodload/pkg/hostarch"
	"github.com/tinyguest/sodload/pkg/linkermap"
)

func TestReserveNoPolicyPicksBiasMatchingVaddr(t *testing.T) {
	phdrs := []elfabi.Phdr{
		{Type: elfabi.PT_LOAD, Vaddr: 0x1000, Memsz: 0x1000},
	}
	res, err := Reserve(linkermap.NewContext(), phdrs, NoPolicy(), elfabi.ELFCLASS64)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	defer unix.Munmap(unsafe.Slice((*byte)(unsafe.Pointer(uintptr(res.Base))), int(res.Size)))

	if int64(res.Base)-res.Bias != 0x1000 {
		t.Errorf("bias %#x inconsistent with base %#x, want base-bias == 0x1000", res.Bias, res.Base)
	}
	if res.Size != hostarch.PageSize {
		t.Errorf("Size = %#x, want %#x", res.Size, hostarch.PageSize)
	}
}

func TestReserveNoLoadable(t *testing.T) {
	_, err := Reserve(linkermap.NewContext(), nil, NoPolicy(), elfabi.ELFCLASS64)
	if _, ok := err.(*errors.NoLoadable); !ok {
		t.Fatalf("Reserve error = %v (%T), want *errors.NoLoadable", err, err)
	}
}

func TestReserveFixedTooSmall(t *testing.T) {
	phdrs := []elfabi.Phdr{
		{Type: elfabi.PT_LOAD, Vaddr: 0, Memsz: 0x10000},
	}
	_, err := Reserve(linkermap.NewContext(), phdrs, FixedPolicy(0x400000000, 0x1000), elfabi.ELFCLASS64)
	if _, ok := err.(*errors.ReservationTooSmall); !ok {
		t.Fatalf("Reserve error = %v (%T), want *errors.ReservationTooSmall", err, err)
	}
}

func TestIsWellKnownLibc(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"libc.so", true},
		{"/system/lib64/libc.so", true},
		{"libc.so.6", false},
		{"libfoo.so", false},
	}
	for _, c := range cases {
		if got := isWellKnownLibc(c.name); got != c.want {
			t.Errorf("isWellKnownLibc(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

// Reserve's WellKnownNamePolicy match arms a one-time, irreversible
// prctl(PR_SET_SECCOMP) against the calling process (see
// installGuestLibcFilter), so it is deliberately not exercised here: doing
// so would install a real filter on the test binary itself and could trap
// later tests in the same process. seccomp.BuildProgram's own tests in
// pkg/seccomp cover the program logic that path constructs.
func TestReserveNonMatchingNameSkipsGuestLibcRegistration(t *testing.T) {
	phdrs := []elfabi.Phdr{
		{Type: elfabi.PT_LOAD, Vaddr: 0, Memsz: 0x1000},
	}
	ctx := linkermap.NewContext()
	res, err := Reserve(ctx, phdrs, WellKnownNamePolicy("libfoo.so"), elfabi.ELFCLASS64)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	defer unix.Munmap(unsafe.Slice((*byte)(unsafe.Pointer(uintptr(res.Base))), int(res.Size)))

	r := ctx.Acquire()
	if r.GuestLibc.Addr != 0 {
		t.Errorf("GuestLibc.Addr = %#x, want 0 for a non-matching name", r.GuestLibc.Addr)
	}
	if r.SeccompInstalled {
		t.Errorf("SeccompInstalled = true for a non-matching name")
	}
}
