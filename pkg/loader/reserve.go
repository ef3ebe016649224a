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
	"strings"

	"golang.org/x/sys/unix"

	linuxabi "github.com/tinyguest/sodload/pkg/abi/linux"

	elfabi "github.com/tinyguest/sodload/pkg/abi/elf"
	"github.com/tinyguest/sodload/pkg/errors"
	"github.com/tinyguest/sodload/pkg/linkermap"
	"github.com/tinyguest/sodload/pkg/log"
	"github.com/tinyguest/sodload/pkg/seccomp"
)

// ReservationPolicy selects how Reserve chooses the target address for the
// anonymous PROT_NONE reservation.
type ReservationPolicy struct {
	kind reservationKind
	addr uint64
	size uint64
	name string
}

type reservationKind int

const (
	reservationNone reservationKind = iota
	reservationHint
	reservationFixed
	reservationWellKnownName
)

// NoPolicy lets the kernel choose the reservation address.
func NoPolicy() ReservationPolicy { return ReservationPolicy{kind: reservationNone} }

// HintPolicy uses addr as a placement hint, falling back to the kernel's
// choice if the hinted range is too small.
func HintPolicy(addr, size uint64) ReservationPolicy {
	return ReservationPolicy{kind: reservationHint, addr: addr, size: size}
}

// FixedPolicy requires the reservation to land exactly at addr, and fails
// if size is insufficient for the image's load size.
func FixedPolicy(addr, size uint64) ReservationPolicy {
	return ReservationPolicy{kind: reservationFixed, addr: addr, size: size}
}

// WellKnownNamePolicy hints at LinkerMapRegistry.GuestLibc.Addr when name
// matches the well-known guest libc name (see isWellKnownLibc), and arms
// SeccompInstaller on success.
func WellKnownNamePolicy(name string) ReservationPolicy {
	return ReservationPolicy{kind: reservationWellKnownName, name: name}
}

// wellKnownLibcSuffix is the name suffix Reserve treats as a match for the
// guest libc placement rule. The original source matched "libc.so" as a
// substring of the placement name; per the Open Questions decision in
// DESIGN.md, this is intentionally narrowed to a suffix match.
const wellKnownLibcSuffix = "libc.so"

func isWellKnownLibc(name string) bool {
	return strings.HasSuffix(name, wellKnownLibcSuffix)
}

// Reservation is the anonymous PROT_NONE mapping an Image's segments are
// placed into.
type Reservation struct {
	Base uint64
	Size uint64
	Bias int64
}

// Reserve performs the anonymous PROT_NONE reservation and computes the
// resulting load bias.
func Reserve(ctx *linkermap.Context, phdrs []elfabi.Phdr, policy ReservationPolicy, class elfabi.Class) (Reservation, error) {
	loadSize := PlanAddressSpace(phdrs)
	if loadSize.Size == 0 {
		return Reservation{}, &errors.NoLoadable{}
	}

	var hint uint64
	mustFit := false
	switch policy.kind {
	case reservationFixed:
		if policy.size < loadSize.Size {
			return Reservation{}, &errors.ReservationTooSmall{Have: policy.size, Need: loadSize.Size}
		}
		hint = policy.addr
		mustFit = true
	case reservationHint:
		if policy.size >= loadSize.Size {
			hint = policy.addr
		}
	case reservationWellKnownName:
		if isWellKnownLibc(policy.name) {
			r := ctx.Acquire()
			hint = r.GuestLibc.Addr
		}
	case reservationNone:
		hint = 0
	}

	flags := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS
	if mustFit {
		flags |= unix.MAP_FIXED
	}
	// unix.Mmap's offset parameter names a file offset, not a target
	// virtual address, so it cannot express a placement hint; make the
	// raw mmap(2) call directly instead, exactly as addr is documented to
	// work whether or not MAP_FIXED is set.
	addr, _, errno := unix.Syscall6(unix.SYS_MMAP, uintptr(hint), uintptr(loadSize.Size), uintptr(unix.PROT_NONE), uintptr(flags), ^uintptr(0), 0)
	if errno != 0 {
		return Reservation{}, &errors.Io{Op: "mmap(reservation)", Errno: errno}
	}
	base := uint64(addr)

	bias := int64(base) - int64(loadSize.MinVaddr)
	res := Reservation{Base: base, Size: loadSize.Size, Bias: bias}

	if policy.kind == reservationWellKnownName && isWellKnownLibc(policy.name) {
		installSeccomp := false
		ctx.WithLock(func(r *linkermap.Registry) {
			r.GuestLibc = linkermap.Region{Addr: base, Size: loadSize.Size}
			if !r.SeccompInstalled {
				r.SeccompInstalled = true
				installSeccomp = true
			}
		})
		if installSeccomp {
			if err := installGuestLibcFilter(ctx, class); err != nil {
				return Reservation{}, err
			}
		}
	}

	log.Debugf("reserved [%#x, %#x) bias=%#x", base, base+loadSize.Size, bias)
	return res, nil
}

// installGuestLibcFilter builds and installs the seccomp program that
// exempts the trusted loader window from the syscall deny-list enforced on
// the rest of the address space, including the freshly reserved guest libc
// region.
func installGuestLibcFilter(ctx *linkermap.Context, class elfabi.Class) error {
	r := ctx.Acquire()
	low, high := r.TrustedWindow()
	f := seccomp.Filter{
		Arch:                hostAuditArch(),
		LowAddressThreshold: lowAddressThreshold(class),
		Trusted:             []seccomp.TrustedWindow{{Low: low, High: high}},
		Denylist:            seccomp.DenylistFor(class),
	}
	instrs, err := seccomp.BuildProgram(f)
	if err != nil {
		return &errors.SeccompInstallFailed{Errno: err}
	}
	if log.IsLogging(log.Debug) {
		log.Debugf("seccomp program dump:\n%s", seccomp.Describe(instrs))
	}
	if err := seccomp.SetFilter(instrs); err != nil {
		return &errors.SeccompInstallFailed{Errno: err}
	}
	return nil
}

func lowAddressThreshold(class elfabi.Class) uint64 {
	if class == elfabi.ELFCLASS32 {
		return 0x400000
	}
	return 0x500000
}

// hostAuditArch maps the host machine constant ReadHeader validates against
// to the AUDIT_ARCH_* value seccomp_data.arch reports for that machine.
func hostAuditArch() uint32 {
	switch hostMachine {
	case elfabi.EM_386:
		return linuxabi.AUDIT_ARCH_I386
	case elfabi.EM_ARM:
		return linuxabi.AUDIT_ARCH_ARM
	case elfabi.EM_AARCH64:
		return linuxabi.AUDIT_ARCH_AARCH64
	default:
		return linuxabi.AUDIT_ARCH_X86_64
	}
}
