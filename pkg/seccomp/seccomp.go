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

// Package seccomp builds and installs the two-stage BPF filter placed
// around a guest runtime library: instructions whose instruction pointer
// falls inside a trusted loader window, or below a low-address threshold,
// are always allowed; everything else is checked against a closed list of
// syscalls that TRAP.
package seccomp

import (
	"fmt"

	elfabi "github.com/tinyguest/sodload/pkg/abi/elf"
	"github.com/tinyguest/sodload/pkg/abi/linux"
	"github.com/tinyguest/sodload/pkg/bpf"
)

const (
	skipOneInst = 1

	labelAllow    = "allow"
	labelTrap     = "trap"
	labelLowCheck = "low_address_check"
)

// TrustedWindow names a contiguous virtual address range whose
// instructions bypass the syscall deny-list entirely, such as the span
// covering the pre-linker and both in-process linkers.
type TrustedWindow struct {
	Low  uint64
	High uint64
}

// Filter describes one installable seccomp program.
type Filter struct {
	// Arch is the AUDIT_ARCH_* value seccomp_data.arch is expected to
	// carry; any other value ALLOWs unconditionally.
	Arch uint32

	// LowAddressThreshold is the address below which every instruction
	// pointer is trusted (the main program's own text).
	LowAddressThreshold uint64

	// Trusted lists address ranges, such as the loader's own mapped
	// regions, that are always ALLOWed regardless of syscall number.
	Trusted []TrustedWindow

	// Denylist is the closed set of syscall numbers that TRAP when
	// executed from outside every trusted range.
	Denylist []uintptr
}

// BuildProgram compiles f into a BPF program ready for installation.
//
// The low-address threshold is just the trusted window [0, threshold), so
// it is folded into the same window list the Trusted field contributes,
// rather than checked separately.
func BuildProgram(f Filter) ([]linux.BPFInstruction, error) {
	p := bpf.NewProgramBuilder()

	// Stage A: wrong architecture is always allowed; this filter exists
	// to restrict guest libc, not to police the host's own syscall ABI.
	p.AddStmt(bpf.Ld|bpf.Abs|bpf.W, seccompDataOffsetArch)
	p.AddJumpFalseLabel(bpf.Jmp|bpf.Jeq|bpf.K, f.Arch, 0, labelAllow)

	windows := make([]TrustedWindow, 0, len(f.Trusted)+1)
	if f.LowAddressThreshold != 0 {
		windows = append(windows, TrustedWindow{Low: 0, High: f.LowAddressThreshold})
	}
	windows = append(windows, f.Trusted...)

	for i, w := range windows {
		if w.High <= w.Low {
			continue
		}
		nextLabel := fmt.Sprintf("trusted_next_%d", i)
		if err := addWindowCheck(p, w, nextLabel); err != nil {
			return nil, err
		}
		if err := p.AddLabel(nextLabel); err != nil {
			return nil, err
		}
	}

	// Stage B: closed syscall deny-list. Every window check falls through
	// to here on a miss.
	p.AddStmt(bpf.Ld|bpf.Abs|bpf.W, seccompDataOffsetNR)
	for _, sysno := range f.Denylist {
		p.AddJumpTrueLabel(bpf.Jmp|bpf.Jeq|bpf.K, uint32(sysno), labelTrap, 0)
	}
	p.AddDirectJumpLabel(labelAllow)

	if err := p.AddLabel(labelTrap); err != nil {
		return nil, err
	}
	p.AddStmt(bpf.Ret|bpf.K, uint32(linux.SECCOMP_RET_TRAP))

	if err := p.AddLabel(labelAllow); err != nil {
		return nil, err
	}
	p.AddStmt(bpf.Ret|bpf.K, uint32(linux.SECCOMP_RET_ALLOW))

	return p.Instructions()
}

// addWindowCheck emits the comparisons that ALLOW when the instruction
// pointer falls in [w.Low, w.High), falling through to missLabel
// otherwise. BPF comparisons are 32-bit, so a window is split at every
// 4GiB boundary it straddles and each resulting chunk, which shares a
// single high 32-bit word, is checked independently.
func addWindowCheck(p *bpf.ProgramBuilder, w TrustedWindow, missLabel string) error {
	if w.High <= w.Low {
		return nil
	}
	lo, hi := w.Low, w.High
	for lo < hi {
		boundary := (lo | 0xFFFFFFFF) + 1
		chunkHigh := hi
		if boundary < hi {
			chunkHigh = boundary
		}
		last := chunkHigh == hi
		chunkMiss := missLabel
		if !last {
			chunkMiss = fmt.Sprintf("%s_at_%#x", missLabel, chunkHigh)
		}

		highWord := uint32(lo >> 32)
		lowWord := uint32(lo)

		p.AddStmt(bpf.Ld|bpf.Abs|bpf.W, seccompDataOffsetIPHigh)
		p.AddJumpFalseLabel(bpf.Jmp|bpf.Jeq|bpf.K, highWord, 0, chunkMiss)

		p.AddStmt(bpf.Ld|bpf.Abs|bpf.W, seccompDataOffsetIPLow)
		p.AddJumpFalseLabel(bpf.Jmp|bpf.Jge|bpf.K, lowWord, 0, chunkMiss)

		// chunkHigh's low 32 bits are 0 exactly when the chunk runs to the
		// end of this high word (chunkHigh == boundary, or High itself is
		// 4GiB-aligned); every IPLow value that reached here already
		// qualifies, so skip the upper check.
		if highBits := uint32(chunkHigh); highBits != 0 {
			p.AddStmt(bpf.Ld|bpf.Abs|bpf.W, seccompDataOffsetIPLow)
			p.AddJumpTrueLabel(bpf.Jmp|bpf.Jge|bpf.K, highBits, chunkMiss, 0)
		}
		p.AddDirectJumpLabel(labelAllow)

		if !last {
			if err := p.AddLabel(chunkMiss); err != nil {
				return err
			}
		}
		lo = chunkHigh
	}
	return nil
}

// Describe renders instrs as a human-readable program dump for debug
// logging.
func Describe(instrs []linux.BPFInstruction) string {
	s, err := bpf.DecodeProgram(instrs)
	if err != nil {
		return fmt.Sprintf("error decoding program: %v\n%s", err, s)
	}
	return s
}

// DenylistFor returns the closed set of syscall numbers that TRAP: the base
// list plus the legacy 32-bit or 64-bit-only additions of the GOARCH the
// package is built for. class is not consulted. The per-architecture
// syscall numbers themselves live in build-tag-gated files, one per
// supported GOARCH, since golang.org/x/sys/unix only defines the SYS_*
// constants that exist on the architecture being compiled for.
func DenylistFor(class elfabi.Class) []uintptr {
	return archDenylist()
}
