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

// Package bpf provides a minimal library for the construction, decoding
// and interpretation of classic BPF (cBPF) programs, with extensions for
// use as seccomp filters.
//
// The opcode encoding mirrors <linux/bpf_common.h> and <linux/filter.h>:
// the low 3 bits of an instruction's OpCode name an instruction class, and
// the remaining bits are interpreted according to that class.
package bpf

import (
	"github.com/tinyguest/sodload/pkg/abi/linux"
)

// Instruction is a single raw BPF instruction.
type Instruction = linux.BPFInstruction

// Instruction classes, stored in the low 3 bits of OpCode.
const (
	Ld   = 0x00
	Ldx  = 0x01
	St   = 0x02
	Stx  = 0x03
	Alu  = 0x04
	Jmp  = 0x05
	Ret  = 0x06
	Misc = 0x07

	instructionClassMask = 0x07
)

// Addressing modes, used with the Ld and Ldx classes.
const (
	Imm = 0x00
	Abs = 0x20
	Ind = 0x40
	Mem = 0x60
	Len = 0x80
	Msh = 0xa0

	loadModeMask = 0xe0
)

// Operand sizes, used with the Ld, Ldx, St and Stx classes.
const (
	W = 0x00
	H = 0x08
	B = 0x10

	loadSizeMask = 0x18
)

// ALU and jump operations, used with the Alu and Jmp classes
// respectively. BPF_OP() in the kernel uses the same mask (0xf0) for both.
const (
	Add = 0x00
	Sub = 0x10
	Mul = 0x20
	Div = 0x30
	Or  = 0x40
	And = 0x50
	Lsh = 0x60
	Rsh = 0x70
	Neg = 0x80
	Mod = 0x90
	Xor = 0xa0

	aluMask = 0xf0

	Ja   = 0x00
	Jeq  = 0x10
	Jgt  = 0x20
	Jge  = 0x30
	Jset = 0x40

	jmpMask = 0xf0
)

// Source operand, used with the Alu and Jmp classes, OR'd with the
// operation.
const (
	K = 0x00
	X = 0x08

	srcAluJmpMask = 0x08
)

// Return value source, used with the Ret class. Distinct from the
// Alu/Jmp source bit: BPF_A occupies a different bit position here.
const (
	A = 0x10

	srcRetMask = 0x18
)

// Miscellaneous operations, used with the Misc class.
const (
	Tax = 0x00
	Txa = 0x80

	miscMask = 0xf8
)

// Bits that must always be zero, used to reject malformed instructions
// during validation.
const (
	unusedBitsMask      = 0xff00
	storeUnusedBitsMask = 0xfff8
	retUnusedBitsMask   = 0xffe0
)

// ScratchMemRegisters is the number of scratch (M[]) registers available to
// a BPF program.
const ScratchMemRegisters = 16

// MaxInstructions is the maximum number of instructions a BPF program may
// contain, matching the kernel's BPF_MAXINSNS.
const MaxInstructions = 4096

// Stmt returns a non-jumping instruction.
func Stmt(code uint16, k uint32) Instruction {
	return Instruction{
		OpCode: code,
		K:      k,
	}
}

// Jump returns a jumping instruction.
func Jump(code uint16, k uint32, jt, jf uint8) Instruction {
	return Instruction{
		OpCode:      code,
		JumpIfTrue:  jt,
		JumpIfFalse: jf,
		K:           k,
	}
}

// RetK returns a return-constant instruction.
func RetK(k uint32) Instruction {
	return Stmt(Ret|K, k)
}

// Optimize returns an equivalent but possibly shorter instruction sequence.
// The current implementation performs no rewriting; it exists so that
// Compile's optimize path has a concrete target to call.
func Optimize(insns []Instruction) []Instruction {
	return insns
}
