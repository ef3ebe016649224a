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

package linux

// Seccomp modes, from <linux/seccomp.h>, used with prctl(PR_SET_SECCOMP, ...).
const (
	SECCOMP_MODE_DISABLED = 0
	SECCOMP_MODE_STRICT   = 1
	SECCOMP_MODE_FILTER   = 2
)

// BPFAction is the return value of a seccomp BPF program, from
// <linux/seccomp.h>.
type BPFAction uint32

// SECCOMP_RET_* actions, from <linux/seccomp.h>. The BPF program's return
// value is (action & SECCOMP_RET_ACTION_FULL) | (data & SECCOMP_RET_DATA).
const (
	SECCOMP_RET_KILL_PROCESS BPFAction = 0x80000000
	SECCOMP_RET_KILL_THREAD  BPFAction = 0x00000000
	SECCOMP_RET_TRAP         BPFAction = 0x00030000
	SECCOMP_RET_ERRNO        BPFAction = 0x00050000
	SECCOMP_RET_TRACE        BPFAction = 0x7ff00000
	SECCOMP_RET_ALLOW        BPFAction = 0x7fff0000

	SECCOMP_RET_ACTION_FULL = 0xffff0000
	SECCOMP_RET_DATA        = 0x0000ffff
)

// AUDIT_ARCH_* values identify the calling convention of a syscall, and are
// compared against seccomp_data.arch. From <linux/audit.h>.
const (
	AUDIT_ARCH_ARM     = 0x40000028
	AUDIT_ARCH_AARCH64 = 0xc00000b7
	AUDIT_ARCH_I386    = 0x40000003
	AUDIT_ARCH_X86_64  = 0xc000003e
)

// SockFprog mirrors struct sock_fprog from <linux/filter.h>, the argument
// to prctl(PR_SET_SECCOMP, SECCOMP_MODE_FILTER, ...).
type SockFprog struct {
	Len    uint16
	pad    [6]byte
	Filter *BPFInstruction
}
