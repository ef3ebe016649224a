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

package seccomp

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/tinyguest/sodload/pkg/abi/linux"
)

// SetFilter installs instrs with prctl(PR_SET_SECCOMP, SECCOMP_MODE_FILTER,
// &prog). Unlike the newer seccomp(2) entry point, this does not require
// PR_SET_NO_NEW_PRIVS and never synchronises the filter to other threads;
// the guest libc region this filter protects is mapped before any other
// thread exists.
func SetFilter(instrs []linux.BPFInstruction) error {
	prog := linux.SockFprog{
		Len:    uint16(len(instrs)),
		Filter: (*linux.BPFInstruction)(unsafe.Pointer(&instrs[0])),
	}
	_, _, errno := unix.RawSyscall(unix.SYS_PRCTL, linux.PR_SET_SECCOMP, linux.SECCOMP_MODE_FILTER, uintptr(unsafe.Pointer(&prog)))
	if errno != 0 {
		return errno
	}
	return nil
}
