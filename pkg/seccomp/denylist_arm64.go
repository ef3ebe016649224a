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

//go:build arm64

package seccomp

import "golang.org/x/sys/unix"

// archDenylist is the base closed list plus the 64-bit-only additions.
func archDenylist() []uintptr {
	return []uintptr{
		unix.SYS_OPENAT,
		unix.SYS_READLINKAT,
		unix.SYS_FACCESSAT,
		unix.SYS_UNLINKAT,
		unix.SYS_CONNECT,
		unix.SYS_EXECVE,
		unix.SYS_INOTIFY_ADD_WATCH,
		unix.SYS_MKDIRAT,
		unix.SYS_GETDENTS64,
		unix.SYS_PTRACE,
		unix.SYS_CLOCK_SETTIME,
		unix.SYS_CLOCK_GETTIME,
		unix.SYS_GETTIMEOFDAY,
		unix.SYS_SETTIMEOFDAY,

		unix.SYS_NEWFSTATAT,
		unix.SYS_GETUID,
		unix.SYS_GETGID,
		unix.SYS_GETEUID,
		unix.SYS_GETEGID,
		unix.SYS_GETRESUID,
		unix.SYS_GETRESGID,
	}
}
