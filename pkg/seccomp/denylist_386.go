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

//go:build 386

package seccomp

import "golang.org/x/sys/unix"

// archDenylist is the base closed list plus the legacy 32-bit variants.
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

		unix.SYS_OPEN,
		unix.SYS_READLINK,
		unix.SYS_ACCESS,
		unix.SYS_STAT,
		unix.SYS_FSTAT,
		unix.SYS_LSTAT,
		unix.SYS_UNAME,
		unix.SYS_IOPRIO_SET,
		unix.SYS_SYSINFO,
		unix.SYS_SOCKET,
		unix.SYS_IOCTL,
		unix.SYS_PRCTL,
		unix.SYS_GETUID32,
		unix.SYS_GETGID32,
		unix.SYS_GETEUID32,
		unix.SYS_GETEGID32,
		unix.SYS_FSTATAT64,
	}
}
