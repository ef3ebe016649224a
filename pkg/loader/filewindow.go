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
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/tinyguest/sodload/pkg/errors"
	"github.com/tinyguest/sodload/pkg/hostarch"
)

// FileWindow is a page-aligned, read-only mapping of a sub-range of a file.
// The requested (userPtr, userSize) range need not be page-aligned; the
// underlying mapping always covers the enclosing page range, recorded as
// (rawPtr, rawSize).
//
// Invariant: rawPtr <= userPtr < rawPtr+rawSize and
// userPtr+userSize <= rawPtr+rawSize.
type FileWindow struct {
	userPtr  uintptr
	userSize uintptr
	rawPtr   uintptr
	rawSize  uintptr
}

// OpenFileWindow maps the byte range [fileOffset, fileOffset+size) of fd
// into a private, read-only window.
func OpenFileWindow(fd int, fileOffset, size uint64) (*FileWindow, error) {
	if size == 0 {
		return &FileWindow{}, nil
	}
	pageStart := hostarch.Addr(fileOffset).RoundDown()
	end := hostarch.Addr(fileOffset + size)
	pageEnd, ok := end.RoundUp()
	if !ok {
		return nil, &errors.Io{Op: "mmap", Errno: unix.EOVERFLOW}
	}
	rawSize := uintptr(pageEnd - pageStart)
	raw, err := unix.Mmap(fd, int64(pageStart), int(rawSize), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, &errors.Io{Op: "mmap", Errno: err}
	}
	rawPtr := uintptr(unsafe.Pointer(&raw[0]))
	userPtr := rawPtr + uintptr(hostarch.Addr(fileOffset).PageOffset())
	return &FileWindow{
		userPtr:  userPtr,
		userSize: uintptr(size),
		rawPtr:   rawPtr,
		rawSize:  rawSize,
	}, nil
}

// Ptr returns the address of the requested (non-page-aligned) range.
func (w *FileWindow) Ptr() uintptr { return w.userPtr }

// Len returns the length of the requested range, in bytes.
func (w *FileWindow) Len() uintptr { return w.userSize }

// Bytes returns the requested range as a byte slice. The slice aliases the
// underlying mapping and becomes invalid once Release is called.
func (w *FileWindow) Bytes() []byte {
	if w.userSize == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(w.userPtr)), int(w.userSize))
}

// Release unmaps the raw (page-aligned, outer) range. It is a no-op if the
// window was never backed by a mapping.
func (w *FileWindow) Release() error {
	if w.rawSize == 0 {
		return nil
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(w.rawPtr)), int(w.rawSize))
	err := unix.Munmap(raw)
	w.rawPtr, w.rawSize, w.userPtr, w.userSize = 0, 0, 0, 0
	return err
}
