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

// Package hostarch provides basic address-arithmetic helpers for the page
// size of the host on which this binary runs.
package hostarch

// PageSize is the native host page size, in bytes. This loader only
// supports hosts with a 4KiB page size.
const PageSize = 4096

// PageShift is log2(PageSize).
const PageShift = 12

// Addr represents a generic address into an address space.
type Addr uint64

// PageOffset returns the offset of addr into its containing page.
func (addr Addr) PageOffset() Addr {
	return addr % PageSize
}

// RoundDown truncates addr to the beginning of its containing page.
func (addr Addr) RoundDown() Addr {
	return addr &^ (PageSize - 1)
}

// RoundUp rounds addr up to the beginning of the next page, unless addr is
// already page-aligned. It returns false if this would overflow.
func (addr Addr) RoundUp() (Addr, bool) {
	rounded := addr.RoundDown()
	if rounded != addr {
		rounded += PageSize
	}
	return rounded, rounded >= addr
}

// MustRoundUp is equivalent to RoundUp, but panics if rounding up would
// overflow. It should only be used when addr is guaranteed not to be within
// PageSize of the end of the address space.
func (addr Addr) MustRoundUp() Addr {
	r, ok := addr.RoundUp()
	if !ok {
		panic("rounding up would overflow")
	}
	return r
}

// IsPageAligned returns true if addr is a multiple of PageSize.
func (addr Addr) IsPageAligned() bool {
	return addr.PageOffset() == 0
}
