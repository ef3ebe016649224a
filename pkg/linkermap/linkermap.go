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

// Package linkermap tracks the well-known address ranges that the loader
// and its guest runtime occupy over the lifetime of a process.
//
// In a bootstrap shim this record lives at a fixed, compile-time absolute
// address (LINKER_MAPS_ADDR) so that every process component agrees on its
// layout without an explicit handle. This package keeps the same field
// order and semantics but exposes it through a Context that callers
// acquire explicitly and pass by reference, rather than through a
// hard-coded pointer.
package linkermap

import "sync"

// Region records the base address and size of one well-known mapping.
type Region struct {
	Addr uint64
	Size uint64
}

// Contains reports whether addr falls within [Addr, Addr+Size).
func (r Region) Contains(addr uint64) bool {
	return r.Size != 0 && addr >= r.Addr && addr < r.Addr+r.Size
}

// End returns Addr+Size.
func (r Region) End() uint64 {
	return r.Addr + r.Size
}

// Registry is the process-wide record of loader-owned address ranges. Field
// order matches the byte layout a bootstrap shim writes at LINKER_MAPS_ADDR:
// pre-linker, host-linker, guest-linker, guest-libc, host-libs, followed by
// the last_addr cursor.
type Registry struct {
	PreLinker   Region
	HostLinker  Region
	GuestLinker Region
	GuestLibc   Region
	HostLibs    Region

	// LastAddr is the last_addr cursor. TrustedWindow uses it as the upper
	// bound of the trusted range; Reserve neither reads nor advances it.
	LastAddr uint64

	// SeccompInstalled records whether the process-wide syscall filter has
	// already been installed for the guest libc region. SeccompInstaller
	// is invoked at most once per process; later WellKnownName loads must
	// observe this flag and skip installation.
	SeccompInstalled bool
}

// TrustedWindow returns the [PRELINKER_ADDR, LINKER_MAPS_LAST_ADDR) range
// that the seccomp filter exempts from its syscall deny-list: the span
// covering the pre-linker and both linkers, which are trusted code.
func (r *Registry) TrustedWindow() (low, high uint64) {
	low = r.PreLinker.Addr
	high = r.LastAddr
	return low, high
}

// Context is the explicit handle a caller threads through every core
// loader operation in place of a hard-coded pointer to a fixed address.
// The hard-coded address remains only as the location a bootstrap shim
// writes the initial Registry; Global recovers the single
// process-wide instance for callers that have not been handed one.
type Context struct {
	mu       sync.Mutex
	registry *Registry
}

var global = &Context{}

// Global returns the process-wide Context. First-writer-wins: the first
// caller to touch the registry through Acquire initialises it; subsequent
// callers observe the same instance.
func Global() *Context {
	return global
}

// Acquire returns the Context's Registry, allocating it on first use.
func (c *Context) Acquire() *Registry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registry == nil {
		c.registry = &Registry{}
	}
	return c.registry
}

// WithLock runs fn while holding the Context's lock, for callers that need
// to read-then-write the Registry atomically (e.g. the WellKnownName
// placement rule in Reserve).
func (c *Context) WithLock(fn func(r *Registry)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registry == nil {
		c.registry = &Registry{}
	}
	fn(c.registry)
}

// NewContext returns a fresh, independent Context. Tests use this to avoid
// sharing registry state with the process-wide Global Context.
func NewContext() *Context {
	return &Context{registry: &Registry{}}
}
