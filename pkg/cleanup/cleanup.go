// Copyright 2020 The gVisor Authors.
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

// Package cleanup provides utilities to clean up series of operations on
// error. This is particularly useful when multiple resources are acquired
// in sequence and must be released, in reverse order, if a later
// acquisition fails.
package cleanup

// Cleanup allows defers to be aggregated and release once the function
// that is called. This makes it easier to cleanup on various error paths.
type Cleanup struct {
	cleanups []func()
}

// Make creates a new Cleanup object.
func Make(f func()) Cleanup {
	return Cleanup{cleanups: []func(){f}}
}

// Add adds a new function to be called on Clean().
func (c *Cleanup) Add(f func()) {
	c.cleanups = append(c.cleanups, f)
}

// Clean calls all functions in reverse order of registration.
func (c *Cleanup) Clean() {
	for i := len(c.cleanups) - 1; i >= 0; i-- {
		c.cleanups[i]()
	}
	c.cleanups = nil
}

// Release releases the cleanup actions without calling them, and returns a
// function that performs the same cleanup that would have otherwise been
// performed by Clean.
func (c *Cleanup) Release() func() {
	cleanups := c.cleanups
	c.cleanups = nil
	return func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
}
