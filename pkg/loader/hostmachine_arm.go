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

//go:build arm

package loader

import elfabi "github.com/tinyguest/sodload/pkg/abi/elf"

// hostClass and hostMachine describe the architecture this binary was built
// for; ReadHeader rejects any image whose class or machine does not match.
var (
	hostClass   = elfabi.ELFCLASS32
	hostMachine = uint16(elfabi.EM_ARM)
)
