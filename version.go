// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package platform

const unknownVersion = "version unknown"

// Version and Commit are set by the linker.
var (
	Version = unknownVersion
	Commit  string
)

func IsVersionKnown() bool {
	return Version != unknownVersion
}
