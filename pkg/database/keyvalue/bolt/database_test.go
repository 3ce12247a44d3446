// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package bolt

import (
	"path/filepath"
	"testing"

	"gitlab.com/accumulatenetwork/platform/pkg/database/keyvalue"
	"gitlab.com/accumulatenetwork/platform/pkg/database/keyvalue/kvtest"
)

func open(t testing.TB) kvtest.Opener {
	file := filepath.Join(t.TempDir(), "aux.db")
	return func() (keyvalue.Beginner, error) {
		return Open(file)
	}
}

func TestSuite(t *testing.T) {
	kvtest.TestSuite(t, open(t))
}
