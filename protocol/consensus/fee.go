// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package consensus

import "fmt"

type BalanceIsNotEnoughError struct {
	Balance uint64 `cbor:"balance"`
	Fee     uint64 `cbor:"fee"`
}

func (e *BalanceIsNotEnoughError) Code() Code { return CodeBalanceIsNotEnough }
func (e *BalanceIsNotEnoughError) Error() string {
	return fmt.Sprintf("current credits balance %d is not enough to pay %d fee", e.Balance, e.Fee)
}
