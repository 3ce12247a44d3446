// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package validation collects the consensus errors found while validating a
// state transition.
package validation

import (
	"strings"

	"gitlab.com/accumulatenetwork/platform/protocol/consensus"
)

// Result is the outcome of a validation stage. A result with no errors is
// valid. Data carries a value a later stage may reuse, such as a fetched
// identity.
type Result struct {
	errors []consensus.Error
	Data   any
}

// New returns a result holding errs.
func New(errs ...consensus.Error) *Result {
	r := new(Result)
	r.AddError(errs...)
	return r
}

// AddError records errs.
func (r *Result) AddError(errs ...consensus.Error) {
	for _, err := range errs {
		if err != nil {
			r.errors = append(r.errors, err)
		}
	}
}

// Merge adds the errors of other. Data is taken from other if r has none.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.errors = append(r.errors, other.errors...)
	if r.Data == nil {
		r.Data = other.Data
	}
}

// IsValid reports whether no errors were recorded.
func (r *Result) IsValid() bool { return r == nil || len(r.errors) == 0 }

// Errors returns the recorded errors.
func (r *Result) Errors() []consensus.Error {
	if r == nil {
		return nil
	}
	return r.errors
}

// FirstError returns the first recorded error, or nil.
func (r *Result) FirstError() consensus.Error {
	if r.IsValid() {
		return nil
	}
	return r.errors[0]
}

func (r *Result) Error() string {
	msgs := make([]string, len(r.Errors()))
	for i, err := range r.Errors() {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}
