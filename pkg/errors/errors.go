// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// IsKnownError returns true if the status is non-zero and not UnknownError.
func (s Status) IsKnownError() bool { return s != 0 && s != UnknownError }

// Error implements error.
func (s Status) Error() string { return s.String() }

// Skip returns a factory that skips n additional frames when recording the
// call site.
func (s Status) Skip(n int) Factory {
	return Factory{Skip: n, Code: s}
}

// Wrap returns an error with the status s caused by err, or nil if err is
// nil.
func (s Status) Wrap(err error) error {
	return s.Skip(1).Wrap(err)
}

func (s Status) With(v ...interface{}) *Error {
	return s.Skip(1).With(v...)
}

// WithFormat formats an error message. If the format wraps an error with
// %w, the wrapped error becomes the cause.
func (s Status) WithFormat(format string, args ...interface{}) *Error {
	return s.Skip(1).WithFormat(format, args...)
}

// Factory creates errors with a status.
type Factory struct {
	Skip int
	Code Status
}

func (f Factory) Wrap(err error) error {
	if err == nil {
		// Returning a nil *Error as an error would be non-nil
		return nil
	}

	e := f.new()
	e.setCause(convert(err))
	return e
}

func (f Factory) With(v ...interface{}) *Error {
	e := f.new()
	e.Message = fmt.Sprint(v...)
	return e
}

func (f Factory) WithFormat(format string, args ...interface{}) *Error {
	err := fmt.Errorf(format, args...)

	e := f.new()
	e.Message = err.Error()
	if u, ok := err.(interface{ Unwrap() error }); ok {
		e.setCause(convert(u.Unwrap()))
	}
	return e
}

func (f Factory) new() *Error {
	e := &Error{Code: f.Code}
	e.recordCallSite(3 + f.Skip)
	return e
}

// convert turns any error into an *Error. Status values keep their code;
// other errors are unknown errors.
func convert(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	e = &Error{Code: UnknownError, Message: "(nil)"}
	if err == nil {
		return e
	}
	e.Message = err.Error()

	var s Status
	if errors.As(err, &s) {
		e.Code = s
		return e
	}
	if u, ok := err.(interface{ Unwrap() error }); ok && u.Unwrap() != nil {
		e.setCause(convert(u.Unwrap()))
	}
	return e
}

// setCause sets the cause. An error without a known code of its own takes
// the code of its cause, and an error without a message becomes its cause.
func (e *Error) setCause(cause *Error) {
	e.Cause = cause
	if cause == nil || e.Code.IsKnownError() {
		return
	}

	if e.Message != "" {
		e.Code = cause.Code
		return
	}

	cs := e.CallStack
	*e = *cause
	e.CallStack = append(cs, cause.CallStack...)
}

func (e *Error) recordCallSite(depth int) {
	if !trackLocation {
		return
	}

	for {
		pc, file, line, ok := runtime.Caller(depth)
		if !ok {
			return
		}

		// Skip the Status shortcuts
		if strings.HasSuffix(file, "pkg/errors/errors.go") {
			depth++
			continue
		}

		cs := &CallSite{File: file, Line: int64(line)}
		if fn := runtime.FuncForPC(pc); fn != nil {
			cs.FuncName = fn.Name()
		}
		e.CallStack = append(e.CallStack, cs)
		return
	}
}

func (e *Error) Error() string {
	if e.Message == "" && e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return e.Code
}

// Is matches a status anywhere in the causal chain, or another error with
// the same status.
func (e *Error) Is(target error) bool {
	for ; e != nil; e = e.Cause {
		switch t := target.(type) {
		case *Error:
			if e.Code == t.Code {
				return true
			}
		case Status:
			if e.Code == t {
				return true
			}
		}
	}
	return false
}

// Format prints the message, or with %+v the message, call stack and cause
// of every error in the chain.
func (e *Error) Format(f fmt.State, verb rune) {
	if f.Flag('+') {
		_, _ = f.Write([]byte(e.Print()))
	} else {
		_, _ = f.Write([]byte(e.Error()))
	}
}

// Print prints each error of the causal chain followed by its call stack.
// The message of a compound error is printed without the message of its
// cause.
func (e *Error) Print() string {
	if e.CallStack == nil {
		return e.Error()
	}

	var b strings.Builder
	for ; e != nil; e = e.Cause {
		msg := e.Message
		if msg == "" {
			msg = e.Code.String()
		} else if e.Cause != nil {
			msg = strings.TrimSuffix(msg, e.Cause.Message)
		}

		b.WriteString(msg)
		b.WriteString("\n")
		for _, cs := range e.CallStack {
			fmt.Fprintf(&b, "%s\n    %s:%d\n", cs.FuncName, cs.File, cs.Line)
		}
		if e.Cause != nil {
			b.WriteString("\n")
		}
	}
	return b.String()
}
