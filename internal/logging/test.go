// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package logging

import (
	"io"
	"strings"
	"testing"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/rs/zerolog"
)

type TestLogger struct {
	Test testing.TB
}

var _ io.Writer = (*TestLogger)(nil)

func (l *TestLogger) Write(b []byte) (int, error) {
	s := string(b)
	if strings.HasSuffix(s, "\n") {
		s = s[:len(s)-1]
	}
	l.Test.Log(s)
	return len(b), nil
}

func NewTestZeroLogger(t testing.TB, format string) zerolog.Logger {
	var w io.Writer = &TestLogger{Test: t}
	switch strings.ToLower(format) {
	case LogFormatPlain, LogFormatText:
		w = newConsoleWriter(w)

	case LogFormatJSON:

	default:
		t.Fatalf("Unsupported log format: %s", format)
	}

	return zerolog.New(w)
}

// NewTestLogger returns a debug-level logger that writes to the test log.
func NewTestLogger(t testing.TB) log.Logger {
	return &TendermintZeroLogger{Zerolog: NewTestZeroLogger(t, LogFormatPlain).Level(zerolog.DebugLevel)}
}
