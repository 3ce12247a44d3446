// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/rs/zerolog"
)

// TendermintZeroLogger is a CometBFT logger implementation that passes
// messages to a Zerolog logger.
type TendermintZeroLogger struct {
	Zerolog zerolog.Logger
	Trace   bool
}

var _ log.Logger = (*TendermintZeroLogger)(nil)

// NewTendermintLogger is the logger used by the node and by CometBFT.
func NewTendermintLogger(zl zerolog.Logger, level string, trace bool) (log.Logger, error) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %v", err)
	}

	zl = zl.Level(logLevel).With().Timestamp().Logger()
	return &TendermintZeroLogger{zl, trace}, nil
}

// NewLogger builds the process logger from a level specification (see
// [ParseLogLevel]) and a format, writing to w.
func NewLogger(levels, format string, w io.Writer) (log.Logger, error) {
	if w == nil {
		w = os.Stderr
	}

	switch strings.ToLower(format) {
	case LogFormatPlain, LogFormatText, "":
		w = newConsoleWriter(w)
	case LogFormatJSON:
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}

	level, w, err := ParseLogLevel(levels, w)
	if err != nil {
		return nil, err
	}
	return NewTendermintLogger(zerolog.New(w), level, false)
}

func (l *TendermintZeroLogger) Info(msg string, keyVals ...interface{}) {
	l.Zerolog.Info().Fields(getLogFields(keyVals...)).Msg(msg)
}

func (l *TendermintZeroLogger) Error(msg string, keyVals ...interface{}) {
	e := l.Zerolog.Error()
	if l.Trace {
		e = e.Stack()
	}

	e.Fields(getLogFields(keyVals...)).Msg(msg)
}

func (l *TendermintZeroLogger) Debug(msg string, keyVals ...interface{}) {
	l.Zerolog.Debug().Fields(getLogFields(keyVals...)).Msg(msg)
}

func (l *TendermintZeroLogger) With(keyVals ...interface{}) log.Logger {
	return &TendermintZeroLogger{
		Zerolog: l.Zerolog.With().Fields(getLogFields(keyVals...)).Logger(),
		Trace:   l.Trace,
	}
}

func getLogFields(keyVals ...interface{}) map[string]interface{} {
	if len(keyVals)%2 != 0 {
		return nil
	}

	fields := make(map[string]interface{}, len(keyVals))
	for i := 0; i < len(keyVals); i += 2 {
		fields[fmt.Sprint(keyVals[i])] = keyVals[i+1]
	}

	return fields
}

// newConsoleWriter returns a console writer whose module field is printed
// ahead of the message.
func newConsoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    true,
		TimeFormat: time.RFC3339,
		PartsOrder: []string{
			zerolog.LevelFieldName,
			zerolog.TimestampFieldName,
			"module",
			zerolog.MessageFieldName,
		},
		FieldsExclude: []string{"module"},
		FormatLevel: func(i interface{}) string {
			if ll, ok := i.(string); ok {
				return strings.ToUpper(ll)
			}
			return "????"
		},
		FormatFieldValue: func(i interface{}) string {
			if s, ok := i.(string); ok && strings.ContainsAny(s, " \t\n") {
				return fmt.Sprintf("%q", s)
			}
			return fmt.Sprint(i)
		},
	}
}
