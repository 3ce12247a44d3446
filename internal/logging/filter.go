// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// LogLevels is a parsed level specification. Keys are a module name, or a
// module and ABCI method such as "state/checkTx".
type LogLevels struct {
	Default zerolog.Level
	Modules map[string]zerolog.Level
}

// ParseLogLevels parses a level specification such as
// "error;abci=info;state/checkTx=warn". A bare level or "*" sets the default.
func ParseLogLevels(s string) (*LogLevels, error) {
	l := &LogLevels{Default: zerolog.Disabled, Modules: map[string]zerolog.Level{}}
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			key, value = "*", key
		}
		level, err := zerolog.ParseLevel(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid level for %q: %w", key, err)
		}

		key = strings.TrimSpace(key)
		if key == "*" {
			l.Default = level
		} else {
			l.Modules[key] = level
		}
	}
	return l, nil
}

// Lowest is the lowest level any module logs at.
func (l *LogLevels) Lowest() zerolog.Level {
	lowest := l.Default
	for _, level := range l.Modules {
		if level < lowest {
			lowest = level
		}
	}
	return lowest
}

// Level returns the level for events of the module within the ABCI method.
// The method may be empty.
func (l *LogLevels) Level(module, method string) zerolog.Level {
	if method != "" {
		if level, ok := l.Modules[module+"/"+method]; ok {
			return level
		}
	}
	if level, ok := l.Modules[module]; ok {
		return level
	}
	return l.Default
}

// Allow reports whether an event at the level passes.
func (l *LogLevels) Allow(level zerolog.Level, event map[string]any) bool {
	module, _ := event["module"].(string)
	method, _ := event["abciMethod"].(string)

	// The CheckTx response already tells the sender why a transaction was
	// rejected
	if module == "mempool" && level < zerolog.ErrorLevel {
		if _, ok := event["code"]; ok {
			return false
		}
	}

	return level >= l.Level(module, method)
}

// ParseLogLevel parses a level specification (see [ParseLogLevels]) and
// returns the level the logger must be created with. If any module or method
// has its own level, w is wrapped in a [FilterWriter] that enforces them.
func ParseLogLevel(s string, w io.Writer) (string, io.Writer, error) {
	if !strings.Contains(s, "=") {
		return s, w, nil
	}

	levels, err := ParseLogLevels(s)
	if err != nil {
		return "", nil, err
	}
	return levels.Lowest().String(), FilterWriter{Out: w, Predicate: levels.Allow}, nil
}

// FilterWriter passes the JSON events Predicate allows to Out.
type FilterWriter struct {
	Out       io.Writer
	Predicate func(zerolog.Level, map[string]any) bool
}

var _ zerolog.LevelWriter = FilterWriter{}

func (w FilterWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.NoLevel, p)
}

func (w FilterWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if w.Predicate == nil {
		return w.Out.Write(p)
	}

	var event map[string]any
	err := json.NewDecoder(bytes.NewReader(p)).Decode(&event)
	if err != nil {
		return 0, fmt.Errorf("decode log event: %w", err)
	}

	if level == zerolog.NoLevel {
		if s, ok := event[zerolog.LevelFieldName].(string); ok {
			level, _ = zerolog.ParseLevel(s)
		}
	}

	if !w.Predicate(level, event) {
		return len(p), nil
	}
	return w.Out.Write(p)
}
