// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestModuleLevels(t *testing.T) {
	buf := new(bytes.Buffer)
	level, w, err := ParseLogLevel("error;storage=debug", buf)
	require.NoError(t, err)
	require.Equal(t, "debug", level)

	logger, err := NewTendermintLogger(zerolog.New(w), level, false)
	require.NoError(t, err)

	logger.Debug("dropped", "module", "abci")
	require.Zero(t, buf.Len())

	logger.Debug("kept", "module", "storage")
	require.Contains(t, buf.String(), "kept")

	buf.Reset()
	logger.Error("kept", "module", "abci")
	require.Contains(t, buf.String(), "kept")
}

func TestMethodLevels(t *testing.T) {
	buf := new(bytes.Buffer)
	level, w, err := ParseLogLevel("info;state=debug;state/checkTx=error", buf)
	require.NoError(t, err)
	require.Equal(t, "debug", level)

	logger, err := NewTendermintLogger(zerolog.New(w), level, false)
	require.NoError(t, err)

	logger.Info("dropped", "module", "state", "abciMethod", "checkTx")
	require.Zero(t, buf.Len())

	logger.Debug("kept", "module", "state", "abciMethod", "finalizeBlock")
	require.Contains(t, buf.String(), "kept")
}

func TestMempoolRejections(t *testing.T) {
	buf := new(bytes.Buffer)
	level, w, err := ParseLogLevel("*=debug;abci=info", buf)
	require.NoError(t, err)

	logger, err := NewTendermintLogger(zerolog.New(w), level, false)
	require.NoError(t, err)

	logger.Info("rejected", "module", "mempool", "code", 2002)
	require.Zero(t, buf.Len())

	logger.Info("added", "module", "mempool")
	require.Contains(t, buf.String(), "added")
}

func TestParseLogLevels(t *testing.T) {
	levels, err := ParseLogLevels("warn; executor = debug ;state/checkTx=error")
	require.NoError(t, err)
	require.Equal(t, zerolog.WarnLevel, levels.Default)
	require.Equal(t, zerolog.DebugLevel, levels.Lowest())
	require.Equal(t, zerolog.DebugLevel, levels.Level("executor", "checkTx"))
	require.Equal(t, zerolog.ErrorLevel, levels.Level("state", "checkTx"))
	require.Equal(t, zerolog.WarnLevel, levels.Level("state", "finalizeBlock"))

	_, err = ParseLogLevels("info;abci=loud")
	require.Error(t, err)
}

func TestPlainLevel(t *testing.T) {
	buf := new(bytes.Buffer)
	level, w, err := ParseLogLevel("info", buf)
	require.NoError(t, err)
	require.Equal(t, "info", level)
	require.Same(t, buf, w)
}

func TestContextKeyVals(t *testing.T) {
	ctx := With(context.Background(), "height", 5)
	ctx = With(ctx, "txHash", "ab")
	require.Equal(t, []any{"height", 5, "txHash", "ab"}, KeyVals(ctx))

	buf := new(bytes.Buffer)
	logger := FromContext(ctx, &TendermintZeroLogger{Zerolog: zerolog.New(buf)})
	logger.Info("hello")
	require.Contains(t, buf.String(), `"txHash":"ab"`)
	require.Contains(t, buf.String(), `"height":5`)
}

func TestAsUpperHex(t *testing.T) {
	require.Equal(t, "ABCD", AsUpperHex([]byte{0xab, 0xcd}).String())
}
