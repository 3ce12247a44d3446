// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package logging

import (
	"context"

	"github.com/cometbft/cometbft/libs/log"
)

type _contextKey struct{}

var contextKey _contextKey

// With returns a context carrying additional key-value pairs, which
// [FromContext] attaches to a logger.
func With(ctx context.Context, keyVals ...any) context.Context {
	if len(keyVals)%2 != 0 {
		keyVals = append(keyVals, "!MISSING")
	}
	old := KeyVals(ctx)
	kv := make([]any, 0, len(old)+len(keyVals))
	kv = append(kv, old...)
	kv = append(kv, keyVals...)
	return context.WithValue(ctx, contextKey, kv)
}

// KeyVals returns the key-value pairs attached to the context.
func KeyVals(ctx context.Context) []any {
	v, _ := ctx.Value(contextKey).([]any)
	return v
}

// FromContext returns the logger with the context's key-value pairs attached.
func FromContext(ctx context.Context, logger log.Logger) log.Logger {
	kv := KeyVals(ctx)
	if len(kv) == 0 {
		return logger
	}
	return logger.With(kv...)
}
