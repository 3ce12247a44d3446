// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package corerpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/rpcclient"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
)

// Config configures an [RPCClient].
type Config struct {
	Host     string
	User     string
	Password string
	Timeout  time.Duration
}

// RPCClient is a [Client] backed by the JSON-RPC interface of a Core node.
type RPCClient struct {
	rpc     *rpcclient.Client
	timeout time.Duration
}

var _ Client = (*RPCClient)(nil)

// NewRPCClient returns a client that posts requests over HTTP.
func NewRPCClient(cfg Config) (*RPCClient, error) {
	c, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Password,
		HTTPPostMode: true,
		DisableTLS:   true,
	}, nil)
	if err != nil {
		return nil, errors.UnknownError.WithFormat("connect to core: %w", err)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &RPCClient{rpc: c, timeout: timeout}, nil
}

func (c *RPCClient) Close() {
	c.rpc.Shutdown()
}

// call sends a request and decodes the result into v. It gives up when ctx
// is done or the client timeout elapses.
func (c *RPCClient) call(ctx context.Context, v any, method string, params ...any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw := make([]json.RawMessage, len(params))
	for i, p := range params {
		b, err := json.Marshal(p)
		if err != nil {
			return errors.EncodingError.WithFormat("encode %s params: %w", method, err)
		}
		raw[i] = b
	}

	future := c.rpc.RawRequestAsync(method, raw)
	type result struct {
		b   json.RawMessage
		err error
	}
	ch := make(chan result, 1)
	go func() {
		b, err := future.Receive()
		ch <- result{b, err}
	}()

	var r result
	select {
	case <-ctx.Done():
		return errors.Timeout.WithFormat("%s: %w", method, ctx.Err())
	case r = <-ch:
	}

	if r.err != nil {
		var rpcErr *btcjson.RPCError
		if errors.As(r.err, &rpcErr) {
			switch rpcErr.Code {
			case btcjson.ErrRPCInvalidAddressOrKey:
				return errors.NotFound.WithFormat("%s: %s", method, rpcErr.Message)
			case btcjson.ErrRPCInvalidParameter:
				return errors.BadRequest.WithFormat("%s: %s", method, rpcErr.Message)
			}
		}
		return errors.UnknownError.WithFormat("%s: %w", method, r.err)
	}
	if v == nil {
		return nil
	}
	err := json.Unmarshal(r.b, v)
	if err != nil {
		return errors.EncodingError.WithFormat("decode %s result: %w", method, err)
	}
	return nil
}

func (c *RPCClient) GetRawTransaction(ctx context.Context, txid string) (*Transaction, error) {
	tx := new(Transaction)
	err := c.call(ctx, tx, "getrawtransaction", txid, 1)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (c *RPCClient) VerifyInstantLock(ctx context.Context, requestID, txid, signature string, maxHeight uint32) (bool, error) {
	var ok bool
	err := c.call(ctx, &ok, "verifyislock", requestID, txid, signature, maxHeight)
	return ok, err
}

func (c *RPCClient) GetBestChainLock(ctx context.Context) (*ChainLock, error) {
	cl := new(ChainLock)
	err := c.call(ctx, cl, "getbestchainlock")
	if err != nil {
		return nil, err
	}
	return cl, nil
}

func (c *RPCClient) GetMasternodeListDiff(ctx context.Context, baseHeight, height uint32) (*MasternodeListDiff, error) {
	diff := new(MasternodeListDiff)
	err := c.call(ctx, diff, "protx", "diff", baseHeight, height)
	if err != nil {
		return nil, err
	}
	return diff, nil
}
