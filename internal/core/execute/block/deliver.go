// Copyright 2024 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package block

import (
	"context"
	"strconv"

	"github.com/cometbft/cometbft/libs/log"
	"gitlab.com/accumulatenetwork/platform/internal/core/execute"
	"gitlab.com/accumulatenetwork/platform/internal/core/execute/chain"
	"gitlab.com/accumulatenetwork/platform/internal/core/validation"
	"gitlab.com/accumulatenetwork/platform/internal/logging"
	"gitlab.com/accumulatenetwork/platform/pkg/errors"
	"gitlab.com/accumulatenetwork/platform/protocol"
	"gitlab.com/accumulatenetwork/platform/protocol/consensus"
	"google.golang.org/grpc/codes"
)

// TxResult is the outcome of delivering or checking a state transition.
// A zero code means the transition was accepted.
type TxResult struct {
	Code   uint32
	Log    string
	Info   string
	Data   []byte
	Fee    uint64
	Events []Event
}

// Event is an indexed event emitted for an accepted transition.
type Event struct {
	Type       string
	Attributes []EventAttribute
}

type EventAttribute struct {
	Key   string
	Value string
}

// IsOK returns true if the transition was accepted.
func (r *TxResult) IsOK() bool { return r.Code == 0 }

func rejected(err consensus.Error) (*TxResult, error) {
	data, e := consensus.Marshal(err)
	if e != nil {
		return nil, errors.EncodingError.WithFormat("encode %v: %w", err.Code(), e)
	}
	return &TxResult{
		Code: uint32(err.Code()),
		Log:  err.Error(),
		Info: err.Code().String(),
		Data: data,
	}, nil
}

// decode unmarshals a state transition. Malformed input is a consensus
// error.
func decode(raw []byte) (protocol.StateTransition, consensus.Error, error) {
	st, err := protocol.UnmarshalStateTransition(raw)
	if err == nil {
		return st, nil, nil
	}
	if cerr, ok := consensus.FromDecodeError(err); ok {
		return nil, cerr, nil
	}
	return nil, &consensus.SerializedObjectParsingError{ParsingError: err.Error()}, nil
}

// validate runs the validation pipeline and stops at the first stage that
// fails. Errors are not rule violations and must not be reported to the
// sender as such.
func (x *Executor) validate(ctx context.Context, env *chain.Env, st protocol.StateTransition) (chain.TransitionExecutor, *validation.Result, error) {
	executor, ok := x.executors[st.Type()]
	if !ok {
		return nil, validation.New(&consensus.InvalidStateTransitionTypeError{Type: uint64(st.Type())}), nil
	}

	result := executor.ValidateBasic(st)
	if !result.IsValid() {
		return executor, result, nil
	}

	result, err := executor.ValidateSignature(ctx, env, st)
	if err != nil || !result.IsValid() {
		return executor, result, err
	}

	result, err = executor.ValidateState(ctx, env, st)
	if err != nil || !result.IsValid() {
		return executor, result, err
	}

	result, err = chain.ValidateFee(ctx, env, st)
	return executor, result, err
}

// DeliverTx validates and applies a state transition within the current
// block. A transition that violates a rule is rejected and leaves no trace
// in state. A returned error is fatal.
func (x *Executor) DeliverTx(ctx context.Context, raw []byte) (*TxResult, error) {
	header, err := x.requireBlock()
	if err != nil {
		return nil, err
	}
	if x.ended {
		return nil, errors.NotAllowed.WithFormat("block %d has ended", header.Height)
	}
	logger := x.methodLogger("deliverTx")

	st, cerr, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if cerr != nil {
		logger.Info("Invalid state transition", "code", cerr.Code(), "error", cerr)
		x.stats.invalid++
		deliveredTxs.WithLabelValues("invalid").Inc()
		return rejected(cerr)
	}
	logger = logger.With("type", st.Type(), "owner", st.OwnerID())

	exec := protocol.NewExecutionContext()
	st.SetExecutionContext(exec)

	err = x.store.Savepoint()
	if err != nil {
		return nil, errors.FatalError.WithFormat("open savepoint: %w", err)
	}

	res, err := x.deliver1(ctx, logger, st)
	if err != nil || !res.IsOK() {
		e2 := x.store.RollbackToSavepoint()
		if e2 != nil {
			return nil, errors.FatalError.WithFormat("roll back savepoint: %w", e2)
		}
		if err != nil {
			return nil, err
		}
		x.stats.invalid++
		deliveredTxs.WithLabelValues("invalid").Inc()
		return res, nil
	}

	err = x.store.ReleaseSavepoint()
	if err != nil {
		return nil, errors.FatalError.WithFormat("release savepoint: %w", err)
	}

	x.stats.valid++
	deliveredTxs.WithLabelValues("valid").Inc()
	return res, nil
}

func (x *Executor) deliver1(ctx context.Context, logger log.Logger, st protocol.StateTransition) (*TxResult, error) {
	env := x.env()
	executor, result, err := x.validate(ctx, env, st)
	if err != nil {
		return nil, errors.FatalError.WithFormat("validate %v: %w", st.Type(), err)
	}
	if !result.IsValid() {
		cerr := result.FirstError()
		logger.Info("Invalid state transition", "code", cerr.Code(), "error", cerr)
		return rejected(cerr)
	}

	err = executor.Apply(ctx, env, st)
	switch {
	case err == nil:
	case errors.Is(err, errors.FatalError):
		return nil, err
	default:
		// The transition passed validation so a failure to apply it is a
		// fault in the node, not in the transition
		logger.Error("Failed to apply state transition", "error", err)
		return &TxResult{Code: uint32(codes.Internal), Log: err.Error(), Info: codes.Internal.String()}, nil
	}

	fee, err := x.chargeFee(ctx, st)
	if err != nil {
		return nil, err
	}

	logger.Debug("State transition applied", "fee", fee)
	return &TxResult{
		Fee:    fee,
		Events: []Event{transitionEvent(st, fee)},
	}, nil
}

// chargeFee deducts the fee of the recorded operations from the owner. The
// balance never goes negative so the charge may be less than the fee.
func (x *Executor) chargeFee(ctx context.Context, st protocol.StateTransition) (uint64, error) {
	fee := st.ExecutionContext().Fee()
	if fee == 0 {
		return 0, nil
	}

	identity, err := x.deliver.FetchIdentity(ctx, st.OwnerID(), nil)
	if err != nil {
		return 0, errors.UnknownError.WithFormat("load owner %v: %w", st.OwnerID(), err)
	}
	if identity == nil {
		return 0, errors.InternalError.WithFormat("owner %v of an applied transition does not exist", st.OwnerID())
	}

	charged := identity.ReduceBalance(fee)
	err = x.deliver.StoreIdentity(ctx, identity, nil)
	if err != nil {
		return 0, errors.UnknownError.WithFormat("store owner %v: %w", st.OwnerID(), err)
	}

	x.block.IncrementCumulativeFees(charged)
	return charged, nil
}

func transitionEvent(st protocol.StateTransition, fee uint64) Event {
	return Event{
		Type: "stateTransition",
		Attributes: []EventAttribute{
			{Key: "type", Value: st.Type().String()},
			{Key: "owner", Value: st.OwnerID().String()},
			{Key: "fee", Value: strconv.FormatUint(fee, 10)},
		},
	}
}

// CheckTx validates a state transition against the committed state and
// estimates its fee. Nothing is written.
func (x *Executor) CheckTx(ctx context.Context, raw []byte) (*TxResult, error) {
	st, cerr, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if cerr != nil {
		return rejected(cerr)
	}

	exec := protocol.NewExecutionContext()
	exec.EnableDryRun()
	st.SetExecutionContext(exec)

	env := &chain.Env{Repository: x.check, Block: execute.NewBlockExecutionContext()}
	if latest := x.stack.GetFirst(); latest != nil {
		env.Block.SetHeader(latest.Header())
	}

	executor, result, err := x.validate(ctx, env, st)
	if err != nil {
		return nil, err
	}
	if !result.IsValid() {
		return rejected(result.FirstError())
	}

	err = executor.Apply(ctx, env, st)
	if err != nil {
		return nil, errors.UnknownError.WithFormat("estimate %v: %w", st.Type(), err)
	}

	hash := protocol.DoubleSHA256(raw)
	x.logger.Debug("Checked state transition", "type", st.Type(), "owner", st.OwnerID(), "fee", exec.Fee(),
		"hash", logging.AsHex(hash[:]))
	return &TxResult{Fee: exec.Fee()}, nil
}
