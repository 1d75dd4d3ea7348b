package chain

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/crytic/forkbench/chain/config"
	"github.com/crytic/forkbench/chain/state"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/crytic/medusa-geth/core"
	"github.com/crytic/medusa-geth/core/vm"
	"github.com/crytic/medusa-geth/params"
	"golang.org/x/exp/slices"
)

var (
	// ErrCallReverted indicates the call finished with a REVERT.
	ErrCallReverted = errors.New("call reverted")
	// ErrCallFailed indicates the call could not be executed or halted with a VM fault other than a revert.
	ErrCallFailed = errors.New("call failed")
)

// CallError describes an unsuccessful execution. It matches ErrCallReverted or ErrCallFailed with errors.Is, as well
// as the underlying cause.
type CallError struct {
	// Kind is ErrCallReverted or ErrCallFailed.
	Kind error
	// Cause is the error reported by the EVM or the state lookup that aborted the call.
	Cause error
	// ReturnData holds the revert data, if any.
	ReturnData []byte
	GasUsed    uint64
}

func (e *CallError) Error() string {
	if len(e.ReturnData) > 0 {
		return fmt.Sprintf("%v: %v (data: %s)", e.Kind, e.Cause, hexutil.Encode(e.ReturnData))
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Cause)
}

func (e *CallError) Unwrap() []error {
	return []error{e.Kind, e.Cause}
}

// PinnedStateReader is a StateReader bound to a single block.
type PinnedStateReader interface {
	state.StateReader
	Block() uint64
	BlockTimestamp() (uint64, error)
}

/*
CallSession repeatedly executes one call against pinned state. Every execution starts from the same state: changes are
reverted afterwards, while values fetched through the reader stay cached. A CallSession is not safe for concurrent use.
*/
type CallSession struct {
	stateDB            *state.ForkedStateDB
	chainConfig        *params.ChainConfig
	vmConfigExtensions *vm.ConfigExtensions
	blockContext       vm.BlockContext

	caller   common.Address
	gasLimit uint64
	to       common.Address
	data     []byte
}

// NewCallSession binds a call of data to the contract at to, executed on top of reader's block. Unless the execution
// config overrides it, the block context carries the pinned block's own timestamp.
func NewCallSession(reader PinnedStateReader, execution *config.ExecutionConfig, to common.Address, data []byte) (*CallSession, error) {
	chainConfig, err := execution.ChainConfig()
	if err != nil {
		return nil, err
	}
	caller, err := execution.CallerAddress()
	if err != nil {
		return nil, err
	}
	stateDB, err := state.NewForkedStateDB(reader)
	if err != nil {
		return nil, err
	}

	timestamp := execution.BlockTimestamp
	if timestamp == 0 {
		timestamp, err = reader.BlockTimestamp()
		if err != nil {
			return nil, err
		}
	}

	return &CallSession{
		stateDB:            stateDB,
		chainConfig:        chainConfig,
		vmConfigExtensions: execution.GetVMConfigExtensions(),
		blockContext:       newPinnedBlockContext(reader, reader.Block(), timestamp, execution.GasLimit),
		caller:             caller,
		gasLimit:           execution.GasLimit,
		to:                 to,
		data:               slices.Clone(data),
	}, nil
}

// To returns the called address.
func (s *CallSession) To() common.Address {
	return s.to
}

// Data returns a copy of the call payload.
func (s *CallSession) Data() []byte {
	return slices.Clone(s.data)
}

// StateDB returns the adapter the session executes over.
func (s *CallSession) StateDB() *state.ForkedStateDB {
	return s.stateDB
}

// Execute runs the call once and returns its output and gas used. State changes made by the call are discarded before
// returning.
func (s *CallSession) Execute() (output []byte, gasUsed uint64, err error) {
	// Obtain our state snapshot to revert any changes after our call
	snapshot := s.stateDB.Snapshot()
	defer s.stateDB.RevertToSnapshot(snapshot)

	// State lookups have no error channel, so failures that abort the call arrive as panics.
	defer func() {
		if r := recover(); r != nil {
			output, gasUsed, err = nil, 0, recoveredCallError(r)
		}
	}()

	msg := &core.Message{
		To:        &s.to,
		From:      s.caller,
		Nonce:     s.stateDB.GetNonce(s.caller),
		Value:     new(big.Int),
		GasLimit:  s.gasLimit,
		GasPrice:  new(big.Int),
		GasFeeCap: new(big.Int),
		GasTipCap: new(big.Int),
		Data:      s.data,
	}

	evm := vm.NewEVM(s.blockContext, s.stateDB, s.chainConfig, vm.Config{
		NoBaseFee:        true,
		ConfigExtensions: s.vmConfigExtensions,
	})

	// Fund the gas pool, so it can execute endlessly (no block gas limit).
	gasPool := new(core.GasPool).AddGas(math.MaxUint64)

	result, err := core.ApplyMessage(evm, msg, gasPool)
	if err != nil {
		return nil, 0, &CallError{Kind: ErrCallFailed, Cause: err}
	}
	if result.Failed() {
		kind := ErrCallFailed
		if errors.Is(result.Err, vm.ErrExecutionReverted) {
			kind = ErrCallReverted
		}
		return nil, result.UsedGas, &CallError{
			Kind:       kind,
			Cause:      result.Err,
			ReturnData: slices.Clone(result.Revert()),
			GasUsed:    result.UsedGas,
		}
	}
	return slices.Clone(result.ReturnData), result.UsedGas, nil
}

// recoveredCallError converts a panic raised by a state lookup into a CallError. Any other panic is re-raised.
func recoveredCallError(r any) error {
	switch cause := r.(type) {
	case *state.FetchError:
		return &CallError{Kind: ErrCallFailed, Cause: cause}
	case *state.UnsupportedOperationError:
		return &CallError{Kind: ErrCallFailed, Cause: cause}
	}
	panic(r)
}
