package chain

import (
	"errors"
	"math/big"
	"testing"

	"github.com/crytic/forkbench/chain/state"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/vm"
	"github.com/stretchr/testify/assert"
)

func newTestSession(t *testing.T, source state.RemoteSource, policy state.FailurePolicy, to common.Address, data []byte) (*CallSession, *state.PinnedStateCache) {
	pinned, err := state.NewPinnedStateCache(source, 100, nil, state.PinnedStateCacheOptions{FailurePolicy: policy})
	assert.NoError(t, err)
	session, err := NewCallSession(pinned, testExecutionConfig(), to, data)
	assert.NoError(t, err)
	return session, pinned
}

// TestCallSessionBalanceOf executes a mapping lookup against a mocked source pinned at block 100 and checks that the
// output is the stored balance, that repeated executions are identical, and that they cause no further requests.
func TestCallSessionBalanceOf(t *testing.T) {
	token := common.HexToAddress("0xDEf1CA1fb7FBcDC777520aa7f396b4E015F497aB")
	holder := common.HexToAddress("0x9008D19f58AAbD9eD0D60971565AA8510560ab41")
	balance := common.BigToHash(big.NewInt(257))

	source := newMockSource(105)
	source.SetCode(token, balanceOfCode)
	source.SetStorageAt(token, balanceSlot(holder), balance)

	session, pinned := newTestSession(t, source, state.FailurePolicyDefault, token, balanceOfCalldata(holder))

	output, gas, err := session.Execute()
	assert.NoError(t, err)
	assert.Equal(t, balance.Bytes(), output)
	assert.Greater(t, gas, uint64(21_000))

	requests := source.Requests()
	misses := pinned.Stats().Misses()
	assert.Greater(t, requests, 0)

	for i := 0; i < 10; i++ {
		again, againGas, err := session.Execute()
		assert.NoError(t, err)
		assert.Equal(t, output, again)
		assert.Equal(t, gas, againGas)
	}
	assert.Equal(t, requests, source.Requests())
	assert.Equal(t, misses, pinned.Stats().Misses())

	// a holder with no entry reads zero
	other, err := NewCallSession(pinned, testExecutionConfig(), token, balanceOfCalldata(common.Address{0x01}))
	assert.NoError(t, err)
	output, _, err = other.Execute()
	assert.NoError(t, err)
	assert.Equal(t, common.Hash{}.Bytes(), output)
	assert.Equal(t, requests+1, source.Requests())
}

// TestCallSessionDiscardsWrites ensures every execution starts from the pinned state.
func TestCallSessionDiscardsWrites(t *testing.T) {
	counter := common.Address{0xc0}
	source := newMockSource(105)
	source.SetCode(counter, incrementCode)
	source.SetStorageAt(counter, common.Hash{}, common.BigToHash(big.NewInt(32)))

	session, _ := newTestSession(t, source, state.FailurePolicyDefault, counter, nil)
	for i := 0; i < 3; i++ {
		output, _, err := session.Execute()
		assert.NoError(t, err)
		assert.Equal(t, common.BigToHash(big.NewInt(33)).Bytes(), output)
	}
	assert.Equal(t, common.BigToHash(big.NewInt(32)), session.StateDB().GetState(counter, common.Hash{}))
}

// TestCallSessionRevert ensures reverts surface as ErrCallReverted.
func TestCallSessionRevert(t *testing.T) {
	target := common.Address{0xee}
	source := newMockSource(105)
	source.SetCode(target, revertCode)

	session, _ := newTestSession(t, source, state.FailurePolicyDefault, target, nil)
	output, gas, err := session.Execute()
	assert.Nil(t, output)
	assert.Greater(t, gas, uint64(0))
	assert.ErrorIs(t, err, ErrCallReverted)
	assert.ErrorIs(t, err, vm.ErrExecutionReverted)

	var callErr *CallError
	assert.True(t, errors.As(err, &callErr))
	assert.Equal(t, gas, callErr.GasUsed)
}

// TestCallSessionUnsupportedBlockHash ensures BLOCKHASH aborts the call with ErrUnsupportedOperation.
func TestCallSessionUnsupportedBlockHash(t *testing.T) {
	target := common.Address{0xbb}
	source := newMockSource(105)
	source.SetCode(target, blockHashCode)

	session, _ := newTestSession(t, source, state.FailurePolicyDefault, target, nil)
	_, _, err := session.Execute()
	assert.ErrorIs(t, err, ErrCallFailed)
	assert.ErrorIs(t, err, state.ErrUnsupportedOperation)

	// the session is still usable afterwards
	_, _, err = session.Execute()
	assert.ErrorIs(t, err, state.ErrUnsupportedOperation)
}

// TestCallSessionFetchFailure compares the two failure policies for an unreachable contract.
func TestCallSessionFetchFailure(t *testing.T) {
	target := common.Address{0xfa}
	source := newMockSource(105)
	source.SetCode(target, revertCode)
	source.failing[target] = true

	// the default policy treats the contract as empty, so the call succeeds with no output
	session, pinned := newTestSession(t, source, state.FailurePolicyDefault, target, nil)
	output, _, err := session.Execute()
	assert.NoError(t, err)
	assert.Empty(t, output)
	assert.EqualValues(t, 1, pinned.Stats().AccountFailures)

	// the abort policy fails the call with the fetch error
	session, _ = newTestSession(t, source, state.FailurePolicyAbort, target, nil)
	_, _, err = session.Execute()
	assert.ErrorIs(t, err, ErrCallFailed)
	assert.ErrorIs(t, err, errFixtureUnavailable)

	var fetchErr *state.FetchError
	assert.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, target, fetchErr.Address)
	assert.EqualValues(t, 100, fetchErr.Block)
}

// TestCallSessionPinnedTimestamp ensures sessions without a configured timestamp use the pinned block's own, fetched
// once per cache.
func TestCallSessionPinnedTimestamp(t *testing.T) {
	source := newMockSource(105)
	pinned, err := state.NewPinnedStateCache(source, 100, nil, state.PinnedStateCacheOptions{})
	assert.NoError(t, err)

	execution := testExecutionConfig()
	execution.BlockTimestamp = 0
	for i := 0; i < 2; i++ {
		session, err := NewCallSession(pinned, execution, common.Address{0x01}, nil)
		assert.NoError(t, err)
		assert.EqualValues(t, mockBlockTimestamp, session.blockContext.Time)
		assert.EqualValues(t, 100, session.blockContext.BlockNumber.Uint64())
	}
	assert.Equal(t, 1, source.TimestampRequests())

	// a configured timestamp is used as is
	session, err := NewCallSession(pinned, testExecutionConfig(), common.Address{0x01}, nil)
	assert.NoError(t, err)
	assert.EqualValues(t, 1_700_000_000, session.blockContext.Time)
}
