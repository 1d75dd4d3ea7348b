package chain

import (
	"math/big"

	"github.com/crytic/forkbench/chain/state"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core"
	"github.com/crytic/medusa-geth/core/vm"
)

// newPinnedBlockContext obtains a vm.BlockContext for executing calls on top of the pinned block. Block hash lookups
// are routed to the reader, which does not support them.
func newPinnedBlockContext(reader state.StateReader, block uint64, timestamp uint64, gasLimit uint64) vm.BlockContext {
	random := common.Hash{}
	return vm.BlockContext{
		CanTransfer: core.CanTransfer,
		Transfer:    core.Transfer,
		GetHash:     reader.BlockHash,
		Coinbase:    common.Address{},
		BlockNumber: new(big.Int).SetUint64(block),
		Time:        timestamp,
		Difficulty:  new(big.Int),
		BaseFee:     new(big.Int),
		BlobBaseFee: new(big.Int),
		GasLimit:    gasLimit,
		Random:      &random,
	}
}
