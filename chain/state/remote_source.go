package state

import (
	"context"
	"fmt"
	"strings"

	"github.com/crytic/forkbench/chain/state/rpc"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/holiman/uint256"
)

/*
RemoteSource defines an interface for fetching historical chain state from a node. Every method performs exactly one
round trip and caches nothing: a returned error means the value is unknown, never that it is zero.
*/
type RemoteSource interface {
	BlockNumber() (uint64, error)
	GetBalance(addr common.Address, block uint64) (*uint256.Int, error)
	GetTransactionCount(addr common.Address, block uint64) (uint64, error)
	GetCode(addr common.Address, block uint64) ([]byte, error)
	GetStorageAt(addr common.Address, slot common.Hash, block uint64) (common.Hash, error)
	GetBlockTimestamp(block uint64) (uint64, error)
}

var _ RemoteSource = (*RPCSource)(nil)

// RPCSource is a RemoteSource backed by a JSON-RPC endpoint.
type RPCSource struct {
	context    context.Context
	clientPool *rpc.ClientPool
}

// NewRPCSource dials poolSize clients to url. Requests issued through the source are cancelled with ctx.
func NewRPCSource(ctx context.Context, url string, poolSize uint) (*RPCSource, error) {
	clientPool, err := rpc.NewClientPool(ctx, url, poolSize)
	if err != nil {
		return nil, err
	}
	return &RPCSource{
		context:    ctx,
		clientPool: clientPool,
	}, nil
}

// Endpoint returns the URL the source is connected to.
func (r *RPCSource) Endpoint() string {
	return r.clientPool.Endpoint()
}

// Close releases the underlying connections.
func (r *RPCSource) Close() {
	r.clientPool.Close()
}

// BlockNumber returns the current head of the chain.
func (r *RPCSource) BlockNumber() (uint64, error) {
	var result hexutil.Uint64
	err := r.clientPool.ExecuteRequestBlocking(r.context, &result, "eth_blockNumber")
	if err != nil {
		return 0, err
	}
	return uint64(result), nil
}

func (r *RPCSource) GetBalance(addr common.Address, block uint64) (*uint256.Int, error) {
	var result hexutil.Big
	err := r.clientPool.ExecuteRequestBlocking(r.context, &result, "eth_getBalance", addr, hexutil.Uint64(block))
	if err != nil {
		return nil, err
	}
	balance, overflow := uint256.FromBig(result.ToInt())
	if overflow {
		return nil, fmt.Errorf("balance of %s exceeds 256 bits", addr.Hex())
	}
	return balance, nil
}

func (r *RPCSource) GetTransactionCount(addr common.Address, block uint64) (uint64, error) {
	var result hexutil.Uint64
	err := r.clientPool.ExecuteRequestBlocking(r.context, &result, "eth_getTransactionCount", addr, hexutil.Uint64(block))
	if err != nil {
		return 0, err
	}
	return uint64(result), nil
}

// GetCode returns the code of addr. Accounts without code yield an empty slice.
func (r *RPCSource) GetCode(addr common.Address, block uint64) ([]byte, error) {
	var result hexutil.Bytes
	err := r.clientPool.ExecuteRequestBlocking(r.context, &result, "eth_getCode", addr, hexutil.Uint64(block))
	if err != nil {
		return nil, err
	}
	return result, nil
}

/*
GetStorageAt returns the value of a storage slot. Note that nodes return zero for slots that have never been written to
or belong to undeployed contracts. Values are accepted both as padded words and as minimal quantities such as "0x0".
*/
func (r *RPCSource) GetStorageAt(addr common.Address, slot common.Hash, block uint64) (common.Hash, error) {
	var result string
	err := r.clientPool.ExecuteRequestBlocking(r.context, &result, "eth_getStorageAt", addr, slot, hexutil.Uint64(block))
	if err != nil {
		return common.Hash{}, err
	}
	value, err := decodeStorageValue(result)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid storage value of %s at %s: %w", addr.Hex(), slot.Hex(), err)
	}
	return value, nil
}

// GetBlockTimestamp returns the timestamp of block.
func (r *RPCSource) GetBlockTimestamp(block uint64) (uint64, error) {
	var result struct {
		Timestamp hexutil.Uint64 `json:"timestamp"`
	}
	err := r.clientPool.ExecuteRequestBlocking(r.context, &result, "eth_getBlockByNumber", hexutil.Uint64(block), false)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch block %d: %w", block, err)
	}
	return uint64(result.Timestamp), nil
}

// decodeStorageValue parses a 0x-prefixed hex value of at most 32 bytes, with or without leading zeros.
func decodeStorageValue(s string) (common.Hash, error) {
	digits, ok := strings.CutPrefix(s, "0x")
	if !ok {
		digits, ok = strings.CutPrefix(s, "0X")
	}
	if !ok {
		return common.Hash{}, fmt.Errorf("%q lacks the 0x prefix", s)
	}
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}
	data, err := hexutil.Decode("0x" + digits)
	if err != nil {
		return common.Hash{}, err
	}
	if len(data) > common.HashLength {
		return common.Hash{}, fmt.Errorf("%s exceeds 32 bytes", s)
	}
	return common.BytesToHash(data), nil
}
