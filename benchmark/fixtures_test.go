package benchmark

import (
	"errors"
	"sync"

	"github.com/crytic/forkbench/chain/config"
	"github.com/crytic/forkbench/chain/state"
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

/* This file is exclusively for test fixtures. */

var errFixtureUnavailable = errors.New("fixture: remote unavailable")

var (
	// tokenCode returns the value of mapping slot keccak256(holder . 0), where holder is the first argument.
	tokenCode = common.FromHex("0x600435600052600060205260406000205460005260206000f3")
	// revertCode reverts with no data.
	revertCode = common.FromHex("0x60006000fd")

	tokenAddress  = common.HexToAddress("0xDEf1CA1fb7FBcDC777520aa7f396b4E015F497aB")
	revertAddress = common.HexToAddress("0x00000000000000000000000000000000000000ee")
)

// fixtureSource is an offline RemoteSource holding contract code and storage. Every other value reads as zero.
type fixtureSource struct {
	lock sync.Mutex

	code    map[common.Address][]byte
	storage map[common.Address]map[common.Hash]common.Hash
	failing map[common.Address]bool

	requests int
}

func newFixtureSource() *fixtureSource {
	return &fixtureSource{
		code:    map[common.Address][]byte{tokenAddress: tokenCode, revertAddress: revertCode},
		storage: make(map[common.Address]map[common.Hash]common.Hash),
		failing: make(map[common.Address]bool),
	}
}

func (f *fixtureSource) BlockNumber() (uint64, error) {
	return 1_000, nil
}

func (f *fixtureSource) GetBalance(addr common.Address, block uint64) (*uint256.Int, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.requests++
	if f.failing[addr] {
		return nil, errFixtureUnavailable
	}
	return new(uint256.Int), nil
}

func (f *fixtureSource) GetTransactionCount(addr common.Address, block uint64) (uint64, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.requests++
	if f.failing[addr] {
		return 0, errFixtureUnavailable
	}
	return 0, nil
}

func (f *fixtureSource) GetCode(addr common.Address, block uint64) ([]byte, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.requests++
	if f.failing[addr] {
		return nil, errFixtureUnavailable
	}
	return append([]byte{}, f.code[addr]...), nil
}

func (f *fixtureSource) GetStorageAt(addr common.Address, slot common.Hash, block uint64) (common.Hash, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.requests++
	if f.failing[addr] {
		return common.Hash{}, errFixtureUnavailable
	}
	return f.storage[addr][slot], nil
}

func (f *fixtureSource) GetBlockTimestamp(block uint64) (uint64, error) {
	return 1_700_000_000, nil
}

func (f *fixtureSource) Requests() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.requests
}

func (f *fixtureSource) SetStorageAt(addr common.Address, slot common.Hash, value common.Hash) {
	if _, exists := f.storage[addr]; !exists {
		f.storage[addr] = make(map[common.Hash]common.Hash)
	}
	f.storage[addr][slot] = value
}

// leakyCache reports extra account misses from the third Stats call on, which a Driver observes as remote fetches
// made during its timed runs.
type leakyCache struct {
	*state.PinnedStateCache
	statsCalls  int
	extraMisses uint64
}

func (l *leakyCache) Stats() state.CacheStats {
	l.statsCalls++
	stats := l.PinnedStateCache.Stats()
	if l.statsCalls > 2 {
		stats.AccountMisses += l.extraMisses
	}
	return stats
}

func newFixtureCache(source state.RemoteSource, policy state.FailurePolicy) (*state.PinnedStateCache, error) {
	return state.NewPinnedStateCache(source, 100, nil, state.PinnedStateCacheOptions{FailurePolicy: policy})
}

func testExecutionConfig() *config.ExecutionConfig {
	execution := config.DefaultExecutionConfig()
	execution.BlockTimestamp = 1_700_000_000
	return &execution
}
