package chain

import (
	"errors"
	"sync"

	"github.com/crytic/forkbench/chain/config"
	"github.com/crytic/forkbench/chain/state"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/crypto"
	"github.com/holiman/uint256"
)

/* This file is exclusively for test fixtures. */

var errFixtureUnavailable = errors.New("fixture: remote unavailable")

var _ state.RemoteSource = (*mockSource)(nil)

// mockSource is an offline RemoteSource that serves a fixed set of contracts and slots and counts state requests.
type mockSource struct {
	lock sync.Mutex

	head    uint64
	code    map[common.Address][]byte
	storage map[common.Address]map[common.Hash]common.Hash
	failing map[common.Address]bool

	requests          int
	timestampRequests int
}

// mockBlockTimestamp is the timestamp mockSource reports for every block.
const mockBlockTimestamp = 1_650_000_000

func newMockSource(head uint64) *mockSource {
	return &mockSource{
		head:    head,
		code:    make(map[common.Address][]byte),
		storage: make(map[common.Address]map[common.Hash]common.Hash),
		failing: make(map[common.Address]bool),
	}
}

func (m *mockSource) BlockNumber() (uint64, error) {
	return m.head, nil
}

func (m *mockSource) GetBalance(addr common.Address, block uint64) (*uint256.Int, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.requests++
	if m.failing[addr] {
		return nil, errFixtureUnavailable
	}
	return new(uint256.Int), nil
}

func (m *mockSource) GetTransactionCount(addr common.Address, block uint64) (uint64, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.requests++
	if m.failing[addr] {
		return 0, errFixtureUnavailable
	}
	if len(m.code[addr]) > 0 {
		return 1, nil
	}
	return 0, nil
}

func (m *mockSource) GetCode(addr common.Address, block uint64) ([]byte, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.requests++
	if m.failing[addr] {
		return nil, errFixtureUnavailable
	}
	return append([]byte{}, m.code[addr]...), nil
}

func (m *mockSource) GetStorageAt(addr common.Address, slot common.Hash, block uint64) (common.Hash, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.requests++
	if m.failing[addr] {
		return common.Hash{}, errFixtureUnavailable
	}
	return m.storage[addr][slot], nil
}

// GetBlockTimestamp serves mockBlockTimestamp for every block without counting a state request.
func (m *mockSource) GetBlockTimestamp(block uint64) (uint64, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.timestampRequests++
	return mockBlockTimestamp, nil
}

func (m *mockSource) Requests() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.requests
}

func (m *mockSource) TimestampRequests() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.timestampRequests
}

func (m *mockSource) SetCode(addr common.Address, code []byte) {
	m.code[addr] = code
}

func (m *mockSource) SetStorageAt(addr common.Address, slot common.Hash, value common.Hash) {
	if _, exists := m.storage[addr]; !exists {
		m.storage[addr] = make(map[common.Hash]common.Hash)
	}
	m.storage[addr][slot] = value
}

var (
	// balanceOfCode returns the value of mapping slot keccak256(holder . 0), where holder is the first argument.
	balanceOfCode = common.FromHex("0x600435600052600060205260406000205460005260206000f3")
	// incrementCode stores slot 0 + 1 into slot 0 and returns the new value.
	incrementCode = common.FromHex("0x60005460010160005560005460005260206000f3")
	// revertCode reverts with no data.
	revertCode = common.FromHex("0x60006000fd")
	// blockHashCode reads the hash of block 0.
	blockHashCode = common.FromHex("0x6000400000")

	balanceOfSelector = common.FromHex("0x70a08231")
)

// balanceSlot returns the storage slot holding holder's entry of a mapping declared at slot 0.
func balanceSlot(holder common.Address) common.Hash {
	return crypto.Keccak256Hash(common.LeftPadBytes(holder.Bytes(), 32), make([]byte, 32))
}

func balanceOfCalldata(holder common.Address) []byte {
	return append(append([]byte{}, balanceOfSelector...), common.LeftPadBytes(holder.Bytes(), 32)...)
}

func testExecutionConfig() *config.ExecutionConfig {
	execution := config.DefaultExecutionConfig()
	execution.BlockTimestamp = 1_700_000_000
	return &execution
}
