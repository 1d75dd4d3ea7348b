package state

import (
	"errors"
	"sync"

	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

/* This file is exclusively for test fixtures. */

var _ RemoteSource = (*prePopulatedSource)(nil)

// errFixtureUnavailable is returned by the fixture for addresses or slots marked as failing.
var errFixtureUnavailable = errors.New("fixture: remote unavailable")

type fixtureAccount struct {
	Balance *uint256.Int
	Nonce   uint64
	Code    []byte
}

// prePopulatedSource is an offline-only RemoteSource that counts requests and records the block of each one.
type prePopulatedSource struct {
	lock sync.Mutex

	head         uint64
	accounts     map[common.Address]fixtureAccount
	storageSlots map[common.Address]map[common.Hash]common.Hash

	failingAccounts map[common.Address]bool
	failingSlots    map[common.Address]map[common.Hash]bool

	calls          map[string]int
	requestedBlock []uint64
}

func newPrePopulatedSource(head uint64) *prePopulatedSource {
	return &prePopulatedSource{
		head:            head,
		accounts:        make(map[common.Address]fixtureAccount),
		storageSlots:    make(map[common.Address]map[common.Hash]common.Hash),
		failingAccounts: make(map[common.Address]bool),
		failingSlots:    make(map[common.Address]map[common.Hash]bool),
		calls:           make(map[string]int),
	}
}

func (p *prePopulatedSource) record(method string, block uint64) {
	p.calls[method]++
	p.requestedBlock = append(p.requestedBlock, block)
}

func (p *prePopulatedSource) BlockNumber() (uint64, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.calls["eth_blockNumber"]++
	return p.head, nil
}

func (p *prePopulatedSource) GetBalance(addr common.Address, block uint64) (*uint256.Int, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.record("eth_getBalance", block)
	if p.failingAccounts[addr] {
		return nil, errFixtureUnavailable
	}
	if account, ok := p.accounts[addr]; ok && account.Balance != nil {
		return new(uint256.Int).Set(account.Balance), nil
	}
	return new(uint256.Int), nil
}

func (p *prePopulatedSource) GetTransactionCount(addr common.Address, block uint64) (uint64, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.record("eth_getTransactionCount", block)
	if p.failingAccounts[addr] {
		return 0, errFixtureUnavailable
	}
	return p.accounts[addr].Nonce, nil
}

func (p *prePopulatedSource) GetCode(addr common.Address, block uint64) ([]byte, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.record("eth_getCode", block)
	if p.failingAccounts[addr] {
		return nil, errFixtureUnavailable
	}
	return append([]byte{}, p.accounts[addr].Code...), nil
}

func (p *prePopulatedSource) GetStorageAt(addr common.Address, slot common.Hash, block uint64) (common.Hash, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.record("eth_getStorageAt", block)
	if p.failingSlots[addr][slot] {
		return common.Hash{}, errFixtureUnavailable
	}
	return p.storageSlots[addr][slot], nil
}

func (p *prePopulatedSource) GetBlockTimestamp(block uint64) (uint64, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.calls["eth_getBlockByNumber"]++
	return fixtureBlockTimestamp(block), nil
}

// fixtureBlockTimestamp returns the timestamp the fixture reports for block.
func fixtureBlockTimestamp(block uint64) uint64 {
	return 1_600_000_000 + 12*block
}

func (p *prePopulatedSource) SetAccount(addr common.Address, account fixtureAccount) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.accounts[addr] = account
}

func (p *prePopulatedSource) SetStorageAt(addr common.Address, slot common.Hash, value common.Hash) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if _, exists := p.storageSlots[addr]; !exists {
		p.storageSlots[addr] = make(map[common.Hash]common.Hash)
	}
	p.storageSlots[addr][slot] = value
}

func (p *prePopulatedSource) FailAccount(addr common.Address) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.failingAccounts[addr] = true
}

func (p *prePopulatedSource) FailSlot(addr common.Address, slot common.Hash) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if _, exists := p.failingSlots[addr]; !exists {
		p.failingSlots[addr] = make(map[common.Hash]bool)
	}
	p.failingSlots[addr][slot] = true
}

func (p *prePopulatedSource) SetHead(head uint64) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.head = head
}

// Calls returns the number of requests issued for method.
func (p *prePopulatedSource) Calls(method string) int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.calls[method]
}

// StateCalls returns the number of state requests issued, excluding head lookups.
func (p *prePopulatedSource) StateCalls() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.requestedBlock)
}

// RequestedBlocks returns the block of every state request issued so far.
func (p *prePopulatedSource) RequestedBlocks() []uint64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]uint64{}, p.requestedBlock...)
}

// prePopulatedSourceFixture is a test fixture for a pre-populated source
type prePopulatedSourceFixture struct {
	Source *prePopulatedSource

	ContractAddress common.Address
	Contract        fixtureAccount

	StorageSlotPopulatedKey  common.Hash
	StorageSlotPopulatedData common.Hash

	StorageSlotEmptyKey common.Hash

	EOAAddress common.Address
	EOA        fixtureAccount

	EmptyAddress common.Address
}

func newPrePopulatedSourceFixture(head uint64) *prePopulatedSourceFixture {
	contract := fixtureAccount{
		Balance: uint256.NewInt(1000),
		Nonce:   5,
		Code:    []byte{0x60, 0x00, 0x54, 0x00},
	}
	eoa := fixtureAccount{
		Balance: uint256.NewInt(5000),
		Nonce:   1,
	}

	contractAddress := common.BytesToAddress([]byte{5, 5, 5, 5})
	eoaAddress := common.BytesToAddress([]byte{6, 6, 6, 6})
	emptyAddress := common.BytesToAddress([]byte{0, 0, 0, 1})

	populatedKey := common.HexToHash("0xaaaaaaaa")
	populatedData := common.HexToHash("0xdeadbeef")
	emptyKey := common.HexToHash("0xbbbbbbbbb")

	source := newPrePopulatedSource(head)
	source.SetAccount(contractAddress, contract)
	source.SetAccount(eoaAddress, eoa)
	source.SetStorageAt(contractAddress, populatedKey, populatedData)

	return &prePopulatedSourceFixture{
		Source:                   source,
		ContractAddress:          contractAddress,
		Contract:                 contract,
		StorageSlotPopulatedKey:  populatedKey,
		StorageSlotPopulatedData: populatedData,
		StorageSlotEmptyKey:      emptyKey,
		EOAAddress:               eoaAddress,
		EOA:                      eoa,
		EmptyAddress:             emptyAddress,
	}
}
