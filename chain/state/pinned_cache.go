package state

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/crytic/forkbench/chain/state/cache"
	"github.com/crytic/forkbench/logging"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/types"
	"github.com/crytic/medusa-geth/crypto"
	"github.com/holiman/uint256"
	"golang.org/x/exp/slices"
)

// AccountRecord is the pinned view of an account at the reference block.
type AccountRecord struct {
	Balance  *uint256.Int
	Nonce    uint64
	Code     []byte
	CodeHash common.Hash
}

// DefaultAccountRecord returns the record substituted for an account that could not be fetched.
func DefaultAccountRecord() AccountRecord {
	return AccountRecord{
		Balance:  new(uint256.Int),
		CodeHash: types.EmptyCodeHash,
	}
}

// IsEmpty reports whether the record has zero balance, zero nonce and no code.
func (a AccountRecord) IsEmpty() bool {
	return (a.Balance == nil || a.Balance.IsZero()) && a.Nonce == 0 && len(a.Code) == 0
}

// Copy returns a deep copy of the record.
func (a AccountRecord) Copy() AccountRecord {
	c := AccountRecord{
		Balance:  new(uint256.Int),
		Nonce:    a.Nonce,
		Code:     slices.Clone(a.Code),
		CodeHash: a.CodeHash,
	}
	if a.Balance != nil {
		c.Balance.Set(a.Balance)
	}
	return c
}

// FailurePolicy decides what the cache does when a remote fetch fails.
type FailurePolicy string

const (
	// FailurePolicyDefault substitutes a zero value, remembers it in memory and reports the failure.
	FailurePolicyDefault FailurePolicy = "default"
	// FailurePolicyAbort reports the failure and panics with the *FetchError.
	FailurePolicyAbort FailurePolicy = "abort"
)

// ParseFailurePolicy converts a configuration string into a FailurePolicy. An empty string selects the default.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", FailurePolicyDefault:
		return FailurePolicyDefault, nil
	case FailurePolicyAbort:
		return FailurePolicyAbort, nil
	}
	return "", fmt.Errorf("unknown failure policy %q (expected %q or %q)", s, FailurePolicyDefault, FailurePolicyAbort)
}

// ErrorReporter receives every failed remote fetch.
type ErrorReporter func(err *FetchError)

// PinnedStateCacheOptions configures a PinnedStateCache. The zero value is usable.
type PinnedStateCacheOptions struct {
	FailurePolicy FailurePolicy
	ErrorReporter ErrorReporter
	Logger        *logging.Logger
}

// CacheStats counts lookups served by a PinnedStateCache.
type CacheStats struct {
	AccountHits     uint64 `json:"accountHits"`
	AccountMisses   uint64 `json:"accountMisses"`
	AccountFailures uint64 `json:"accountFailures"`
	StorageHits     uint64 `json:"storageHits"`
	StorageMisses   uint64 `json:"storageMisses"`
	StorageFailures uint64 `json:"storageFailures"`
}

// Misses returns the number of lookups that went to the remote source.
func (s CacheStats) Misses() uint64 {
	return s.AccountMisses + s.StorageMisses
}

// Sub returns the counters accumulated since an earlier snapshot of the same cache.
func (s CacheStats) Sub(earlier CacheStats) CacheStats {
	return CacheStats{
		AccountHits:     s.AccountHits - earlier.AccountHits,
		AccountMisses:   s.AccountMisses - earlier.AccountMisses,
		AccountFailures: s.AccountFailures - earlier.AccountFailures,
		StorageHits:     s.StorageHits - earlier.StorageHits,
		StorageMisses:   s.StorageMisses - earlier.StorageMisses,
		StorageFailures: s.StorageFailures - earlier.StorageFailures,
	}
}

type slotKey struct {
	addr common.Address
	slot common.Hash
}

var _ StateReader = (*PinnedStateCache)(nil)

/*
PinnedStateCache serves account and storage lookups for a single reference block. The first lookup of a key fetches
it from the RemoteSource at the reference block, and every later lookup of that key returns the same value without
any remote activity. Entries are never evicted. The cache is safe for concurrent use; concurrent fillers of one key
converge on the first value inserted.
*/
type PinnedStateCache struct {
	source RemoteSource
	block  uint64
	store  cache.StateCache

	policy   FailurePolicy
	reporter ErrorReporter
	logger   *logging.Logger

	// held keeps values that live in memory only: defaults substituted for failed fetches, which a persistent store
	// must never record, and fetched values the store failed to take.
	heldLock     sync.RWMutex
	heldAccounts map[common.Address]AccountRecord
	heldSlots    map[slotKey]common.Hash

	timestampLock sync.Mutex
	timestamp     *uint64

	accountHits, accountMisses, accountFailures atomic.Uint64
	storageHits, storageMisses, storageFailures atomic.Uint64
}

// NewPinnedStateCache creates a cache pinned to block. A nil store selects an in-memory store.
func NewPinnedStateCache(source RemoteSource, block uint64, store cache.StateCache, opts PinnedStateCacheOptions) (*PinnedStateCache, error) {
	if source == nil {
		return nil, errors.New("pinned state cache requires a remote source")
	}
	policy, err := ParseFailurePolicy(string(opts.FailurePolicy))
	if err != nil {
		return nil, err
	}
	if store == nil {
		store = cache.NewInMemoryStateCache()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GlobalLogger.NewSubLogger("module", logging.CACHE_SERVICE)
	}
	return &PinnedStateCache{
		source:              source,
		block:               block,
		store:               store,
		policy:              policy,
		reporter:            opts.ErrorReporter,
		logger:              logger,
		heldAccounts:        make(map[common.Address]AccountRecord),
		heldSlots:           make(map[slotKey]common.Hash),
	}, nil
}

// NewPinnedStateCacheAtHead queries the current head once and pins the cache to head - offset.
func NewPinnedStateCacheAtHead(source RemoteSource, offset uint64, store cache.StateCache, opts PinnedStateCacheOptions) (*PinnedStateCache, error) {
	if source == nil {
		return nil, errors.New("pinned state cache requires a remote source")
	}
	block, err := ResolvePinnedBlock(source, 0, offset)
	if err != nil {
		return nil, err
	}
	return NewPinnedStateCache(source, block, store, opts)
}

// ResolvePinnedBlock returns block if it is non-zero. Otherwise, it queries the current head once and returns
// head - offset.
func ResolvePinnedBlock(source RemoteSource, block uint64, offset uint64) (uint64, error) {
	if block != 0 {
		return block, nil
	}
	head, err := source.BlockNumber()
	if err != nil {
		return 0, fmt.Errorf("failed to fetch the current block number: %w", err)
	}
	if head < offset {
		return 0, fmt.Errorf("chain head %d is below the block offset %d", head, offset)
	}
	return head - offset, nil
}

// Block returns the reference block every remote read is issued against.
func (c *PinnedStateCache) Block() uint64 {
	return c.block
}

// BlockTimestamp returns the timestamp of the reference block. It is fetched on first use and remembered once known.
func (c *PinnedStateCache) BlockTimestamp() (uint64, error) {
	c.timestampLock.Lock()
	defer c.timestampLock.Unlock()
	if c.timestamp != nil {
		return *c.timestamp, nil
	}
	timestamp, err := c.source.GetBlockTimestamp(c.block)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch the timestamp of block %d: %w", c.block, err)
	}
	c.timestamp = &timestamp
	return timestamp, nil
}

// Stats returns a snapshot of the lookup counters.
func (c *PinnedStateCache) Stats() CacheStats {
	return CacheStats{
		AccountHits:     c.accountHits.Load(),
		AccountMisses:   c.accountMisses.Load(),
		AccountFailures: c.accountFailures.Load(),
		StorageHits:     c.storageHits.Load(),
		StorageMisses:   c.storageMisses.Load(),
		StorageFailures: c.storageFailures.Load(),
	}
}

// Close closes the underlying store.
func (c *PinnedStateCache) Close() error {
	return c.store.Close()
}

// Account returns the pinned record for addr, fetching code, balance and nonce on first access.
func (c *PinnedStateCache) Account(addr common.Address) AccountRecord {
	if record, ok := c.lookupAccount(addr); ok {
		c.accountHits.Add(1)
		return record
	}
	c.accountMisses.Add(1)

	record, err := c.fetchAccount(addr)
	if err != nil {
		c.accountFailures.Add(1)
		return c.handleAccountFailure(&FetchError{Kind: FetchKindAccount, Address: addr, Block: c.block, Err: err})
	}

	retained, err := c.store.InsertAccount(addr, cache.Account{
		Balance:  record.Balance,
		Nonce:    record.Nonce,
		Code:     record.Code,
		CodeHash: record.CodeHash,
	})
	if err != nil {
		c.logger.Warn("Failed to store account ", addr.Hex(), " in the state cache, keeping it in memory", err)
		return c.holdAccount(addr, record)
	}
	return accountRecordFromCache(&retained)
}

// Storage returns the pinned value of slot in addr's storage, fetching it on first access.
func (c *PinnedStateCache) Storage(addr common.Address, slot common.Hash) common.Hash {
	if value, ok := c.lookupStorage(addr, slot); ok {
		c.storageHits.Add(1)
		return value
	}
	c.storageMisses.Add(1)

	value, err := c.source.GetStorageAt(addr, slot, c.block)
	if err != nil {
		c.storageFailures.Add(1)
		return c.handleStorageFailure(&FetchError{Kind: FetchKindStorage, Address: addr, Slot: slot, Block: c.block, Err: err})
	}

	retained, err := c.store.InsertSlot(addr, slot, value)
	if err != nil {
		c.logger.Warn("Failed to store slot ", slot.Hex(), " of ", addr.Hex(), " in the state cache, keeping it in memory", err)
		return c.holdSlot(slotKey{addr, slot}, value)
	}
	return retained
}

// CodeByHash is not supported: code is only ever fetched by address.
func (c *PinnedStateCache) CodeByHash(hash common.Hash) []byte {
	panic(&UnsupportedOperationError{Operation: "CodeByHash", Detail: hash.Hex()})
}

// BlockHash is not supported: block hashes are never fetched.
func (c *PinnedStateCache) BlockHash(number uint64) common.Hash {
	panic(&UnsupportedOperationError{Operation: "BlockHash", Detail: fmt.Sprintf("%d", number)})
}

func (c *PinnedStateCache) lookupAccount(addr common.Address) (AccountRecord, bool) {
	c.heldLock.RLock()
	record, ok := c.heldAccounts[addr]
	c.heldLock.RUnlock()
	if ok {
		return record.Copy(), true
	}

	stored, err := c.store.GetAccount(addr)
	if err == nil {
		return accountRecordFromCache(stored), true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("Failed to read account ", addr.Hex(), " from the state cache", err)
	}
	return AccountRecord{}, false
}

func (c *PinnedStateCache) lookupStorage(addr common.Address, slot common.Hash) (common.Hash, bool) {
	c.heldLock.RLock()
	value, ok := c.heldSlots[slotKey{addr, slot}]
	c.heldLock.RUnlock()
	if ok {
		return value, true
	}

	value, err := c.store.GetSlot(addr, slot)
	if err == nil {
		return value, true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("Failed to read slot ", slot.Hex(), " of ", addr.Hex(), " from the state cache", err)
	}
	return common.Hash{}, false
}

// holdAccount keeps record in memory unless another lookup already held a record for addr, which is returned instead.
func (c *PinnedStateCache) holdAccount(addr common.Address, record AccountRecord) AccountRecord {
	c.heldLock.Lock()
	defer c.heldLock.Unlock()
	held, ok := c.heldAccounts[addr]
	if !ok {
		held = record.Copy()
		c.heldAccounts[addr] = held
	}
	return held.Copy()
}

func (c *PinnedStateCache) holdSlot(key slotKey, value common.Hash) common.Hash {
	c.heldLock.Lock()
	defer c.heldLock.Unlock()
	held, ok := c.heldSlots[key]
	if !ok {
		held = value
		c.heldSlots[key] = held
	}
	return held
}

// fetchAccount issues the code, balance and nonce lookups in that order, stopping at the first failure.
func (c *PinnedStateCache) fetchAccount(addr common.Address) (AccountRecord, error) {
	code, err := c.source.GetCode(addr, c.block)
	if err != nil {
		return AccountRecord{}, fmt.Errorf("eth_getCode: %w", err)
	}
	balance, err := c.source.GetBalance(addr, c.block)
	if err != nil {
		return AccountRecord{}, fmt.Errorf("eth_getBalance: %w", err)
	}
	nonce, err := c.source.GetTransactionCount(addr, c.block)
	if err != nil {
		return AccountRecord{}, fmt.Errorf("eth_getTransactionCount: %w", err)
	}

	record := AccountRecord{
		Balance:  balance,
		Nonce:    nonce,
		CodeHash: types.EmptyCodeHash,
	}
	if record.Balance == nil {
		record.Balance = new(uint256.Int)
	}
	if len(code) > 0 {
		record.Code = slices.Clone(code)
		record.CodeHash = crypto.Keccak256Hash(code)
	}
	return record, nil
}

func (c *PinnedStateCache) report(fetchErr *FetchError) {
	c.logger.Debug("Remote fetch failed at block ", c.block, fetchErr)
	if c.reporter != nil {
		c.reporter(fetchErr)
	}
	if c.policy == FailurePolicyAbort {
		panic(fetchErr)
	}
}

func (c *PinnedStateCache) handleAccountFailure(fetchErr *FetchError) AccountRecord {
	c.report(fetchErr)
	return c.holdAccount(fetchErr.Address, DefaultAccountRecord())
}

func (c *PinnedStateCache) handleStorageFailure(fetchErr *FetchError) common.Hash {
	c.report(fetchErr)
	return c.holdSlot(slotKey{fetchErr.Address, fetchErr.Slot}, common.Hash{})
}

func accountRecordFromCache(stored *cache.Account) AccountRecord {
	return AccountRecord{
		Balance:  stored.Balance,
		Nonce:    stored.Nonce,
		Code:     stored.Code,
		CodeHash: stored.CodeHash,
	}.Copy()
}
