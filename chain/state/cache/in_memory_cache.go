package cache

import (
	"sync"

	"github.com/crytic/medusa-geth/common"
)

var _ StateCache = (*InMemoryStateCache)(nil)

// InMemoryStateCache provides a thread-safe cache for storing accounts and slots without persisting to disk.
type InMemoryStateCache struct {
	accountLock  sync.RWMutex
	accountCache map[common.Address]*Account

	slotLock  sync.RWMutex
	slotCache map[common.Address]map[common.Hash]common.Hash
}

func NewInMemoryStateCache() *InMemoryStateCache {
	return &InMemoryStateCache{
		accountCache: make(map[common.Address]*Account),
		slotCache:    make(map[common.Address]map[common.Hash]common.Hash),
	}
}

// GetAccount checks if the addr is present in the cache, and if not, returns ErrCacheMiss.
func (s *InMemoryStateCache) GetAccount(addr common.Address) (*Account, error) {
	s.accountLock.RLock()
	defer s.accountLock.RUnlock()

	if obj, ok := s.accountCache[addr]; ok {
		return obj, nil
	}
	return nil, ErrCacheMiss
}

func (s *InMemoryStateCache) InsertAccount(addr common.Address, data Account) (Account, error) {
	s.accountLock.Lock()
	defer s.accountLock.Unlock()

	if existing, ok := s.accountCache[addr]; ok {
		return *existing, nil
	}
	s.accountCache[addr] = &data
	return data, nil
}

// GetSlot checks if the specified slot is stored in the cache, and if not, returns ErrCacheMiss.
func (s *InMemoryStateCache) GetSlot(addr common.Address, slot common.Hash) (common.Hash, error) {
	s.slotLock.RLock()
	defer s.slotLock.RUnlock()

	if slotLookup, ok := s.slotCache[addr]; ok {
		if data, ok := slotLookup[slot]; ok {
			return data, nil
		}
	}
	return common.Hash{}, ErrCacheMiss
}

func (s *InMemoryStateCache) InsertSlot(addr common.Address, slot common.Hash, data common.Hash) (common.Hash, error) {
	s.slotLock.Lock()
	defer s.slotLock.Unlock()

	slotLookup, ok := s.slotCache[addr]
	if !ok {
		slotLookup = make(map[common.Hash]common.Hash)
		s.slotCache[addr] = slotLookup
	}
	if existing, ok := slotLookup[slot]; ok {
		return existing, nil
	}
	slotLookup[slot] = data
	return data, nil
}

// Len returns the number of accounts and slots held.
func (s *InMemoryStateCache) Len() (accounts int, slots int) {
	s.accountLock.RLock()
	accounts = len(s.accountCache)
	s.accountLock.RUnlock()

	s.slotLock.RLock()
	for _, lookup := range s.slotCache {
		slots += len(lookup)
	}
	s.slotLock.RUnlock()
	return accounts, slots
}

func (s *InMemoryStateCache) Close() error {
	return nil
}
