package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/types"
	"github.com/crytic/medusa-geth/crypto"
	"github.com/fxamacker/cbor"
	"github.com/holiman/uint256"
	"go.etcd.io/bbolt"
	"golang.org/x/crypto/sha3"
)

// CacheDirectoryName is the directory, relative to the working directory, that holds persistent cache files.
const CacheDirectoryName = ".forkbenchcache"

const (
	bucketName     = "pinned"
	flushThreshold = 25

	accountKeyPrefix byte = 'a'
	slotKeyPrefix    byte = 's'
)

var _ StateCache = (*PersistentStateCache)(nil)

// PersistentStateCache provides a thread-safe cache that persists accounts and slots to a bbolt file. One file holds
// the state of exactly one block of one endpoint, so stored values never go stale.
type PersistentStateCache struct {
	memCache *InMemoryStateCache
	db       *bbolt.DB
	path     string

	pendingWriteMutex sync.Mutex
	pendingWrites     []pendingWrite
	flushThreshold    int

	closeOnce sync.Once
	closeErr  error
}

type pendingWrite struct {
	key   []byte
	value []byte
}

// persistedAccount is the on-disk form of an Account. The code hash is recomputed on load.
type persistedAccount struct {
	Balance []byte
	Nonce   uint64
	Code    []byte
}

// NewPersistentStateCache opens (or creates) the cache file for the given endpoint and block under workingDir. The
// cache is flushed and closed when ctx is cancelled or Close is called, whichever happens first.
func NewPersistentStateCache(ctx context.Context, workingDir string, rpcUrl string, block uint64) (*PersistentStateCache, error) {
	cacheDir, err := createCacheDirectory(workingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	cacheFile := filepath.Join(cacheDir, GetCacheFilename(rpcUrl, block))
	db, err := bbolt.Open(cacheFile, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("could not open db: %w", err)
	}

	// create default bucket if it doesn't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	p := &PersistentStateCache{
		memCache:       NewInMemoryStateCache(),
		db:             db,
		path:           cacheFile,
		flushThreshold: flushThreshold,
		pendingWrites:  []pendingWrite{},
	}

	// close db if context cancelled
	go func() {
		<-ctx.Done()
		_ = p.Close()
	}()

	return p, nil
}

// Path returns the location of the backing file.
func (p *PersistentStateCache) Path() string {
	return p.path
}

func (p *PersistentStateCache) getFromPersist(key []byte, value any) (bool, error) {
	found := false
	err := p.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get(key)
		if data == nil {
			return nil
		}
		found = true
		return cbor.Unmarshal(data, value)
	})
	if err != nil {
		return false, fmt.Errorf("could not get value: %w", err)
	}
	return found, nil
}

func (p *PersistentStateCache) writeToPersist(key []byte, value any) error {
	serialized, err := cbor.Marshal(value, cbor.EncOptions{})
	if err != nil {
		return err
	}

	p.pendingWriteMutex.Lock()
	defer p.pendingWriteMutex.Unlock()

	p.pendingWrites = append(p.pendingWrites, pendingWrite{key: key, value: serialized})
	if len(p.pendingWrites) >= p.flushThreshold {
		return p.flushWrites()
	}
	return nil
}

// flushWrites writes all pending entries in one transaction. The caller must hold pendingWriteMutex.
func (p *PersistentStateCache) flushWrites() error {
	if len(p.pendingWrites) == 0 {
		return nil
	}
	err := p.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		for _, pw := range p.pendingWrites {
			if err := bucket.Put(pw.key, pw.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		p.pendingWrites = p.pendingWrites[:0]
	}
	return err
}

func (p *PersistentStateCache) GetAccount(addr common.Address) (*Account, error) {
	account, err := p.memCache.GetAccount(addr)
	if !errors.Is(err, ErrCacheMiss) {
		return account, err
	}

	// check persistent cache
	var stored persistedAccount
	exists, err := p.getFromPersist(accountKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrCacheMiss
	}
	retained, err := p.memCache.InsertAccount(addr, stored.toAccount())
	return &retained, err
}

func (p *PersistentStateCache) InsertAccount(addr common.Address, data Account) (Account, error) {
	if existing, err := p.GetAccount(addr); err == nil {
		return *existing, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		return Account{}, err
	}

	retained, err := p.memCache.InsertAccount(addr, data)
	if err != nil {
		return retained, err
	}
	return retained, p.writeToPersist(accountKey(addr), newPersistedAccount(retained))
}

func (p *PersistentStateCache) GetSlot(addr common.Address, slot common.Hash) (common.Hash, error) {
	data, err := p.memCache.GetSlot(addr, slot)
	if !errors.Is(err, ErrCacheMiss) {
		return data, err
	}

	// check persistent cache
	var stored []byte
	exists, err := p.getFromPersist(slotKey(addr, slot), &stored)
	if err != nil {
		return common.Hash{}, err
	}
	if !exists {
		return common.Hash{}, ErrCacheMiss
	}
	return p.memCache.InsertSlot(addr, slot, common.BytesToHash(stored))
}

func (p *PersistentStateCache) InsertSlot(addr common.Address, slot common.Hash, data common.Hash) (common.Hash, error) {
	if existing, err := p.GetSlot(addr, slot); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		return common.Hash{}, err
	}

	retained, err := p.memCache.InsertSlot(addr, slot, data)
	if err != nil {
		return retained, err
	}
	return retained, p.writeToPersist(slotKey(addr, slot), retained.Bytes())
}

// Close flushes pending writes and closes the backing file. Subsequent calls return the first result.
func (p *PersistentStateCache) Close() error {
	p.closeOnce.Do(func() {
		p.pendingWriteMutex.Lock()
		flushErr := p.flushWrites()
		p.pendingWriteMutex.Unlock()

		closeErr := p.db.Close()
		p.closeErr = errors.Join(flushErr, closeErr)
	})
	return p.closeErr
}

func newPersistedAccount(account Account) persistedAccount {
	stored := persistedAccount{Nonce: account.Nonce, Code: account.Code}
	if account.Balance != nil {
		stored.Balance = account.Balance.Bytes()
	}
	return stored
}

func (s persistedAccount) toAccount() Account {
	account := Account{
		Balance:  new(uint256.Int).SetBytes(s.Balance),
		Nonce:    s.Nonce,
		CodeHash: types.EmptyCodeHash,
	}
	if len(s.Code) > 0 {
		account.Code = s.Code
		account.CodeHash = crypto.Keccak256Hash(s.Code)
	}
	return account
}

func accountKey(addr common.Address) []byte {
	key := make([]byte, 0, 1+common.AddressLength)
	key = append(key, accountKeyPrefix)
	return append(key, addr[:]...)
}

func slotKey(addr common.Address, slot common.Hash) []byte {
	key := make([]byte, 0, 1+common.AddressLength+common.HashLength)
	key = append(key, slotKeyPrefix)
	key = append(key, addr[:]...)
	return append(key, slot[:]...)
}

func createCacheDirectory(workingDir string) (string, error) {
	cachePath := filepath.Join(workingDir, CacheDirectoryName)
	_, err := os.Stat(cachePath)
	if os.IsNotExist(err) {
		// Create directory with 0755 permissions if it doesn't exist
		err = os.Mkdir(cachePath, 0755)
		if err != nil {
			return "", fmt.Errorf("failed to create cache directory: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("failed to check cache directory: %w", err)
	}
	return cachePath, nil
}

// GetCacheFilename returns the file name used for the given endpoint and block.
func GetCacheFilename(rpcUrl string, block uint64) string {
	h := sha3.New256()
	h.Write([]byte(rpcUrl))
	bs := h.Sum(nil)

	return fmt.Sprintf("%d-%x.dat", block, bs[0:10])
}
