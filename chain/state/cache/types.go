package cache

import (
	"errors"

	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

// ErrCacheMiss is returned when a requested account or slot has not been stored yet.
var ErrCacheMiss = errors.New("not found in cache")

// Account stores a pinned account without the overhead of using geth's stateObject.
type Account struct {
	Balance  *uint256.Int
	Nonce    uint64
	Code     []byte
	CodeHash common.Hash
}

// StateCache stores pinned accounts and storage slots. Entries are never replaced: an insert for a key that is already
// present leaves the stored value untouched and returns it, so concurrent fillers converge on the first value.
type StateCache interface {
	GetAccount(addr common.Address) (*Account, error)
	InsertAccount(addr common.Address, data Account) (Account, error)

	GetSlot(addr common.Address, slot common.Hash) (common.Hash, error)
	InsertSlot(addr common.Address, slot common.Hash, data common.Hash) (common.Hash, error)

	Close() error
}
