package state

import (
	"github.com/crytic/medusa-geth/common"
	gethstate "github.com/crytic/medusa-geth/core/state"
	"github.com/crytic/medusa-geth/core/rawdb"
	"github.com/crytic/medusa-geth/core/types"
	"github.com/crytic/medusa-geth/triedb"
	"github.com/crytic/medusa-geth/triedb/hashdb"
)

/*
StateReader defines the synchronous lookups an execution engine needs from pinned chain state. Lookups never return
errors: failures are absorbed or raised as panics by the implementation.
*/
type StateReader interface {
	Account(addr common.Address) AccountRecord
	Storage(addr common.Address, slot common.Hash) common.Hash
	CodeByHash(hash common.Hash) []byte
	BlockHash(number uint64) common.Hash
}

/*
ForkedStateDB presents a StateReader to the EVM as a vm.StateDB. It is medusa-geth's forked StateDB over an empty trie,
fed by a RemoteStateProvider: the first touch of an account or slot, whether a read or a write, imports the pinned
value, and every change stays local. A revert forgets the imports it undid, so the next touch imports the value again.
*/
type ForkedStateDB struct {
	*gethstate.ForkStateDb

	reader StateReader
}

// ForkedStateFactory creates ForkedStateDBs that import from one shared StateReader.
type ForkedStateFactory struct {
	reader StateReader
}

// NewForkedStateFactory returns a factory over reader.
func NewForkedStateFactory(reader StateReader) *ForkedStateFactory {
	return &ForkedStateFactory{reader: reader}
}

// New opens a ForkedStateDB at root in db, with a provider of its own.
func (f *ForkedStateFactory) New(root common.Hash, db gethstate.Database) (*ForkedStateDB, error) {
	forkStateDB, err := gethstate.NewForkedStateDb(root, db, newRemoteStateProvider(f.reader))
	if err != nil {
		return nil, err
	}
	return &ForkedStateDB{
		ForkStateDb: forkStateDB,
		reader:      f.reader,
	}, nil
}

// NewForkedStateDB creates an adapter over reader backed by a fresh in-memory database.
func NewForkedStateDB(reader StateReader) (*ForkedStateDB, error) {
	trieDB := triedb.NewDatabase(rawdb.NewMemoryDatabase(), &triedb.Config{HashDB: hashdb.Defaults})
	return NewForkedStateFactory(reader).New(types.EmptyRootHash, gethstate.NewDatabase(trieDB, nil))
}

// Reader returns the StateReader the adapter imports from.
func (s *ForkedStateDB) Reader() StateReader {
	return s.reader
}

// GetCommittedState answers from the reader directly. Every execution is reverted, so the committed state of any slot
// is its pinned value.
func (s *ForkedStateDB) GetCommittedState(addr common.Address, slot common.Hash) common.Hash {
	return s.reader.Storage(addr, slot)
}

// CodeByHash delegates to the reader.
func (s *ForkedStateDB) CodeByHash(hash common.Hash) []byte {
	return s.reader.CodeByHash(hash)
}

// BlockHash delegates to the reader.
func (s *ForkedStateDB) BlockHash(number uint64) common.Hash {
	return s.reader.BlockHash(number)
}
