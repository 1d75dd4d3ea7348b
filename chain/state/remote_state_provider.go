package state

import (
	"fmt"

	"github.com/crytic/medusa-geth/common"
	gethstate "github.com/crytic/medusa-geth/core/state"
	"github.com/holiman/uint256"
)

var _ gethstate.RemoteStateProvider = (*RemoteStateProvider)(nil)

/*
RemoteStateProvider feeds pinned state from a StateReader into medusa-geth's forked StateDB. The StateDB asks for an
account or slot the first time it touches it, and the provider refuses a second import of the same key until the
snapshot that imported it is reverted. Slots written locally, and slots of contracts deployed locally, are refused as
well, since the pinned value no longer describes them.

Every import is recorded against the snapshot id it happened in so that a revert forgets exactly the imports it
undid. A RemoteStateProvider belongs to a single StateDB and is not safe for concurrent use.
*/
type RemoteStateProvider struct {
	reader StateReader

	importedAccounts      map[common.Address]int
	importedSlots         map[slotKey]int
	deployedContracts     map[common.Address]int
	accountsBySnapshot    map[int][]common.Address
	slotsBySnapshot       map[int][]slotKey
	deploymentsBySnapshot map[int][]common.Address
}

func newRemoteStateProvider(reader StateReader) *RemoteStateProvider {
	return &RemoteStateProvider{
		reader:                reader,
		importedAccounts:      make(map[common.Address]int),
		importedSlots:         make(map[slotKey]int),
		deployedContracts:     make(map[common.Address]int),
		accountsBySnapshot:    make(map[int][]common.Address),
		slotsBySnapshot:       make(map[int][]slotKey),
		deploymentsBySnapshot: make(map[int][]common.Address),
	}
}

// ImportStateObject returns the pinned balance, nonce and code of addr. Lookup failures never surface here: the reader
// either absorbs them or panics.
func (p *RemoteStateProvider) ImportStateObject(addr common.Address, snapId int) (*uint256.Int, uint64, []byte, *gethstate.RemoteStateError) {
	if importedIn, ok := p.importedAccounts[addr]; ok {
		return nil, 0, nil, &gethstate.RemoteStateError{
			CannotQueryDirtyAccount: true,
			Error:                   fmt.Errorf("account %s was already imported in snapshot %d", addr.Hex(), importedIn),
		}
	}

	record := p.reader.Account(addr)
	p.importedAccounts[addr] = snapId
	p.accountsBySnapshot[snapId] = append(p.accountsBySnapshot[snapId], addr)

	balance := record.Balance
	if balance == nil {
		balance = new(uint256.Int)
	}
	return balance, record.Nonce, record.Code, nil
}

// ImportStorageAt returns the pinned value of slot in addr's storage.
func (p *RemoteStateProvider) ImportStorageAt(addr common.Address, slot common.Hash, snapId int) (common.Hash, *gethstate.RemoteStorageError) {
	if _, ok := p.deployedContracts[addr]; ok {
		return common.Hash{}, &gethstate.RemoteStorageError{
			CannotQueryDirtySlot: true,
			Error:                fmt.Errorf("slot %s of %s has no pinned value because the contract was deployed locally", slot.Hex(), addr.Hex()),
		}
	}
	key := slotKey{addr, slot}
	if importedIn, ok := p.importedSlots[key]; ok {
		return common.Hash{}, &gethstate.RemoteStorageError{
			CannotQueryDirtySlot: true,
			Error:                fmt.Errorf("slot %s of %s was already imported or written in snapshot %d", slot.Hex(), addr.Hex(), importedIn),
		}
	}

	value := p.reader.Storage(addr, slot)
	p.recordSlot(key, snapId)
	return value, nil
}

// MarkSlotWritten forbids imports of the slot until snapId is reverted.
func (p *RemoteStateProvider) MarkSlotWritten(addr common.Address, slot common.Hash, snapId int) {
	p.recordSlot(slotKey{addr, slot}, snapId)
}

// MarkContractDeployed forbids slot imports for addr until snapId is reverted.
func (p *RemoteStateProvider) MarkContractDeployed(addr common.Address, snapId int) {
	if _, ok := p.deployedContracts[addr]; ok {
		return
	}
	p.deployedContracts[addr] = snapId
	p.deploymentsBySnapshot[snapId] = append(p.deploymentsBySnapshot[snapId], addr)
}

// NotifyRevertedToSnapshot forgets every record made after snapId.
func (p *RemoteStateProvider) NotifyRevertedToSnapshot(snapId int) {
	for id, addrs := range p.accountsBySnapshot {
		if id <= snapId {
			continue
		}
		for _, addr := range addrs {
			if p.importedAccounts[addr] == id {
				delete(p.importedAccounts, addr)
			}
		}
		delete(p.accountsBySnapshot, id)
	}
	for id, keys := range p.slotsBySnapshot {
		if id <= snapId {
			continue
		}
		for _, key := range keys {
			if p.importedSlots[key] == id {
				delete(p.importedSlots, key)
			}
		}
		delete(p.slotsBySnapshot, id)
	}
	for id, addrs := range p.deploymentsBySnapshot {
		if id <= snapId {
			continue
		}
		for _, addr := range addrs {
			if p.deployedContracts[addr] == id {
				delete(p.deployedContracts, addr)
			}
		}
		delete(p.deploymentsBySnapshot, id)
	}
}

// recordSlot keeps the earliest snapshot a slot was imported or written in.
func (p *RemoteStateProvider) recordSlot(key slotKey, snapId int) {
	if _, ok := p.importedSlots[key]; ok {
		return
	}
	p.importedSlots[key] = snapId
	p.slotsBySnapshot[snapId] = append(p.slotsBySnapshot[snapId], key)
}
