package state

import (
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/stretchr/testify/assert"
)

func newTestRemoteStateProvider(t *testing.T) (*RemoteStateProvider, *prePopulatedSourceFixture) {
	fixture := newPrePopulatedSourceFixture(105)
	return newRemoteStateProvider(newTestPinnedCache(t, fixture.Source, 100, PinnedStateCacheOptions{})), fixture
}

func TestRemoteStateProvider_ImportStateObject(t *testing.T) {
	provider, fixture := newTestRemoteStateProvider(t)

	snapId := 5
	importTest := func(addr common.Address, expected fixtureAccount) {
		bal, nonce, code, err := provider.ImportStateObject(addr, snapId)
		assert.Nil(t, err)
		if expected.Balance != nil {
			assert.Equal(t, expected.Balance, bal)
		} else {
			assert.True(t, bal.IsZero())
		}
		assert.EqualValues(t, expected.Nonce, nonce)
		assert.EqualValues(t, len(expected.Code), len(code))

		// a second import in the same snapshot is refused
		_, _, _, err = provider.ImportStateObject(addr, snapId)
		assert.NotNil(t, err)
		assert.True(t, err.CannotQueryDirtyAccount)
		assert.Error(t, err.Error)

		// reverting to the importing snapshot keeps the import
		provider.NotifyRevertedToSnapshot(snapId)
		_, _, _, err = provider.ImportStateObject(addr, snapId)
		assert.NotNil(t, err)
		assert.True(t, err.CannotQueryDirtyAccount)

		// reverting past it allows the account to be imported again
		provider.NotifyRevertedToSnapshot(snapId - 1)
		_, nonce, _, err = provider.ImportStateObject(addr, snapId)
		assert.Nil(t, err)
		assert.EqualValues(t, expected.Nonce, nonce)
	}

	importTest(fixture.ContractAddress, fixture.Contract)
	importTest(fixture.EOAAddress, fixture.EOA)
	importTest(fixture.EmptyAddress, fixtureAccount{})

	// re-imports are served from the pinned cache
	assert.Equal(t, 9, fixture.Source.StateCalls())
}

func TestRemoteStateProvider_ImportStorageAt(t *testing.T) {
	provider, fixture := newTestRemoteStateProvider(t)

	snapId := 5
	importTest := func(slot common.Hash, expected common.Hash) {
		data, err := provider.ImportStorageAt(fixture.ContractAddress, slot, snapId)
		assert.Nil(t, err)
		assert.Equal(t, expected, data)

		_, err = provider.ImportStorageAt(fixture.ContractAddress, slot, snapId)
		assert.NotNil(t, err)
		assert.True(t, err.CannotQueryDirtySlot)

		provider.NotifyRevertedToSnapshot(snapId)
		_, err = provider.ImportStorageAt(fixture.ContractAddress, slot, snapId)
		assert.NotNil(t, err)
		assert.True(t, err.CannotQueryDirtySlot)

		provider.NotifyRevertedToSnapshot(snapId - 1)
		data, err = provider.ImportStorageAt(fixture.ContractAddress, slot, snapId)
		assert.Nil(t, err)
		assert.Equal(t, expected, data)
	}

	importTest(fixture.StorageSlotPopulatedKey, fixture.StorageSlotPopulatedData)
	importTest(fixture.StorageSlotEmptyKey, common.Hash{})
}

func TestRemoteStateProvider_MarkSlotWritten(t *testing.T) {
	provider, fixture := newTestRemoteStateProvider(t)
	addr, slot := fixture.ContractAddress, fixture.StorageSlotPopulatedKey

	provider.MarkSlotWritten(addr, slot, 5)
	_, err := provider.ImportStorageAt(addr, slot, 5)
	assert.NotNil(t, err)
	assert.True(t, err.CannotQueryDirtySlot)

	provider.NotifyRevertedToSnapshot(4)
	_, err = provider.ImportStorageAt(addr, slot, 5)
	assert.Nil(t, err)

	// a slot written in two successive snapshots stays dirty when only the later one is reverted
	provider.NotifyRevertedToSnapshot(2)
	provider.MarkSlotWritten(addr, slot, 3)
	provider.MarkSlotWritten(addr, slot, 4)
	provider.NotifyRevertedToSnapshot(3)
	_, err = provider.ImportStorageAt(addr, slot, 4)
	assert.NotNil(t, err)
	assert.True(t, err.CannotQueryDirtySlot)

	provider.NotifyRevertedToSnapshot(2)
	_, err = provider.ImportStorageAt(addr, slot, 3)
	assert.Nil(t, err)
}

func TestRemoteStateProvider_MarkContractDeployed(t *testing.T) {
	provider, fixture := newTestRemoteStateProvider(t)

	provider.MarkContractDeployed(fixture.ContractAddress, 5)
	_, err := provider.ImportStorageAt(fixture.ContractAddress, fixture.StorageSlotPopulatedKey, 5)
	assert.NotNil(t, err)
	assert.True(t, err.CannotQueryDirtySlot)
	assert.Zero(t, fixture.Source.Calls("eth_getStorageAt"))

	provider.NotifyRevertedToSnapshot(4)
	data, err := provider.ImportStorageAt(fixture.ContractAddress, fixture.StorageSlotPopulatedKey, 5)
	assert.Nil(t, err)
	assert.Equal(t, fixture.StorageSlotPopulatedData, data)
}
