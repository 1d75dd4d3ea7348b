package state

import (
	"errors"
	"fmt"

	"github.com/crytic/medusa-geth/common"
)

// ErrUnsupportedOperation is raised for lookups the pinned cache cannot answer, such as code by hash or block hashes.
var ErrUnsupportedOperation = errors.New("operation not supported by the pinned state cache")

// UnsupportedOperationError is the panic value raised for an unsupported lookup.
type UnsupportedOperationError struct {
	Operation string
	Detail    string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s(%s): %v", e.Operation, e.Detail, ErrUnsupportedOperation)
}

func (e *UnsupportedOperationError) Unwrap() error {
	return ErrUnsupportedOperation
}

// FetchKind identifies which remote lookup failed.
type FetchKind string

const (
	FetchKindAccount FetchKind = "account"
	FetchKindStorage FetchKind = "storage"
)

// FetchError describes a failed remote lookup at the pinned block.
type FetchError struct {
	Kind    FetchKind
	Address common.Address
	// Slot is only set for storage fetches.
	Slot  common.Hash
	Block uint64
	Err   error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchKindStorage {
		return fmt.Sprintf("failed to fetch storage %s of %s at block %d: %v", e.Slot.Hex(), e.Address.Hex(), e.Block, e.Err)
	}
	return fmt.Sprintf("failed to fetch account %s at block %d: %v", e.Address.Hex(), e.Block, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
