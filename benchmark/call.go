package benchmark

import (
	"github.com/crytic/forkbench/benchmark/config"
	"github.com/crytic/forkbench/utils"
	"github.com/crytic/medusa-geth/common"
	"github.com/pkg/errors"
)

// Call describes a single contract call to benchmark.
type Call struct {
	// Name labels the call in reports.
	Name string
	// To is the called contract.
	To common.Address
	// Data is the calldata sent with each execution.
	Data []byte
}

// NewCallFromConfig parses a configured call.
func NewCallFromConfig(callConfig config.CallConfig) (Call, error) {
	to, err := utils.HexStringToAddress(callConfig.To)
	if err != nil {
		return Call{}, errors.Wrapf(err, "call %q has a malformed target address", callConfig.Name)
	}
	data, err := utils.HexStringToBytes(callConfig.Data)
	if err != nil {
		return Call{}, errors.Wrapf(err, "call %q has malformed calldata", callConfig.Name)
	}
	return Call{Name: callConfig.Name, To: to, Data: data}, nil
}

// NewCallsFromConfig parses a list of configured calls, keeping their order.
func NewCallsFromConfig(callConfigs []config.CallConfig) ([]Call, error) {
	calls := make([]Call, 0, len(callConfigs))
	for _, callConfig := range callConfigs {
		call, err := NewCallFromConfig(callConfig)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	return calls, nil
}
