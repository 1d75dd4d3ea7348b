package config

import (
	"fmt"

	"github.com/crytic/forkbench/chain/state"
	"github.com/crytic/forkbench/utils"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/vm"
	"github.com/crytic/medusa-geth/params"
	"github.com/pkg/errors"
)

const (
	// NodeUrlEnvVar names the environment variable holding a full node endpoint.
	NodeUrlEnvVar = "NODE_URL"
	// InfuraProjectIdEnvVar names the environment variable holding an Infura project id.
	InfuraProjectIdEnvVar = "INFURA_PROJECT_ID"
	// InfuraUrlFormat renders an Infura project id into a mainnet endpoint.
	InfuraUrlFormat = "https://mainnet.infura.io/v3/%s"
)

// ErrMissingEndpoint is returned when no node endpoint is configured anywhere.
var ErrMissingEndpoint = errors.New("no node endpoint configured: set rpcUrl, " + NodeUrlEnvVar + " or " + InfuraProjectIdEnvVar)

// ForkConfig describes where pinned state is fetched from and how it is cached.
type ForkConfig struct {
	// RpcUrl is the JSON-RPC endpoint. If empty, it is resolved from the environment.
	RpcUrl string `json:"rpcUrl"`

	// RpcBlock pins the cache to an explicit block. Zero selects the chain head minus BlockOffset.
	RpcBlock uint64 `json:"rpcBlock"`

	// BlockOffset is subtracted from the chain head when RpcBlock is zero.
	BlockOffset uint64 `json:"blockOffset"`

	// PoolSize is the number of clients dialled to the endpoint.
	PoolSize uint `json:"poolSize"`

	// PersistCache stores fetched values on disk, keyed by endpoint and block.
	PersistCache bool `json:"persistCache"`

	// FailurePolicy is either "default" (substitute zero values) or "abort" (fail the call).
	FailurePolicy string `json:"failurePolicy"`
}

// ResolveRpcUrl returns the endpoint to use: RpcUrl if set, then NODE_URL, then an Infura URL built from
// INFURA_PROJECT_ID.
func (f *ForkConfig) ResolveRpcUrl(getenv func(string) string) (string, error) {
	if f.RpcUrl != "" {
		return f.RpcUrl, nil
	}
	if url := getenv(NodeUrlEnvVar); url != "" {
		return url, nil
	}
	if projectId := getenv(InfuraProjectIdEnvVar); projectId != "" {
		return fmt.Sprintf(InfuraUrlFormat, projectId), nil
	}
	return "", ErrMissingEndpoint
}

// Validate validates that the ForkConfig meets certain requirements.
func (f *ForkConfig) Validate() error {
	if f.PoolSize == 0 {
		return errors.Errorf("fork pool size must be a positive number")
	}
	if _, err := state.ParseFailurePolicy(f.FailurePolicy); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// ExecutionConfig describes the environment calls are executed in.
type ExecutionConfig struct {
	// Caller is the address calls are sent from.
	Caller string `json:"caller"`

	// GasLimit is the gas available to each call.
	GasLimit uint64 `json:"gasLimit"`

	// BlockTimestamp is the timestamp of the execution block. Zero selects the timestamp of the pinned block.
	BlockTimestamp uint64 `json:"blockTimestamp"`

	// Network selects the fork schedule ("mainnet", "sepolia" or "holesky").
	Network string `json:"network"`

	// CodeSizeCheckDisabled indicates whether code size checks should be disabled in the EVM.
	CodeSizeCheckDisabled bool `json:"codeSizeCheckDisabled"`
}

// CallerAddress parses Caller.
func (e *ExecutionConfig) CallerAddress() (common.Address, error) {
	if e.Caller == "" {
		return common.Address{}, nil
	}
	return utils.HexStringToAddress(e.Caller)
}

// ChainConfig returns a copy of the configured network's fork schedule.
func (e *ExecutionConfig) ChainConfig() (*params.ChainConfig, error) {
	return utils.ChainConfigForNetwork(e.Network)
}

// GetVMConfigExtensions derives a vm.ConfigExtensions from the provided ExecutionConfig.
func (e *ExecutionConfig) GetVMConfigExtensions() *vm.ConfigExtensions {
	return &vm.ConfigExtensions{
		OverrideCodeSizeCheck:    e.CodeSizeCheckDisabled,
		AdditionalPrecompiles:    make(map[common.Address]vm.PrecompiledContract),
		ContractAddressOverrides: make(map[common.Hash]common.Address),
	}
}

// Validate validates that the ExecutionConfig meets certain requirements.
func (e *ExecutionConfig) Validate() error {
	if e.GasLimit == 0 {
		return errors.Errorf("execution gas limit cannot be zero")
	}
	if _, err := e.CallerAddress(); err != nil {
		return errors.Errorf("malformed caller address")
	}
	if _, err := e.ChainConfig(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
