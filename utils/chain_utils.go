package utils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/crytic/medusa-geth/params"
)

// CopyChainConfig takes a chain configuration and creates a copy.
// Returns the copy of the chain configuration, or an error if one occurs.
func CopyChainConfig(config *params.ChainConfig) (*params.ChainConfig, error) {
	// Encode the chain config.
	data, err := json.Marshal(config)
	if err != nil {
		return nil, err
	}

	// Decode a new chain config from the encoded data.
	var chainConfig *params.ChainConfig
	err = json.Unmarshal(data, &chainConfig)
	if err != nil {
		return nil, err
	}

	return chainConfig, nil
}

// ChainConfigForNetwork returns a copy of the fork schedule of a named public network.
func ChainConfigForNetwork(network string) (*params.ChainConfig, error) {
	var config *params.ChainConfig
	switch strings.ToLower(network) {
	case "", "mainnet":
		config = params.MainnetChainConfig
	case "sepolia":
		config = params.SepoliaChainConfig
	case "holesky":
		config = params.HoleskyChainConfig
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}
	return CopyChainConfig(config)
}
