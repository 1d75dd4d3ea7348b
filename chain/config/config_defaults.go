package config

// DefaultForkConfig obtains a default ForkConfig, pinned five blocks behind the head of an endpoint taken from the
// environment.
func DefaultForkConfig() ForkConfig {
	return ForkConfig{
		RpcUrl:        "",
		RpcBlock:      0,
		BlockOffset:   5,
		PoolSize:      1,
		PersistCache:  false,
		FailurePolicy: "default",
	}
}

// DefaultExecutionConfig obtains a default ExecutionConfig.
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		Caller:                "0x0000000000000000000000000000000000000000",
		GasLimit:              50_000_000,
		BlockTimestamp:        0,
		Network:               "mainnet",
		CodeSizeCheckDisabled: false,
	}
}
