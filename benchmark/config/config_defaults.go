package config

import (
	"github.com/crytic/forkbench/chain/config"
	"github.com/rs/zerolog"
)

// GetDefaultProjectConfig obtains a default configuration for a project. The default calls query mainnet contracts:
// the COW token balance held by the GPv2Settlement contract, and a UniswapV3 quote for swapping one WETH to COW.
func GetDefaultProjectConfig() *ProjectConfig {
	return &ProjectConfig{
		Fork:      config.DefaultForkConfig(),
		Execution: config.DefaultExecutionConfig(),
		Benchmark: BenchmarkConfig{
			Runs: 100_000,
			Calls: []CallConfig{
				{
					// balanceOf(0x9008D19f58AAbD9eD0D60971565AA8510560ab41)
					Name: "cow_balance",
					To:   "0xDEf1CA1fb7FBcDC777520aa7f396b4E015F497aB",
					Data: "0x70a08231" +
						"0000000000000000000000009008d19f58aabd9ed0d60971565aa8510560ab41",
				},
				{
					// quoteExactInputSingle(WETH, COW, 3000, 1e18, 0)
					Name: "uniswap_v3_quote",
					To:   "0xb27308f9F90D607463bb33eA1BeBb41C27CE5AB6",
					Data: "0xf7729d43" +
						"000000000000000000000000c02aaa39b223fe8d0a0e5c4f27ead9083c756cc2" +
						"000000000000000000000000def1ca1fb7fbcdc777520aa7f396b4e015f497ab" +
						"0000000000000000000000000000000000000000000000000000000000000bb8" +
						"0000000000000000000000000000000000000000000000000de0b6b3a7640000" +
						"0000000000000000000000000000000000000000000000000000000000000000",
				},
			},
		},
		Logging: LoggingConfig{
			Level:        zerolog.InfoLevel,
			NoColor:      false,
			LogDirectory: "",
		},
	}
}
