package logging

// These constants are used to identify the various services that may do some logging
const (
	// CACHE_SERVICE is the constant used to identify the pinned state cache
	CACHE_SERVICE = "cache"
	// BENCHMARK_SERVICE is the constant used to identify the benchmark package
	BENCHMARK_SERVICE = "benchmark"
	// CLI_SERVICE is the constant used to identify the cmd package
	CLI_SERVICE = "cli"
)
