package cmd

import "github.com/crytic/forkbench/benchmark/config"

// DefaultProjectConfigFilename describes the default config filename for a given project folder.
const DefaultProjectConfigFilename = config.DefaultConfigFilename
