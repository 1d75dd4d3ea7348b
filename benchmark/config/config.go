package config

import (
	"encoding/json"
	"os"

	"github.com/crytic/forkbench/chain/config"
	"github.com/crytic/forkbench/utils"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// DefaultConfigFilename is the project configuration file looked up in the working directory.
const DefaultConfigFilename = "forkbench.json"

type ProjectConfig struct {
	// Fork describes where pinned state is fetched from.
	Fork config.ForkConfig `json:"fork"`

	// Execution describes the environment each benchmarked call executes in.
	Execution config.ExecutionConfig `json:"execution"`

	// Benchmark describes the calls to benchmark and how often to run them.
	Benchmark BenchmarkConfig `json:"benchmark"`

	// Logging describes the configuration used for logging
	Logging LoggingConfig `json:"logging"`
}

// BenchmarkConfig describes the configuration options used by the benchmark.Driver.
type BenchmarkConfig struct {
	// Runs is the number of timed executions of each call, after one untimed priming execution.
	Runs uint64 `json:"runs"`

	// Calls lists the calls to benchmark, in order.
	Calls []CallConfig `json:"calls"`
}

// CallConfig describes a single call to benchmark.
type CallConfig struct {
	// Name labels the call in reports.
	Name string `json:"name"`

	// To is the hex address of the called contract.
	To string `json:"to"`

	// Data is the hex encoded calldata.
	Data string `json:"data"`
}

// LoggingConfig describes the configuration options used for logging
type LoggingConfig struct {
	// Level describes whether logs of certain severity levels (eg info, warning, etc.) will be emitted or discarded.
	// Increasing level values represent more severe logs
	Level zerolog.Level `json:"level"`

	// NoColor disables colored console output.
	NoColor bool `json:"noColor"`

	// LogDirectory describes the directory where structured log _files_ will be outputted. If the string is empty, then
	// no log files are kept
	LogDirectory string `json:"logDirectory"`
}

// ReadProjectConfigFromFile reads a JSON-serialized ProjectConfig from a provided file path. Fields missing from the
// file keep their default values.
// Returns the ProjectConfig if it succeeds, or an error if one occurs.
func ReadProjectConfigFromFile(path string) (*ProjectConfig, error) {
	// Read our project configuration file data
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	// Parse the project configuration over the defaults
	projectConfig := GetDefaultProjectConfig()
	err = json.Unmarshal(b, projectConfig)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return projectConfig, nil
}

// WriteToFile writes the ProjectConfig to a provided file path in a JSON-serialized format.
// Returns an error if one occurs.
func (p *ProjectConfig) WriteToFile(path string) error {
	// Serialize the configuration
	b, err := json.MarshalIndent(p, "", "\t")
	if err != nil {
		return errors.WithStack(err)
	}

	// Save it to the provided output path and return the result
	err = os.WriteFile(path, b, 0644)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// Validate validates that the ProjectConfig meets certain requirements.
// Returns an error if one occurs.
func (p *ProjectConfig) Validate() error {
	if err := p.Fork.Validate(); err != nil {
		return err
	}
	if err := p.Execution.Validate(); err != nil {
		return err
	}

	// Verify the run count is a positive number.
	if p.Benchmark.Runs == 0 {
		return errors.Errorf("benchmark run count must be a positive number")
	}

	// Verify there is something to benchmark and that every call is well-formed.
	if len(p.Benchmark.Calls) == 0 {
		return errors.Errorf("must specify one or more calls to benchmark")
	}
	names := make(map[string]bool, len(p.Benchmark.Calls))
	for i, call := range p.Benchmark.Calls {
		if call.Name == "" {
			return errors.Errorf("call %d has no name", i)
		}
		if names[call.Name] {
			return errors.Errorf("duplicate call name %q", call.Name)
		}
		names[call.Name] = true
		if _, err := utils.HexStringToAddress(call.To); err != nil {
			return errors.Errorf("malformed target address for call %q", call.Name)
		}
		if _, err := utils.HexStringToBytes(call.Data); err != nil {
			return errors.Errorf("malformed calldata for call %q", call.Name)
		}
	}
	return nil
}

// SelectCalls returns the configured calls with the given names, in the order requested. An empty list selects every
// configured call.
func (b *BenchmarkConfig) SelectCalls(names []string) ([]CallConfig, error) {
	if len(names) == 0 {
		return b.Calls, nil
	}
	selected := make([]CallConfig, 0, len(names))
	for _, name := range names {
		found := false
		for _, call := range b.Calls {
			if call.Name == name {
				selected = append(selected, call)
				found = true
				break
			}
		}
		if !found {
			return nil, errors.Errorf("no call named %q is configured", name)
		}
	}
	return selected, nil
}
