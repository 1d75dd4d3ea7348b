package benchmark

import (
	"encoding/json"
	"io"
	"time"

	"github.com/crytic/forkbench/chain/state"
	"github.com/crytic/forkbench/logging"
	"github.com/crytic/forkbench/logging/colors"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Result describes the outcome of benchmarking one call.
type Result struct {
	// RunId uniquely identifies this benchmark run.
	RunId uuid.UUID `json:"runId"`
	// Name is the benchmarked call's name.
	Name string `json:"name"`
	// To is the called contract.
	To common.Address `json:"to"`
	// Block is the block the state was pinned to.
	Block uint64 `json:"block"`

	// Output is the return data of the priming execution. Every timed run returned the same data.
	Output hexutil.Bytes `json:"output"`
	// GasUsed is the gas consumed by the priming execution.
	GasUsed uint64 `json:"gasUsed"`

	// Runs is the number of timed executions.
	Runs uint64 `json:"runs"`
	// Elapsed is the wall-clock time spent on the timed executions.
	Elapsed time.Duration `json:"elapsed"`
	// MicrosPerRun is the mean time per timed execution, in microseconds.
	MicrosPerRun decimal.Decimal `json:"microsPerRun"`
	// RunsPerSecond is the execution throughput.
	RunsPerSecond decimal.Decimal `json:"runsPerSecond"`

	// PrimingStats are the cache lookups made by the priming execution.
	PrimingStats state.CacheStats `json:"primingStats"`
	// TimedStats are the cache lookups made by the timed executions.
	TimedStats state.CacheStats `json:"timedStats"`
	// ColdFetchesDuringRuns counts remote fetches made after priming. It is zero for calls whose state reads do not
	// depend on anything but their calldata and the pinned state.
	ColdFetchesDuringRuns uint64 `json:"coldFetchesDuringRuns"`
}

// newResult computes the derived timing figures of a Result.
func newResult(call Call, block uint64, output []byte, gasUsed uint64, runs uint64, elapsed time.Duration, primingStats state.CacheStats, timedStats state.CacheStats) *Result {
	result := &Result{
		RunId:                 uuid.New(),
		Name:                  call.Name,
		To:                    call.To,
		Block:                 block,
		Output:                output,
		GasUsed:               gasUsed,
		Runs:                  runs,
		Elapsed:               elapsed,
		MicrosPerRun:          decimal.Zero,
		RunsPerSecond:         decimal.Zero,
		PrimingStats:          primingStats,
		TimedStats:            timedStats,
		ColdFetchesDuringRuns: timedStats.Misses(),
	}

	runCount := decimal.NewFromInt(int64(runs))
	nanos := decimal.NewFromInt(elapsed.Nanoseconds())
	if runs > 0 {
		result.MicrosPerRun = nanos.Div(runCount).Div(decimal.NewFromInt(int64(time.Microsecond))).Round(3)
	}
	if elapsed > 0 {
		result.RunsPerSecond = runCount.Mul(decimal.NewFromInt(int64(time.Second))).Div(nanos).Round(1)
	}
	return result
}

// LogBuffer renders the result as a human-readable report.
func (r *Result) LogBuffer() *logging.LogBuffer {
	buffer := logging.NewLogBuffer()
	buffer.Append(colors.Bold, "# ", r.Name, colors.Reset, "\n")
	buffer.Append("output: ", hexutil.Encode(r.Output), ", gas: ", r.GasUsed, "\n")
	buffer.Append("time: ", colors.GreenBold, r.Elapsed, colors.Reset, " for ", r.Runs, " runs")
	buffer.Append(" (", r.MicrosPerRun.String(), "µs/run, ", r.RunsPerSecond.String(), " runs/s)")
	if r.ColdFetchesDuringRuns > 0 {
		buffer.Append("\n", colors.Yellow, r.ColdFetchesDuringRuns, " remote fetches during timed runs", colors.Reset)
	}
	return buffer
}

// String returns the non-colorized report.
func (r *Result) String() string {
	return r.LogBuffer().String()
}

// WriteJSONReport writes results to w as an indented JSON array.
func WriteJSONReport(w io.Writer, results []*Result) error {
	if results == nil {
		results = make([]*Result, 0)
	}
	b, err := json.MarshalIndent(results, "", "\t")
	if err != nil {
		return errors.WithStack(err)
	}
	b = append(b, '\n')
	if _, err = w.Write(b); err != nil {
		return errors.WithStack(err)
	}
	return nil
}
