package benchmark

import (
	"context"
	"time"

	"github.com/crytic/forkbench/chain"
	"github.com/crytic/forkbench/chain/config"
	"github.com/crytic/forkbench/chain/state"
	"github.com/crytic/forkbench/logging"
	"github.com/crytic/forkbench/logging/colors"
	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/pkg/errors"
)

// StateCache is the pinned state a Driver executes calls over.
type StateCache interface {
	chain.PinnedStateReader
	// Stats returns the lookup counters accumulated so far.
	Stats() state.CacheStats
}

// Driver benchmarks calls by executing each of them repeatedly over the same pinned state.
type Driver struct {
	// cache provides the pinned state shared by every call.
	cache StateCache

	// execution describes the environment calls are executed in.
	execution *config.ExecutionConfig

	// runs is the number of timed executions per call.
	runs uint64

	// logger describes the Driver's log object that can be used to log important events
	logger *logging.Logger
}

// NewDriver returns a Driver running runs timed executions of each call over cache.
func NewDriver(cache StateCache, execution *config.ExecutionConfig, runs uint64) *Driver {
	return &Driver{
		cache:     cache,
		execution: execution,
		runs:      runs,
		logger:    logging.GlobalLogger.NewSubLogger("module", logging.BENCHMARK_SERVICE),
	}
}

// Runs returns the number of timed executions per call.
func (d *Driver) Runs() uint64 {
	return d.runs
}

// Run benchmarks a single call. The call is executed once untimed to warm the cache, then d.Runs() times under the
// clock. The first failed execution aborts the benchmark.
func (d *Driver) Run(ctx context.Context, call Call) (*Result, error) {
	d.logger.Info(colors.Bold, "# ", call.Name, colors.Reset)

	session, err := chain.NewCallSession(d.cache, d.execution, call.To, call.Data)
	if err != nil {
		return nil, err
	}

	// Priming pulls every state item the call touches into the cache
	d.logger.Info("priming...")
	beforePriming := d.cache.Stats()
	output, gasUsed, err := session.Execute()
	if err != nil {
		return nil, errors.Wrapf(err, "priming %q", call.Name)
	}
	afterPriming := d.cache.Stats()
	d.logger.Info("output: ", hexutil.Encode(output), ", gas: ", gasUsed)

	d.logger.Info("starting ", d.runs, " runs...")
	start := time.Now()
	for i := uint64(0); i < d.runs; i++ {
		if err = ctx.Err(); err != nil {
			return nil, err
		}
		if _, _, err = session.Execute(); err != nil {
			return nil, errors.Wrapf(err, "run %d of %q", i+1, call.Name)
		}
	}
	elapsed := time.Since(start)
	d.logger.Info("time: ", colors.GreenBold, elapsed, colors.Reset)

	timedStats := d.cache.Stats().Sub(afterPriming)
	if timedStats.Misses() > 0 {
		d.logger.Warn(colors.Yellow, timedStats.Misses(), " remote fetches during timed runs of ", call.Name, colors.Reset,
			logging.StructuredLogInfo{"stats": timedStats})
	}

	return newResult(call, d.cache.Block(), output, gasUsed, d.runs, elapsed, afterPriming.Sub(beforePriming), timedStats), nil
}

// RunAll benchmarks calls in order and stops at the first failure. The results of the calls benchmarked before the
// failure are returned alongside the error.
func (d *Driver) RunAll(ctx context.Context, calls []Call) ([]*Result, error) {
	results := make([]*Result, 0, len(calls))
	for _, call := range calls {
		result, err := d.Run(ctx, call)
		if err != nil {
			d.logger.Error("benchmark of ", call.Name, " failed", err)
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}
