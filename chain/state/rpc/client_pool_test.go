package rpc

import (
	"context"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/crytic/medusa-geth/rpc"
	"github.com/stretchr/testify/assert"
)

// testService is registered under the "test" namespace of an in-process JSON-RPC server.
type testService struct {
	calls   atomic.Int32
	release chan struct{}
}

func (s *testService) Number() hexutil.Uint64 {
	s.calls.Add(1)
	return hexutil.Uint64(100)
}

func (s *testService) Missing() (*string, error) {
	s.calls.Add(1)
	return nil, nil
}

func (s *testService) Blocking(value string) string {
	s.calls.Add(1)
	<-s.release
	return value
}

func newTestEndpoint(t *testing.T) (*testService, string) {
	service := &testService{release: make(chan struct{})}
	server := rpc.NewServer()
	assert.NoError(t, server.RegisterName("test", service))

	httpServer := httptest.NewServer(server)
	t.Cleanup(func() {
		httpServer.Close()
		server.Stop()
	})
	return service, httpServer.URL
}

// TestClientPoolRoundTrip ensures results are decoded into the caller's value.
func TestClientPoolRoundTrip(t *testing.T) {
	_, url := newTestEndpoint(t)
	pool, err := NewClientPool(context.Background(), url, 2)
	assert.NoError(t, err)
	defer pool.Close()
	assert.Equal(t, url, pool.Endpoint())

	var number hexutil.Uint64
	err = pool.ExecuteRequestBlocking(context.Background(), &number, "test_number")
	assert.NoError(t, err)
	assert.EqualValues(t, 100, number)
}

// TestClientPoolClosed ensures requests issued after Close fail instead of reaching a client.
func TestClientPoolClosed(t *testing.T) {
	service, url := newTestEndpoint(t)
	pool, err := NewClientPool(context.Background(), url, 2)
	assert.NoError(t, err)
	pool.Close()

	_, err = pool.ExecuteRequestAsync(context.Background(), "test_number")
	assert.ErrorIs(t, err, ErrPoolClosed)

	var number hexutil.Uint64
	err = pool.ExecuteRequestBlocking(context.Background(), &number, "test_number")
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.Zero(t, service.calls.Load())
}

// TestClientPoolNullResult ensures a null result is surfaced as an error rather than a zero value.
func TestClientPoolNullResult(t *testing.T) {
	_, url := newTestEndpoint(t)
	pool, err := NewClientPool(context.Background(), url, 1)
	assert.NoError(t, err)
	defer pool.Close()

	var value string
	err = pool.ExecuteRequestBlocking(context.Background(), &value, "test_missing")
	assert.ErrorIs(t, err, ErrNullResult)
}

// TestClientPoolRemoteError ensures JSON-RPC errors are returned to the caller.
func TestClientPoolRemoteError(t *testing.T) {
	_, url := newTestEndpoint(t)
	pool, err := NewClientPool(context.Background(), url, 1)
	assert.NoError(t, err)
	defer pool.Close()

	var value string
	err = pool.ExecuteRequestBlocking(context.Background(), &value, "test_doesNotExist")
	assert.Error(t, err)
}

// TestClientPoolDeduplicatesInflight ensures identical concurrent requests share one round trip, and that nothing is
// retained once the request completes.
func TestClientPoolDeduplicatesInflight(t *testing.T) {
	service, url := newTestEndpoint(t)
	pool, err := NewClientPool(context.Background(), url, 2)
	assert.NoError(t, err)
	defer pool.Close()

	ctx := context.Background()
	first, err := pool.ExecuteRequestAsync(ctx, "test_blocking", "hello")
	assert.NoError(t, err)
	second, err := pool.ExecuteRequestAsync(ctx, "test_blocking", "hello")
	assert.NoError(t, err)

	// wait for the server to receive the request before releasing it
	assert.Eventually(t, func() bool { return service.calls.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	close(service.release)

	var wg sync.WaitGroup
	results := make([]string, 2)
	for i, pending := range []*PendingResult{first, second} {
		wg.Add(1)
		go func(i int, pending *PendingResult) {
			defer wg.Done()
			assert.NoError(t, pending.GetResultBlocking(ctx, &results[i]))
		}(i, pending)
	}
	wg.Wait()
	assert.Equal(t, []string{"hello", "hello"}, results)
	assert.EqualValues(t, 1, service.calls.Load())

	// completed requests are forgotten, so the next one reaches the server again
	var again string
	assert.NoError(t, pool.ExecuteRequestBlocking(ctx, &again, "test_blocking", "hello"))
	assert.EqualValues(t, 2, service.calls.Load())
}

// TestPendingResultContextCancelled ensures a cancelled waiter returns without waiting for the response.
func TestPendingResultContextCancelled(t *testing.T) {
	service, url := newTestEndpoint(t)
	pool, err := NewClientPool(context.Background(), url, 1)
	assert.NoError(t, err)
	defer func() {
		close(service.release)
		pool.Close()
	}()

	pending, err := pool.ExecuteRequestAsync(context.Background(), "test_blocking", "slow")
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var value string
	assert.ErrorIs(t, pending.GetResultBlocking(ctx, &value), context.Canceled)
}
