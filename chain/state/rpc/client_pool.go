package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"

	"github.com/crytic/medusa-geth/rpc"
	"golang.org/x/net/context"
)

var (
	// ErrNullResult is returned when a node answers a request with a missing or null result.
	ErrNullResult = errors.New("rpc response contained no result")
	// ErrPoolClosed is returned for requests issued after the pool was closed.
	ErrPoolClosed = errors.New("rpc client pool is closed")
)

// ClientPool spreads JSON-RPC requests over a fixed set of clients dialled to the same endpoint. Identical requests
// that are in flight at the same time share a single round trip. Nothing is retained once a request completes, so
// the pool never behaves like a cache.
type ClientPool struct {
	rpcClients       []*rpc.Client
	currentClientIdx int
	clientLock       sync.Mutex

	inflightRequests map[requestKey]*inflightRequest
	inflightLock     sync.Mutex

	endpoint string
}

// NewClientPool dials poolSize clients to the given endpoint. A poolSize of zero is treated as one.
func NewClientPool(ctx context.Context, endpoint string, poolSize uint) (*ClientPool, error) {
	if poolSize == 0 {
		poolSize = 1
	}
	pool := &ClientPool{
		rpcClients:       make([]*rpc.Client, 0, poolSize),
		inflightRequests: make(map[requestKey]*inflightRequest),
		endpoint:         endpoint,
	}

	// dial out
	for i := uint(0); i < poolSize; i++ {
		client, err := rpc.DialContext(ctx, endpoint)
		if err != nil {
			pool.Close()
			return nil, err
		}
		pool.rpcClients = append(pool.rpcClients, client)
	}

	return pool, nil
}

// Endpoint returns the URL the pool's clients are connected to.
func (c *ClientPool) Endpoint() string {
	return c.endpoint
}

// ExecuteRequestBlocking issues the request and decodes its result into result, which must be a pointer.
func (c *ClientPool) ExecuteRequestBlocking(ctx context.Context, result any, method string, args ...any) error {
	pending, err := c.ExecuteRequestAsync(ctx, method, args...)
	if err != nil {
		return err
	}
	return pending.GetResultBlocking(ctx, result)
}

// ExecuteRequestAsync issues the request on the next client in the pool, or attaches to an identical request that
// is already in flight.
func (c *ClientPool) ExecuteRequestAsync(ctx context.Context, method string, args ...any) (*PendingResult, error) {
	key, err := makeRequestKey(method, args...)
	if err != nil {
		return nil, err
	}

	c.inflightLock.Lock()
	if inflight, exists := c.inflightRequests[key]; exists {
		c.inflightLock.Unlock()
		return newPendingResult(inflight), nil
	}
	client, err := c.getClient()
	if err != nil {
		c.inflightLock.Unlock()
		return nil, err
	}
	inflight := &inflightRequest{
		Done: make(chan struct{}),
	}
	c.inflightRequests[key] = inflight
	c.inflightLock.Unlock()

	go c.launchRequest(ctx, client, key, inflight, method, args...)
	return newPendingResult(inflight), nil
}

// Close closes every client in the pool.
func (c *ClientPool) Close() {
	c.clientLock.Lock()
	defer c.clientLock.Unlock()
	for _, client := range c.rpcClients {
		client.Close()
	}
	c.rpcClients = nil
}

func (c *ClientPool) getClient() (*rpc.Client, error) {
	c.clientLock.Lock()
	defer c.clientLock.Unlock()
	if len(c.rpcClients) == 0 {
		return nil, ErrPoolClosed
	}

	client := c.rpcClients[c.currentClientIdx%len(c.rpcClients)]
	c.currentClientIdx = (c.currentClientIdx + 1) % len(c.rpcClients)

	return client, nil
}

func (c *ClientPool) launchRequest(
	ctx context.Context,
	client *rpc.Client,
	key requestKey,
	request *inflightRequest,
	method string,
	args ...any) {
	defer func() {
		c.inflightLock.Lock()
		delete(c.inflightRequests, key)
		c.inflightLock.Unlock()
		close(request.Done)
	}()

	var result json.RawMessage
	err := client.CallContext(ctx, &result, method, args...)
	if err != nil {
		request.Error = err
		return
	}
	if len(result) == 0 || bytes.Equal(bytes.TrimSpace(result), []byte("null")) {
		request.Error = ErrNullResult
		return
	}
	request.Result = result
}
