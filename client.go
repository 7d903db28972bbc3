// Package mctext implements a connection-pooled client for the memcached
// text protocol, with consistent-ish hashing across a weighted server
// list, automatic failover around dead hosts, and optional gob+gzip value
// encoding.
package mctext

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/pior/mctext/codec"
	"github.com/pior/mctext/pool"
	"github.com/pior/mctext/protocol"
	"github.com/pior/mctext/selector"
)

// Item is a raw retrieved value, undecoded: the caller knows the
// destination type and calls codec.Codec.Decode itself.
type Item struct {
	Data  []byte
	Flags uint32
}

// Config is the client's full configuration surface.
type Config struct {
	// Servers is the ordered list of "host:port" addresses. Required.
	Servers []string
	// Weights is an optional per-server positive integer multiplicity in
	// the bucket vector. Defaults to 1 for every server.
	Weights []int

	InitConn int
	MinConn  int
	MaxConn  int

	MaxIdleMs       int64
	MaintSleepMs    int64 // 0 disables the maintenance loop
	SocketTimeoutMs int64 // dial timeout; no read or write deadline is set on a leased connection

	Failover bool
	Nagle    bool

	HashVariant selector.HashVariant

	CompressEnable    bool
	CompressThreshold int

	Logger pool.Logger

	// Dialer overrides how the pool establishes new connections. Tests use
	// this to substitute a fake transport; production callers leave it nil
	// and get pool.Dial.
	Dialer func(addr string, timeout time.Duration, nagle bool) (*pool.SocketConn, error)
}

// DefaultConfig returns the documented option defaults.
func DefaultConfig(servers ...string) Config {
	return Config{
		Servers:           servers,
		InitConn:          3,
		MinConn:           3,
		MaxConn:           10,
		MaxIdleMs:         180000,
		MaintSleepMs:      5000,
		SocketTimeoutMs:   10000,
		Failover:          true,
		Nagle:             true,
		HashVariant:       selector.NewCompat,
		CompressEnable:    true,
		CompressThreshold: 15360,
		Logger:            pool.NoopLogger{},
	}
}

// Client is the public façade: each operation leases a connection from the
// pool for the target key, drives exactly one protocol exchange over it,
// and returns the connection to the pool or destroys it depending on the
// outcome.
type Client struct {
	pool   *pool.Pool
	engine *protocol.Engine
	stats  clientStatsCollector
}

// New builds and initializes a Client from cfg.
func New(ctx context.Context, cfg Config) (*Client, error) {
	p := pool.New(pool.Config{
		Servers:        cfg.Servers,
		Weights:        cfg.Weights,
		InitConn:       cfg.InitConn,
		MinConn:        cfg.MinConn,
		MaxConn:        cfg.MaxConn,
		MaxIdle:        time.Duration(cfg.MaxIdleMs) * time.Millisecond,
		MaintSleep:     time.Duration(cfg.MaintSleepMs) * time.Millisecond,
		DialTimeout:    time.Duration(cfg.SocketTimeoutMs) * time.Millisecond,
		SocketDeadline: time.Duration(cfg.SocketTimeoutMs) * time.Millisecond,
		Failover:       cfg.Failover,
		Nagle:          cfg.Nagle,
		HashVariant:    cfg.HashVariant,
		Logger:         cfg.Logger,
		Dialer:         cfg.Dialer,
	})
	if err := p.Initialize(ctx); err != nil {
		return nil, err
	}
	c := codec.New(cfg.CompressEnable, cfg.CompressThreshold)
	return &Client{pool: p, engine: protocol.New(c)}, nil
}

// ShutDown stops the maintenance loop and closes every pooled connection.
func (c *Client) ShutDown() {
	c.pool.ShutDown()
}

// Set stores value under key unconditionally.
func (c *Client) Set(ctx context.Context, key string, value any, exptime int64) error {
	return c.store(ctx, protocol.CmdSet, key, value, exptime)
}

// Add stores value under key only if it doesn't already exist.
func (c *Client) Add(ctx context.Context, key string, value any, exptime int64) error {
	return c.store(ctx, protocol.CmdAdd, key, value, exptime)
}

// Replace stores value under key only if it already exists.
func (c *Client) Replace(ctx context.Context, key string, value any, exptime int64) error {
	return c.store(ctx, protocol.CmdReplace, key, value, exptime)
}

func (c *Client) store(ctx context.Context, cmd, key string, value any, exptime int64) error {
	lease, err := c.pool.Acquire(ctx, key)
	if err != nil {
		return newOpError(cmd, key, KindUnreachable, err)
	}
	err = c.engine.Store(lease.Conn, cmd, key, value, exptime)
	finish(lease, err)
	c.recordStore(cmd, err)
	if err == nil {
		return nil
	}
	return newOpError(cmd, key, classify(err), err)
}

func (c *Client) recordStore(cmd string, err error) {
	switch cmd {
	case "add":
		c.stats.recordOp(&c.stats.adds, err)
	default:
		c.stats.recordOp(&c.stats.sets, err)
	}
}

// StoreCounter initializes a counter at key to n, ready for Incr/Decr.
func (c *Client) StoreCounter(ctx context.Context, key string, n uint64) error {
	lease, err := c.pool.Acquire(ctx, key)
	if err != nil {
		return newOpError("StoreCounter", key, KindUnreachable, err)
	}
	err = c.engine.StoreCounter(lease.Conn, key, n)
	finish(lease, err)
	if err == nil {
		return nil
	}
	return newOpError("StoreCounter", key, classify(err), err)
}

// Get retrieves key and decodes it into out. found is false when the key
// has no value on the server.
func (c *Client) Get(ctx context.Context, key string, out any) (found bool, err error) {
	lease, err := c.pool.Acquire(ctx, key)
	if err != nil {
		return false, newOpError("Get", key, KindUnreachable, err)
	}
	item, found, err := c.engine.Get(lease.Conn, key)
	finish(lease, err)
	c.stats.recordGet(found, err)
	if err != nil {
		return false, newOpError("Get", key, classify(err), err)
	}
	if !found {
		return false, nil
	}
	if err := c.engine.Codec.Decode(item.Data, item.Flags, out); err != nil {
		return true, newOpError("Get", key, KindIoError, err)
	}
	return true, nil
}

// GetCounter retrieves a counter previously stored with StoreCounter.
func (c *Client) GetCounter(ctx context.Context, key string) (value uint64, found bool, err error) {
	var s string
	found, err = c.Get(ctx, key, &s)
	if !found || err != nil {
		return 0, found, err
	}
	n, perr := strconv.ParseUint(s, 10, 64)
	if perr != nil {
		return 0, true, newOpError("GetCounter", key, KindProtocolError, perr)
	}
	return n, true, nil
}

// GetMulti retrieves every key in keys, partitioning by owning server and
// issuing one multi-key get per server. Keys whose server is unreachable
// are simply absent from the result.
func (c *Client) GetMulti(ctx context.Context, keys []string) (map[string]Item, error) {
	vector, err := c.pool.VectorSnapshot()
	if err != nil {
		return nil, newOpError("GetMulti", "", KindUnreachable, err)
	}

	groups := make(map[string][]string)
	reps := make(map[string]string)
	for _, key := range keys {
		addr := vector.At(vector.HashKey(key))
		groups[addr] = append(groups[addr], key)
		if _, ok := reps[addr]; !ok {
			reps[addr] = key
		}
	}

	result := make(map[string]Item, len(keys))
	for addr, groupKeys := range groups {
		lease, err := c.pool.Acquire(ctx, reps[addr])
		if err != nil {
			continue
		}
		items, err := c.engine.GetMulti(lease.Conn, groupKeys)
		finish(lease, err)
		if err != nil {
			continue
		}
		for k, v := range items {
			result[k] = Item{Data: v.Data, Flags: v.Flags}
		}
	}
	return result, nil
}

// Delete removes key.
func (c *Client) Delete(ctx context.Context, key string) error {
	lease, err := c.pool.Acquire(ctx, key)
	if err != nil {
		return newOpError("Delete", key, KindUnreachable, err)
	}
	err = c.engine.Delete(lease.Conn, key)
	finish(lease, err)
	c.stats.recordOp(&c.stats.deletes, err)
	if err == nil {
		return nil
	}
	return newOpError("Delete", key, classify(err), err)
}

// Incr adds delta to the counter at key, returning its new value.
func (c *Client) Incr(ctx context.Context, key string, delta uint64) (uint64, error) {
	return c.arith(ctx, "Incr", key, delta, c.engine.Incr)
}

// Decr subtracts delta from the counter at key, clamped at zero.
func (c *Client) Decr(ctx context.Context, key string, delta uint64) (uint64, error) {
	return c.arith(ctx, "Decr", key, delta, c.engine.Decr)
}

func (c *Client) arith(ctx context.Context, op, key string, delta uint64, fn func(*pool.SocketConn, string, uint64) (uint64, error)) (uint64, error) {
	lease, err := c.pool.Acquire(ctx, key)
	if err != nil {
		return 0, newOpError(op, key, KindUnreachable, err)
	}
	n, err := fn(lease.Conn, key, delta)
	finish(lease, err)
	c.stats.recordOp(&c.stats.increments, err)
	if err != nil {
		return 0, newOpError(op, key, classify(err), err)
	}
	return n, nil
}

// FlushAll invalidates every item on every server in the pool.
func (c *Client) FlushAll(ctx context.Context) error {
	vector, err := c.pool.VectorSnapshot()
	if err != nil {
		return newOpError("FlushAll", "", KindUnreachable, err)
	}
	var firstErr error
	for i := 0; i < vector.Len(); i++ {
		// Weighted servers occupy consecutive buckets; visit each once, by
		// its own bucket index rather than by hashing its address as a key.
		addr := vector.At(uint32(i))
		if i > 0 && vector.At(uint32(i-1)) == addr {
			continue
		}
		lease, err := c.pool.AcquireHash(ctx, uint32(i))
		if err == nil && lease.Addr != addr {
			lease.Release()
			err = pool.ErrUnreachable
		}
		if err != nil {
			if firstErr == nil {
				firstErr = newOpError("FlushAll", addr, KindUnreachable, err)
			}
			continue
		}
		err = c.engine.FlushAll(lease.Conn)
		finish(lease, err)
		if err != nil && firstErr == nil {
			firstErr = newOpError("FlushAll", addr, classify(err), err)
		}
	}
	return firstErr
}

// Stats queries every server's stats block, keyed by server address.
func (c *Client) Stats(ctx context.Context) (map[string]map[string]string, error) {
	vector, err := c.pool.VectorSnapshot()
	if err != nil {
		return nil, newOpError("Stats", "", KindUnreachable, err)
	}
	result := make(map[string]map[string]string, len(vector.Servers()))
	for i := 0; i < vector.Len(); i++ {
		// Weighted servers occupy consecutive buckets; visit each once, by
		// its own bucket index rather than by hashing its address as a key.
		addr := vector.At(uint32(i))
		if i > 0 && vector.At(uint32(i-1)) == addr {
			continue
		}
		lease, err := c.pool.AcquireHash(ctx, uint32(i))
		if err == nil && lease.Addr != addr {
			lease.Release()
			err = pool.ErrUnreachable
		}
		if err != nil {
			continue
		}
		stats, err := c.engine.Stats(lease.Conn)
		finish(lease, err)
		if err != nil {
			continue
		}
		result[addr] = stats
	}
	return result, nil
}

func finish(lease *pool.Lease, err error) {
	if err != nil && errors.Is(err, protocol.ErrProtocolError) {
		lease.Destroy()
		return
	}
	lease.Release()
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, protocol.ErrNotFound):
		return KindNotFound
	case errors.Is(err, protocol.ErrNotStored):
		return KindNotStored
	case errors.Is(err, protocol.ErrProtocolError):
		return KindProtocolError
	default:
		return KindIoError
	}
}
