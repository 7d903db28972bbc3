package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/puddle/v2"

	"github.com/pior/mctext/selector"
)

// ErrNotInitialized is returned by Acquire-family calls made before
// Initialize or after ShutDown.
var ErrNotInitialized = errors.New("pool: not initialized")

// ErrUnreachable is returned when no connection to any eligible bucket
// could be established.
var ErrUnreachable = errors.New("pool: unreachable")

// Config describes how the pool dials, sizes, and maintains its per-host
// connection sets.
type Config struct {
	Servers []string
	Weights []int

	InitConn int
	MinConn  int
	MaxConn  int

	MaxIdle        time.Duration
	MaintSleep     time.Duration // 0 disables the maintenance loop
	DialTimeout    time.Duration
	SocketDeadline time.Duration // stored only: no socket read or write deadline is set from it

	Failover    bool
	Nagle       bool
	HashVariant selector.HashVariant

	Logger Logger

	// Dialer opens a new connection to addr. Defaults to Dial; tests
	// substitute a fake to avoid requiring a live memcached daemon.
	Dialer func(addr string, timeout time.Duration, nagle bool) (*SocketConn, error)
}

// DefaultConfig returns the option defaults from the configuration surface:
// 3 initial/minimum connections, 10 maximum, 3 minute idle ceiling, 5 second
// maintenance period, 3 second dial timeout, SocketDeadline of 10 seconds
// (stored only, see Config), failover on, Nagle on
// (disabled at the socket via SetNoDelay only when Nagle is false), and the
// interoperable NEW_COMPAT hash.
func DefaultConfig(servers ...string) Config {
	return Config{
		Servers:        servers,
		InitConn:       3,
		MinConn:        3,
		MaxConn:        10,
		MaxIdle:        180 * time.Second,
		MaintSleep:     5 * time.Second,
		DialTimeout:    3 * time.Second,
		SocketDeadline: 10 * time.Second,
		Failover:       true,
		Nagle:          true,
		HashVariant:    selector.NewCompat,
		Logger:         NoopLogger{},
		Dialer:         Dial,
	}
}

// hostState holds everything the pool tracks for one server address.
type hostState struct {
	addr string
	rp   *puddle.Pool[*SocketConn]
	dead *deadHostTracker

	mu    sync.Mutex
	shift int
}

// Pool is a per-host connection pool keyed by a weighted bucket vector. All
// bookkeeping mutations (host map membership, vector identity, initialized
// flag) are serialized on mu; per-host idle/busy accounting is delegated to
// that host's own puddle.Pool, and dead-host bookkeeping to its own tracker,
// both safe for concurrent use without holding Pool.mu.
type Pool struct {
	cfg Config

	mu          sync.Mutex
	vector      *selector.Vector
	hosts       map[string]*hostState
	initialized bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs an uninitialized Pool. Call Initialize before use.
func New(cfg Config) *Pool {
	if cfg.Logger == nil {
		cfg.Logger = NoopLogger{}
	}
	if cfg.Dialer == nil {
		cfg.Dialer = Dial
	}
	return &Pool{cfg: cfg, hosts: make(map[string]*hostState)}
}

// Initialize builds the bucket vector, opens InitConn connections to each
// live server, and starts the maintenance loop when MaintSleep is non-zero.
func (p *Pool) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	vector, err := selector.New(selector.Config{
		Servers: p.cfg.Servers,
		Weights: p.cfg.Weights,
		Hash:    p.cfg.HashVariant,
	})
	if err != nil {
		return err
	}

	hosts := make(map[string]*hostState, len(vector.Servers()))
	for _, addr := range vector.Servers() {
		hosts[addr] = p.newHostState(addr)
	}

	for _, hs := range hosts {
		for i := 0; i < p.cfg.InitConn; i++ {
			if _, err := hs.rp.CreateResource(ctx); err != nil {
				p.cfg.Logger.Printf("pool: init connect to %s failed: %v", hs.addr, err)
				break
			}
		}
	}

	p.vector = vector
	p.hosts = hosts
	p.initialized = true

	if p.cfg.MaintSleep > 0 {
		p.stopCh = make(chan struct{})
		p.doneCh = make(chan struct{})
		go p.maintain()
	}
	return nil
}

func (p *Pool) newHostState(addr string) *hostState {
	hs := &hostState{
		addr: addr,
		dead: newDeadHostTracker(addr, time.Second, 2*time.Minute),
	}
	rp, err := puddle.NewPool(&puddle.Config[*SocketConn]{
		Constructor: func(ctx context.Context) (*SocketConn, error) {
			conn, err := p.cfg.Dialer(addr, p.cfg.DialTimeout, p.cfg.Nagle)
			if err != nil {
				hs.dead.RecordFailure()
				return nil, err
			}
			hs.dead.RecordSuccess()
			return conn, nil
		},
		Destructor: func(conn *SocketConn) {
			_ = conn.HardClose()
		},
		MaxSize: int32(max(p.cfg.MaxConn, 1)),
	})
	if err != nil {
		// puddle.NewPool only fails on a malformed Config (MaxSize < 1),
		// which DefaultConfig never produces.
		panic(fmt.Sprintf("pool: invalid puddle config for %s: %v", addr, err))
	}
	hs.rp = rp
	return hs
}

// ShutDown stops the maintenance loop and closes every connection in every
// host's pool. Subsequent Acquire calls fail with ErrNotInitialized until
// Initialize runs again.
func (p *Pool) ShutDown() {
	p.mu.Lock()
	stopCh := p.stopCh
	doneCh := p.doneCh
	hosts := p.hosts
	p.initialized = false
	p.hosts = make(map[string]*hostState)
	p.vector = nil
	p.stopCh = nil
	p.doneCh = nil
	p.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}
	for _, hs := range hosts {
		hs.rp.Close()
	}
}

// Lease is a leased connection from the pool, exclusively owned by the
// caller until Release or Destroy is called.
type Lease struct {
	Conn *SocketConn
	Addr string

	res *puddle.Resource[*SocketConn]
}

// Release returns the connection to its host's idle set, probing it first;
// a connection that fails the probe is destroyed instead.
func (l *Lease) Release() {
	if l.Conn.Broken() {
		l.res.Destroy()
		return
	}
	if err := l.Conn.Probe(); err != nil {
		l.res.Destroy()
		return
	}
	l.res.Release()
}

// Destroy closes the connection and removes it from the pool unconditionally.
func (l *Lease) Destroy() {
	l.res.Destroy()
}

// Acquire returns a leased connection for key, hashed with the pool's
// configured variant, retrying alternate buckets on failure when Failover
// is enabled.
func (p *Pool) Acquire(ctx context.Context, key string) (*Lease, error) {
	vector, err := p.snapshotVector()
	if err != nil {
		return nil, err
	}
	return p.acquireHash(ctx, vector, vector.HashKey(key))
}

// AcquireHash is like Acquire but bypasses the key-hash step, using hv
// directly as the initial bucket-selection hash.
func (p *Pool) AcquireHash(ctx context.Context, hv uint32) (*Lease, error) {
	vector, err := p.snapshotVector()
	if err != nil {
		return nil, err
	}
	return p.acquireHash(ctx, vector, hv)
}

// VectorSnapshot returns the pool's current bucket vector, for callers that
// need to partition keys by owning server themselves (e.g. a batched get).
func (p *Pool) VectorSnapshot() (*selector.Vector, error) {
	return p.snapshotVector()
}

func (p *Pool) snapshotVector() (*selector.Vector, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized || p.vector == nil || p.vector.Len() == 0 {
		return nil, ErrNotInitialized
	}
	return p.vector, nil
}

func (p *Pool) acquireHash(ctx context.Context, vector *selector.Vector, hv uint32) (*Lease, error) {
	if vector.Len() == 1 {
		return p.connection(ctx, vector.At(hv))
	}

	var lastErr error
	for i := 0; i < vector.Len(); i++ {
		addr := vector.At(hv)
		lease, err := p.connection(ctx, addr)
		if err == nil {
			return lease, nil
		}
		lastErr = err
		if !p.cfg.Failover {
			return nil, lastErr
		}
		hv = selector.Rehash(hv, i+1)
	}
	if lastErr == nil {
		lastErr = ErrUnreachable
	}
	return nil, lastErr
}

// connection returns a Busy lease for addr, or an error when the host is
// presently in its dead-host backoff window or no connection could be
// opened.
func (p *Pool) connection(ctx context.Context, addr string) (*Lease, error) {
	p.mu.Lock()
	hs, ok := p.hosts[addr]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown host %s", ErrUnreachable, addr)
	}

	if !hs.dead.Allowed() {
		return nil, fmt.Errorf("%w: %s is in backoff", ErrUnreachable, addr)
	}

	const maxReuseAttempts = 4
	for attempt := 0; attempt < maxReuseAttempts; attempt++ {
		if hs.rp.Stat().IdleResources() == 0 {
			break
		}
		res, err := hs.rp.Acquire(ctx)
		if err != nil {
			break
		}
		if probeErr := res.Value().Probe(); probeErr != nil {
			res.Destroy()
			continue
		}
		return &Lease{Conn: res.Value(), Addr: addr, res: res}, nil
	}

	return p.createShiftConnect(ctx, hs)
}

// createShiftConnect implements the create-shift batch creation: on a full
// idle miss, open min(1<<shift, maxConn) new connections, place all but one
// into the idle set, and return the remainder as the lease.
func (p *Pool) createShiftConnect(ctx context.Context, hs *hostState) (*Lease, error) {
	hs.mu.Lock()
	shift := hs.shift
	hs.mu.Unlock()

	maxCreate := max(p.cfg.MaxConn, 1)
	create := min(1<<uint(shift), maxCreate)
	if create < 1 {
		create = 1
	}

	var lastErr error
	created := 0
	for i := 0; i < create; i++ {
		if _, err := hs.rp.CreateResource(ctx); err != nil {
			lastErr = err
			break
		}
		created++
	}

	if created == 0 {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, hs.addr, lastErr)
	}

	hs.mu.Lock()
	if 1<<uint(hs.shift) < maxCreate {
		hs.shift++
	}
	hs.mu.Unlock()

	res, err := hs.rp.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, hs.addr, err)
	}
	return &Lease{Conn: res.Value(), Addr: hs.addr, res: res}, nil
}

// HostStats is a point-in-time snapshot of one host's idle/busy counts, used
// by tests to assert the pool invariants.
type HostStats struct {
	Idle int32
	Busy int32
}

// Stats returns a snapshot of every known host's idle/busy counts.
func (p *Pool) Stats() map[string]HostStats {
	p.mu.Lock()
	hosts := make(map[string]*hostState, len(p.hosts))
	for addr, hs := range p.hosts {
		hosts[addr] = hs
	}
	p.mu.Unlock()

	out := make(map[string]HostStats, len(hosts))
	for addr, hs := range hosts {
		s := hs.rp.Stat()
		out[addr] = HostStats{Idle: s.IdleResources(), Busy: s.AcquiredResources()}
	}
	return out
}

func (p *Pool) maintain() {
	defer close(p.doneCh)
	ticker := time.NewTicker(p.cfg.MaintSleep)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.maintainPass()
		}
	}
}

func (p *Pool) maintainPass() {
	p.mu.Lock()
	hosts := make(map[string]*hostState, len(p.hosts))
	for addr, hs := range p.hosts {
		hosts[addr] = hs
	}
	p.mu.Unlock()

	ctx := context.Background()
	for _, hs := range hosts {
		p.topUp(ctx, hs)
		p.evictStale(hs)

		hs.mu.Lock()
		hs.shift = 0
		hs.mu.Unlock()
	}
}

func (p *Pool) topUp(ctx context.Context, hs *hostState) {
	deficit := p.cfg.MinConn - int(hs.rp.Stat().IdleResources())
	for i := 0; i < deficit; i++ {
		if _, err := hs.rp.CreateResource(ctx); err != nil {
			p.cfg.Logger.Printf("pool: maintenance top-up of %s failed: %v", hs.addr, err)
			break
		}
	}
}

func (p *Pool) evictStale(hs *hostState) {
	idle := int(hs.rp.Stat().IdleResources())
	excess := idle - p.cfg.MaxConn
	if excess <= 0 {
		return
	}

	limit := max(1, excess/2)
	evicted := 0
	for _, res := range hs.rp.AcquireAllIdle() {
		if evicted < limit && res.IdleDuration() > p.cfg.MaxIdle {
			res.Destroy()
			evicted++
			continue
		}
		res.Release()
	}
}
