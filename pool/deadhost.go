package pool

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// errDeadHostProbe is the synthetic error fed to the breaker to record a
// connect failure; its text never reaches a caller.
var errDeadHostProbe = errors.New("pool: host unreachable")

// deadHostTracker records connect failures for one host and enforces a
// backoff window before the host is tried again, doubling the window each
// time a retry attempt fails again, and resetting it on the first success.
//
// It is built on a sony/gobreaker breaker reconfigured with
// ConsecutiveFailures >= 1 so the very first connect failure opens the
// circuit; gobreaker's own Timeout already implements "wait this long before
// letting one trial call through", which is exactly the backoff window
// spec, but a single breaker's Timeout is fixed for its lifetime. Doubling
// is layered on top by swapping in a freshly constructed breaker, with the
// new Timeout, whenever a trial attempt fails again while already in a
// failure streak.
type deadHostTracker struct {
	mu      sync.Mutex
	addr    string
	initial time.Duration
	max     time.Duration
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker[struct{}]
	failing bool
}

func newDeadHostTracker(addr string, initial, max time.Duration) *deadHostTracker {
	t := &deadHostTracker{
		addr:    addr,
		initial: initial,
		max:     max,
		timeout: initial,
	}
	t.cb = newHostBreaker(addr, initial)
	return t
}

func newHostBreaker(addr string, timeout time.Duration) *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        addr,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
	})
}

// Allowed reports whether a connect attempt to this host may be made right
// now: false while the backoff window is open.
func (t *deadHostTracker) Allowed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cb.State() != gobreaker.StateOpen
}

// RecordSuccess clears any failure streak and resets the backoff window to
// its initial duration.
func (t *deadHostTracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = t.cb.Execute(func() (struct{}, error) { return struct{}{}, nil })
	if t.failing {
		t.failing = false
		t.timeout = t.initial
		t.cb = newHostBreaker(t.addr, t.timeout)
	}
}

// RecordFailure records a connect failure, opening the backoff window. If a
// failure streak was already underway, the window doubles (capped at max)
// before reopening.
func (t *deadHostTracker) RecordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failing {
		t.timeout = min(t.timeout*2, t.max)
		t.cb = newHostBreaker(t.addr, t.timeout)
	} else {
		t.failing = true
	}
	_, _ = t.cb.Execute(func() (struct{}, error) { return struct{}{}, errDeadHostProbe })
}
