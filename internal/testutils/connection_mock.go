// Package testutils provides a fake net.Conn used to unit test the protocol
// engine and pool without a live memcached daemon.
package testutils

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"sync"
	"time"
)

// MockConn is a fake net.Conn backed by an in-memory buffer of canned server
// replies. It records everything written to it so a test can assert on the
// exact bytes a command encoder produced.
//
// By default the canned reply is readable immediately, which is what most
// tests driving SocketConn's read primitives directly want. Call Gate to
// defer it until the first Write arrives instead, simulating a server that
// only replies after receiving a request; that matters for a connection
// that gets probed (pool.SocketConn.Probe peeks an idle connection
// expecting no data to be pending) before it is ever written to.
type MockConn struct {
	mu       sync.Mutex
	readBuf  *bytes.Buffer
	writeBuf *bytes.Buffer
	replay   string
	cycle    bool
	closed   bool
	deadline time.Time

	armed     chan struct{}
	armOnce   sync.Once
	closedCh  chan struct{}
	closeOnce sync.Once
}

// NewMockConn builds a MockConn that will serve the concatenation of reply as
// its read side, readable right away unless Gate is called.
func NewMockConn(reply ...string) *MockConn {
	data := strings.Join(reply, "")
	armed := make(chan struct{})
	close(armed)
	return &MockConn{
		readBuf:  bytes.NewBufferString(data),
		writeBuf: &bytes.Buffer{},
		replay:   data,
		armed:    armed,
		closedCh: make(chan struct{}),
	}
}

// Recycle makes Read restart from the beginning of reply once exhausted,
// useful for benchmarks that issue the same command repeatedly.
func (m *MockConn) Recycle() *MockConn {
	m.cycle = true
	return m
}

// Gate withholds the canned reply until the first Write, so a Probe-style
// read attempted before any command is written blocks (honoring
// SetReadDeadline) instead of immediately observing the reply as unexpected
// leftover data. Must be called before the connection is used.
func (m *MockConn) Gate() *MockConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed = make(chan struct{})
	return m
}

func (m *MockConn) Read(b []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, errors.New("testutils: read on closed mock connection")
	}
	deadline := m.deadline
	m.mu.Unlock()

	select {
	case <-m.armed:
	case <-m.closedCh:
		return 0, errors.New("testutils: read on closed mock connection")
	case <-deadlineChan(deadline):
		return 0, timeoutError{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errors.New("testutils: read on closed mock connection")
	}
	n, err := m.readBuf.Read(b)
	if m.cycle && m.readBuf.Len() == 0 && m.replay != "" {
		m.readBuf.Reset()
		m.readBuf.WriteString(m.replay)
	}
	return n, err
}

func (m *MockConn) Write(b []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, errors.New("testutils: write on closed mock connection")
	}
	n, _ := m.writeBuf.Write(b)
	m.mu.Unlock()
	m.armOnce.Do(func() { close(m.armed) })
	return n, nil
}

func (m *MockConn) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.closeOnce.Do(func() { close(m.closedCh) })
	return nil
}

func (m *MockConn) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockConn) LocalAddr() net.Addr  { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0} }
func (m *MockConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 11211}
}

func (m *MockConn) SetDeadline(t time.Time) error { return m.SetReadDeadline(t) }

func (m *MockConn) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadline = t
	return nil
}

func (m *MockConn) SetWriteDeadline(t time.Time) error { return nil }

// Written returns everything written to the mock so far.
func (m *MockConn) Written() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeBuf.String()
}

// deadlineChan returns a channel that fires when t elapses, nil (never
// fires) for a zero time, and an already-fired channel for a past time.
func deadlineChan(t time.Time) <-chan time.Time {
	if t.IsZero() {
		return nil
	}
	d := time.Until(t)
	if d <= 0 {
		fired := make(chan time.Time, 1)
		fired <- time.Now()
		return fired
	}
	return time.After(d)
}

// timeoutError satisfies net.Error so callers using the same timeout ==
// no-data-pending check as a real socket see the behavior they expect.
type timeoutError struct{}

func (timeoutError) Error() string   { return "testutils: mock read deadline exceeded" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
