// Package bufpool pools scratch byte buffers used to assemble protocol command
// lines, avoiding an allocation per command on the hot path.
package bufpool

import (
	"bytes"
	"sync"
)

// Pool is a sync.Pool of *bytes.Buffer pre-sized to reduce growth reallocations.
type Pool struct {
	pool sync.Pool
}

// New creates a Pool whose buffers start with the given capacity.
func New(initialCap int) *Pool {
	return &Pool{
		pool: sync.Pool{
			New: func() any {
				return bytes.NewBuffer(make([]byte, 0, initialCap))
			},
		},
	}
}

// Get returns an empty buffer ready for use.
func (p *Pool) Get() *bytes.Buffer {
	return p.pool.Get().(*bytes.Buffer)
}

// Put resets buf and returns it to the pool.
func (p *Pool) Put(buf *bytes.Buffer) {
	buf.Reset()
	p.pool.Put(buf)
}
