package mctext

import "sync/atomic"

// ClientStats counts operations performed through a Client. All fields are
// safe for concurrent access via Client.Metrics.
type ClientStats struct {
	Gets       uint64
	Sets       uint64
	Adds       uint64
	Deletes    uint64
	Increments uint64

	CacheHits   uint64
	CacheMisses uint64
	Errors      uint64
}

// HitRate returns the cache hit rate across all Get calls, or 0 if none
// have been made.
func (s ClientStats) HitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

type clientStatsCollector struct {
	gets       atomic.Uint64
	sets       atomic.Uint64
	adds       atomic.Uint64
	deletes    atomic.Uint64
	increments atomic.Uint64
	hits       atomic.Uint64
	misses     atomic.Uint64
	errors     atomic.Uint64
}

func (c *clientStatsCollector) recordGet(found bool, err error) {
	c.gets.Add(1)
	if err != nil {
		c.errors.Add(1)
		return
	}
	if found {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
}

func (c *clientStatsCollector) recordOp(counter *atomic.Uint64, err error) {
	counter.Add(1)
	if err != nil {
		c.errors.Add(1)
	}
}

func (c *clientStatsCollector) snapshot() ClientStats {
	return ClientStats{
		Gets:        c.gets.Load(),
		Sets:        c.sets.Load(),
		Adds:        c.adds.Load(),
		Deletes:     c.deletes.Load(),
		Increments:  c.increments.Load(),
		CacheHits:   c.hits.Load(),
		CacheMisses: c.misses.Load(),
		Errors:      c.errors.Load(),
	}
}

// Metrics returns a snapshot of this client's operation counters.
func (c *Client) Metrics() ClientStats {
	return c.stats.snapshot()
}
