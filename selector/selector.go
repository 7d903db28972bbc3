// Package selector implements the key-to-server mapping: a weighted, ordered
// bucket vector over the configured server list, selected by one of three
// hash variants, with a failover rehash step for retrying against another
// bucket when the primary server is unavailable.
//
// The scheme is bucket-modulo with weights, not a consistent-hash ring: the
// vector is built once at construction and never rebalanced.
package selector

import (
	"errors"
	"fmt"
	"hash/crc32"
	"strconv"

	"github.com/zeebo/xxh3"
)

// HashVariant selects which key hash feeds the bucket-modulo lookup.
type HashVariant int

const (
	// NewCompat is crc32(key) >> 16 & 0x7fff — interoperable with other
	// memcached clients using the same well-known scheme. Default.
	NewCompat HashVariant = iota
	// Native is any fast, stable 32-bit hash; need not be portable to other
	// reimplementations. Backed by xxh3 here.
	Native
	// OldCompat reproduces the classic h = h*33 + c accumulation with 32-bit
	// wraparound.
	OldCompat
)

// Config describes the servers and weights that make up a bucket vector.
type Config struct {
	// Servers is the ordered list of "host:port" addresses. Must be non-empty.
	Servers []string
	// Weights is an optional, parallel slice of positive integer
	// multiplicities. When nil, every server gets weight 1.
	Weights []int
	// Hash picks the key hash variant. Zero value is NewCompat.
	Hash HashVariant
}

// ErrNoServers is returned when Config.Servers is empty.
var ErrNoServers = errors.New("selector: server list is empty")

// Vector is the immutable weighted bucket vector built from a Config. A
// server with weight w appears w times consecutively, in the order it was
// listed; ties in hash selection therefore favor earlier-listed servers.
type Vector struct {
	buckets []string
	hash    HashVariant
}

// New builds the bucket vector. Weights, if given, must be the same length
// as Servers and strictly positive.
func New(cfg Config) (*Vector, error) {
	if len(cfg.Servers) == 0 {
		return nil, ErrNoServers
	}
	if cfg.Weights != nil && len(cfg.Weights) != len(cfg.Servers) {
		return nil, fmt.Errorf("selector: %d weights for %d servers", len(cfg.Weights), len(cfg.Servers))
	}

	total := 0
	for i := range cfg.Servers {
		w := 1
		if cfg.Weights != nil {
			w = cfg.Weights[i]
			if w <= 0 {
				return nil, fmt.Errorf("selector: server %q has non-positive weight %d", cfg.Servers[i], w)
			}
		}
		total += w
	}

	buckets := make([]string, 0, total)
	for i, addr := range cfg.Servers {
		w := 1
		if cfg.Weights != nil {
			w = cfg.Weights[i]
		}
		for range w {
			buckets = append(buckets, addr)
		}
	}

	return &Vector{buckets: buckets, hash: cfg.Hash}, nil
}

// Len returns the bucket vector length (sum of weights).
func (v *Vector) Len() int {
	return len(v.buckets)
}

// Servers returns the distinct server addresses backing the vector, in
// first-listed order, for callers that need to initialize one resource per
// host (e.g. the pool's per-host idle sets).
func (v *Vector) Servers() []string {
	seen := make(map[string]bool, len(v.buckets))
	out := make([]string, 0, len(v.buckets))
	for _, addr := range v.buckets {
		if !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}
	return out
}

// At returns the server address for a raw (unreduced) hash value, handling
// the modulo and negative-value normalization.
func (v *Vector) At(hv uint32) string {
	return v.buckets[hv%uint32(len(v.buckets))]
}

// HashKey computes the configured hash variant over key.
func (v *Vector) HashKey(key string) uint32 {
	return Hash(key, v.hash)
}

// Rehash produces the next candidate hash value during failover: the
// current value plus the Native hash of the string concatenation of the
// value and the retry iteration, matching the spec's rehash step regardless
// of which variant selected the primary bucket.
func Rehash(hv uint32, iteration int) uint32 {
	combined := strconv.FormatUint(uint64(hv), 10) + strconv.Itoa(iteration)
	return hv + Hash(combined, Native)
}

// Hash computes key's hash under the given variant.
func Hash(key string, variant HashVariant) uint32 {
	switch variant {
	case Native:
		return uint32(xxh3.HashString(key))
	case OldCompat:
		var h uint32
		for i := 0; i < len(key); i++ {
			h = h*33 + uint32(key[i])
		}
		return h
	default: // NewCompat
		crc := crc32.ChecksumIEEE([]byte(key))
		return (crc >> 16) & 0x7fff
	}
}
