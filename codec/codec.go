// Package codec converts Go values to and from the byte-plus-flags pairs
// stored at a memcached key, applying gzip compression above a configurable
// threshold and a tagged binary form for values that are not already
// strings or byte slices.
package codec

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"io"
)

// Flag bits stored alongside a value, as written by the Set family and read
// back by Get. The two bits are orthogonal: a value may be serialized,
// compressed, both, or neither.
const (
	// FlagSerialized marks a value that was gob-encoded because it wasn't
	// already a string or []byte.
	FlagSerialized uint32 = 8
	// FlagCompressed marks a value whose encoded bytes were gzipped because
	// they were larger than the configured threshold.
	FlagCompressed uint32 = 2
)

// Codec encodes and decodes values, gzipping encoded bytes above Threshold
// when CompressEnable is set.
type Codec struct {
	// CompressEnable turns on gzip compression for values larger than
	// Threshold bytes. Off by default.
	CompressEnable bool
	// Threshold is the encoded-size cutoff, in bytes, above which
	// compression is applied when CompressEnable is true.
	Threshold int
}

// New returns a Codec that compresses above the given threshold when
// compressEnable is true. A Threshold of 0 disables compression outright
// regardless of enable.
func New(compressEnable bool, threshold int) *Codec {
	return &Codec{CompressEnable: compressEnable, Threshold: threshold}
}

// Encode produces the bytes and flag word to store for value. Strings and
// []byte are stored as-is (modulo compression); any other type is
// gob-encoded first and flagged FlagSerialized.
func (c *Codec) Encode(value any) ([]byte, uint32, error) {
	var raw []byte
	var flags uint32

	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(value); err != nil {
			return nil, 0, fmt.Errorf("codec: encode %T: %w", value, err)
		}
		raw = buf.Bytes()
		flags |= FlagSerialized
	}

	if c.CompressEnable && c.Threshold > 0 && len(raw) > c.Threshold {
		compressed, err := gzipCompress(raw)
		if err != nil {
			return nil, 0, fmt.Errorf("codec: compress: %w", err)
		}
		raw = compressed
		flags |= FlagCompressed
	}

	return raw, flags, nil
}

// Decode reverses Encode, inflating compressed bytes first and then
// gob-decoding into out when FlagSerialized is set. When FlagSerialized is
// not set, out must be *string or *[]byte.
func (c *Codec) Decode(data []byte, flags uint32, out any) error {
	if flags&FlagCompressed != 0 {
		inflated, err := gzipDecompress(data)
		if err != nil {
			return fmt.Errorf("codec: decompress: %w", err)
		}
		data = inflated
	}

	if flags&FlagSerialized != 0 {
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(out); err != nil {
			return fmt.Errorf("codec: decode: %w", err)
		}
		return nil
	}

	switch p := out.(type) {
	case *[]byte:
		*p = data
	case *string:
		*p = string(data)
	default:
		return fmt.Errorf("codec: unflagged value requires *string or *[]byte, got %T", out)
	}
	return nil
}

func gzipCompress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
