package protocol

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/pior/mctext/codec"
	"github.com/pior/mctext/internal/bufpool"
	"github.com/pior/mctext/pool"
)

// Engine formats commands, drives a leased SocketConn through one request
// at a time, and invokes Codec when a command stores an arbitrary value.
// Command ordering on a single connection is strictly serial: a caller must
// not start a second command before the first has returned.
type Engine struct {
	Codec *codec.Codec
	bufs  *bufpool.Pool
}

// New builds an Engine backed by c for value encoding.
func New(c *codec.Codec) *Engine {
	return &Engine{Codec: c, bufs: bufpool.New(128)}
}

// Store issues set, add, or replace for key with value, which is encoded by
// Codec before transmission. exptime is a Unix epoch second, or 0 for no
// expiry. Returns ErrNotStored when the server replies NOT_STORED.
func (e *Engine) Store(conn *pool.SocketConn, cmd string, key string, value any, exptime int64) error {
	data, flags, err := e.Codec.Encode(value)
	if err != nil {
		return fmt.Errorf("protocol: encode %s: %w", key, err)
	}
	return e.storeRaw(conn, cmd, key, data, flags, exptime)
}

// StoreCounter stores n as its ASCII decimal representation with flags = 0,
// the form the server's own incr/decr commands require.
func (e *Engine) StoreCounter(conn *pool.SocketConn, key string, n uint64) error {
	return e.storeRaw(conn, CmdSet, key, []byte(strconv.FormatUint(n, 10)), 0, 0)
}

func (e *Engine) storeRaw(conn *pool.SocketConn, cmd, key string, data []byte, flags uint32, exptime int64) error {
	buf := e.bufs.Get()
	defer e.bufs.Put(buf)

	fmt.Fprintf(buf, "%s %s %d %d %d", cmd, key, flags, exptime, len(data))
	if err := conn.WriteLine(buf.Bytes()); err != nil {
		return err
	}
	if err := conn.WriteRaw(data); err != nil {
		return err
	}
	if err := conn.WriteLine(nil); err != nil {
		return err
	}
	if err := conn.Flush(); err != nil {
		return err
	}

	line, err := conn.ReadLine()
	if err != nil {
		return err
	}
	switch string(line) {
	case replyStored:
		return nil
	case replyNotStored:
		return ErrNotStored
	default:
		return fmt.Errorf("%w: %q", ErrProtocolError, line)
	}
}

// Get retrieves a single key. found is false when the server has no value
// for key; in that case Item is the zero value.
func (e *Engine) Get(conn *pool.SocketConn, key string) (item Item, found bool, err error) {
	items, err := e.GetMulti(conn, []string{key})
	if err != nil {
		return Item{}, false, err
	}
	item, found = items[key]
	return item, found, nil
}

// GetMulti retrieves every key in keys over a single connection, issuing
// one multi-key get command. Keys absent from the returned map had no
// value on the server.
func (e *Engine) GetMulti(conn *pool.SocketConn, keys []string) (map[string]Item, error) {
	buf := e.bufs.Get()
	defer e.bufs.Put(buf)

	buf.WriteString(cmdGet)
	for _, k := range keys {
		buf.WriteByte(' ')
		buf.WriteString(k)
	}
	if err := conn.WriteLine(buf.Bytes()); err != nil {
		return nil, err
	}
	if err := conn.Flush(); err != nil {
		return nil, err
	}

	result := make(map[string]Item, len(keys))
	for {
		line, err := conn.ReadLine()
		if err != nil {
			return nil, err
		}
		if string(line) == replyEnd {
			return result, nil
		}

		key, flags, size, err := parseValueLine(line)
		if err != nil {
			return nil, err
		}
		data, err := conn.ReadExact(size)
		if err != nil {
			return nil, err
		}
		if err := conn.ConsumeEol(); err != nil {
			return nil, err
		}
		result[key] = Item{Data: data, Flags: flags}
	}
}

func parseValueLine(line []byte) (key string, flags uint32, size int, err error) {
	fields := bytes.Fields(line)
	if len(fields) < 4 || string(fields[0]) != replyValue {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrProtocolError, line)
	}
	f, err := strconv.ParseUint(string(fields[2]), 10, 32)
	if err != nil {
		return "", 0, 0, fmt.Errorf("%w: bad flags in %q", ErrProtocolError, line)
	}
	n, err := strconv.Atoi(string(fields[3]))
	if err != nil {
		return "", 0, 0, fmt.Errorf("%w: bad length in %q", ErrProtocolError, line)
	}
	return string(fields[1]), uint32(f), n, nil
}

// Delete removes key. The command is sent without an exptime argument.
func (e *Engine) Delete(conn *pool.SocketConn, key string) error {
	if err := conn.WriteLine([]byte(cmdDelete + " " + key)); err != nil {
		return err
	}
	if err := conn.Flush(); err != nil {
		return err
	}
	line, err := conn.ReadLine()
	if err != nil {
		return err
	}
	switch string(line) {
	case replyDeleted:
		return nil
	case replyNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("%w: %q", ErrProtocolError, line)
	}
}

// Incr adds delta to the counter at key, returning its new value. Decr
// subtracts, clamping at zero (the server's own underflow behavior).
func (e *Engine) Incr(conn *pool.SocketConn, key string, delta uint64) (uint64, error) {
	return e.arith(conn, cmdIncr, key, delta)
}

func (e *Engine) Decr(conn *pool.SocketConn, key string, delta uint64) (uint64, error) {
	return e.arith(conn, cmdDecr, key, delta)
}

func (e *Engine) arith(conn *pool.SocketConn, cmd, key string, delta uint64) (uint64, error) {
	line := fmt.Sprintf("%s %s %d", cmd, key, delta)
	if err := conn.WriteLine([]byte(line)); err != nil {
		return 0, err
	}
	if err := conn.Flush(); err != nil {
		return 0, err
	}
	reply, err := conn.ReadLine()
	if err != nil {
		return 0, err
	}
	if string(reply) == replyNotFound {
		return 0, ErrNotFound
	}
	if !isDecimal(reply) {
		return 0, fmt.Errorf("%w: %q", ErrProtocolError, reply)
	}
	n, err := strconv.ParseUint(string(reply), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrProtocolError, reply)
	}
	return n, nil
}

// isDecimal reports whether line is all decimal digits, with an optional
// leading minus — the intended check for a numeric incr/decr reply.
func isDecimal(line []byte) bool {
	if len(line) == 0 {
		return false
	}
	i := 0
	if line[0] == '-' {
		i = 1
	}
	if i == len(line) {
		return false
	}
	for ; i < len(line); i++ {
		if line[i] < '0' || line[i] > '9' {
			return false
		}
	}
	return true
}

// FlushAll invalidates every item on the server.
func (e *Engine) FlushAll(conn *pool.SocketConn) error {
	if err := conn.WriteLine([]byte(cmdFlushAll)); err != nil {
		return err
	}
	if err := conn.Flush(); err != nil {
		return err
	}
	line, err := conn.ReadLine()
	if err != nil {
		return err
	}
	if string(line) != replyOK {
		return fmt.Errorf("%w: %q", ErrProtocolError, line)
	}
	return nil
}

// Stats retrieves the server's stats block as a flat name/value map.
func (e *Engine) Stats(conn *pool.SocketConn) (map[string]string, error) {
	if err := conn.WriteLine([]byte(cmdStats)); err != nil {
		return nil, err
	}
	if err := conn.Flush(); err != nil {
		return nil, err
	}

	stats := make(map[string]string)
	for {
		line, err := conn.ReadLine()
		if err != nil {
			return nil, err
		}
		if string(line) == replyEnd {
			return stats, nil
		}
		fields := bytes.Fields(line)
		if len(fields) < 2 || string(fields[0]) != replyStat {
			return nil, fmt.Errorf("%w: %q", ErrProtocolError, line)
		}
		name := string(fields[1])
		value := ""
		if len(fields) > 2 {
			value = string(bytes.Join(fields[2:], []byte(" ")))
		}
		stats[name] = value
	}
}
