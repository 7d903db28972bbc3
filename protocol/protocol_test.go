package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/mctext/codec"
	"github.com/pior/mctext/internal/testutils"
	"github.com/pior/mctext/pool"
)

func newEngine() *Engine {
	return New(codec.New(false, 0))
}

func newConn(reply ...string) (*pool.SocketConn, *testutils.MockConn) {
	mock := testutils.NewMockConn(reply...)
	return pool.Wrap("mock:11211", mock), mock
}

func TestEngine_Store_Stored(t *testing.T) {
	e := newEngine()
	conn, mock := newConn("STORED\r\n")

	err := e.Store(conn, "set", "foo", "bar", 0)
	require.NoError(t, err)
	assert.Equal(t, "set foo 0 0 3\r\nbar\r\n", mock.Written())
}

func TestEngine_Store_NotStored(t *testing.T) {
	e := newEngine()
	conn, _ := newConn("NOT_STORED\r\n")

	err := e.Store(conn, "add", "foo", "bar", 0)
	assert.ErrorIs(t, err, ErrNotStored)
}

func TestEngine_Store_ProtocolError(t *testing.T) {
	e := newEngine()
	conn, _ := newConn("GARBAGE\r\n")

	err := e.Store(conn, "set", "foo", "bar", 0)
	assert.ErrorIs(t, err, ErrProtocolError)
}

func TestEngine_StoreCounter(t *testing.T) {
	e := newEngine()
	conn, mock := newConn("STORED\r\n")

	require.NoError(t, e.StoreCounter(conn, "counter", 100))
	assert.Equal(t, "set counter 0 0 3\r\n100\r\n", mock.Written())
}

func TestEngine_Get_Found(t *testing.T) {
	e := newEngine()
	conn, _ := newConn("VALUE foo 0 3\r\nbar\r\nEND\r\n")

	item, found, err := e.Get(conn, "foo")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "bar", string(item.Data))
	assert.Equal(t, uint32(0), item.Flags)
}

func TestEngine_Get_NotFound(t *testing.T) {
	e := newEngine()
	conn, _ := newConn("END\r\n")

	_, found, err := e.Get(conn, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEngine_GetMulti_MergesValues(t *testing.T) {
	e := newEngine()
	conn, mock := newConn("VALUE k1 0 1\r\na\r\nVALUE k2 8 1\r\nb\r\nEND\r\n")

	items, err := e.GetMulti(conn, []string{"k1", "k2", "k3"})
	require.NoError(t, err)
	assert.Equal(t, "get k1 k2 k3\r\n", mock.Written())
	require.Len(t, items, 2)
	assert.Equal(t, "a", string(items["k1"].Data))
	assert.Equal(t, "b", string(items["k2"].Data))
	assert.Equal(t, uint32(8), items["k2"].Flags)
	_, ok := items["k3"]
	assert.False(t, ok)
}

func TestEngine_Delete_Deleted(t *testing.T) {
	e := newEngine()
	conn, mock := newConn("DELETED\r\n")

	require.NoError(t, e.Delete(conn, "foo"))
	assert.Equal(t, "delete foo\r\n", mock.Written())
}

func TestEngine_Delete_NotFound(t *testing.T) {
	e := newEngine()
	conn, _ := newConn("NOT_FOUND\r\n")

	err := e.Delete(conn, "foo")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_Incr(t *testing.T) {
	e := newEngine()
	conn, mock := newConn("106\r\n")

	n, err := e.Incr(conn, "c", 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(106), n)
	assert.Equal(t, "incr c 5\r\n", mock.Written())
}

func TestEngine_Decr_UnderflowClamp(t *testing.T) {
	e := newEngine()
	conn, _ := newConn("0\r\n")

	n, err := e.Decr(conn, "c", 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
}

func TestEngine_Incr_NotFound(t *testing.T) {
	e := newEngine()
	conn, _ := newConn("NOT_FOUND\r\n")

	_, err := e.Incr(conn, "c", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_FlushAll(t *testing.T) {
	e := newEngine()
	conn, mock := newConn("OK\r\n")

	require.NoError(t, e.FlushAll(conn))
	assert.Equal(t, "flush_all\r\n", mock.Written())
}

func TestEngine_Stats(t *testing.T) {
	e := newEngine()
	conn, _ := newConn("STAT pid 123\r\nSTAT version 1.6.0\r\nEND\r\n")

	stats, err := e.Stats(conn)
	require.NoError(t, err)
	assert.Equal(t, "123", stats["pid"])
	assert.Equal(t, "1.6.0", stats["version"])
}

func TestIsDecimal(t *testing.T) {
	assert.True(t, isDecimal([]byte("106")))
	assert.True(t, isDecimal([]byte("-5")))
	assert.False(t, isDecimal([]byte("")))
	assert.False(t, isDecimal([]byte("-")))
	assert.False(t, isDecimal([]byte("12a")))
}
