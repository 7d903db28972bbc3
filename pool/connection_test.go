package pool

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/mctext/internal/testutils"
)

func newTestConn(t *testing.T, reply ...string) (*SocketConn, *testutils.MockConn) {
	t.Helper()
	mock := testutils.NewMockConn(reply...)
	conn := &SocketConn{
		Addr:   "mock:11211",
		conn:   mock,
		reader: bufio.NewReader(mock),
		writer: bufio.NewWriter(mock),
	}
	return conn, mock
}

func TestSocketConn_WriteLineAndFlush(t *testing.T) {
	conn, mock := newTestConn(t)
	require.NoError(t, conn.WriteLine([]byte("get foo")))
	require.NoError(t, conn.Flush())
	assert.Equal(t, "get foo\r\n", mock.Written())
}

func TestSocketConn_WriteRawDoesNotAppendTerminator(t *testing.T) {
	conn, mock := newTestConn(t)
	require.NoError(t, conn.WriteRaw([]byte("payload")))
	require.NoError(t, conn.Flush())
	assert.Equal(t, "payload", mock.Written())
}

func TestSocketConn_ReadLine(t *testing.T) {
	conn, _ := newTestConn(t, "STORED\r\n")
	line, err := conn.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "STORED", string(line))
}

func TestSocketConn_ReadExactAndConsumeEol(t *testing.T) {
	conn, _ := newTestConn(t, "hello\r\n")
	data, err := conn.ReadExact(5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	require.NoError(t, conn.ConsumeEol())
}

func TestSocketConn_ConsumeEol_MalformedTerminatorIsBroken(t *testing.T) {
	conn, _ := newTestConn(t, "XY")
	err := conn.ConsumeEol()
	assert.Error(t, err)
	assert.True(t, conn.Broken())
}

func TestSocketConn_ReadLine_EOFMarksBroken(t *testing.T) {
	conn, _ := newTestConn(t)
	_, err := conn.ReadLine()
	assert.Error(t, err)
	assert.True(t, conn.Broken())
}

func TestSocketConn_HardClose(t *testing.T) {
	conn, mock := newTestConn(t)
	require.NoError(t, conn.HardClose())
	assert.True(t, mock.Closed())
}

func TestSocketConn_Probe_QuietConnectionIsOK(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	conn := &SocketConn{Addr: "pipe", conn: client, reader: bufio.NewReader(client), writer: bufio.NewWriter(client)}
	defer conn.HardClose()

	assert.NoError(t, conn.Probe())
	assert.False(t, conn.Broken())
}

func TestSocketConn_Probe_UnexpectedDataIsBroken(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	go func() {
		_, _ = server.Write([]byte("x"))
	}()
	time.Sleep(20 * time.Millisecond)

	conn := &SocketConn{Addr: "pipe", conn: client, reader: bufio.NewReader(client), writer: bufio.NewWriter(client)}
	assert.Error(t, conn.Probe())
	assert.True(t, conn.Broken())
}
