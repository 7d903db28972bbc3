package mctext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/mctext/internal/testutils"
	"github.com/pior/mctext/pool"
)

// newTestClient builds a single-server Client backed by a MockConn seeded
// with reply, so a test can drive exactly one exchange deterministically.
func newTestClient(t testing.TB, reply ...string) (*Client, *testutils.MockConn) {
	t.Helper()
	mock := testutils.NewMockConn(reply...).Gate()
	cfg := DefaultConfig("mock:11211")
	cfg.InitConn = 1
	cfg.MinConn = 1
	cfg.MaxConn = 1
	cfg.MaintSleepMs = 0
	cfg.Dialer = func(addr string, timeout time.Duration, nagle bool) (*pool.SocketConn, error) {
		return pool.Wrap(addr, mock), nil
	}

	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(c.ShutDown)
	return c, mock
}

func TestClient_Set_Stored(t *testing.T) {
	c, mock := newTestClient(t, "STORED\r\n")

	err := c.Set(context.Background(), "foo", "bar", 0)
	require.NoError(t, err)
	assert.Contains(t, mock.Written(), "set foo 0 0")
}

func TestClient_Add_NotStored(t *testing.T) {
	c, _ := newTestClient(t, "NOT_STORED\r\n")

	err := c.Add(context.Background(), "foo", "bar", 0)
	assert.ErrorIs(t, err, ErrNotStored)

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, KindNotStored, opErr.Kind)
}

func TestClient_Get_Found(t *testing.T) {
	c, _ := newTestClient(t, "VALUE foo 0 3\r\nbar\r\nEND\r\n")

	var out string
	found, err := c.Get(context.Background(), "foo", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "bar", out)
}

func TestClient_Get_NotFound(t *testing.T) {
	c, _ := newTestClient(t, "END\r\n")

	var out string
	found, err := c.Get(context.Background(), "missing", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClient_Delete_NotFound(t *testing.T) {
	c, _ := newTestClient(t, "NOT_FOUND\r\n")

	err := c.Delete(context.Background(), "foo")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_Incr(t *testing.T) {
	c, mock := newTestClient(t, "42\r\n")

	n, err := c.Incr(context.Background(), "counter", 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), n)
	assert.Equal(t, "incr counter 5\r\n", mock.Written())
}

func TestClient_StoreCounter_GetCounter(t *testing.T) {
	c, _ := newTestClient(t, "STORED\r\n")
	require.NoError(t, c.StoreCounter(context.Background(), "counter", 7))

	c2, _ := newTestClient(t, "VALUE counter 0 1\r\n7\r\nEND\r\n")
	n, found, err := c2.GetCounter(context.Background(), "counter")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(7), n)
}

func TestClient_ProtocolError_DestroysConnection(t *testing.T) {
	c, _ := newTestClient(t, "GARBAGE\r\n")

	err := c.Set(context.Background(), "foo", "bar", 0)
	assert.ErrorIs(t, err, ErrProtocolError)

	stats := c.pool.Stats()["mock:11211"]
	assert.Equal(t, int32(0), stats.Idle, "broken connection should not be returned to idle")
}

func TestClient_Metrics_TracksOperations(t *testing.T) {
	c, _ := newTestClient(t, "STORED\r\n")
	require.NoError(t, c.Set(context.Background(), "foo", "bar", 0))

	metrics := c.Metrics()
	assert.Equal(t, uint64(1), metrics.Sets)
	assert.Equal(t, uint64(0), metrics.Errors)
}

func TestClient_Metrics_CacheHitRate(t *testing.T) {
	c, _ := newTestClient(t, "END\r\n")
	var out string
	_, err := c.Get(context.Background(), "missing", &out)
	require.NoError(t, err)

	metrics := c.Metrics()
	assert.Equal(t, uint64(1), metrics.CacheMisses)
	assert.Equal(t, float64(0), metrics.HitRate())
}
