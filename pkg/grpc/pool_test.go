package grpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/encoding"
)

func TestPool_ReusesConnectionPerTarget(t *testing.T) {
	pool := NewPool(WithJSONCodec())
	defer pool.Close()

	a, err := pool.GetConnection("localhost:50051")
	require.NoError(t, err)
	b, err := pool.GetConnection("localhost:50051")
	require.NoError(t, err)
	c, err := pool.GetConnection("localhost:50052")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestPool_ReplacesShutdownConnection(t *testing.T) {
	pool := NewPool()
	defer pool.Close()

	first, err := pool.GetConnection("localhost:50051")
	require.NoError(t, err)
	require.NoError(t, first.Close())
	assert.Equal(t, connectivity.Shutdown, first.GetState())

	second, err := pool.GetConnection("localhost:50051")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestPool_Close(t *testing.T) {
	pool := NewPool()
	conn, err := pool.GetConnection("localhost:50051")
	require.NoError(t, err)

	require.NoError(t, pool.Close())
	assert.Equal(t, connectivity.Shutdown, conn.GetState())
}

func TestJSONCodecRegistered(t *testing.T) {
	codec := encoding.GetCodec(JSONCodecName)
	require.NotNil(t, codec)

	data, err := codec.Marshal(map[string]int64{"amount": 150})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":150}`, string(data))

	var out struct {
		Amount int64 `json:"amount"`
	}
	require.NoError(t, codec.Unmarshal(data, &out))
	assert.Equal(t, int64(150), out.Amount)
}
