package protocol

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// echoAdapter accepts one client and answers every chunk with reply
func echoAdapter(t *testing.T, reply []byte) (string, int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		buf := make([]byte, 256)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
			if _, err := conn.Write(reply); err != nil {
				return
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func TestTCPConnection_RoundTrip(t *testing.T) {
	host, port := echoAdapter(t, []byte{0x06})

	conn := NewTCPConnection(&TCPConfig{
		Host:        host,
		Port:        port,
		Timeout:     time.Second,
		ReadTimeout: time.Second,
	}, zap.NewNop())

	ctx := context.Background()
	require.NoError(t, conn.Open(ctx))
	defer conn.Close()

	require.NoError(t, conn.Ping(ctx))
	require.NoError(t, conn.Write(ctx, []byte{0x01, 0x03}))

	data, err := conn.Read(ctx, 16)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x06}, data)

	stats := conn.Stats()
	assert.Equal(t, int64(2), stats.BytesWritten)
	assert.Equal(t, int64(1), stats.BytesRead)
}

func TestTCPConnection_ReadTimeout(t *testing.T) {
	host, port := echoAdapter(t, nil)

	conn := NewTCPConnection(&TCPConfig{
		Host:        host,
		Port:        port,
		Timeout:     time.Second,
		ReadTimeout: 20 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, conn.Open(context.Background()))
	defer conn.Close()

	// read timeout alone yields an empty read
	data, err := conn.Read(context.Background(), 16)
	require.NoError(t, err)
	assert.Empty(t, data)

	// an expired context is reported
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = conn.Read(ctx, 16)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestTCPConnection_ConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	conn := NewTCPConnection(&TCPConfig{Host: addr.IP.String(), Port: addr.Port, Timeout: time.Second}, zap.NewNop())
	assert.Error(t, conn.Open(context.Background()))
	assert.False(t, conn.IsOpen())
	assert.True(t, errors.Is(conn.Ping(context.Background()), ErrNotOpen))
}
