package outbound

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectSuccess(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	portNum, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	conn, err := Connect(context.Background(), host, uint16(portNum))
	require.NoError(t, err)
	conn.Close()
}

func TestConnectTimeout(t *testing.T) {
	// 10.255.255.1 is a non-routable address chosen to trigger a dial
	// timeout rather than an immediate refusal in most test sandboxes;
	// use a near-zero context deadline instead so the test is fast and
	// deterministic regardless of network reachability.
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()

	_, err := Connect(ctx, "127.0.0.1", 1)
	require.ErrorIs(t, err, ErrConnectTimeout)
}

func TestWriteSplitsLargePayload(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	data := make([]byte, 20000)
	for i := range data {
		data[i] = byte(i % 256)
	}

	done := make(chan error, 1)
	go func() {
		done <- Write(client, data)
	}()

	received := make([]byte, 0, len(data))
	buf := make([]byte, 4096)
	for len(received) < len(data) {
		n, err := server.Read(buf)
		received = append(received, buf[:n]...)
		if err != nil {
			break
		}
	}

	require.NoError(t, <-done)
	assert.Equal(t, data, received)
}

func TestBridgeToWSAppliesPrefixOnce(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	go func() {
		_, _ = server.Write([]byte("first"))
		_, _ = server.Write([]byte("second"))
		server.Close()
	}()

	var frames [][]byte
	sink := func(payload []byte) error {
		cp := append([]byte(nil), payload...)
		frames = append(frames, cp)
		return nil
	}

	err := BridgeToWS(context.Background(), client, sink, []byte{7, 0})
	require.ErrorIs(t, err, io.EOF)
	require.GreaterOrEqual(t, len(frames), 1)
	assert.Equal(t, append([]byte{7, 0}, []byte("first")...), frames[0])
	for _, f := range frames[1:] {
		assert.NotEqual(t, byte(7), f[0])
	}
}
