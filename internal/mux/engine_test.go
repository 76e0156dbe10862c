package mux

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullwave/edgetun/internal/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func drainFrames(t *testing.T, q *WriteQueue, want int, timeout time.Duration) []wire.Frame {
	t.Helper()
	var frames []wire.Frame
	deadline := time.Now().Add(timeout)
	for len(frames) < want && time.Now().Before(deadline) {
		q.mu.Lock()
		first := !q.primed
		q.mu.Unlock()
		raw, ok := q.Dequeue()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		if first {
			// Dequeue puts the response prefix in front of the first frame only.
			raw = raw[len(q.prefix):]
		}
		f, _, err := wire.ParseMuxFrame(raw)
		require.NoError(t, err)
		frames = append(frames, f)
	}
	return frames
}

// TestMuxNewKeepEndAgainstRealListener mirrors spec scenario 4: New(id=7,
// TCP, addr of a local listener) carrying "ABC", then Keep(id=7, "XYZ"),
// then End(id=7). Expect exactly one accepted connection, payload "ABCXYZ"
// received in order, and an End(7) emitted once the upstream closes.
func TestMuxNewKeepEndAgainstRealListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 1)
	accepted := make(chan struct{}, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- struct{}{}
		buf := make([]byte, 64)
		var got []byte
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		for {
			n, err := conn.Read(buf)
			got = append(got, buf[:n]...)
			if err != nil {
				break
			}
		}
		conn.Close()
		received <- got
	}()

	host, port := splitTestAddr(t, ln.Addr().String())

	queue := NewWriteQueue([]byte{0, 0})
	e := New(Config{MaxSubrequests: 48}, queue, discardLogger())

	newFrame, err := wire.BuildNew(7, wire.NetworkTCP, port, wire.AddressIPv4, host, []byte("ABC"))
	require.NoError(t, err)
	keepFrame := wire.BuildKeep(7, []byte("XYZ"))
	endFrame := wire.BuildEnd(7)

	require.NoError(t, e.Feed(context.Background(), newFrame))

	select {
	case <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted a connection")
	}

	require.NoError(t, e.Feed(context.Background(), keepFrame))
	require.NoError(t, e.Feed(context.Background(), endFrame))

	got := <-received
	assert.Equal(t, "ABCXYZ", string(got))

	frames := drainFrames(t, queue, 1, 2*time.Second)
	require.GreaterOrEqual(t, len(frames), 1)
	assert.Equal(t, wire.StatusEnd, frames[len(frames)-1].Status)
}

func TestMuxKeepForUnknownIDSendsSingleEnd(t *testing.T) {
	queue := NewWriteQueue([]byte{0, 0})
	e := New(Config{MaxSubrequests: 48}, queue, discardLogger())

	keep := wire.BuildKeep(99, []byte("ping"))
	require.NoError(t, e.Feed(context.Background(), keep))

	frames := drainFrames(t, queue, 1, time.Second)
	require.Len(t, frames, 1)
	assert.Equal(t, wire.StatusEnd, frames[0].Status)
	assert.Equal(t, uint16(99), frames[0].SubID)

	// A second Keep(99) must produce no further End.
	require.NoError(t, e.Feed(context.Background(), keep))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, queue.Len())
}

func TestMuxHostSubrequestBudget(t *testing.T) {
	queue := NewWriteQueue([]byte{0, 0})
	e := New(Config{MaxSubrequests: 2}, queue, discardLogger())

	for i := uint16(1); i <= 2; i++ {
		f, err := wire.BuildNew(i, wire.NetworkTCP, 1, wire.AddressIPv4, "127.0.0.1", nil)
		require.NoError(t, err)
		require.NoError(t, e.Feed(context.Background(), f))
	}
	time.Sleep(20 * time.Millisecond) // let async connects fail/settle

	third, err := wire.BuildNew(3, wire.NetworkTCP, 1, wire.AddressIPv4, "127.0.0.1", nil)
	require.NoError(t, err)
	require.NoError(t, e.Feed(context.Background(), third))

	frames := drainFrames(t, queue, 3, time.Second)
	require.GreaterOrEqual(t, len(frames), 1)
	found := false
	for _, f := range frames {
		if f.Status == wire.StatusEnd && f.SubID == 3 {
			found = true
		}
	}
	assert.True(t, found, "49th-equivalent New over budget must get an immediate End")

	e.mu.Lock()
	total := e.totalTCP
	e.mu.Unlock()
	assert.Equal(t, 2, total, "total connections counter must not increment past the budget")
}

func TestMuxUnknownStatusFrameIsRejectedByFeed(t *testing.T) {
	queue := NewWriteQueue([]byte{0, 0})
	e := New(Config{MaxSubrequests: 48}, queue, discardLogger())

	buf := []byte{0x00, 0x04, 0x00, 0x01, 0x09, 0x00} // status 9: unknown
	err := e.Feed(context.Background(), buf)
	require.Error(t, err)
}

func TestMuxFeedBuffersIncompleteFrame(t *testing.T) {
	queue := NewWriteQueue([]byte{0, 0})
	e := New(Config{MaxSubrequests: 48}, queue, discardLogger())

	full := wire.BuildKeep(5, []byte("hello"))
	part1 := full[:len(full)-2]
	part2 := full[len(full)-2:]

	require.NoError(t, e.Feed(context.Background(), part1))
	e.mu.Lock()
	residueLen := len(e.residue)
	e.mu.Unlock()
	assert.Greater(t, residueLen, 0)

	require.NoError(t, e.Feed(context.Background(), part2))
	e.mu.Lock()
	residueLen = len(e.residue)
	e.mu.Unlock()
	assert.Equal(t, 0, residueLen)
}

func TestMuxEndedSetHalvesOnOverflow(t *testing.T) {
	s := newEndedSet()
	for i := uint16(0); i < endedSetCap+10; i++ {
		s.Add(i)
	}
	assert.LessOrEqual(t, s.Len(), endedSetCap)
}

func splitTestAddr(t *testing.T, addr string) (string, uint16) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, uint16(port)
}
