package rdt_test

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/harlanmills/rdtgo"
)

func newLoopbackPair(t *testing.T) (client, server *rdt.Endpoint) {
	t.Helper()

	serverCfg := rdt.DefaultConfig("127.0.0.1:0")
	serverCfg.Timeout = 200 * time.Millisecond
	srv, err := rdt.New(serverCfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	clientCfg := rdt.DefaultConfig("127.0.0.1:0")
	clientCfg.Timeout = 200 * time.Millisecond
	cli, err := rdt.New(clientCfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })

	return cli, srv
}

// acceptAsync starts Accept in the background; the listener records a peer
// as soon as any datagram arrives, independent of whether Accept has been
// called, so tests that only need a connected pair don't need to use this.
func acceptAsync(t *testing.T, srv *rdt.Endpoint) <-chan string {
	t.Helper()
	peerCh := make(chan string, 1)
	go func() {
		peer, err := srv.Accept()
		require.NoError(t, err)
		peerCh <- peer
	}()
	return peerCh
}

func TestSendRecvSingleChunkLossless(t *testing.T) {
	cli, srv := newLoopbackPair(t)
	require.NoError(t, cli.Connect(srv.LocalAddr().String()))

	payload := []byte("hello, reliable world")
	require.NoError(t, cli.Send(payload))

	got, err := srv.Recv()
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestSendRecvMultipleChunksPreserveOrder(t *testing.T) {
	cli, srv := newLoopbackPair(t)
	require.NoError(t, cli.Connect(srv.LocalAddr().String()))

	chunks := [][]byte{
		[]byte("chunk-0"),
		[]byte("chunk-1"),
		[]byte("chunk-2"),
		[]byte("chunk-3"),
	}
	for _, c := range chunks {
		require.NoError(t, cli.Send(c))
	}

	for _, want := range chunks {
		got, err := srv.Recv()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestSendLargerThanSingleFrameSplitsAcrossPackets(t *testing.T) {
	cli, srv := newLoopbackPair(t)
	require.NoError(t, cli.Connect(srv.LocalAddr().String()))

	big := bytes.Repeat([]byte("x"), 3000)
	require.NoError(t, cli.Send(big))

	var reassembled []byte
	for len(reassembled) < len(big) {
		got, err := srv.Recv()
		require.NoError(t, err)
		reassembled = append(reassembled, got...)
	}
	require.Equal(t, big, reassembled)
}

func TestWindowFullBlocksUntilAcked(t *testing.T) {
	cli, srv := newLoopbackPair(t)
	require.NoError(t, cli.Connect(srv.LocalAddr().String()))

	const numChunks = 10
	done := make(chan error, 1)
	go func() {
		for i := 0; i < numChunks; i++ {
			if err := cli.Send([]byte{byte(i)}); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	for i := 0; i < numChunks; i++ {
		got, err := srv.Recv()
		require.NoError(t, err)
		require.Equal(t, []byte{byte(i)}, got)
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sender never drained despite all chunks acked")
	}
}

func TestAcceptReturnsErrClosedWhenClosedBeforeAnyPeer(t *testing.T) {
	serverCfg := rdt.DefaultConfig("127.0.0.1:0")
	srv, err := rdt.New(serverCfg, nil)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := srv.Accept()
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, srv.Close())

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, rdt.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Accept did not unblock on Close")
	}
}

func TestSendBeforeConnectFails(t *testing.T) {
	cfg := rdt.DefaultConfig("127.0.0.1:0")
	ep, err := rdt.New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ep.Close() })

	err = ep.Send([]byte("too early"))
	require.ErrorIs(t, err, rdt.ErrNotConnected)
}

func TestConnectTwiceFails(t *testing.T) {
	cli, srv := newLoopbackPair(t)
	require.NoError(t, cli.Connect(srv.LocalAddr().String()))
	err := cli.Connect(srv.LocalAddr().String())
	require.ErrorIs(t, err, rdt.ErrAlreadyConnected)
}

func TestCloseIsIdempotent(t *testing.T) {
	cfg := rdt.DefaultConfig("127.0.0.1:0")
	ep, err := rdt.New(cfg, nil)
	require.NoError(t, err)

	require.NoError(t, ep.Close())
	require.NoError(t, ep.Close())
}

func TestRecvAfterCloseReturnsErrClosed(t *testing.T) {
	cli, srv := newLoopbackPair(t)
	require.NoError(t, cli.Connect(srv.LocalAddr().String()))
	require.NoError(t, cli.Send([]byte("ping")))
	_, err := srv.Recv()
	require.NoError(t, err)

	require.NoError(t, srv.Close())
	_, err = srv.Recv()
	require.ErrorIs(t, err, rdt.ErrClosed)
}

func TestAcceptLearnsPeerFromFirstDatagram(t *testing.T) {
	cli, srv := newLoopbackPair(t)
	peerCh := acceptAsync(t, srv)
	require.NoError(t, cli.Connect(srv.LocalAddr().String()))
	require.NoError(t, cli.Send([]byte("first contact")))

	select {
	case peer := <-peerCh:
		host, _, err := net.SplitHostPort(peer)
		require.NoError(t, err)
		require.Equal(t, "127.0.0.1", host)
	case <-time.After(time.Second):
		t.Fatal("Accept never observed the client's first datagram")
	}

	got, err := srv.Recv()
	require.NoError(t, err)
	require.Equal(t, []byte("first contact"), got)
}
