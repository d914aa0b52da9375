package gbn

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSender(t *testing.T, window uint32, timeout time.Duration, transmit func(seq uint32, frame []byte) error) *Sender {
	t.Helper()
	return NewSender(window, timeout, 0, 1391, transmit, nil)
}

func TestSendChunkAssignsSequentialSeqAndArmsTimerOnFirstPacket(t *testing.T) {
	var mu sync.Mutex
	var sent []uint32
	s := newTestSender(t, 4, time.Second, func(seq uint32, frame []byte) error {
		mu.Lock()
		sent = append(sent, seq)
		mu.Unlock()
		return nil
	})

	require.NoError(t, s.SendChunk([]byte("a")))
	require.NoError(t, s.SendChunk([]byte("b")))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint32{0, 1}, sent)

	base, next := s.State()
	assert.EqualValues(t, 0, base)
	assert.EqualValues(t, 2, next)

	s.timer.mu.Lock()
	armed := s.timer.timer != nil
	s.timer.mu.Unlock()
	assert.True(t, armed, "retransmission timer should be armed after the first packet")
}

func TestSendChunkBlocksWhenWindowFull(t *testing.T) {
	s := newTestSender(t, 2, time.Hour, func(seq uint32, frame []byte) error { return nil })

	require.NoError(t, s.SendChunk([]byte("1")))
	require.NoError(t, s.SendChunk([]byte("2")))

	done := make(chan struct{})
	go func() {
		s.SendChunk([]byte("3"))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("SendChunk returned before window had space")
	case <-time.After(50 * time.Millisecond):
	}

	s.OnAck(0) // frees one slot

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SendChunk still blocked after ACK freed a window slot")
	}
}

func TestOnAckIsCumulativeAndIgnoresStaleAcks(t *testing.T) {
	s := newTestSender(t, 4, time.Hour, func(seq uint32, frame []byte) error { return nil })

	for i := 0; i < 3; i++ {
		require.NoError(t, s.SendChunk([]byte{byte(i)}))
	}

	s.OnAck(1) // acks seq 0 and 1
	base, next := s.State()
	assert.EqualValues(t, 2, base)
	assert.EqualValues(t, 3, next)

	s.OnAck(0) // stale, must be a no-op
	base, next = s.State()
	assert.EqualValues(t, 2, base)
	assert.EqualValues(t, 3, next)
}

func TestTimeoutRetransmitsWholeWindowInOrder(t *testing.T) {
	var mu sync.Mutex
	var resent []uint32
	first := true
	var s *Sender
	s = newTestSender(t, 4, 30*time.Millisecond, func(seq uint32, frame []byte) error {
		if !first {
			mu.Lock()
			resent = append(resent, seq)
			mu.Unlock()
		}
		return nil
	})
	require.NoError(t, s.SendChunk([]byte("a")))
	require.NoError(t, s.SendChunk([]byte("b")))
	first = false

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(resent), 2)
	assert.Equal(t, []uint32{0, 1}, resent[:2])
}

func TestSendChunkRejectsOversizePayload(t *testing.T) {
	s := NewSender(4, time.Second, 0, 4, func(uint32, []byte) error { return nil }, nil)
	err := s.SendChunk([]byte("too long"))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestCloseUnblocksPendingSendChunk(t *testing.T) {
	s := newTestSender(t, 1, time.Hour, func(uint32, []byte) error { return nil })
	require.NoError(t, s.SendChunk([]byte("1")))

	errc := make(chan error, 1)
	go func() { errc <- s.SendChunk([]byte("2")) }()

	time.Sleep(20 * time.Millisecond)
	s.Close()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock pending SendChunk")
	}
}
