// Package gbn implements the Go-Back-N sender and receiver engines: the
// sliding window, send buffer, single retransmission timer and the
// strictly in-order receiver described by spec sections 4.3 and 4.4. The
// shape mirrors the teacher's Session.SendQueue/RecoveryQueue/HandleACK,
// generalized from RakNet's NACK-driven selective resend to the spec's
// cumulative-ACK, whole-window GBN retransmission rule.
package gbn

import (
	"errors"
	"sync"
	"time"

	"github.com/harlanmills/rdtgo/internal/rdtlog"
	"github.com/harlanmills/rdtgo/internal/wire"
)

var log = rdtlog.New("sender")

// ErrClosed is returned by SendChunk once the sender has been closed.
var ErrClosed = errors.New("gbn: sender closed")

// ErrPayloadTooLarge is returned by SendChunk for a payload that would not
// fit in a single wire frame under the configured MaxPacketSize.
var ErrPayloadTooLarge = errors.New("gbn: payload exceeds single-packet bound")

// Recorder receives sender-side protocol events for observability. A nil
// Recorder is valid; Sender checks for nil before every call.
type Recorder interface {
	PacketSent()
	PacketRetransmitted()
	PacketAcked()
	WindowOccupancy(n int)
}

type bufferedPacket struct {
	data     []byte
	enqueued time.Time
}

// Sender implements the GBN sliding-window transmit side of spec §4.3.
type Sender struct {
	mu   sync.Mutex
	cond *sync.Cond

	sendBase uint32
	nextSeq  uint32
	window   uint32
	buf      map[uint32]bufferedPacket

	timeout           time.Duration
	sleepBetweenSends time.Duration
	maxPayload        int

	timer    Retransmit
	transmit func(seq uint32, frame []byte) error

	closed   bool
	recorder Recorder
}

// NewSender builds a Sender with the given window size, retransmission
// timeout, pacing sleep and per-packet payload bound. transmit is called
// with the already-encoded wire frame for a given sequence number; it is
// invoked both for first transmission and for every timeout-driven resend.
func NewSender(window uint32, timeout, sleepBetweenSends time.Duration, maxPayload int, transmit func(seq uint32, frame []byte) error, recorder Recorder) *Sender {
	s := &Sender{
		window:            window,
		buf:               make(map[uint32]bufferedPacket),
		timeout:           timeout,
		sleepBetweenSends: sleepBetweenSends,
		maxPayload:        maxPayload,
		transmit:          transmit,
		recorder:          recorder,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// SendChunk assigns the next sequence number to payload, buffers it,
// transmits it, and (re)arms the retransmission timer if it is now the
// oldest unacknowledged packet. It blocks while the window is full.
func (s *Sender) SendChunk(payload []byte) error {
	if len(payload) > s.maxPayload {
		return ErrPayloadTooLarge
	}

	s.mu.Lock()
	for s.nextSeq-s.sendBase >= s.window && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	seq := s.nextSeq
	frame := wire.Encode(seq, false, payload)
	s.buf[seq] = bufferedPacket{data: frame, enqueued: time.Now()}
	s.nextSeq++
	s.reportOccupancyLocked()
	s.mu.Unlock()

	if err := s.transmit(seq, frame); err != nil {
		log.WithError(err).WithField("seq", seq).Warn("transmit failed")
	}
	s.recordSent()

	s.mu.Lock()
	if s.sendBase == seq {
		s.timer.Arm(s.timeout, s.onTimeout)
	}
	s.mu.Unlock()

	if s.sleepBetweenSends > 0 {
		time.Sleep(s.sleepBetweenSends)
	}
	return nil
}

// OnAck applies a cumulative ACK: ack_seq = k acknowledges every sequence
// <= k. Stale ACKs (ack_seq < send_base) are ignored, per spec §4.3.
func (s *Sender) OnAck(ackSeq uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ackSeq < s.sendBase {
		return
	}

	newBase := ackSeq + 1
	for seq := s.sendBase; seq < newBase; seq++ {
		delete(s.buf, seq)
	}
	s.sendBase = newBase
	s.reportOccupancyLocked()

	if s.sendBase == s.nextSeq {
		s.timer.Cancel()
	} else {
		s.timer.Arm(s.timeout, s.onTimeout)
	}

	s.cond.Broadcast()
	s.recordAcked()
}

// onTimeout retransmits every buffered packet in ascending sequence order
// and re-arms the timer, implementing the whole-window GBN resend rule.
func (s *Sender) onTimeout() {
	s.mu.Lock()
	base, next := s.sendBase, s.nextSeq
	type resend struct {
		seq  uint32
		data []byte
	}
	var resends []resend
	for seq := base; seq < next; seq++ {
		if pkt, ok := s.buf[seq]; ok {
			resends = append(resends, resend{seq: seq, data: pkt.data})
		}
	}
	if base < next {
		s.timer.Arm(s.timeout, s.onTimeout)
	}
	s.mu.Unlock()

	for _, r := range resends {
		if err := s.transmit(r.seq, r.data); err != nil {
			log.WithError(err).WithField("seq", r.seq).Warn("retransmit failed")
		}
		s.recordRetransmitted()
	}
}

// Close unblocks any SendChunk waiting on window availability and cancels
// the retransmission timer. Idempotent.
func (s *Sender) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.timer.Cancel()
	s.mu.Unlock()
	s.cond.Broadcast()
}

// State reports (send_base, next_seq) for invariant checks and tests.
func (s *Sender) State() (sendBase, nextSeq uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendBase, s.nextSeq
}

func (s *Sender) reportOccupancyLocked() {
	if s.recorder != nil {
		s.recorder.WindowOccupancy(int(s.nextSeq - s.sendBase))
	}
}

func (s *Sender) recordSent() {
	if s.recorder != nil {
		s.recorder.PacketSent()
	}
}

func (s *Sender) recordAcked() {
	if s.recorder != nil {
		s.recorder.PacketAcked()
	}
}

func (s *Sender) recordRetransmitted() {
	if s.recorder != nil {
		s.recorder.PacketRetransmitted()
	}
}
