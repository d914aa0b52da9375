// Package listener implements the dispatch loop of spec §4.5: read a
// datagram, record the peer on first contact, decode and verify it, and
// route ACKs to the sender engine and data to the receiver engine.
package listener

import (
	"errors"
	"net"
	"sync/atomic"

	"github.com/harlanmills/rdtgo/internal/datagram"
	"github.com/harlanmills/rdtgo/internal/rdtlog"
	"github.com/harlanmills/rdtgo/internal/wire"
)

var log = rdtlog.New("listener")

const maxDatagramSize = 2048

// Sender is the subset of gbn.Sender the listener needs.
type Sender interface {
	OnAck(ackSeq uint32)
}

// Receiver is the subset of gbn.Receiver the listener needs.
type Receiver interface {
	OnData(seq uint32, payload []byte) (ackSeq uint32, ok bool)
}

// PeerRecorder lets the listener announce the first-observed peer address
// to the endpoint facade (for Accept) without importing it directly.
type PeerRecorder interface {
	// RecordPeer stores addr as the peer if none is set yet. Returns true
	// the first time it is called with a non-nil address.
	RecordPeer(addr *net.UDPAddr) bool
}

// AckSender encodes and transmits an ACK frame to peer.
type AckSender func(peer *net.UDPAddr, ackSeq uint32) error

// Loop reads datagrams from conn until it returns datagram.ErrClosed,
// dispatching decoded frames to sender/receiver. It is meant to run as the
// body of a single goroutine owned by the endpoint's errgroup.
func Loop(conn *datagram.Conn, peers PeerRecorder, sender Sender, receiver Receiver, sendAck AckSender) error {
	for {
		data, addr, err := conn.Recv(maxDatagramSize)
		if err != nil {
			if errors.Is(err, datagram.ErrClosed) {
				return nil
			}
			log.WithError(err).Warn("recv failed")
			continue
		}

		peers.RecordPeer(addr)

		frame, err := wire.Decode(data)
		if err != nil {
			log.WithField("peer", addr).Debug("discarded frame: too short")
			continue
		}
		if !frame.Verify() {
			log.WithField("peer", addr).WithField("seq", frame.Seq).Debug("discarded frame: CRC mismatch")
			continue
		}

		if frame.IsAck {
			sender.OnAck(frame.Seq)
			continue
		}

		ackSeq, ok := receiver.OnData(frame.Seq, frame.Payload)
		if !ok {
			continue
		}
		if err := sendAck(addr, ackSeq); err != nil {
			log.WithError(err).Warn("ack send failed")
		}
	}
}

// AtomicPeer is a PeerRecorder that stores at most one address, set-once,
// matching spec §3's "Peer address" lifecycle.
type AtomicPeer struct {
	addr atomic.Pointer[net.UDPAddr]
}

func (p *AtomicPeer) RecordPeer(addr *net.UDPAddr) bool {
	return p.addr.CompareAndSwap(nil, addr)
}

// Get returns the recorded peer, or nil if none has been recorded yet.
func (p *AtomicPeer) Get() *net.UDPAddr {
	return p.addr.Load()
}
