// Package rdt implements a Reliable Data Transfer (RDT) endpoint: a
// byte-stream abstraction over an unreliable *net.UDPConn, using
// sequence-numbered, CRC32-checked framing, cumulative ACKs, a single
// retransmission timer and a Go-Back-N sliding window on the sender
// paired with a strictly in-order receiver.
//
// The shape of Endpoint mirrors the teacher's source/server.Server: one
// struct owning a socket, a running listener goroutine, and an
// idempotent Close that tears both down. Lifecycle: New binds a local
// socket; Connect (client) or Accept (server) sets the single peer; Send
// and Recv move payloads; Close releases everything.
package rdt

import (
	"errors"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/harlanmills/rdtgo/internal/datagram"
	"github.com/harlanmills/rdtgo/internal/gbn"
	"github.com/harlanmills/rdtgo/internal/listener"
	"github.com/harlanmills/rdtgo/internal/metrics"
	"github.com/harlanmills/rdtgo/internal/rdtlog"
	"github.com/harlanmills/rdtgo/internal/wire"
)

var log = rdtlog.New("endpoint")

// peerTracker records the single peer address, set-once, and lets Accept
// observe the moment it is first recorded.
type peerTracker struct {
	inner listener.AtomicPeer
	once  sync.Once
	ready chan struct{}
}

func newPeerTracker() *peerTracker {
	return &peerTracker{ready: make(chan struct{})}
}

func (p *peerTracker) RecordPeer(addr *net.UDPAddr) bool {
	first := p.inner.RecordPeer(addr)
	if first {
		p.once.Do(func() { close(p.ready) })
	}
	return first
}

func (p *peerTracker) Get() *net.UDPAddr { return p.inner.Get() }

// Registerer, when passed non-nil as New's second argument, causes New to
// register a Prometheus metrics recorder for the endpoint under a label
// derived from its UUID. A nil Registerer disables metrics.
type Registerer = prometheus.Registerer

// Endpoint is the user-facing RDT connection. Exactly one peer may be
// bound to it for its lifetime; see spec §4.6.
type Endpoint struct {
	id  uuid.UUID
	cfg Config

	conn *datagram.Conn
	peer *peerTracker

	sender   *gbn.Sender
	receiver *gbn.Receiver

	eg      *errgroup.Group
	closeMu sync.Once
	done    chan struct{}
}

// New binds a datagram socket to cfg.LocalAddr and starts the listener
// goroutine. No peer is set yet; call Connect or Accept next.
func New(cfg Config, reg Registerer) (*Endpoint, error) {
	conn, err := datagram.Listen(cfg.LocalAddr)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	var recorder *metrics.Recorder
	if reg != nil {
		recorder = metrics.NewRecorder(reg, id.String())
	}

	e := &Endpoint{
		id:   id,
		cfg:  cfg,
		conn: conn,
		peer: newPeerTracker(),
		done: make(chan struct{}),
	}

	maxSingleFramePayload := cfg.MaxPacketSize - wire.HeaderSize
	e.sender = gbn.NewSender(cfg.Window, cfg.Timeout, cfg.SleepBetweenSends, maxSingleFramePayload, e.transmit, wrapSenderRecorder(recorder))
	e.receiver = gbn.NewReceiver(cfg.SuppressPreDeliveryAck, wrapAckRecorder(recorder))

	e.eg = &errgroup.Group{}
	e.eg.Go(func() error {
		return listener.Loop(e.conn, e.peer, e.sender, e.receiver, e.sendAck)
	})

	log.WithField("id", e.id).WithField("local_addr", e.conn.LocalAddr()).Info("endpoint bound")
	return e, nil
}

// transmit encodes and sends a data frame for seq to the current peer.
// It is the callback the sender engine uses for first transmission and
// for every timeout-driven retransmission.
func (e *Endpoint) transmit(seq uint32, frame []byte) error {
	peer := e.peer.Get()
	if peer == nil {
		return ErrNotConnected
	}
	return e.conn.SendTo(peer, frame)
}

// sendAck encodes and sends a cumulative ACK frame to peer.
func (e *Endpoint) sendAck(peer *net.UDPAddr, ackSeq uint32) error {
	frame := wire.Encode(ackSeq, true, nil)
	return e.conn.SendTo(peer, frame)
}

// ID returns the endpoint's log-correlation identifier. Not part of the
// wire protocol.
func (e *Endpoint) ID() uuid.UUID { return e.id }

// LocalAddr returns the bound local address.
func (e *Endpoint) LocalAddr() *net.UDPAddr { return e.conn.LocalAddr() }

// Connect sets the peer this endpoint will exchange packets with. Fails
// with ErrAlreadyConnected if a peer is already set (by a prior Connect,
// or by the listener recording an inbound datagram's source).
func (e *Endpoint) Connect(peerAddr string) error {
	addr, err := net.ResolveUDPAddr("udp", peerAddr)
	if err != nil {
		return err
	}
	if !e.peer.RecordPeer(addr) {
		return ErrAlreadyConnected
	}
	log.WithField("id", e.id).WithField("peer", addr).Info("connected")
	return nil
}

// Accept blocks until the listener records a peer (the source address of
// the first valid-enough-to-reach-the-listener datagram — including one
// that later fails CRC, per spec §9) or the endpoint is closed.
func (e *Endpoint) Accept() (string, error) {
	select {
	case <-e.peer.ready:
		addr := e.peer.Get()
		log.WithField("id", e.id).WithField("peer", addr).Info("accepted")
		return addr.String(), nil
	case <-e.done:
		return "", ErrClosed
	}
}

// Send fails with ErrNotConnected if no peer is set; otherwise it slices b
// into payloads of at most the configured bound and hands each to the
// sender engine in order, returning once every slice has been queued and
// transmitted at least once. Sending an empty input is a no-op.
func (e *Endpoint) Send(b []byte) error {
	if e.peer.Get() == nil {
		return ErrNotConnected
	}
	if len(b) == 0 {
		return nil
	}

	bound := e.cfg.sendChunkBound()
	for start := 0; start < len(b); start += bound {
		end := start + bound
		if end > len(b) {
			end = len(b)
		}
		if err := e.sender.SendChunk(b[start:end]); err != nil {
			if errors.Is(err, gbn.ErrClosed) {
				return ErrClosed
			}
			if errors.Is(err, gbn.ErrPayloadTooLarge) {
				return ErrPayloadTooLarge
			}
			return err
		}
	}
	return nil
}

// Recv blocks until the delivered FIFO is non-empty, then returns its
// head. Each call returns exactly one payload as delivered by a single
// received data packet; the core never concatenates payloads.
func (e *Endpoint) Recv() ([]byte, error) {
	payload, err := e.receiver.Recv()
	if err != nil {
		if errors.Is(err, gbn.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return payload, nil
}

// Close stops the retransmission timer, closes the datagram socket
// (waking the listener), joins the listener goroutine, and unblocks any
// pending Accept/Send/Recv. Idempotent.
func (e *Endpoint) Close() error {
	var closeErr error
	e.closeMu.Do(func() {
		close(e.done)
		e.sender.Close()
		e.receiver.Close()
		closeErr = e.conn.Close()
		_ = e.eg.Wait()
		log.WithField("id", e.id).Info("closed")
	})
	return closeErr
}

func wrapSenderRecorder(r *metrics.Recorder) gbn.Recorder {
	if r == nil {
		return nil
	}
	return r
}

func wrapAckRecorder(r *metrics.Recorder) gbn.AckRecorder {
	if r == nil {
		return nil
	}
	return r
}
