package gbn

import "sync"

// AckRecorder receives receiver-side protocol events for observability.
type AckRecorder interface {
	PayloadDelivered()
	PacketDiscarded()
}

// Receiver implements the strictly in-order GBN receiver of spec §4.4:
// payloads are delivered to the FIFO only when they arrive with
// seq == expected_seq; anything else is discarded after re-ACKing the last
// in-order delivery.
type Receiver struct {
	mu           sync.Mutex
	cond         *sync.Cond
	expectedSeq  uint32
	delivered    [][]byte
	closed       bool
	suppressPre0 bool
	recorder     AckRecorder
}

// NewReceiver builds a Receiver. suppressPreDeliveryAck, when true,
// implements the §9 Open-Question option of not emitting the spurious
// ACK for sequence 0 before any payload has ever been delivered. The
// default used throughout this repo's drivers is false, matching the
// reference exactly.
func NewReceiver(suppressPreDeliveryAck bool, recorder AckRecorder) *Receiver {
	r := &Receiver{suppressPre0: suppressPreDeliveryAck, recorder: recorder}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// OnData processes an inbound data packet. ackSeq is the sequence number to
// ACK, and ok is false only when suppressPreDeliveryAck applies and no ACK
// should be sent at all.
func (r *Receiver) OnData(seq uint32, payload []byte) (ackSeq uint32, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if seq == r.expectedSeq {
		r.delivered = append(r.delivered, append([]byte{}, payload...))
		r.expectedSeq++
		r.cond.Broadcast()
		r.recordDelivered()
		return r.expectedSeq - 1, true
	}

	r.recordDiscarded()
	if r.expectedSeq == 0 {
		if r.suppressPre0 {
			return 0, false
		}
		return 0, true
	}
	return r.expectedSeq - 1, true
}

// Recv blocks until the delivered FIFO is non-empty or the receiver is
// closed, then returns the head payload.
func (r *Receiver) Recv() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.delivered) == 0 && !r.closed {
		r.cond.Wait()
	}
	if len(r.delivered) == 0 {
		return nil, ErrClosed
	}
	payload := r.delivered[0]
	r.delivered = r.delivered[1:]
	return payload, nil
}

// Close unblocks any pending Recv. Idempotent.
func (r *Receiver) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	r.cond.Broadcast()
}

// ExpectedSeq reports the next sequence number the receiver will deliver.
func (r *Receiver) ExpectedSeq() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expectedSeq
}

func (r *Receiver) recordDelivered() {
	if r.recorder != nil {
		r.recorder.PayloadDelivered()
	}
}

func (r *Receiver) recordDiscarded() {
	if r.recorder != nil {
		r.recorder.PacketDiscarded()
	}
}
