package rdt

import "time"

// Config carries the tunables of spec §6.4. These govern local behavior
// only; changing them does not alter wire compatibility (the wire format
// of internal/wire is fixed). The zero Config is not valid — use
// DefaultConfig and override fields as needed, the way the teacher's
// core/main.go Config is built from loadConfig()'s defaults and then has
// fields overwritten before Server.Start.
type Config struct {
	// LocalAddr is the address New binds the datagram socket to.
	// Port 0 requests an ephemeral port.
	LocalAddr string

	// MaxPacketSize bounds the wire frame (header + payload) this endpoint
	// produces. The wire-layer safety bound derived from it is
	// MaxPacketSize - wire.HeaderSize; see SPEC_FULL.md's Open Questions
	// for why that differs from the "-20" figure used only for Send's
	// conservative slicing bound below.
	MaxPacketSize int

	// Window is the GBN sliding window size W.
	Window uint32

	// Timeout is the fixed retransmission timer delay.
	Timeout time.Duration

	// SleepBetweenSends is advisory pacing applied after each SendChunk.
	SleepBetweenSends time.Duration

	// SuppressPreDeliveryAck implements the §9 Open Question: when true,
	// the receiver withholds the spurious ACK for sequence 0 that the
	// reference emits for any unexpected data packet before the first
	// delivery. Default false matches the reference.
	SuppressPreDeliveryAck bool
}

// sendSliceBoundMargin is subtracted from MaxPacketSize to give the
// conservative per-chunk bound Send uses when slicing user input, matching
// the "-20" figure spec §4.1/§6.2 quote directly rather than the looser
// wire-header-derived bound.
const sendSliceBoundMargin = 20

// DefaultConfig returns the tunables quoted by spec §6.4:
// MaxPacketSize=1400, Window=4, Timeout=1s, SleepBetweenSends=2ms.
func DefaultConfig(localAddr string) Config {
	return Config{
		LocalAddr:         localAddr,
		MaxPacketSize:     1400,
		Window:            4,
		Timeout:           time.Second,
		SleepBetweenSends: 2 * time.Millisecond,
	}
}

// sendChunkBound returns the maximum payload size Send will place in a
// single packet.
func (c Config) sendChunkBound() int {
	return c.MaxPacketSize - sendSliceBoundMargin
}
