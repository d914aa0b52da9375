// Package wire implements the RDT packet codec: a fixed 9-byte header
// (sequence number, ACK flag, CRC32) followed by the payload.
package wire

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

const (
	// HeaderSize is the fixed header length: 4 (seq) + 1 (ack flag) + 4 (crc32).
	HeaderSize = 9

	flagData = 0x00
	flagAck  = 0x01
)

// ErrInvalidFrame is returned by Decode when a byte slice is too short to
// contain a header.
var ErrInvalidFrame = errors.New("wire: frame shorter than header")

// Frame is a decoded packet: sequence number, ACK flag, payload and the
// CRC32 claimed by the wire bytes (not yet verified).
type Frame struct {
	Seq        uint32
	IsAck      bool
	Payload    []byte
	ClaimedCRC uint32
}

// Encode serializes (seq, isAck, payload) into wire bytes. Always produces
// at least HeaderSize bytes.
func Encode(seq uint32, isAck bool, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], seq)
	if isAck {
		buf[4] = flagAck
	} else {
		buf[4] = flagData
	}
	copy(buf[9:], payload)

	crc := crc32.ChecksumIEEE(buf[:5])
	crc = crc32.Update(crc, crc32.IEEETable, payload)
	binary.BigEndian.PutUint32(buf[5:9], crc)

	return buf
}

// Decode parses wire bytes into a Frame without verifying the CRC32.
// Frames shorter than HeaderSize yield ErrInvalidFrame.
func Decode(b []byte) (Frame, error) {
	if len(b) < HeaderSize {
		return Frame{}, ErrInvalidFrame
	}
	f := Frame{
		Seq:        binary.BigEndian.Uint32(b[0:4]),
		IsAck:      b[4] == flagAck,
		ClaimedCRC: binary.BigEndian.Uint32(b[5:9]),
	}
	if len(b) > HeaderSize {
		f.Payload = append([]byte(nil), b[HeaderSize:]...)
	}
	return f, nil
}

// Verify recomputes the CRC32 over the header (minus the CRC field itself)
// and payload, and reports whether it matches the frame's claimed CRC.
func (f Frame) Verify() bool {
	head := make([]byte, 5)
	binary.BigEndian.PutUint32(head[0:4], f.Seq)
	if f.IsAck {
		head[4] = flagAck
	} else {
		head[4] = flagData
	}
	crc := crc32.ChecksumIEEE(head)
	crc = crc32.Update(crc, crc32.IEEETable, f.Payload)
	return crc == f.ClaimedCRC
}

// DecodeAndVerify is a convenience that decodes then verifies in one step,
// returning ErrInvalidFrame for short frames and a false ok for CRC
// mismatches (which the listener treats as silently-discardable corruption,
// per spec, never as an error surfaced to the user).
func DecodeAndVerify(b []byte) (Frame, bool, error) {
	f, err := Decode(b)
	if err != nil {
		return Frame{}, false, err
	}
	return f, f.Verify(), nil
}
