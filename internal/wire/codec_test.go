package wire

import "testing"

func TestEncodeDecodeVerifyRoundTrip(t *testing.T) {
	payload := []byte("hello")
	data := Encode(7, false, payload)

	if len(data) != HeaderSize+len(payload) {
		t.Errorf("len(data) = %d, want %d", len(data), HeaderSize+len(payload))
	}

	f, ok, err := DecodeAndVerify(data)
	if err != nil {
		t.Fatalf("DecodeAndVerify returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected CRC to verify")
	}
	if f.Seq != 7 {
		t.Errorf("Seq = %d, want 7", f.Seq)
	}
	if f.IsAck {
		t.Error("IsAck = true, want false")
	}
	if string(f.Payload) != "hello" {
		t.Errorf("Payload = %q, want %q", f.Payload, "hello")
	}
}

func TestEncodeAckFlag(t *testing.T) {
	data := Encode(42, true, nil)
	if data[4] != flagAck {
		t.Errorf("flag byte = 0x%02X, want 0x%02X", data[4], flagAck)
	}
	f, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if !f.IsAck {
		t.Error("IsAck = false, want true")
	}
	if len(f.Payload) != 0 {
		t.Errorf("Payload = %v, want empty", f.Payload)
	}
}

func TestDecodeShortFrameIsInvalid(t *testing.T) {
	for n := 0; n < HeaderSize; n++ {
		if _, err := Decode(make([]byte, n)); err != ErrInvalidFrame {
			t.Errorf("Decode(%d bytes) error = %v, want ErrInvalidFrame", n, err)
		}
	}
}

func TestVerifyRejectsCorruption(t *testing.T) {
	data := Encode(1, false, []byte("X"))
	data[9] ^= 0xFF // flip a payload byte, as the simulator's corrupt does

	f, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if f.Verify() {
		t.Error("Verify() = true for corrupted payload, want false")
	}
}

func TestZeroLengthPayloadIsValid(t *testing.T) {
	data := Encode(0, false, []byte{})
	f, ok, err := DecodeAndVerify(data)
	if err != nil || !ok {
		t.Fatalf("DecodeAndVerify(empty payload) = (%v, %v, %v), want (_, true, nil)", f, ok, err)
	}
	if len(f.Payload) != 0 {
		t.Errorf("Payload = %v, want empty", f.Payload)
	}
}

func BenchmarkEncode(b *testing.B) {
	payload := make([]byte, 1391)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Encode(uint32(i), false, payload)
	}
}
