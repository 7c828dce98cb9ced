package netcore

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	frame, err := encodeFrame(testMagic, newPing(42))
	if err != nil {
		t.Fatalf("encodeFrame: %v", err)
	}

	dec := &frameDecoder{}
	envs, err := dec.push(frame)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(envs) != 1 {
		t.Fatalf("got %d envelopes, want 1", len(envs))
	}
	if envs[0].Magic != testMagic || envs[0].Msg.Type != MsgPing || envs[0].Msg.Ping.Nonce != 42 {
		t.Fatalf("got %+v", envs[0])
	}
}

func TestFrameDecoderHandlesSplitWrites(t *testing.T) {
	frame, err := encodeFrame(testMagic, newPong(7))
	if err != nil {
		t.Fatalf("encodeFrame: %v", err)
	}

	dec := &frameDecoder{}
	mid := len(frame) / 2
	envs, err := dec.push(frame[:mid])
	if err != nil {
		t.Fatalf("push (first half): %v", err)
	}
	if len(envs) != 0 {
		t.Fatalf("got %d envelopes from a partial frame, want 0", len(envs))
	}

	envs, err = dec.push(frame[mid:])
	if err != nil {
		t.Fatalf("push (second half): %v", err)
	}
	if len(envs) != 1 || envs[0].Msg.Type != MsgPong {
		t.Fatalf("got %+v, want one pong", envs)
	}
}

func TestFrameDecoderHandlesMultipleFramesInOneWrite(t *testing.T) {
	f1, _ := encodeFrame(testMagic, newPing(1))
	f2, _ := encodeFrame(testMagic, newPing(2))

	dec := &frameDecoder{}
	envs, err := dec.push(append(append([]byte{}, f1...), f2...))
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(envs) != 2 || envs[0].Msg.Ping.Nonce != 1 || envs[1].Msg.Ping.Nonce != 2 {
		t.Fatalf("got %+v", envs)
	}
}

func TestFrameDecoderRejectsOversizedFrame(t *testing.T) {
	dec := &frameDecoder{}
	lenPrefix := make([]byte, 4)
	binary.BigEndian.PutUint32(lenPrefix, maxFrameSize+1)

	_, err := dec.push(lenPrefix)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("got error %v, want ErrFrameTooLarge", err)
	}
}

func TestFrameDecoderRejectsMalformedJSON(t *testing.T) {
	dec := &frameDecoder{}
	body := []byte("not json")
	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(body)))
	copy(frame[4:], body)

	_, err := dec.push(frame)
	if !errors.Is(err, ErrMalformedEnvelope) {
		t.Fatalf("got error %v, want ErrMalformedEnvelope", err)
	}
}
