package netcore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// lengthPrefixSize is the width of the big-endian frame-length prefix
// that precedes every JSON-encoded Envelope on the wire.
const lengthPrefixSize = 4

// maxFrameSize is the largest frame body (the Envelope's JSON bytes,
// not counting the length prefix) the codec accepts. Frames advertising
// a larger length are rejected without buffering their payload, so a
// malicious peer cannot force unbounded allocation with a single
// oversized length prefix.
const maxFrameSize = 64 * 1024

// frameDecoder incrementally reassembles length-prefixed Envelope
// frames from a byte stream that may arrive split across arbitrarily
// many received_bytes calls. It holds no file descriptor or socket: the
// reactor owns the connection and feeds bytes in, mirroring how
// original_source's session wraps an async Framed<TcpStream, Codec> but
// without ever touching I/O itself (spec section 5, "the core never
// performs I/O").
type frameDecoder struct {
	buf []byte
}

// push appends newly received bytes and returns every complete
// Envelope now decodable from the buffer, in arrival order. A
// malformed frame (bad length, truncated UTF-8 JSON, unknown
// discriminator) returns the envelopes successfully decoded before it
// along with the error; the caller must treat the connection as fatal
// and stop calling push for it.
func (d *frameDecoder) push(b []byte) ([]Envelope, error) {
	d.buf = append(d.buf, b...)

	var out []Envelope
	for {
		if len(d.buf) < lengthPrefixSize {
			return out, nil
		}
		n := binary.BigEndian.Uint32(d.buf[:lengthPrefixSize])
		if n > maxFrameSize {
			return out, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
		}
		total := lengthPrefixSize + int(n)
		if len(d.buf) < total {
			return out, nil
		}

		var env Envelope
		if err := json.Unmarshal(d.buf[lengthPrefixSize:total], &env); err != nil {
			return out, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
		}
		if err := validateMessage(env.Msg); err != nil {
			return out, err
		}
		out = append(out, env)

		d.buf = d.buf[total:]
	}
}

// validateMessage checks that exactly the field named by Type is
// populated, catching both a missing payload and a decoder that
// silently dropped an unrecognized discriminator.
func validateMessage(m Message) error {
	present := 0
	check := func(ok bool) {
		if ok {
			present++
		}
	}
	check(m.Hello != nil)
	check(m.GetInventory != nil)
	check(m.Inventory != nil)
	check(m.GetRefs != nil)
	check(m.Refs != nil)
	check(m.Ping != nil)
	check(m.Pong != nil)
	check(m.Disconnect != nil)

	switch m.Type {
	case MsgHello:
		if m.Hello == nil {
			return fmt.Errorf("%w: hello payload missing", ErrMalformedEnvelope)
		}
	case MsgGetInventory:
		if m.GetInventory == nil {
			return fmt.Errorf("%w: get_inventory payload missing", ErrMalformedEnvelope)
		}
	case MsgInventory:
		if m.Inventory == nil {
			return fmt.Errorf("%w: inventory payload missing", ErrMalformedEnvelope)
		}
	case MsgGetRefs:
		if m.GetRefs == nil {
			return fmt.Errorf("%w: get_refs payload missing", ErrMalformedEnvelope)
		}
	case MsgRefs:
		if m.Refs == nil {
			return fmt.Errorf("%w: refs payload missing", ErrMalformedEnvelope)
		}
	case MsgPing:
		if m.Ping == nil {
			return fmt.Errorf("%w: ping payload missing", ErrMalformedEnvelope)
		}
	case MsgPong:
		if m.Pong == nil {
			return fmt.Errorf("%w: pong payload missing", ErrMalformedEnvelope)
		}
	case MsgDisconnect:
		if m.Disconnect == nil {
			return fmt.Errorf("%w: disconnect payload missing", ErrMalformedEnvelope)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessageType, m.Type)
	}
	if present != 1 {
		return fmt.Errorf("%w: expected exactly one payload, got %d", ErrMalformedEnvelope, present)
	}
	return nil
}

// encodeFrame wraps msg in an Envelope carrying magic and serializes it
// to a single length-prefixed wire frame.
func encodeFrame(magic uint32, msg Message) ([]byte, error) {
	body, err := json.Marshal(Envelope{Magic: magic, Msg: msg})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	if len(body) > maxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}
	out := make([]byte, lengthPrefixSize+len(body))
	binary.BigEndian.PutUint32(out[:lengthPrefixSize], uint32(len(body)))
	copy(out[lengthPrefixSize:], body)
	return out, nil
}
