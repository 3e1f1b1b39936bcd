package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	cherrors "chat-relay/errors"
)

// DefaultMaxFrameSize bounds a single frame. Files travel base64-encoded
// inside one frame, so this is effectively the upload size limit.
const DefaultMaxFrameSize = 16 << 20

// Codec reads and writes length-prefixed frames on a byte stream.
// Each frame is a 4-byte big-endian payload length followed by the payload,
// so one read always yields exactly one message regardless of how the
// transport fragments or coalesces writes.
//
// Reads are single-consumer (one goroutine per connection). Writes are
// serialized internally: broadcasts from other connections and replies to
// this one may interleave.
type Codec struct {
	wmu      sync.Mutex
	rw       io.ReadWriter
	maxFrame uint32
}

func NewCodec(rw io.ReadWriter) *Codec {
	return &Codec{rw: rw, maxFrame: DefaultMaxFrameSize}
}

func NewCodecWithLimit(rw io.ReadWriter, maxFrame uint32) *Codec {
	return &Codec{rw: rw, maxFrame: maxFrame}
}

func (c *Codec) readFrame() ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(c.rw, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > c.maxFrame {
		return nil, fmt.Errorf("%w: %d bytes", cherrors.ErrFrameTooLarge, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(c.rw, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Codec) writeFrame(payload []byte) error {
	// Compare in uint64 so payloads past 4 GiB cannot wrap around the
	// uint32 header and pass the check.
	if uint64(len(payload)) > uint64(c.maxFrame) {
		return fmt.Errorf("%w: %d bytes", cherrors.ErrFrameTooLarge, len(payload))
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := c.rw.Write(header[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		// A zero-byte Write is a no-op on the wire, but on rendezvous
		// transports like net.Pipe it blocks until a reader arrives —
		// and readFrame never reads a zero-length payload.
		return nil
	}
	_, err := c.rw.Write(payload)
	return err
}

// ReadIdentity reads the handshake frame: a bare UTF-8 username with no
// JSON wrapper. Surrounding whitespace is not significant.
func (c *Codec) ReadIdentity() (string, error) {
	payload, err := c.readFrame()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(payload)), nil
}

// WriteIdentity sends the handshake frame from the client side.
func (c *Codec) WriteIdentity(username string) error {
	return c.writeFrame([]byte(username))
}

// ReadEnvelope reads and decodes one envelope. A payload that is not valid
// JSON is a protocol violation reported as ErrMalformedEnvelope; transport
// errors pass through unchanged so the caller can tell the two apart.
func (c *Codec) ReadEnvelope() (Envelope, error) {
	payload, err := c.readFrame()
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", cherrors.ErrMalformedEnvelope, err)
	}
	return env, nil
}

// WriteEnvelope encodes and sends one envelope as a single frame.
func (c *Codec) WriteEnvelope(env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.writeFrame(payload)
}
