package protocol

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	cherrors "chat-relay/errors"
)

func TestCodec_Envelope_Roundtrip(t *testing.T) {
	req := require.New(t)
	var stream bytes.Buffer
	codec := NewCodec(&stream)

	sent := Envelope{Type: TypeGroup, Sender: "alice", Content: "hi all"}
	req.NoError(codec.WriteEnvelope(sent))

	received, err := codec.ReadEnvelope()
	req.NoError(err)
	req.Equal(sent, received)
}

func TestCodec_One_Read_Yields_One_Envelope(t *testing.T) {
	req := require.New(t)
	var stream bytes.Buffer
	codec := NewCodec(&stream)

	// Given two envelopes written back to back (coalesced on the wire)
	req.NoError(codec.WriteEnvelope(Envelope{Type: TypeGroup, Content: "first"}))
	req.NoError(codec.WriteEnvelope(Envelope{Type: TypeGroup, Content: "second"}))

	// Then each read returns exactly one of them, in order
	first, err := codec.ReadEnvelope()
	req.NoError(err)
	req.Equal("first", first.Content)

	second, err := codec.ReadEnvelope()
	req.NoError(err)
	req.Equal("second", second.Content)

	_, err = codec.ReadEnvelope()
	req.ErrorIs(err, io.EOF)
}

func TestCodec_Identity_Frame(t *testing.T) {
	req := require.New(t)
	var stream bytes.Buffer
	codec := NewCodec(&stream)

	req.NoError(codec.WriteIdentity("  alice\n"))

	username, err := codec.ReadIdentity()
	req.NoError(err)
	req.Equal("alice", username)
}

func TestCodec_Identity_Then_Envelope_On_Same_Stream(t *testing.T) {
	req := require.New(t)
	var stream bytes.Buffer
	codec := NewCodec(&stream)

	req.NoError(codec.WriteIdentity("bob"))
	req.NoError(codec.WriteEnvelope(Envelope{Type: TypeTyping}))

	username, err := codec.ReadIdentity()
	req.NoError(err)
	req.Equal("bob", username)

	env, err := codec.ReadEnvelope()
	req.NoError(err)
	req.Equal(TypeTyping, env.Type)
}

func TestCodec_Malformed_Payload(t *testing.T) {
	req := require.New(t)
	var stream bytes.Buffer

	// A well-framed payload that is not JSON
	writer := NewCodec(&stream)
	req.NoError(writer.WriteIdentity("this is not json"))

	_, err := NewCodec(&stream).ReadEnvelope()
	req.ErrorIs(err, cherrors.ErrMalformedEnvelope)
}

func TestCodec_Oversized_Frame_Rejected(t *testing.T) {
	req := require.New(t)
	var stream bytes.Buffer

	writer := NewCodec(&stream)
	req.NoError(writer.WriteEnvelope(Envelope{Type: TypeGroup, Content: "0123456789"}))

	reader := NewCodecWithLimit(&stream, 4)
	_, err := reader.ReadEnvelope()
	req.ErrorIs(err, cherrors.ErrFrameTooLarge)
}

func TestCodec_Write_Respects_Limit(t *testing.T) {
	req := require.New(t)
	var stream bytes.Buffer

	writer := NewCodecWithLimit(&stream, 4)
	err := writer.WriteEnvelope(Envelope{Type: TypeGroup, Content: "too large for four bytes"})
	req.ErrorIs(err, cherrors.ErrFrameTooLarge)
	req.Zero(stream.Len())
}

func TestCodec_Truncated_Stream(t *testing.T) {
	req := require.New(t)

	// Header promises more bytes than the stream holds
	stream := bytes.NewBuffer([]byte{0, 0, 0, 10, 'x', 'y'})
	_, err := NewCodec(stream).ReadEnvelope()
	req.ErrorIs(err, io.ErrUnexpectedEOF)
}
