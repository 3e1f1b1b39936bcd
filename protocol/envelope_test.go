package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	cherrors "chat-relay/errors"
)

func TestEnvelope_ValidateInbound(t *testing.T) {
	tests := []struct {
		name    string
		env     Envelope
		wantErr bool
	}{
		{name: "group with content", env: Envelope{Type: TypeGroup, Content: "hello"}},
		{name: "group with empty content passes, router trims it away", env: Envelope{Type: TypeGroup}},
		{name: "missing type", env: Envelope{Content: "hello"}, wantErr: true},
		{name: "private complete", env: Envelope{Type: TypePrivate, To: "bob", Content: "secret"}},
		{name: "private without to", env: Envelope{Type: TypePrivate, Content: "secret"}, wantErr: true},
		{name: "private without content", env: Envelope{Type: TypePrivate, To: "bob"}, wantErr: true},
		{name: "file with base64 payload", env: Envelope{Type: TypeFile, Filename: "a.txt", Filedata: "aGVsbG8="}},
		{name: "file without payload", env: Envelope{Type: TypeFile, Filename: "a.txt"}, wantErr: true},
		{name: "file with non-base64 payload", env: Envelope{Type: TypeFile, Filedata: "%%%"}, wantErr: true},
		{name: "typing without target", env: Envelope{Type: TypeTyping}},
		{name: "typing with target", env: Envelope{Type: TypeTyping, To: "bob"}},
		{name: "search", env: Envelope{Type: TypeSearch, Content: "hello"}},
		{name: "unknown type passes validation", env: Envelope{Type: "presence_v2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.ValidateInbound()
			if tt.wantErr {
				require.ErrorIs(t, err, cherrors.ErrMalformedEnvelope)
				return
			}
			require.NoError(t, err)
		})
	}
}
