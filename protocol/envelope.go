// Package protocol defines the wire envelope exchanged after handshake and
// its length-prefixed framing. Envelopes are flat JSON documents; the frame
// boundary, not the JSON document, delimits one message on the stream.
package protocol

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	cherrors "chat-relay/errors"
)

// Envelope types accepted from clients.
const (
	TypeGroup   = "group"
	TypePrivate = "private"
	TypeFile    = "file"
	TypeTyping  = "typing"
	TypeSearch  = "search"
)

// Envelope types emitted by the server.
const (
	TypeStatus       = "status"
	TypeHistory      = "history"
	TypeSearchResult = "search_result"
	TypeError        = "error"
)

// Envelope is the single wire document. Only the fields relevant to its
// Type are populated; the rest stay at their zero value and are omitted.
type Envelope struct {
	Type     string          `json:"type" validate:"required"`
	Sender   string          `json:"sender,omitempty"`
	To       string          `json:"to,omitempty"`
	Content  string          `json:"content,omitempty"`
	Filename string          `json:"filename,omitempty"`
	Filedata string          `json:"filedata,omitempty"`
	Message  string          `json:"message,omitempty"`
	Users    []string        `json:"users,omitempty"`
	Messages []HistoryEntry  `json:"messages,omitempty"`
	Results  []SearchResult  `json:"results,omitempty"`
}

// HistoryEntry is one replayed message inside a history envelope.
// Receiver is only set for private messages.
type HistoryEntry struct {
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Receiver  string `json:"receiver,omitempty"`
}

// SearchResult is one match inside a search_result envelope.
type SearchResult struct {
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

var validate = validator.New()

// ValidateInbound checks the per-type required fields of a client envelope.
// It does not decide routing policy; an unknown Type passes validation and
// is left to the router's forward-compatibility rule.
func (e Envelope) ValidateInbound() error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("%w: %v", cherrors.ErrMalformedEnvelope, err)
	}
	switch e.Type {
	case TypePrivate:
		if err := validate.Var(e.To, "required"); err != nil {
			return fmt.Errorf("%w: private requires 'to'", cherrors.ErrMalformedEnvelope)
		}
		if err := validate.Var(e.Content, "required"); err != nil {
			return fmt.Errorf("%w: private requires 'content'", cherrors.ErrMalformedEnvelope)
		}
	case TypeFile:
		if err := validate.Var(e.Filedata, "required,base64"); err != nil {
			return fmt.Errorf("%w: file requires base64 'filedata'", cherrors.ErrMalformedEnvelope)
		}
	}
	return nil
}

// FormatTimestamp renders a message time the way clients expect it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}
