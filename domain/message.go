// Package domain contains core concepts of the chat system.
// This file defines persisted Message records and related rules.
// Messages are immutable once persisted.
package domain

import "time"

// Kind classifies a persisted message. Typing notices and search requests
// are ephemeral and never become a Message.
type Kind string

const (
	KindGroup   Kind = "group"
	KindPrivate Kind = "private"
	KindFile    Kind = "file"
)

// ReceiverGroup is the receiver recorded for group messages.
const ReceiverGroup = "group"

// ReceiverFile is the sentinel receiver recorded for file events.
const ReceiverFile = "FILE"

// Message represents an immutable chat event persisted in the log.
// ID is assigned by the log and is strictly increasing across all senders.
type Message struct {
	ID       uint64    `json:"id"`
	Sender   string    `json:"sender"`
	Receiver string    `json:"receiver"`
	Content  string    `json:"content"`
	At       time.Time `json:"at"`
	Kind     Kind      `json:"kind"`
}

// VisibleTo reports whether a replayed message may be shown to username.
// Private messages are visible only to their two parties.
func (m Message) VisibleTo(username string) bool {
	if m.Kind != KindPrivate {
		return true
	}
	return m.Sender == username || m.Receiver == username
}
