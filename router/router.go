// Package router drives one connection through its protocol lifecycle:
// handshake, history replay, then the receive/dispatch loop.
package router

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"chat-relay/domain"
	"chat-relay/moderation"
	"chat-relay/protocol"
	"chat-relay/registry"
	"chat-relay/repositories"
	"chat-relay/storage"

	cherrors "chat-relay/errors"
)

// Router holds the collaborators shared by every connection. One HandleConn
// call runs per connection, each on its own goroutine; the registry and the
// message log are the only state they share.
type Router struct {
	registry  registry.IRegistry
	messages  repositories.IMessageRepository
	uploads   *storage.UploadStore
	moderator *moderation.Moderator
	log       *slog.Logger
	maxFrame  uint32
}

func NewRouter(
	reg registry.IRegistry,
	messages repositories.IMessageRepository,
	uploads *storage.UploadStore,
	moderator *moderation.Moderator,
	log *slog.Logger,
	maxFrame uint32,
) *Router {
	return &Router{
		registry:  reg,
		messages:  messages,
		uploads:   uploads,
		moderator: moderator,
		log:       log,
		maxFrame:  maxFrame,
	}
}

// peer is the outbound handle stored in the registry. The codec serializes
// concurrent writes, so broadcasts from other connections and replies to
// this one can interleave safely.
type peer struct {
	codec *protocol.Codec
}

func (p *peer) Send(env protocol.Envelope) error {
	return p.codec.WriteEnvelope(env)
}

// HandleConn owns conn for its whole lifetime: Handshaking, then Active,
// then Closed. It returns when the peer disconnects, the transport fails,
// a fatal protocol violation occurs, or ctx is canceled.
func (r *Router) HandleConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	// The blocking reads below have no deadline; canceling ctx closes the
	// transport, which unblocks them with an error.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	codec := protocol.NewCodecWithLimit(conn, r.maxFrame)
	log := r.log.With("conn", uuid.NewString())

	username, err := r.handshake(codec)
	if err != nil {
		log.Warn("Handshake rejected", "remote", conn.RemoteAddr(), "err", err)
		return
	}
	log.Info("Client connected", "username", username)

	defer func() {
		// Closed state: idempotent cleanup, then let everyone see the
		// updated presence.
		r.registry.Unregister(username)
		r.broadcastStatus()
		log.Info("Client disconnected", "username", username)
	}()

	r.broadcastStatus()
	r.sendHistory(username, codec)
	r.serve(ctx, username, codec)
}

// handshake reads the identity frame and claims the username. On rejection
// the client gets a structured error envelope before the transport closes.
func (r *Router) handshake(codec *protocol.Codec) (string, error) {
	username, err := codec.ReadIdentity()
	if err != nil {
		return "", err
	}
	if username == "" {
		_ = codec.WriteEnvelope(protocol.Envelope{
			Type:    protocol.TypeError,
			Message: "Username cannot be empty",
		})
		return "", cherrors.ErrEmptyUsername
	}
	if err := r.registry.Register(username, &peer{codec: codec}); err != nil {
		_ = codec.WriteEnvelope(protocol.Envelope{
			Type:    protocol.TypeError,
			Message: fmt.Sprintf("Username '%s' is already taken", username),
		})
		return "", fmt.Errorf("%w: %s", err, username)
	}
	return username, nil
}

// serve is the Active state: one envelope at a time, in arrival order.
func (r *Router) serve(ctx context.Context, username string, codec *protocol.Codec) {
	for {
		env, err := codec.ReadEnvelope()
		if err != nil {
			switch {
			case errors.Is(err, cherrors.ErrMalformedEnvelope), errors.Is(err, cherrors.ErrFrameTooLarge):
				r.log.Warn("Protocol violation, closing connection", "username", username, "err", err)
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				// Normal end of stream.
			default:
				r.log.Debug("Transport error", "username", username, "err", err)
			}
			return
		}

		if err := env.ValidateInbound(); err != nil {
			// Required fields missing for this type: drop the single
			// envelope, keep the connection.
			r.log.Warn("Dropping invalid envelope", "username", username, "type", env.Type, "err", err)
			continue
		}

		switch env.Type {
		case protocol.TypeGroup:
			r.handleGroup(username, env)
		case protocol.TypePrivate:
			r.handlePrivate(username, env)
		case protocol.TypeFile:
			r.handleFile(username, env)
		case protocol.TypeTyping:
			r.handleTyping(username, env)
		case protocol.TypeSearch:
			r.handleSearch(ctx, username, env, codec)
		default:
			// Unknown types are skipped so older servers tolerate newer
			// clients.
			r.log.Warn("Skipping unrecognized envelope type", "username", username, "type", env.Type)
		}
	}
}

func (r *Router) handleGroup(username string, env protocol.Envelope) {
	content := strings.TrimSpace(env.Content)
	if content == "" {
		return
	}

	result := r.moderator.Censor(content)
	if len(result.Censored) > 0 {
		r.log.Warn("Censored group message",
			"username", username,
			"words", len(result.Censored),
			"lang", result.Lang)
	}

	if _, err := r.messages.Insert(username, domain.ReceiverGroup, result.Content, domain.KindGroup); err != nil {
		// Not durable, so not delivered either.
		r.log.Error("Failed to persist group message", "username", username, "err", err)
		return
	}
	r.broadcast(protocol.Envelope{
		Type:    protocol.TypeGroup,
		Sender:  username,
		Content: result.Content,
	}, username)
}

func (r *Router) handlePrivate(username string, env protocol.Envelope) {
	content := strings.TrimSpace(env.Content)
	if content == "" {
		return
	}

	if _, err := r.messages.Insert(username, env.To, content, domain.KindPrivate); err != nil {
		r.log.Error("Failed to persist private message", "username", username, "err", err)
		return
	}

	// Offline recipient: the message stays persisted for later replay but
	// is not queued for delivery.
	recipient, online := r.registry.Lookup(env.To)
	if !online {
		return
	}
	err := recipient.Send(protocol.Envelope{
		Type:    protocol.TypePrivate,
		Sender:  username,
		To:      env.To,
		Content: content,
	})
	if err != nil {
		r.log.Warn("Private delivery failed", "from", username, "to", env.To, "err", err)
	}
}

func (r *Router) handleFile(username string, env protocol.Envelope) {
	filename := strings.TrimSpace(env.Filename)
	if filename == "" {
		filename = "unknown_file"
	}

	data, err := base64.StdEncoding.DecodeString(env.Filedata)
	if err != nil {
		r.log.Warn("Dropping file with undecodable payload", "username", username, "filename", filename, "err", err)
		return
	}
	resolved, err := r.uploads.Save(filename, data)
	if err != nil {
		r.log.Error("Dropping file after write failure", "username", username, "filename", filename, "err", err)
		return
	}

	if _, err := r.messages.Insert(username, domain.ReceiverFile, resolved, domain.KindFile); err != nil {
		r.log.Error("Failed to persist file message", "username", username, "err", err)
		return
	}
	r.broadcast(protocol.Envelope{
		Type:     protocol.TypeFile,
		Sender:   username,
		Filename: resolved,
		Filedata: env.Filedata,
	}, username)
}

func (r *Router) handleTyping(username string, env protocol.Envelope) {
	notice := protocol.Envelope{
		Type:   protocol.TypeTyping,
		Sender: username,
		To:     env.To,
	}
	if env.To != "" {
		if recipient, online := r.registry.Lookup(env.To); online {
			if err := recipient.Send(notice); err != nil {
				r.log.Debug("Typing notice delivery failed", "from", username, "to", env.To, "err", err)
			}
		}
		return
	}
	r.broadcast(notice, username)
}

func (r *Router) handleSearch(ctx context.Context, username string, env protocol.Envelope, codec *protocol.Codec) {
	hits, err := r.messages.Search(ctx, env.Content)
	if err != nil {
		r.log.Error("Search failed", "username", username, "keyword", env.Content, "err", err)
		return
	}
	reply := protocol.Envelope{
		Type: protocol.TypeSearchResult,
		Results: lo.Map(hits, func(hit repositories.SearchHit, _ int) protocol.SearchResult {
			return protocol.SearchResult{
				Sender:    hit.Sender,
				Content:   hit.Content,
				Timestamp: hit.Timestamp,
			}
		}),
	}
	if err := codec.WriteEnvelope(reply); err != nil {
		r.log.Debug("Search reply failed", "username", username, "err", err)
	}
}

// historyChunkSize bounds the entries carried by one history envelope so the
// replay of a large log never produces a frame past the codec limit.
const historyChunkSize = 500

// sendHistory replays the persisted log, filtered for this user, in
// ascending id order. Large logs span several history envelopes, delivered
// back to back; an empty log still yields one envelope so every client
// observes the replay point.
func (r *Router) sendHistory(username string, codec *protocol.Codec) {
	messages, err := r.messages.All()
	if err != nil {
		r.log.Error("History replay failed", "username", username, "err", err)
		return
	}

	var entries []protocol.HistoryEntry
	for _, message := range messages {
		if !message.VisibleTo(username) {
			continue
		}
		entry := protocol.HistoryEntry{
			Sender:    message.Sender,
			Content:   message.Content,
			Type:      string(message.Kind),
			Timestamp: protocol.FormatTimestamp(message.At),
		}
		if message.Kind == domain.KindPrivate {
			entry.Receiver = message.Receiver
		}
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		if err := codec.WriteEnvelope(protocol.Envelope{Type: protocol.TypeHistory}); err != nil {
			r.log.Debug("History send failed", "username", username, "err", err)
		}
		return
	}
	for start := 0; start < len(entries); start += historyChunkSize {
		end := min(start+historyChunkSize, len(entries))
		err := codec.WriteEnvelope(protocol.Envelope{
			Type:     protocol.TypeHistory,
			Messages: entries[start:end],
		})
		if err != nil {
			r.log.Debug("History send failed", "username", username, "err", err)
			return
		}
	}
}

// broadcast delivers env to every registered session except exclude. The
// snapshot is taken before any send, so a stalled peer delays only the
// remainder of this broadcast, never registry access. A failed send skips
// that peer; its cleanup happens on its own disconnect.
func (r *Router) broadcast(env protocol.Envelope, exclude string) {
	for _, member := range r.registry.Snapshot() {
		if member.Username == exclude {
			continue
		}
		if err := member.Peer.Send(env); err != nil {
			r.log.Warn("Skipping unreachable peer", "username", member.Username, "err", err)
		}
	}
}

// broadcastStatus pushes the current online list to everyone, the
// triggering session included.
func (r *Router) broadcastStatus() {
	r.broadcast(protocol.Envelope{
		Type:  protocol.TypeStatus,
		Users: r.registry.Usernames(),
	}, "")
}
