//go:generate go run go.uber.org/mock/mockgen -source=registry.go -destination=../mocks/mock_registry.go -package=mocks
package registry

import (
	"sort"
	"sync"
	"time"

	"chat-relay/protocol"

	cherrors "chat-relay/errors"
)

// Peer is the outbound half of a connected session. Implementations must be
// safe for concurrent Send calls; the registry never serializes them.
type Peer interface {
	Send(env protocol.Envelope) error
}

type IRegistry interface {
	Register(username string, peer Peer) error
	Unregister(username string)
	Lookup(username string) (Peer, bool)
	Snapshot() []Member
	Usernames() []string
}

// Member pairs a username with its connection handle in a snapshot.
type Member struct {
	Username string
	Peer     Peer
}

type session struct {
	peer        Peer
	connectedAt time.Time
}

// Registry is the shared membership view: one live session per username.
// A single mutex guards the map; it is held only for the map access itself,
// never across a network send, so one wedged peer cannot stall lookups for
// unrelated connections.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]session)}
}

// Register atomically checks and inserts a username. The check and the
// insert happen under one lock acquisition so two concurrent handshakes for
// the same name cannot both succeed.
func (r *Registry) Register(username string, peer Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.sessions[username]; taken {
		return cherrors.ErrUsernameTaken
	}
	r.sessions[username] = session{peer: peer, connectedAt: time.Now().UTC()}
	return nil
}

// Unregister removes a session if present. Calling it twice, or for a
// username that was never registered, is a no-op.
func (r *Registry) Unregister(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, username)
}

// Lookup resolves a username to its connection handle for direct delivery.
func (r *Registry) Lookup(username string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[username]
	if !ok {
		return nil, false
	}
	return s.peer, true
}

// Snapshot returns a point-in-time, username-sorted copy of the membership.
// Broadcast iteration works on the copy so sends happen outside the lock.
func (r *Registry) Snapshot() []Member {
	r.mu.RLock()
	members := make([]Member, 0, len(r.sessions))
	for username, s := range r.sessions {
		members = append(members, Member{Username: username, Peer: s.peer})
	}
	r.mu.RUnlock()

	sort.Slice(members, func(i, j int) bool {
		return members[i].Username < members[j].Username
	})
	return members
}

// Usernames returns the sorted list of online usernames for status updates.
func (r *Registry) Usernames() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.sessions))
	for username := range r.sessions {
		names = append(names, username)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}
