package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	cherrors "chat-relay/errors"
	"chat-relay/protocol"
)

type fakePeer struct {
	id string
}

func (f *fakePeer) Send(env protocol.Envelope) error {
	return nil
}

func TestRegistry_Register_Then_Lookup(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()
	peer := &fakePeer{id: "a"}

	// Given an empty registry
	req.Empty(reg.Usernames())

	// When alice registers
	req.NoError(reg.Register("alice", peer))

	// Then she is visible
	found, ok := reg.Lookup("alice")
	req.True(ok)
	req.Same(peer, found)
	req.Equal([]string{"alice"}, reg.Usernames())
}

func TestRegistry_Register_Duplicate_Username(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()
	first := &fakePeer{id: "first"}
	second := &fakePeer{id: "second"}

	req.NoError(reg.Register("alice", first))

	// When a second session claims the same name
	err := reg.Register("alice", second)

	// Then it fails and the first session is untouched
	req.ErrorIs(err, cherrors.ErrUsernameTaken)
	found, ok := reg.Lookup("alice")
	req.True(ok)
	req.Same(first, found)
}

func TestRegistry_Unregister_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()

	req.NoError(reg.Register("alice", &fakePeer{}))
	reg.Unregister("alice")
	reg.Unregister("alice")
	reg.Unregister("never-registered")

	_, ok := reg.Lookup("alice")
	req.False(ok)
	req.Empty(reg.Usernames())
}

func TestRegistry_Snapshot_Is_Sorted_Copy(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()

	req.NoError(reg.Register("carol", &fakePeer{}))
	req.NoError(reg.Register("alice", &fakePeer{}))
	req.NoError(reg.Register("bob", &fakePeer{}))

	snapshot := reg.Snapshot()

	// Then the snapshot is ordered and detached from later mutations
	req.Len(snapshot, 3)
	req.Equal("alice", snapshot[0].Username)
	req.Equal("bob", snapshot[1].Username)
	req.Equal("carol", snapshot[2].Username)

	reg.Unregister("bob")
	req.Len(snapshot, 3)
	req.Equal([]string{"alice", "carol"}, reg.Usernames())
}

func TestRegistry_Concurrent_Register_Same_Username(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()

	// When many goroutines race for one username
	const attempts = 64
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- reg.Register("alice", &fakePeer{id: fmt.Sprintf("%d", i)})
		}(i)
	}
	wg.Wait()
	close(errs)

	// Then exactly one wins
	var wins, losses int
	for err := range errs {
		if err == nil {
			wins++
		} else {
			req.ErrorIs(err, cherrors.ErrUsernameTaken)
			losses++
		}
	}
	req.Equal(1, wins)
	req.Equal(attempts-1, losses)
}

func TestRegistry_Concurrent_Churn(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("user_%d", i)
			for j := 0; j < 50; j++ {
				_ = reg.Register(name, &fakePeer{})
				_ = reg.Snapshot()
				_, _ = reg.Lookup(name)
				reg.Unregister(name)
			}
		}(i)
	}
	wg.Wait()

	req.Empty(reg.Usernames())
}
