package main

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimNick(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.ClaimNick("peerA", "alice"))
	assert.False(t, r.ClaimNick("peerB", "alice"), "second claim of the same nick must fail")

	mailbox, ok := r.LookupMailboxByNick("alice")
	assert.False(t, ok, "no mailbox registered yet")
	assert.Nil(t, mailbox)
}

func TestIsRegisteredRequiresBothNickAndUser(t *testing.T) {
	r := NewRegistry()

	assert.False(t, r.IsRegistered("peerA"))

	r.SetUser("peerA", UserRecord{User: "alice"})
	assert.False(t, r.IsRegistered("peerA"), "user alone is not enough")

	require.True(t, r.ClaimNick("peerA", "alice"))
	assert.True(t, r.IsRegistered("peerA"))
}

// TestDropPeerDecrementsOnlyIfFullyRegistered checks that registeredCount
// returns to its pre-registration value after a full register/quit cycle,
// and is untouched by a quit from a peer that never finished registering.
func TestDropPeerDecrementsOnlyIfFullyRegistered(t *testing.T) {
	r := NewRegistry()

	require.True(t, r.ClaimNick("peerA", "alice"))
	r.SetUser("peerA", UserRecord{User: "alice"})
	r.IncrementRegistered()
	assert.Equal(t, 1, r.RegisteredCount())

	r.DropPeer("peerA")
	assert.Equal(t, 0, r.RegisteredCount())
	_, ok := r.WhoisSnapshot("alice")
	assert.False(t, ok)

	// A peer that only ever claimed a nick, never registered, must not affect
	// the count when dropped.
	require.True(t, r.ClaimNick("peerB", "bob"))
	r.DropPeer("peerB")
	assert.Equal(t, 0, r.RegisteredCount())
}

func TestDropPeerRemovesAllThreeSubstates(t *testing.T) {
	r := NewRegistry()
	mailbox := make(chan string, 1)

	r.RegisterMailbox("peerA", mailbox)
	require.True(t, r.ClaimNick("peerA", "alice"))
	r.SetUser("peerA", UserRecord{User: "alice"})

	r.DropPeer("peerA")

	_, ok := r.LookupMailboxByNick("alice")
	assert.False(t, ok)
	assert.NotContains(t, r.users, "peerA", "user record must be gone after drop")
	assert.True(t, r.ClaimNick("peerC", "alice"), "nick must be free again after drop")
	assert.Equal(t, 0, r.ClientCount())
}

func TestWhoisSnapshot(t *testing.T) {
	r := NewRegistry()
	require.True(t, r.ClaimNick("peerA", "alice"))
	r.SetUser("peerA", UserRecord{User: "aliceuser", Mode: "0", RealName: "Alice A"})

	peer, user, ok := r.WhoisSnapshot("alice")
	require.True(t, ok)
	assert.Equal(t, "peerA", peer)
	assert.Equal(t, "aliceuser", user.User)
	assert.Equal(t, "Alice A", user.RealName)

	_, _, ok = r.WhoisSnapshot("ghost")
	assert.False(t, ok)
}

func TestClientCountAndRegisteredCount(t *testing.T) {
	r := NewRegistry()

	r.RegisterMailbox("peerA", make(chan string, 1))
	r.RegisterMailbox("peerB", make(chan string, 1))
	assert.Equal(t, 2, r.ClientCount())
	assert.Equal(t, 0, r.RegisteredCount())

	require.True(t, r.ClaimNick("peerA", "alice"))
	r.SetUser("peerA", UserRecord{User: "alice"})
	r.IncrementRegistered()
	assert.Equal(t, 1, r.RegisteredCount())
	assert.Equal(t, 1, r.ClientCount()-r.RegisteredCount(), "one unknown connection remains")
}

// TestConcurrentClaimNick checks that of N goroutines racing to claim the
// same nickname, exactly one succeeds, and the registry is left in a
// consistent state no matter the interleaving.
func TestConcurrentClaimNick(t *testing.T) {
	r := NewRegistry()

	const n = 64
	results := make([]bool, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			results[i] = r.ClaimNick(peerName(i), "contested")
		}()
	}
	wg.Wait()

	claims := 0
	for _, claimed := range results {
		if claimed {
			claims++
		}
	}
	assert.Equal(t, 1, claims, "exactly one goroutine should win the nick")

	mailbox, ok := r.LookupMailboxByNick("contested")
	assert.False(t, ok)
	assert.Nil(t, mailbox)
}

func peerName(i int) string {
	return "peer-" + string(rune('A'+i%26)) + string(rune('0'+i/26))
}
