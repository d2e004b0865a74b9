package main

import "sync"

// UserRecord holds the identity a client attached to its connection via the
// USER command. It is immutable once inserted: a later USER for the same
// peer simply overwrites the record wholesale (see Registry.SetUser).
type UserRecord struct {
	User     string
	Mode     string
	RealName string
}

// Registry is the process-wide, concurrency-safe bundle of server state: a
// nickname index, a user record table, a mailbox table, and a count of
// fully-registered clients.
//
// All four substates share one mutex rather than one lock each. Several
// operations (ClaimNick, WhoisSnapshot, DropPeer) must read or write more
// than one substate atomically, and splitting the lock would make those
// operations impossible to express correctly.
type Registry struct {
	mu sync.Mutex

	// nicks maps a claimed nickname to the peer address that claimed it.
	nicks map[string]string

	// users maps a peer address to the user record it submitted via USER.
	users map[string]UserRecord

	// mailboxes maps a peer address to the send side of that peer's inbound
	// mailbox. Any goroutine holding one of these channel values may post a
	// line into it; channels are reference types, so handing one out here
	// gives every caller its own cloneable sender handle onto the same
	// underlying mailbox.
	mailboxes map[string]chan<- string

	// registeredCount is the number of peers with both a nick and a user
	// record. It is maintained incrementally (see IncrementRegistered,
	// DecrementRegistered, DropPeer) rather than recomputed, since recomputing
	// it would require walking both nicks and users under the lock on every
	// LUSERS call.
	registeredCount int
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		nicks:     make(map[string]string),
		users:     make(map[string]UserRecord),
		mailboxes: make(map[string]chan<- string),
	}
}

// ClaimNick atomically claims nick for peer if it is not already taken. It
// reports whether the claim succeeded.
//
// On failure the caller must not otherwise mutate this peer's registry
// footprint for this attempt: the nickname stays with whoever already held
// it.
func (r *Registry) ClaimNick(peer, nick string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nicks[nick]; exists {
		return false
	}
	r.nicks[nick] = peer
	return true
}

// SetUser overwrites peer's user record.
func (r *Registry) SetUser(peer string, u UserRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.users[peer] = u
}

// IsRegistered reports whether peer has both a user record and a claimed
// nickname.
func (r *Registry) IsRegistered(peer string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.hasUserLocked(peer) && r.hasNickLocked(peer)
}

func (r *Registry) hasUserLocked(peer string) bool {
	_, exists := r.users[peer]
	return exists
}

func (r *Registry) hasNickLocked(peer string) bool {
	for _, p := range r.nicks {
		if p == peer {
			return true
		}
	}
	return false
}

// IncrementRegistered must be called exactly once, at the moment a client
// completes registration (the have_nick->registered or have_user->
// registered transition).
func (r *Registry) IncrementRegistered() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.registeredCount++
}

// DecrementRegistered must be called exactly once, on QUIT of a client that
// had reached full registration. DropPeer performs this decrement itself
// under its own critical section; most callers want DropPeer instead of
// calling this directly.
func (r *Registry) DecrementRegistered() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.registeredCount--
}

// LookupMailboxByNick resolves nick to the mailbox of the peer that
// currently holds it, in one critical section.
func (r *Registry) LookupMailboxByNick(nick string) (chan<- string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, exists := r.nicks[nick]
	if !exists {
		return nil, false
	}
	mailbox, exists := r.mailboxes[peer]
	return mailbox, exists
}

// WhoisSnapshot returns the peer address and user record currently
// associated with nick, as of one consistent instant.
func (r *Registry) WhoisSnapshot(nick string) (peer string, user UserRecord, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, exists := r.nicks[nick]
	if !exists {
		return "", UserRecord{}, false
	}
	user, exists = r.users[peer]
	if !exists {
		return "", UserRecord{}, false
	}
	return peer, user, true
}

// DropPeer removes every trace of peer from the registry: its nickname (if
// any), its user record (if any), and its mailbox. It decrements
// registeredCount iff peer had both a user record and a nickname at the
// moment of the call.
//
// We sweep nicks by value rather than looking up peer's nickname by name
// first, because a prior colliding NICK can leave the worker's local
// nickname out of sync with what is actually in the nicks map; scanning by
// peer address sidesteps that ambiguity.
func (r *Registry) DropPeer(peer string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hadNick := false
	for nick, p := range r.nicks {
		if p == peer {
			delete(r.nicks, nick)
			hadNick = true
		}
	}

	_, hadUser := r.users[peer]
	delete(r.users, peer)
	delete(r.mailboxes, peer)

	if hadNick && hadUser {
		r.registeredCount--
	}
}

// RegisterMailbox installs the send side of peer's mailbox. Called once, at
// accept time.
func (r *Registry) RegisterMailbox(peer string, mailbox chan<- string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.mailboxes[peer] = mailbox
}

// UnregisterMailbox removes peer's mailbox without touching nicks or users.
// DropPeer is almost always what callers want instead; this exists for
// symmetry with RegisterMailbox and for shutdown paths that have already
// handled the other substates.
func (r *Registry) UnregisterMailbox(peer string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.mailboxes, peer)
}

// RegisteredCount returns the number of fully-registered clients.
func (r *Registry) RegisteredCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.registeredCount
}

// ClientCount returns the number of connections currently known to the
// registry, registered or not.
func (r *Registry) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.mailboxes)
}
