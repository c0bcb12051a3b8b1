// Package registry tracks which live connections belong to which user and
// which session. It is an in-memory, single-process index: the transport host
// constructs one Registry, registers connections once they have been
// validated, and removes them when they disconnect. Components that push
// messages ask the registry for a snapshot and send outside of its locks.
//
// The registry holds handles, never owns them. Closing a connection is always
// the transport's job.
package registry

import "sync"

// Registry indexes connection handles of type C by user id (one user may hold
// many connections) and by session id (one connection per session). It is
// safe for concurrent use.
//
// Each index has its own mutex. The two indexes are never updated together,
// so no operation needs to hold both.
type Registry[C comparable] struct {
	usersMu sync.Mutex
	users   map[string]map[C]struct{}

	sessionsMu sync.Mutex
	sessions   map[string]C
}

// Stats is a point-in-time count of the registry contents.
type Stats struct {
	Users       int `json:"users"`
	Connections int `json:"connections"`
	Sessions    int `json:"sessions"`
}

// New returns an empty Registry.
func New[C comparable]() *Registry[C] {
	return &Registry[C]{
		users:    make(map[string]map[C]struct{}),
		sessions: make(map[string]C),
	}
}

// RegisterUserConnection adds c to the set of connections held by userID.
// Registering the same pair twice is a no-op.
func (r *Registry[C]) RegisterUserConnection(userID string, c C) {
	r.usersMu.Lock()
	defer r.usersMu.Unlock()

	set, ok := r.users[userID]
	if !ok {
		set = make(map[C]struct{}, 1)
		r.users[userID] = set
	}
	set[c] = struct{}{}
}

// UnregisterUserConnection removes c from every user entry that holds it and
// drops entries left empty. It returns the ids of the users that lost c.
func (r *Registry[C]) UnregisterUserConnection(c C) []string {
	r.usersMu.Lock()
	defer r.usersMu.Unlock()

	var removed []string
	for userID, set := range r.users {
		if _, ok := set[c]; !ok {
			continue
		}
		delete(set, c)
		if len(set) == 0 {
			delete(r.users, userID)
		}
		removed = append(removed, userID)
	}
	return removed
}

// RegisterSessionConnection binds sessionID to c, replacing any earlier
// binding. When a different handle was bound before, it is returned with
// replaced set to true. The superseded handle is not closed.
func (r *Registry[C]) RegisterSessionConnection(sessionID string, c C) (previous C, replaced bool) {
	r.sessionsMu.Lock()
	defer r.sessionsMu.Unlock()

	prev, ok := r.sessions[sessionID]
	r.sessions[sessionID] = c
	if ok && prev != c {
		return prev, true
	}
	return previous, false
}

// UnregisterSessionConnection removes the session binding that points at c,
// if any, and reports which session it was.
func (r *Registry[C]) UnregisterSessionConnection(c C) (sessionID string, ok bool) {
	r.sessionsMu.Lock()
	defer r.sessionsMu.Unlock()

	for id, bound := range r.sessions {
		if bound == c {
			delete(r.sessions, id)
			return id, true
		}
	}
	return "", false
}

// ConnectionsFor returns a copy of the connections held by userID. The slice
// is safe to use after the call returns; it is nil when the user has none.
func (r *Registry[C]) ConnectionsFor(userID string) []C {
	r.usersMu.Lock()
	defer r.usersMu.Unlock()

	set := r.users[userID]
	if len(set) == 0 {
		return nil
	}
	out := make([]C, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// ConnectionFor returns the connection bound to sessionID.
func (r *Registry[C]) ConnectionFor(sessionID string) (C, bool) {
	r.sessionsMu.Lock()
	defer r.sessionsMu.Unlock()

	c, ok := r.sessions[sessionID]
	return c, ok
}

// All returns a de-duplicated snapshot of every connection registered under
// any user.
func (r *Registry[C]) All() []C {
	r.usersMu.Lock()
	defer r.usersMu.Unlock()

	seen := make(map[C]struct{})
	out := make([]C, 0, len(r.users))
	for _, set := range r.users {
		for c := range set {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// Stats reports the current size of both indexes.
func (r *Registry[C]) Stats() Stats {
	var st Stats

	r.usersMu.Lock()
	st.Users = len(r.users)
	for _, set := range r.users {
		st.Connections += len(set)
	}
	r.usersMu.Unlock()

	r.sessionsMu.Lock()
	st.Sessions = len(r.sessions)
	r.sessionsMu.Unlock()

	return st
}
